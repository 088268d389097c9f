package testenv

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/localnerve/proposaldb/internal/config"
)

// Container defaults, each overridable by the environment variable of the same name.
const (
	defaultMariaDBImage = "mariadb:11.4"
	defaultMongoImage   = "mongo:7.0"
	defaultRedisImage   = "redis:7-alpine"
	dbName              = "proposals"
	dbUser              = "proposals"
	dbPassword          = "proposals-test"
	dbRootPassword      = "root-test"
)

// Containers are the stores the service needs, running in Docker.
type Containers struct {
	Network *testcontainers.DockerNetwork
	MariaDB testcontainers.Container
	Mongo   testcontainers.Container

	DBHost   string
	DBPort   string
	MongoURI string
}

// Integration reports whether integration tests were asked for.
func Integration() bool {
	return os.Getenv("INTEGRATION") == "1"
}

// RequireDocker skips t unless INTEGRATION=1 and a Docker daemon answers.
func RequireDocker(t *testing.T) {
	t.Helper()
	if !Integration() {
		t.Skip("set INTEGRATION=1 to run container tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := PingDocker(ctx); err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
}

// PingDocker checks that the Docker daemon named by the environment answers.
func PingDocker(ctx context.Context) error {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return err
	}
	defer cli.Close()
	_, err = cli.Ping(ctx)
	return err
}

// Config returns a service configuration pointing at the containers.
func (tc *Containers) Config() *config.Config {
	return &config.Config{
		Port:              "3000",
		Environment:       "test",
		MaxUploadBytes:    10 * 1024 * 1024,
		DBType:            "mariadb",
		DBHost:            tc.DBHost,
		DBPort:            tc.DBPort,
		DBDatabase:        dbName,
		DBUser:            dbUser,
		DBPassword:        dbPassword,
		DBConnectionLimit: 5,
		MongoURI:          tc.MongoURI,
		MongoDatabase:     dbName,
		BlobBackend:       "gridfs",
		JWTSecret:         "integration-secret",
		ReviewerRole:      "reviewer",
		AdminRole:         "admin",
	}
}

// Terminate stops everything that was started. t may be nil.
func (tc *Containers) Terminate(t *testing.T) {
	ctx := context.Background()
	if tc.Mongo != nil {
		if err := tc.Mongo.Terminate(ctx); err != nil {
			logMessage(t, "Failed to terminate MongoDB: %v", err)
		}
	}
	if tc.MariaDB != nil {
		if err := tc.MariaDB.Terminate(ctx); err != nil {
			logMessage(t, "Failed to terminate MariaDB: %v", err)
		}
	}
	if tc.Network != nil {
		if err := tc.Network.Remove(ctx); err != nil {
			logMessage(t, "Failed to remove network: %v", err)
		}
	}
}

// StartContainers starts MariaDB and MongoDB on a private network. With a
// non-nil t, failures fail the test and cleanup is registered; with nil t
// failures exit the process.
func StartContainers(t *testing.T) *Containers {
	ctx := context.Background()
	tc := &Containers{}

	nw, err := network.New(ctx)
	if err != nil {
		exitWithError(t, err, "Failed to create network")
	}
	tc.Network = nw

	dbPort := nat.Port("3306/tcp")
	mariadb, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        getEnv("MARIADB_IMAGE", defaultMariaDBImage),
			ExposedPorts: []string{string(dbPort)},
			Env: map[string]string{
				"MARIADB_ROOT_PASSWORD": dbRootPassword,
				"MARIADB_DATABASE":      dbName,
				"MARIADB_USER":          dbUser,
				"MARIADB_PASSWORD":      dbPassword,
			},
			WaitingFor:     wait.ForListeningPort(dbPort).WithStartupTimeout(90 * time.Second),
			Networks:       []string{nw.Name},
			NetworkAliases: map[string][]string{nw.Name: {"mariadb"}},
		},
		Started: true,
	})
	if err != nil {
		tc.Terminate(t)
		exitWithError(t, err, "Failed to start MariaDB")
	}
	tc.MariaDB = mariadb

	mongoPort := nat.Port("27017/tcp")
	mongo, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:          getEnv("MONGO_IMAGE", defaultMongoImage),
			ExposedPorts:   []string{string(mongoPort)},
			WaitingFor:     wait.ForListeningPort(mongoPort).WithStartupTimeout(60 * time.Second),
			Networks:       []string{nw.Name},
			NetworkAliases: map[string][]string{nw.Name: {"mongo"}},
		},
		Started: true,
	})
	if err != nil {
		tc.Terminate(t)
		exitWithError(t, err, "Failed to start MongoDB")
	}
	tc.Mongo = mongo

	if tc.DBHost, err = mariadb.Host(ctx); err != nil {
		tc.Terminate(t)
		exitWithError(t, err, "Failed to read MariaDB host")
	}
	mapped, err := mariadb.MappedPort(ctx, dbPort)
	if err != nil {
		tc.Terminate(t)
		exitWithError(t, err, "Failed to read MariaDB port")
	}
	tc.DBPort = mapped.Port()

	mongoHost, err := mongo.Host(ctx)
	if err != nil {
		tc.Terminate(t)
		exitWithError(t, err, "Failed to read MongoDB host")
	}
	mongoMapped, err := mongo.MappedPort(ctx, mongoPort)
	if err != nil {
		tc.Terminate(t)
		exitWithError(t, err, "Failed to read MongoDB port")
	}
	tc.MongoURI = fmt.Sprintf("mongodb://%s:%s", mongoHost, mongoMapped.Port())

	logMessage(t, "DB_HOST=%s DB_PORT=%s", tc.DBHost, tc.DBPort)
	logMessage(t, "MONGO_URI=%s", tc.MongoURI)

	if t != nil {
		t.Cleanup(func() { tc.Terminate(t) })
	}
	return tc
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func exitWithError(t *testing.T, err error, msg string) {
	if t != nil {
		t.Fatalf(msg+": %v", err)
	} else {
		fmt.Printf(msg+": %v\n", err)
		os.Exit(1)
	}
}

func logMessage(t *testing.T, format string, args ...any) {
	if t != nil {
		t.Logf(format, args...)
	} else {
		fmt.Printf(format+"\n", args...)
	}
}

// StartRedis starts a standalone Redis for the draft resolver cache and
// returns its redis:// URL. Cleanup is registered on t.
func StartRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	port := nat.Port("6379/tcp")
	redis, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        getEnv("REDIS_IMAGE", defaultRedisImage),
			ExposedPorts: []string{string(port)},
			WaitingFor:   wait.ForListeningPort(port).WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis: %v", err)
	}
	t.Cleanup(func() {
		if err := redis.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate Redis: %v", err)
		}
	})

	host, err := redis.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to read Redis host: %v", err)
	}
	mapped, err := redis.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("Failed to read Redis port: %v", err)
	}
	return fmt.Sprintf("redis://%s:%s/0", host, mapped.Port())
}
