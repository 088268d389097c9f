package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port           string
	Environment    string
	MaxUploadBytes int

	// Relational database configuration
	DBType            string // mysql, postgres, sqlite, sqlserver
	DBHost            string
	DBPort            string
	DBDatabase        string
	DBUser            string
	DBPassword        string
	DBConnectionLimit int
	DBDebug           bool

	// Document store configuration
	MongoURI      string
	MongoDatabase string
	BlobBackend   string // gridfs, filesystem
	BlobDir       string

	// Acting-user configuration
	AuthzURL      string
	AuthzClientID string
	JWTSecret     string
	ReviewerRole  string
	AdminRole     string

	// Wizard rules
	RequiredFieldsFile string
}

// Load loads configuration from environment variables.
// When ENV_FILE is set, that file is loaded first without overriding existing variables.
func Load() (*Config, error) {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		Port:               getEnv("PORT", "3000"),
		Environment:        getEnv("ENVIRONMENT", "development"),
		MaxUploadBytes:     getEnvAsInt("MAX_UPLOAD_BYTES", 20*1024*1024),
		DBType:             getEnv("DB_TYPE", "mysql"),
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             getEnv("DB_PORT", "3306"),
		DBDatabase:         getEnv("DB_DATABASE", ""),
		DBUser:             getEnv("DB_USER", ""),
		DBPassword:         getEnv("DB_PASSWORD", ""),
		DBConnectionLimit:  getEnvAsInt("DB_CONNECTION_LIMIT", 5),
		DBDebug:            getEnvAsBool("DB_DEBUG", false),
		MongoURI:           getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:      getEnv("MONGO_DATABASE", "proposaldb"),
		BlobBackend:        getEnv("BLOB_BACKEND", "gridfs"),
		BlobDir:            getEnv("BLOB_DIR", "./uploads"),
		AuthzURL:           getEnv("AUTHZ_URL", ""),
		AuthzClientID:      getEnv("AUTHZ_CLIENT_ID", ""),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		ReviewerRole:       getEnv("REVIEWER_ROLE", "reviewer"),
		AdminRole:          getEnv("ADMIN_ROLE", "admin"),
		RequiredFieldsFile: getEnv("REQUIRED_FIELDS_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields and enumerated values
func (cfg *Config) Validate() error {
	if cfg.DBDatabase == "" {
		return fmt.Errorf("DB_DATABASE is required")
	}
	if cfg.DBType != "sqlite" && cfg.DBUser == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if cfg.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	switch cfg.BlobBackend {
	case "gridfs", "filesystem":
	default:
		return fmt.Errorf("BLOB_BACKEND must be gridfs or filesystem, got %q", cfg.BlobBackend)
	}
	if cfg.JWTSecret == "" && (cfg.AuthzURL == "" || cfg.AuthzClientID == "") {
		return fmt.Errorf("either JWT_SECRET or AUTHZ_URL and AUTHZ_CLIENT_ID are required")
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
