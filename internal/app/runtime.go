// Package app assembles the proposal service from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/localnerve/proposaldb/internal/config"
	"github.com/localnerve/proposaldb/internal/database"
	"github.com/localnerve/proposaldb/internal/documents"
	"github.com/localnerve/proposaldb/internal/metrics"
	"github.com/localnerve/proposaldb/internal/middleware"
	"github.com/localnerve/proposaldb/internal/services"
	"github.com/localnerve/proposaldb/internal/wizard"
)

// Stores are the opened store handles a Runtime is assembled from.
type Stores struct {
	DB          *gorm.DB
	Attachments documents.AttachmentStore
	Blobs       documents.BlobStore
}

// Runtime holds every service of a running instance.
type Runtime struct {
	Config      *config.Config
	Log         *zap.Logger
	Stores      Stores
	Machine     *wizard.Machine
	Metrics     *metrics.Metrics
	Coordinator *services.Coordinator
	Status      *services.StatusEngine
	Directory   *services.Directory
	Health      *services.HealthChecker
	Auth        middleware.Authenticator

	closers []func() error
}

// Open connects to the configured stores, migrates the relational schema and
// assembles a Runtime. reg receives the domain counters and may be nil.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger, reg prometheus.Registerer) (*Runtime, error) {
	db, err := database.Connect(cfg, log)
	if err != nil {
		return nil, err
	}
	closers := []func() error{func() error { return database.Close(db) }}
	fail := func(err error) (*Runtime, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	if err := database.AutoMigrate(db); err != nil {
		return fail(fmt.Errorf("failed to run migrations: %w", err))
	}

	client, mdb, err := database.ConnectMongo(ctx, cfg, log)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() error { return database.DisconnectMongo(client) })

	attachments, err := documents.NewMongoStore(ctx, mdb, log.Named("documents"))
	if err != nil {
		return fail(err)
	}
	blobs, err := openBlobs(cfg, mdb)
	if err != nil {
		return fail(err)
	}

	rt, err := Assemble(cfg, log, reg, Stores{DB: db, Attachments: attachments, Blobs: blobs})
	if err != nil {
		return fail(err)
	}
	rt.closers = closers

	if cfg.AuthzURL != "" && cfg.AuthzClientID != "" {
		sessions, err := services.NewAuthorizerSessions(ctx, cfg, "", log.Named("authorizer"))
		if err != nil {
			if rt.Auth.JWT == nil {
				return fail(err)
			}
			log.Warn("session cookies disabled", zap.Error(err))
		} else {
			rt.Auth.Sessions = sessions
		}
	}
	return rt, nil
}

func openBlobs(cfg *config.Config, mdb *mongo.Database) (documents.BlobStore, error) {
	switch cfg.BlobBackend {
	case "filesystem":
		return documents.NewFileBlobStore(cfg.BlobDir)
	default:
		return documents.NewGridFSBlobStore(mdb, "attachments")
	}
}

// Assemble wires the services over already opened stores.
func Assemble(cfg *config.Config, log *zap.Logger, reg prometheus.Registerer, stores Stores) (*Runtime, error) {
	if log == nil {
		log = zap.NewNop()
	}
	rules, err := wizard.LoadRules(cfg.RequiredFieldsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load wizard rules: %w", err)
	}

	machine := wizard.NewMachine(rules)
	roles := services.DefaultRoles
	if cfg.ReviewerRole != "" {
		roles.Reviewer = cfg.ReviewerRole
	}
	if cfg.AdminRole != "" {
		roles.Admin = cfg.AdminRole
	}
	m := metrics.New(reg)

	status := services.NewStatusEngine(stores.DB, machine, roles, m, log.Named("status"))
	rt := &Runtime{
		Config:  cfg,
		Log:     log,
		Stores:  stores,
		Machine: machine,
		Metrics: m,
		Status:  status,
		Coordinator: services.NewCoordinator(services.CoordinatorOptions{
			DB:          stores.DB,
			Attachments: stores.Attachments,
			Blobs:       stores.Blobs,
			Machine:     machine,
			Status:      status,
			Roles:       roles,
			Metrics:     m,
			Logger:      log.Named("coordinator"),
		}),
		Directory: services.NewDirectory(stores.DB, roles, log.Named("notifications")),
		Health:    services.NewHealthChecker(cfg, stores.DB, stores.Attachments, log.Named("health")),
		Auth:      middleware.Authenticator{JWT: services.NewJWTVerifier(cfg.JWTSecret)},
	}
	return rt, nil
}

// Close releases the stores in reverse order of opening.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	rt.closers = nil
	return errors.Join(errs...)
}
