package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	_ "github.com/localnerve/proposaldb/docs/api" // Swagger docs
	"github.com/localnerve/proposaldb/internal/app"
	"github.com/localnerve/proposaldb/internal/config"
	"github.com/localnerve/proposaldb/internal/logger"
)

// @title ProposalDB API
// @version 1.0.0
// @description Draft identity and hybrid persistence service for event proposals
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/localnerve/proposaldb
// @contact.email info@localnerve.com

// @license.name AGPL-3.0
// @license.url https://www.gnu.org/licenses/agpl-3.0.html

// @host localhost:3000
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name cookie_session

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	rt, err := app.Open(ctx, cfg, zlog, prometheus.DefaultRegisterer)
	cancel()
	if err != nil {
		zlog.Fatal("failed to open stores", zap.Error(err))
	}
	defer func() {
		if err := rt.Close(); err != nil {
			zlog.Warn("failed to close stores", zap.Error(err))
		}
	}()

	server := app.NewServer(rt, app.ServerOptions{
		Metrics:   true,
		Docs:      cfg.Environment != "production",
		AccessLog: cfg.Environment != "production",
	})

	// Graceful shutdown
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		zlog.Info("gracefully shutting down")
		if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
			zlog.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	zlog.Info("starting server", zap.String("port", cfg.Port), zap.String("environment", cfg.Environment))
	if err := server.Listen(":" + cfg.Port); err != nil {
		zlog.Error("server stopped", zap.Error(err))
		return
	}
	zlog.Info("server stopped")
}
