package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/localnerve/proposaldb/internal/config"
	"github.com/localnerve/proposaldb/internal/documents"
	"github.com/localnerve/proposaldb/internal/utils"
)

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status       string            `json:"status"`
	Database     string            `json:"database"`
	Documents    string            `json:"documents"`
	Authorizer   string            `json:"authorizer,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
	ErrorMessage string            `json:"error,omitempty"`
}

// Healthy reports whether every checked dependency answered.
func (r HealthCheckResult) Healthy() bool {
	return r.Status == "healthy"
}

// HealthChecker pings every store the service depends on.
type HealthChecker struct {
	cfg         *config.Config
	db          *gorm.DB
	attachments documents.AttachmentStore
	log         *zap.Logger
}

// NewHealthChecker builds a HealthChecker.
func NewHealthChecker(cfg *config.Config, db *gorm.DB, attachments documents.AttachmentStore, log *zap.Logger) *HealthChecker {
	if log == nil {
		log = zap.NewNop()
	}
	return &HealthChecker{cfg: cfg, db: db, attachments: attachments, log: log}
}

// Check performs a comprehensive health check of the service
func (h *HealthChecker) Check(ctx context.Context) HealthCheckResult {
	result := HealthCheckResult{
		Status:  "healthy",
		Details: make(map[string]string),
	}
	var failures []string
	fail := func(component, state string, err error) {
		result.Status = "unhealthy"
		result.Details[component+"_error"] = err.Error()
		failures = append(failures, fmt.Sprintf("%s %s: %v", component, state, err))
		h.log.Warn("health check failed", zap.String("component", component), zap.Error(err))
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		result.Database = "error"
		fail("database", "connection error", err)
	} else if err := sqlDB.PingContext(ctx); err != nil {
		result.Database = "unreachable"
		fail("database", "ping failed", err)
	} else {
		result.Database = "ok"
		result.Details["database_type"] = h.cfg.DBType
		result.Details["database_name"] = h.cfg.DBDatabase
	}

	if err := h.attachments.Ping(ctx); err != nil {
		result.Documents = "unreachable"
		fail("documents", "ping failed", err)
	} else {
		result.Documents = "ok"
		result.Details["blob_backend"] = h.cfg.BlobBackend
	}

	if h.cfg.AuthzURL != "" {
		if err := utils.PingAuthorizer(ctx, h.cfg.AuthzURL); err != nil {
			result.Authorizer = "unreachable"
			fail("authorizer", "ping failed", err)
		} else {
			result.Authorizer = "ok"
			result.Details["authorizer_url"] = h.cfg.AuthzURL
		}
	}

	if len(failures) > 0 {
		result.ErrorMessage = strings.Join(failures, "; ")
	} else {
		h.log.Debug("health check passed")
	}
	return result
}
