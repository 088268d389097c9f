package app

import (
	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	swagger "github.com/gofiber/swagger"

	"github.com/localnerve/proposaldb/internal/handlers"
	"github.com/localnerve/proposaldb/internal/middleware"
)

// ServiceName labels the request metrics.
const ServiceName = "proposaldb"

// ServerOptions toggle the outer surfaces of the HTTP server.
type ServerOptions struct {
	// Metrics serves request and domain counters at /metrics.
	Metrics bool
	// Docs serves the API documentation at /swagger.
	Docs bool
	// AccessLog logs every request.
	AccessLog bool
}

// NewServer builds the fiber app serving the API under /api.
func NewServer(rt *Runtime, opts ServerOptions) *fiber.App {
	bodyLimit := rt.Config.MaxUploadBytes
	if bodyLimit <= 0 {
		bodyLimit = fiber.DefaultBodyLimit
	}
	app := fiber.New(fiber.Config{
		ErrorHandler:          handlers.ErrorHandler,
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	if opts.AccessLog {
		app.Use(logger.New())
	}
	app.Use(compress.New())

	if opts.Metrics {
		prometheus := fiberprometheus.New(ServiceName)
		prometheus.RegisterAt(app, "/metrics")
		app.Use(prometheus.Middleware)
	}
	if opts.Docs {
		app.Get("/swagger/*", swagger.HandlerDefault)
	}

	api := app.Group("/api")
	handlers.Register(api, &handlers.Handlers{
		Drafts:        &handlers.DraftHandler{Coordinator: rt.Coordinator},
		Proposals:     &handlers.ProposalHandler{Coordinator: rt.Coordinator, Status: rt.Status},
		Admin:         &handlers.AdminHandler{Coordinator: rt.Coordinator},
		Notifications: &handlers.NotificationHandler{Directory: rt.Directory},
		Health:        &handlers.HealthHandler{Checker: rt.Health},
	}, middleware.AuthActor(rt.Auth), reviewerRoles(rt)...)

	app.Use(handlers.NotFound)
	return app
}

func reviewerRoles(rt *Runtime) []string {
	roles := []string{rt.Config.ReviewerRole, rt.Config.AdminRole}
	out := roles[:0]
	for _, r := range roles {
		if r != "" {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return []string{"reviewer", "admin"}
	}
	return out
}
