// Package httpapi implements spec.md §6's HTTP API: workflow CRUD, manual
// and webhook/event/chain trigger admission, execution introspection, and
// credential management, over Fiber v3 with RFC7807 problem+json errors —
// grounded on _examples/dukex-operion/cmd/operion-api/api.go and
// pkg/web/handlers.go.
package httpapi

import (
	"log/slog"
	"strconv"

	"github.com/dukex/operion/internal/engine"
	"github.com/dukex/operion/internal/store"
	"github.com/dukex/operion/internal/trigger"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type Server struct {
	store    store.Store
	engine   *engine.Engine
	gateway  *trigger.Gateway
	logger   *slog.Logger
	validate *validator.Validate
}

func NewServer(st store.Store, eng *engine.Engine, gw *trigger.Gateway, log *slog.Logger) *Server {
	return &Server{
		store:    st,
		engine:   eng,
		gateway:  gw,
		logger:   log.With("component", "httpapi"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *Server) App() *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{DisableColors: true}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Operion workflow engine")
	})

	api := app.Group("/api")

	w := api.Group("/workflows")
	w.Get("/", s.listWorkflows)
	w.Post("/", s.createWorkflow)
	w.Get("/:id", s.getWorkflow)
	w.Patch("/:id", s.updateWorkflow)
	w.Delete("/:id", s.deleteWorkflow)
	w.Post("/:id/execute", s.executeWorkflow)
	w.Post("/:id/chain", s.chainWorkflow)

	api.Get("/executions/:id", s.getExecution)

	api.Post("/webhooks/:webhookId", s.postWebhook)
	api.Post("/events", s.postEvent)

	c := api.Group("/credentials")
	c.Get("/", s.listCredentials)
	c.Post("/", s.createCredential)
	c.Delete("/:id", s.deleteCredential)

	return app
}

func (s *Server) Start(port int) error {
	return s.App().Listen(":" + strconv.Itoa(port))
}
