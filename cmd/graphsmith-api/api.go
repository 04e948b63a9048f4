// Package main provides the Graphsmith API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/graphsmith/pkg/cmd"
	"github.com/dukex/graphsmith/pkg/eventbus"
	"github.com/dukex/graphsmith/pkg/persistence"
	"github.com/dukex/graphsmith/pkg/secrets"
	"github.com/dukex/graphsmith/pkg/services"
	"github.com/dukex/graphsmith/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	pipeline    *cmd.Pipeline
	keys        *secrets.Store
	tracer      trace.Tracer
	adminToken  string
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	pipeline *cmd.Pipeline,
	keys *secrets.Store,
	tracer trace.Tracer,
	adminToken string,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		pipeline:    pipeline,
		keys:        keys,
		tracer:      tracer,
		adminToken:  adminToken,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	p := a.pipeline

	synthesisService := services.NewSynthesis(a.logger, a.tracer, p.Extractor, p.Validator, p.Normalizer, a.eventBus)
	deploymentService := services.NewDeployment(a.logger, a.tracer, a.persistence, p.Injector, p.Normalizer, a.eventBus)
	templateService := services.NewTemplate(a.logger, a.persistence, p.Validator, a.eventBus)

	handlers := web.NewAPIHandlers(
		a.logger,
		synthesisService,
		deploymentService,
		templateService,
		a.keys,
		a.validate,
		a.adminToken,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.LivenessEndpoint, healthcheck.New())
	app.Get(healthcheck.ReadinessEndpoint, healthcheck.New(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			_, ok := templateService.HealthCheck(c.Context())

			return ok
		},
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Graphsmith API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
