// Package main provides the flowrunner HTTP trigger API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/asdev/flowrunner/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger     *slog.Logger
	dispatcher web.RunDispatcher
	checks     map[string]web.HealthCheck
	validate   *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	dispatcher web.RunDispatcher,
	checks map[string]web.HealthCheck,
) *API {
	return &API{
		logger:     logger,
		dispatcher: dispatcher,
		checks:     checks,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.dispatcher, a.validate)
	for name, check := range a.checks {
		handlers.AddHealthCheck(name, check)
	}

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("flowrunner API")
	})

	app.Post("/runs", handlers.CreateRun)
	app.Post("/workflows/validate", handlers.ValidateWorkflow)
	app.Get("/workflows/schema", handlers.WorkflowSchema)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	a.logger.Info("Starting API server", "port", port)

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
