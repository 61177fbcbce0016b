// Package web provides the HTTP trigger API: it validates workflow
// definitions and enqueues runs.
package web

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/asdev/flowrunner/pkg/dispatcher"
	"github.com/asdev/flowrunner/pkg/dsl"
	"github.com/asdev/flowrunner/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// RunDispatcher enqueues runs. *dispatcher.Dispatcher implements it.
type RunDispatcher interface {
	Dispatch(ctx context.Context, request dispatcher.Request) (*models.QueueJob, error)
}

// HealthCheck reports whether a dependency of the API is usable.
type HealthCheck func(ctx context.Context) error

type APIHandlers struct {
	dispatcher RunDispatcher
	validator  *validator.Validate
	checks     map[string]HealthCheck
}

func NewAPIHandlers(dispatcher RunDispatcher, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		dispatcher: dispatcher,
		validator:  validator,
		checks:     make(map[string]HealthCheck),
	}
}

// AddHealthCheck registers a named check run by GET /health.
func (h *APIHandlers) AddHealthCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

// CreateRun enqueues a run of the posted workflow.
func (h *APIHandlers) CreateRun(c fiber.Ctx) error {
	var req CreateRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	request := dispatcher.Request{
		Workflow:    req.Workflow,
		Trigger:     req.Trigger,
		MaxAttempts: req.MaxAttempts,
	}

	if req.AvailableAt != nil {
		request.AvailableAt = *req.AvailableAt
	}

	job, err := h.dispatcher.Dispatch(c.Context(), request)
	if err != nil {
		var validationErr *dsl.ValidationError
		if errors.As(err, &validationErr) {
			return invalidWorkflow(c, validationErr)
		}

		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(CreateRunResponse{
		RunID:       job.RunID,
		JobID:       job.ID,
		AvailableAt: job.AvailableAt,
	})
}

// ValidateWorkflow checks a workflow definition without running it.
func (h *APIHandlers) ValidateWorkflow(c fiber.Ctx) error {
	var req ValidateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := dsl.Parse(req.Workflow)
	if err != nil {
		var validationErr *dsl.ValidationError
		if errors.As(err, &validationErr) {
			return invalidWorkflow(c, validationErr)
		}

		return internalError(c, err)
	}

	steps := make([]string, 0, len(workflow.Steps))
	for _, step := range workflow.Steps {
		steps = append(steps, step.ID)
	}

	return c.JSON(ValidateWorkflowResponse{
		Valid:   true,
		Name:    workflow.Name,
		Trigger: workflow.Trigger.Type,
		Steps:   steps,
	})
}

// WorkflowSchema serves the JSON Schema of the workflow wire format.
func (h *APIHandlers) WorkflowSchema(c fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "application/schema+json")

	return c.SendString(dsl.Schema())
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}

	slices.Sort(names)

	healthy := true
	checkers := fiber.Map{}

	for _, name := range names {
		err := h.checks[name](c.Context())
		if err != nil {
			healthy = false
			checkers[name] = fiber.Map{"healthy": false, "error": err.Error()}

			continue
		}

		checkers[name] = fiber.Map{"healthy": true}
	}

	status := "unhealthy"
	message := "flowrunner API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if healthy {
		status = "healthy"
		message = "flowrunner API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"checkers":  checkers,
		"timestamp": time.Now().UTC(),
	})
}
