package web

import (
	"github.com/asdev/flowrunner/pkg/dsl"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// invalidWorkflowProblem is a validation problem listing the violated fields.
type invalidWorkflowProblem struct {
	*problems.Problem

	Violations []dsl.FieldViolation `json:"violations"`
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func invalidWorkflow(c fiber.Ctx, err *dsl.ValidationError) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("invalid_workflow").
		WithDetail(err.Error())

	return c.Status(fiber.StatusBadRequest).JSON(invalidWorkflowProblem{
		Problem:    problem,
		Violations: err.Violations,
	})
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}
