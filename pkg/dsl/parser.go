// Package dsl parses and validates untrusted workflow definitions.
package dsl

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/asdev/flowrunner/pkg/models"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

// Parse validates raw JSON and returns the typed workflow. Any structural
// problem is reported as a *ValidationError naming every violated field.
// Connector names and template expressions are not checked here.
func Parse(raw []byte) (*models.WorkflowDsl, error) {
	if !json.Valid(raw) {
		return nil, &ValidationError{Violations: []FieldViolation{{
			Path:    rootPath,
			Rule:    "json",
			Message: "definition is not valid JSON",
		}}}
	}

	if violations := checkWireShape(raw); len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	var workflow models.WorkflowDsl

	err := json.Unmarshal(raw, &workflow)
	if err != nil {
		return nil, &ValidationError{Violations: []FieldViolation{{Path: rootPath, Rule: "json", Message: err.Error()}}}
	}

	applyDefaults(&workflow)

	err = validate.Struct(&workflow)
	if err != nil {
		return nil, toValidationError(err)
	}

	return &workflow, nil
}

// ParseValue accepts an already decoded definition (a map, a struct) or raw
// JSON bytes and parses it like Parse.
func ParseValue(value any) (*models.WorkflowDsl, error) {
	switch v := value.(type) {
	case []byte:
		return Parse(v)
	case json.RawMessage:
		return Parse(v)
	case string:
		return Parse([]byte(v))
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, &ValidationError{Violations: []FieldViolation{{Path: rootPath, Rule: "json", Message: err.Error()}}}
	}

	return Parse(raw)
}

func applyDefaults(workflow *models.WorkflowDsl) {
	if workflow.Trigger.Config == nil {
		workflow.Trigger.Config = map[string]any{}
	}

	for i := range workflow.Steps {
		if workflow.Steps[i].Input == nil {
			workflow.Steps[i].Input = map[string]any{}
		}
	}
}

func toValidationError(err error) error {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return &ValidationError{Violations: []FieldViolation{{Path: rootPath, Rule: "invalid", Message: err.Error()}}}
	}

	violations := make([]FieldViolation, 0, len(fieldErrors))
	for _, fieldErr := range fieldErrors {
		violations = append(violations, FieldViolation{
			Path:    trimRootNamespace(fieldErr.Namespace()),
			Rule:    ruleName(fieldErr),
			Message: ruleMessage(fieldErr),
		})
	}

	return &ValidationError{Violations: violations}
}

// trimRootNamespace drops the struct name validator puts in front of every path.
func trimRootNamespace(namespace string) string {
	_, path, found := strings.Cut(namespace, ".")
	if !found {
		return rootPath
	}

	return path
}

func ruleName(fieldErr validator.FieldError) string {
	if fieldErr.Param() == "" {
		return fieldErr.Tag()
	}

	return fieldErr.Tag() + "=" + fieldErr.Param()
}

func ruleMessage(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return "must not be empty"
	case "min":
		return "must have at least " + fieldErr.Param() + " item(s)"
	case "unique":
		return "step ids must be unique"
	case "gt":
		return "must be greater than " + fieldErr.Param()
	case "gte":
		return "must not be negative"
	case "lte":
		return "must be at most " + fieldErr.Param()
	default:
		return ""
	}
}
