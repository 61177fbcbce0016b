package dsl

import (
	"fmt"
	"strings"
)

const rootPath = "(root)"

// FieldViolation is a single rule a workflow definition broke.
type FieldViolation struct {
	Path    string `json:"path"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (f FieldViolation) String() string {
	if f.Message == "" {
		return fmt.Sprintf("%s (%s)", f.Path, f.Rule)
	}

	return fmt.Sprintf("%s (%s): %s", f.Path, f.Rule, f.Message)
}

// ValidationError lists every violated field of a malformed workflow definition.
type ValidationError struct {
	Violations []FieldViolation `json:"violations"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}

	return "invalid workflow dsl: " + strings.Join(parts, "; ")
}

// Fields returns the violated field paths in the order they were found.
func (e *ValidationError) Fields() []string {
	fields := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		fields = append(fields, v.Path)
	}

	return fields
}

// HasField reports whether path is among the violated fields.
func (e *ValidationError) HasField(path string) bool {
	for _, v := range e.Violations {
		if v.Path == path {
			return true
		}
	}

	return false
}
