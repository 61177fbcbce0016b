package dsl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// wireSchema only pins down the JSON types of the documented fields. Value
// rules (non-empty, positive, unique) live on the model's struct tags.
const wireSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "name": {"type": "string"},
    "trigger": {
      "type": "object",
      "properties": {
        "type": {"type": "string"},
        "config": {"type": "object"}
      }
    },
    "steps": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "id": {"type": "string"},
          "connector": {"type": "string"},
          "operation": {"type": "string"},
          "connectionId": {"type": "string"},
          "input": {"type": "object"},
          "policy": {
            "type": "object",
            "properties": {
              "timeoutMs": {"type": "integer"},
              "maxAttempts": {"type": "integer"},
              "backoffMs": {"type": "integer"}
            }
          }
        }
      }
    }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(wireSchema))
	if err != nil {
		panic(fmt.Errorf("invalid workflow wire schema: %w", err))
	}

	return schema
}

// Schema returns the JSON Schema used to check the wire shape of a definition.
func Schema() string {
	return wireSchema
}

func checkWireShape(raw []byte) []FieldViolation {
	result, err := compiledSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return []FieldViolation{{Path: rootPath, Rule: "json", Message: err.Error()}}
	}

	if result.Valid() {
		return nil
	}

	violations := make([]FieldViolation, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, FieldViolation{
			Path:    schemaFieldPath(desc.Field()),
			Rule:    desc.Type(),
			Message: desc.Description(),
		})
	}

	return violations
}

// schemaFieldPath turns gojsonschema's "steps.0.policy.timeoutMs" into
// "steps[0].policy.timeoutMs".
func schemaFieldPath(field string) string {
	if field == "" || field == rootPath {
		return rootPath
	}

	var b strings.Builder

	for i, segment := range strings.Split(field, ".") {
		if _, err := strconv.Atoi(segment); err == nil && i > 0 {
			b.WriteString("[" + segment + "]")

			continue
		}

		if i > 0 {
			b.WriteByte('.')
		}

		b.WriteString(segment)
	}

	return b.String()
}
