// Package template resolves {{...}} tokens in step inputs against the trigger
// payload, earlier step outputs and the environment.
package template

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/asdev/flowrunner/pkg/models"
)

const (
	rootTrigger   = "trigger"
	rootEnv       = "env"
	outputSegment = "output"
)

var (
	tokenPattern       = regexp.MustCompile(`\{\{([^}]+)\}\}`)
	singleTokenPattern = regexp.MustCompile(`^\s*\{\{([^}]+)\}\}\s*$`)
)

// Context is everything a token may reference.
type Context struct {
	Trigger map[string]any
	Steps   models.StepOutputs
	Env     map[string]string
}

// Interpolate walks value and resolves every string in it. A string made of a
// single token is replaced by the referenced value itself, keeping its type;
// strings mixing tokens and text are rendered as text. Absent references
// become nil and "" respectively.
func Interpolate(value any, ctx Context) any {
	switch v := value.(type) {
	case string:
		return interpolateString(v, ctx)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = Interpolate(item, ctx)
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Interpolate(item, ctx)
		}

		return out
	default:
		return value
	}
}

// InterpolateMap is Interpolate for the common step input shape.
func InterpolateMap(input map[string]any, ctx Context) map[string]any {
	out, _ := Interpolate(input, ctx).(map[string]any)

	return out
}

// Resolve renders every token of raw as text.
func Resolve(raw string, ctx Context) string {
	return tokenPattern.ReplaceAllStringFunc(raw, func(token string) string {
		value, ok := resolveExpression(token[2:len(token)-2], ctx)
		if !ok {
			return ""
		}

		return stringify(value)
	})
}

func interpolateString(raw string, ctx Context) any {
	if match := singleTokenPattern.FindStringSubmatch(raw); match != nil {
		value, _ := resolveExpression(match[1], ctx)

		return value
	}

	if !strings.Contains(raw, "{{") {
		return raw
	}

	return Resolve(raw, ctx)
}

// resolveExpression looks up a dotted path. The root is "trigger", "env" or a
// step id; for steps a leading "output" segment is optional so both
// {{s1.output.id}} and {{s1.id}} work.
func resolveExpression(expr string, ctx Context) (any, bool) {
	path := strings.Split(strings.TrimSpace(expr), ".")

	root, rest := path[0], path[1:]
	if root == "" {
		return nil, false
	}

	switch root {
	case rootTrigger:
		return lookup(ctx.Trigger, rest)
	case rootEnv:
		return lookup(ctx.Env, rest)
	}

	step, ok := ctx.Steps[root]
	if !ok {
		return nil, false
	}

	if len(rest) > 0 && rest[0] == outputSegment {
		rest = rest[1:]
	}

	return lookup(step.Output, rest)
}

// lookup never fails loudly: anything that is not a mapping along the way,
// or a missing key, makes the whole path absent.
func lookup(source any, path []string) (any, bool) {
	current := source

	for _, key := range path {
		var (
			next  any
			found bool
		)

		switch node := current.(type) {
		case map[string]any:
			next, found = node[key]
		case map[string]string:
			next, found = node[key]
		default:
			next, found = mapIndex(node, key)
		}

		if !found {
			return nil, false
		}

		current = next
	}

	if value := reflect.ValueOf(current); value.Kind() == reflect.Map && value.IsNil() {
		return nil, false
	}

	return current, true
}

// mapIndex reads typed maps with string keys, as returned by Go connectors
// and plugins (map[string]int, map[string]map[string]any, ...).
func mapIndex(node any, key string) (any, bool) {
	value := reflect.ValueOf(node)
	if value.Kind() != reflect.Map || value.Type().Key().Kind() != reflect.String {
		return nil, false
	}

	entry := value.MapIndex(reflect.ValueOf(key).Convert(value.Type().Key()))
	if !entry.IsValid() {
		return nil, false
	}

	return entry.Interface(), true
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case json.Number:
		return v.String()
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v)
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}

	return string(encoded)
}
