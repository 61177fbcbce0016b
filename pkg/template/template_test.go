package template_test

import (
	"testing"

	"github.com/asdev/flowrunner/pkg/models"
	"github.com/asdev/flowrunner/pkg/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() template.Context {
	return template.Context{
		Trigger: map[string]any{
			"phone": "+989121234567",
			"order": map[string]any{"amount": 1500.0, "items": []any{"a", "b"}},
		},
		Steps: models.StepOutputs{
			"s1": {Output: map[string]any{"id": "case_1", "ok": true}},
		},
		Env: map[string]string{"RUNTIME": "test"},
	}
}

func TestInterpolate_TriggerToken(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "+989121234567", template.Interpolate("{{trigger.phone}}", testContext()))
}

func TestInterpolate_WholeTokenKeepsType(t *testing.T) {
	t.Parallel()

	ctx := testContext()

	assert.Equal(t, map[string]any{"id": "case_1", "ok": true}, template.Interpolate("{{s1.output}}", ctx))
	assert.Equal(t, map[string]any{"id": "case_1", "ok": true}, template.Interpolate("  {{s1.output}}  ", ctx))
	assert.Equal(t, true, template.Interpolate("{{s1.output.ok}}", ctx))
	assert.Equal(t, 1500.0, template.Interpolate("{{ trigger.order.amount }}", ctx))
	assert.Equal(t, []any{"a", "b"}, template.Interpolate("{{trigger.order.items}}", ctx))
}

func TestInterpolate_MixedText(t *testing.T) {
	t.Parallel()

	out := template.Interpolate(map[string]any{
		"text": "{{trigger.phone}} -> {{s1.id}} -> {{env.RUNTIME}}",
	}, testContext())

	assert.Equal(t, map[string]any{"text": "+989121234567 -> case_1 -> test"}, out)
}

func TestInterpolate_TypedMapsFromConnectors(t *testing.T) {
	t.Parallel()

	type label string

	ctx := template.Context{
		Steps: models.StepOutputs{
			"s1": {Output: map[string]any{
				"meta":   map[string]int{"n": 3},
				"nested": map[string]map[string]any{"inner": {"ok": true}},
				"labels": map[label]string{"tier": "gold"},
				"empty":  map[string]int(nil),
			}},
		},
	}

	assert.Equal(t, 3, template.Interpolate("{{s1.output.meta.n}}", ctx))
	assert.Equal(t, "n=3", template.Interpolate("n={{s1.output.meta.n}}", ctx))
	assert.Equal(t, true, template.Interpolate("{{s1.nested.inner.ok}}", ctx))
	assert.Equal(t, "gold", template.Interpolate("{{s1.labels.tier}}", ctx))
	assert.Nil(t, template.Interpolate("{{s1.meta.missing}}", ctx))
	assert.Nil(t, template.Interpolate("{{s1.empty}}", ctx))
}

func TestInterpolate_MixedTextCoercion(t *testing.T) {
	t.Parallel()

	ctx := testContext()

	assert.Equal(t, "amount=1500", template.Interpolate("amount={{trigger.order.amount}}", ctx))
	assert.Equal(t, "ok=true", template.Interpolate("ok={{s1.ok}}", ctx))
	assert.Equal(t, `items=["a","b"]`, template.Interpolate("items={{trigger.order.items}}", ctx))
}

func TestInterpolate_AbsentReferences(t *testing.T) {
	t.Parallel()

	ctx := testContext()

	tests := []struct {
		name     string
		input    string
		expected any
	}{
		{name: "missing trigger key whole token", input: "{{trigger.email}}", expected: nil},
		{name: "missing trigger key mixed", input: "to: {{trigger.email}}!", expected: "to: !"},
		{name: "unknown step", input: "{{s9.output.id}}", expected: nil},
		{name: "unknown step mixed", input: "ref-{{s9.output.id}}", expected: "ref-"},
		{name: "through a scalar", input: "{{trigger.phone.country}}", expected: nil},
		{name: "through a list", input: "{{trigger.order.items.0}}", expected: nil},
		{name: "missing env", input: "[{{env.NOPE}}]", expected: "[]"},
		{name: "empty root", input: "x{{ .a }}y", expected: "xy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, template.Interpolate(tt.input, ctx))
		})
	}
}

func TestInterpolate_RecursesIntoStructures(t *testing.T) {
	t.Parallel()

	input := map[string]any{
		"to":    "{{trigger.phone}}",
		"count": 3.0,
		"flag":  false,
		"nested": map[string]any{
			"ref":  "{{s1.output.id}}",
			"list": []any{"{{env.RUNTIME}}", 1.0, nil},
		},
	}

	out := template.InterpolateMap(input, testContext())

	require.NotNil(t, out)
	assert.Equal(t, "+989121234567", out["to"])
	assert.Equal(t, 3.0, out["count"])
	assert.Equal(t, false, out["flag"])

	nested, ok := out["nested"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "case_1", nested["ref"])
	assert.Equal(t, []any{"test", 1.0, nil}, nested["list"])

	assert.Equal(t, "{{trigger.phone}}", input["to"], "input must not be mutated")
}

func TestInterpolate_NilContext(t *testing.T) {
	t.Parallel()

	assert.Nil(t, template.Interpolate("{{trigger.phone}}", template.Context{}))
	assert.Equal(t, "a--b", template.Interpolate("a-{{s1.id}}-b", template.Context{}))
	assert.Equal(t, map[string]any{}, template.InterpolateMap(nil, template.Context{}))
}

func TestResolve_PlainStringUntouched(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "no tokens {here}", template.Resolve("no tokens {here}", testContext()))
}

func TestEnvFromOS(t *testing.T) {
	t.Setenv("FLOWRUNNER_TEMPLATE_TEST", "value=with=equals")

	env := template.EnvFromOS()
	assert.Equal(t, "value=with=equals", env["FLOWRUNNER_TEMPLATE_TEST"])
}
