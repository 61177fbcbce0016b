package registry_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/asdev/flowrunner/pkg/protocol"
	"github.com/asdev/flowrunner/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConnector struct {
	config      map[string]any
	invocations []protocol.Invocation
}

func (c *recordingConnector) Run(_ context.Context, invocation protocol.Invocation, input map[string]any) (map[string]any, error) {
	c.invocations = append(c.invocations, invocation)

	if invocation.Operation == "explode" {
		return nil, errors.New("connector exploded")
	}

	if invocation.Operation == "nothing" {
		return nil, nil
	}

	return map[string]any{"input": input, "config": c.config}, nil
}

type mockFactory struct {
	id        string
	connector *recordingConnector
}

func (f *mockFactory) ID() string {
	return f.id
}

func (f *mockFactory) Create(config map[string]any) (protocol.Connector, error) {
	f.connector = &recordingConnector{config: config}

	return f.connector, nil
}

type staticResolver map[string]map[string]any

func (r staticResolver) ResolveConnection(_ context.Context, id string) (map[string]any, error) {
	config, ok := r[id]
	if !ok {
		return nil, errors.New("connection not found")
	}

	return config, nil
}

func TestRegistry_RegisterAndList(t *testing.T) {
	t.Parallel()

	r := registry.NewRegistry(slog.Default())
	r.RegisterConnector(&mockFactory{id: "ir.sms"})
	r.RegisterConnector(&mockFactory{id: "core.case"})

	assert.Equal(t, []string{"core.case", "ir.sms"}, r.Connectors())
}

func TestRegistry_CreateConnector_NotRegistered(t *testing.T) {
	t.Parallel()

	r := registry.NewRegistry(slog.Default())

	_, err := r.CreateConnector("missing", nil)
	assert.ErrorIs(t, err, registry.ErrConnectorNotRegistered)
}

func TestRegistry_RunAction(t *testing.T) {
	t.Parallel()

	factory := &mockFactory{id: "core.case"}
	r := registry.NewRegistry(slog.Default())
	r.RegisterConnector(factory)

	result, err := r.RunAction(context.Background(), protocol.ActionRequest{
		Connector:      "core.case",
		Operation:      "create",
		Input:          map[string]any{"phone": "1"},
		IdempotencyKey: "run-1:s1",
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"phone": "1"}, result.Output["input"])
	assert.Equal(t, map[string]any{}, result.Output["config"])
	assert.Equal(t, []protocol.Invocation{{Operation: "create", IdempotencyKey: "run-1:s1"}}, factory.connector.invocations)
}

func TestRegistry_RunAction_NilOutputBecomesEmpty(t *testing.T) {
	t.Parallel()

	r := registry.NewRegistry(slog.Default())
	r.RegisterConnector(&mockFactory{id: "core.case"})

	result, err := r.RunAction(context.Background(), protocol.ActionRequest{Connector: "core.case", Operation: "nothing"})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, result.Output)
}

func TestRegistry_RunAction_ConnectorError(t *testing.T) {
	t.Parallel()

	r := registry.NewRegistry(slog.Default())
	r.RegisterConnector(&mockFactory{id: "core.case"})

	_, err := r.RunAction(context.Background(), protocol.ActionRequest{Connector: "core.case", Operation: "explode"})

	require.EqualError(t, err, "connector exploded")
}

func TestRegistry_RunAction_UnknownConnector(t *testing.T) {
	t.Parallel()

	r := registry.NewRegistry(slog.Default())

	_, err := r.RunAction(context.Background(), protocol.ActionRequest{Connector: "nope", Operation: "x"})

	assert.ErrorIs(t, err, registry.ErrConnectorNotRegistered)
}

func TestRegistry_RunAction_Connections(t *testing.T) {
	t.Parallel()

	factory := &mockFactory{id: "ir.payment"}
	r := registry.NewRegistry(slog.Default())
	r.RegisterConnector(factory)

	request := protocol.ActionRequest{Connector: "ir.payment", Operation: "create_invoice", ConnectionID: "conn-1"}

	_, err := r.RunAction(context.Background(), request)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no connection resolver")

	r.SetConnectionResolver(staticResolver{"conn-1": {"base_url": "https://pay.example.com"}})

	result, err := r.RunAction(context.Background(), request)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"base_url": "https://pay.example.com"}, result.Output["config"])
	assert.Equal(t, "conn-1", factory.connector.invocations[0].ConnectionID)

	request.ConnectionID = "conn-2"
	_, err = r.RunAction(context.Background(), request)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to resolve connection 'conn-2'")
}

func TestRegistry_LoadConnectorPlugins_MissingDirectory(t *testing.T) {
	t.Parallel()

	r := registry.NewRegistry(slog.Default())

	factories, err := r.LoadConnectorPlugins(t.TempDir())

	require.NoError(t, err)
	assert.Empty(t, factories)
}
