package core_test

import (
	"context"
	"testing"

	"github.com/asdev/flowrunner/pkg/connectors"
	"github.com/asdev/flowrunner/pkg/connectors/core"
	"github.com/asdev/flowrunner/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaseConnectorFactory(t *testing.T) {
	t.Parallel()

	factory := core.NewCaseConnectorFactory()
	assert.Equal(t, "core.case", factory.ID())

	connector, err := factory.Create(nil)
	require.NoError(t, err)
	assert.IsType(t, &core.CaseConnector{}, connector)
}

func TestCaseConnector_Create(t *testing.T) {
	t.Parallel()

	connector := &core.CaseConnector{}

	output, err := connector.Run(context.Background(), protocol.Invocation{
		Operation:      "create",
		IdempotencyKey: "run-1:s1",
	}, map[string]any{"phone": "+989121234567"})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "case_run-1:s1", "phone": "+989121234567"}, output)
}

func TestCaseConnector_UnsupportedOperation(t *testing.T) {
	t.Parallel()

	connector := &core.CaseConnector{}

	_, err := connector.Run(context.Background(), protocol.Invocation{Operation: "delete"}, nil)

	require.ErrorIs(t, err, connectors.ErrUnsupportedOperation)
	assert.Contains(t, err.Error(), "core.case")
}
