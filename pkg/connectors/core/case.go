// Package core provides the core.case connector.
package core

import (
	"context"
	"maps"

	"github.com/asdev/flowrunner/pkg/connectors"
	"github.com/asdev/flowrunner/pkg/protocol"
)

const (
	ConnectorID     = "core.case"
	OperationCreate = "create"
)

type CaseConnectorFactory struct{}

func NewCaseConnectorFactory() *CaseConnectorFactory {
	return &CaseConnectorFactory{}
}

func (*CaseConnectorFactory) ID() string {
	return ConnectorID
}

func (*CaseConnectorFactory) Create(_ map[string]any) (protocol.Connector, error) {
	return &CaseConnector{}, nil
}

// CaseConnector opens support cases. Case ids derive from the idempotency key,
// so every retry of a step yields the same case.
type CaseConnector struct{}

func (*CaseConnector) Run(_ context.Context, invocation protocol.Invocation, input map[string]any) (map[string]any, error) {
	if invocation.Operation != OperationCreate {
		return nil, connectors.UnsupportedOperation(ConnectorID, invocation.Operation)
	}

	output := make(map[string]any, len(input)+1)
	output["id"] = "case_" + invocation.IdempotencyKey
	maps.Copy(output, input)

	return output, nil
}
