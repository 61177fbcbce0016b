// Package sms provides the ir.sms connector.
package sms

import (
	"context"
	"fmt"

	"github.com/asdev/flowrunner/pkg/connectors"
	"github.com/asdev/flowrunner/pkg/protocol"
)

const (
	ConnectorID   = "ir.sms"
	OperationSend = "send"
)

type ConnectorFactory struct{}

func NewConnectorFactory() *ConnectorFactory {
	return &ConnectorFactory{}
}

func (*ConnectorFactory) ID() string {
	return ConnectorID
}

func (*ConnectorFactory) Create(_ map[string]any) (protocol.Connector, error) {
	return &Connector{}, nil
}

type Connector struct{}

func (*Connector) Run(_ context.Context, invocation protocol.Invocation, input map[string]any) (map[string]any, error) {
	if invocation.Operation != OperationSend {
		return nil, connectors.UnsupportedOperation(ConnectorID, invocation.Operation)
	}

	to, _ := input["to"].(string)
	if to == "" {
		return nil, fmt.Errorf("%s: missing 'to' in input", ConnectorID)
	}

	return map[string]any{
		"messageId": "sms_" + invocation.IdempotencyKey,
		"to":        to,
	}, nil
}
