// Package payment provides the ir.payment connector.
package payment

import (
	"context"
	"fmt"

	"github.com/asdev/flowrunner/pkg/connectors"
	"github.com/asdev/flowrunner/pkg/protocol"
)

const (
	ConnectorID            = "ir.payment"
	OperationCreateInvoice = "create_invoice"

	defaultBaseURL = "https://local.pay"
)

type ConnectorFactory struct{}

func NewConnectorFactory() *ConnectorFactory {
	return &ConnectorFactory{}
}

func (*ConnectorFactory) ID() string {
	return ConnectorID
}

// Create accepts an optional "base_url" used to build payment links.
func (*ConnectorFactory) Create(config map[string]any) (protocol.Connector, error) {
	baseURL, _ := config["base_url"].(string)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Connector{BaseURL: baseURL}, nil
}

type Connector struct {
	BaseURL string
}

func (c *Connector) Run(_ context.Context, invocation protocol.Invocation, input map[string]any) (map[string]any, error) {
	if invocation.Operation != OperationCreateInvoice {
		return nil, connectors.UnsupportedOperation(ConnectorID, invocation.Operation)
	}

	amount, ok := input["amount"]
	if !ok || amount == nil {
		return nil, fmt.Errorf("%s: missing 'amount' in input", ConnectorID)
	}

	return map[string]any{
		"invoiceId": "inv_" + invocation.IdempotencyKey,
		"payUrl":    fmt.Sprintf("%s/%v", c.BaseURL, amount),
	}, nil
}
