// Package httprequest provides the core.http connector, which performs one
// HTTP request per step attempt.
package httprequest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/asdev/flowrunner/pkg/connectors"
	"github.com/asdev/flowrunner/pkg/protocol"
)

const (
	ConnectorID      = "core.http"
	OperationRequest = "request"

	defaultTimeoutSeconds = 30
	idempotencyHeader     = "Idempotency-Key"
)

var (
	// ErrHTTPRequestURLInvalid is returned when neither the input nor the connection provide a URL.
	ErrHTTPRequestURLInvalid = errors.New("invalid HTTP request url")
	// ErrHTTPStatus is returned when the server answers with a status >= 400.
	ErrHTTPStatus = errors.New("unexpected HTTP status")
)

type ConnectorFactory struct {
	logger *slog.Logger
}

func NewConnectorFactory(logger *slog.Logger) *ConnectorFactory {
	return &ConnectorFactory{logger: logger}
}

func (*ConnectorFactory) ID() string {
	return ConnectorID
}

// Create reads the connection config: "base_url" prefixes relative input
// urls, "headers" are sent on every request and "timeout_seconds" bounds
// the client.
func (f *ConnectorFactory) Create(config map[string]any) (protocol.Connector, error) {
	baseURL, _ := config["base_url"].(string)

	timeout := defaultTimeoutSeconds * time.Second
	if seconds, ok := config["timeout_seconds"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds * float64(time.Second))
	}

	return &Connector{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Headers: stringMap(config["headers"]),
		Timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		logger:  f.logger.With("module", "http_connector"),
	}, nil
}

type Connector struct {
	BaseURL string
	Headers map[string]string
	Timeout time.Duration

	client *http.Client
	logger *slog.Logger
}

// Run performs the request described by input:
// {method?, url, headers?, body?}. Body strings are sent as-is, any other
// value is encoded as JSON.
func (c *Connector) Run(ctx context.Context, invocation protocol.Invocation, input map[string]any) (map[string]any, error) {
	if invocation.Operation != OperationRequest {
		return nil, connectors.UnsupportedOperation(ConnectorID, invocation.Operation)
	}

	req, err := c.buildRequest(ctx, invocation, input)
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "Performing HTTP request", "method", req.Method, "url", req.URL.String())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	return c.processResponse(ctx, resp)
}

func (c *Connector) buildRequest(
	ctx context.Context,
	invocation protocol.Invocation,
	input map[string]any,
) (*http.Request, error) {
	method, _ := input["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	url, _ := input["url"].(string)
	if url == "" && c.BaseURL == "" {
		return nil, fmt.Errorf("missing 'url' in input: %w", ErrHTTPRequestURLInvalid)
	}

	if c.BaseURL != "" && !strings.Contains(url, "://") {
		url = c.BaseURL + "/" + strings.TrimPrefix(url, "/")
	}

	body, err := requestBody(input["body"])
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	if _, isString := input["body"].(string); !isString && input["body"] != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, value := range c.Headers {
		req.Header.Set(key, value)
	}

	for key, value := range stringMap(input["headers"]) {
		req.Header.Set(key, value)
	}

	if invocation.IdempotencyKey != "" && req.Header.Get(idempotencyHeader) == "" {
		req.Header.Set(idempotencyHeader, invocation.IdempotencyKey)
	}

	return req, nil
}

func requestBody(body any) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return http.NoBody, nil
	case string:
		return strings.NewReader(b), nil
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}

		return bytes.NewReader(encoded), nil
	}
}

func (c *Connector) processResponse(ctx context.Context, resp *http.Response) (map[string]any, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: %d %s", ErrHTTPStatus, resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	var body any

	err = json.Unmarshal(bodyBytes, &body)
	if err != nil {
		body = string(bodyBytes)
	}

	headers := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	c.logger.DebugContext(ctx, "HTTP request completed", "status", resp.StatusCode, "body_length", len(bodyBytes))

	return map[string]any{
		"status":  resp.StatusCode,
		"headers": headers,
		"body":    body,
	}, nil
}

func stringMap(raw any) map[string]string {
	result := map[string]string{}

	values, ok := raw.(map[string]any)
	if !ok {
		return result
	}

	for key, value := range values {
		if s, ok := value.(string); ok {
			result[key] = s
		} else if value != nil {
			result[key] = fmt.Sprint(value)
		}
	}

	return result
}
