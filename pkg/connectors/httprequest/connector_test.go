package httprequest_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/asdev/flowrunner/pkg/connectors/httprequest"
	"github.com/asdev/flowrunner/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConnector(t *testing.T, config map[string]any) protocol.Connector {
	t.Helper()

	connector, err := httprequest.NewConnectorFactory(slog.Default()).Create(config)
	require.NoError(t, err)

	return connector
}

func TestConnectorFactory_Create(t *testing.T) {
	t.Parallel()

	connector := newConnector(t, map[string]any{
		"base_url":        "https://api.example.com/",
		"headers":         map[string]any{"Authorization": "Bearer token"},
		"timeout_seconds": float64(5),
	})

	httpConnector, ok := connector.(*httprequest.Connector)
	require.True(t, ok)
	assert.Equal(t, "https://api.example.com", httpConnector.BaseURL)
	assert.Equal(t, map[string]string{"Authorization": "Bearer token"}, httpConnector.Headers)
	assert.Equal(t, 5*time.Second, httpConnector.Timeout)
}

func TestConnector_PostJSON(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/cases", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		assert.Equal(t, "run-1:s1", r.Header.Get("Idempotency-Key"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "+989121234567", body["phone"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"case_1"}`))
	}))
	defer server.Close()

	connector := newConnector(t, map[string]any{
		"base_url": server.URL,
		"headers":  map[string]any{"Authorization": "Bearer token"},
	})

	output, err := connector.Run(context.Background(), protocol.Invocation{
		Operation:      "request",
		IdempotencyKey: "run-1:s1",
	}, map[string]any{
		"method": "post",
		"url":    "/cases",
		"body":   map[string]any{"phone": "+989121234567"},
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, output["status"])
	assert.Equal(t, map[string]any{"id": "case_1"}, output["body"])
	assert.Equal(t, "application/json", output["headers"].(map[string]any)["Content-Type"])
}

func TestConnector_PlainTextResponse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, _ := io.ReadAll(r.Body)
		assert.Equal(t, "ping", string(payload))
		_, _ = w.Write([]byte("pong"))
	}))
	defer server.Close()

	output, err := newConnector(t, nil).Run(context.Background(), protocol.Invocation{Operation: "request"}, map[string]any{
		"method": "PUT",
		"url":    server.URL + "/echo",
		"body":   "ping",
	})

	require.NoError(t, err)
	assert.Equal(t, "pong", output["body"])
}

func TestConnector_ErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newConnector(t, nil).Run(context.Background(), protocol.Invocation{Operation: "request"}, map[string]any{
		"url": server.URL,
	})

	require.ErrorIs(t, err, httprequest.ErrHTTPStatus)
	assert.Contains(t, err.Error(), "502 boom")
}

func TestConnector_HonoursContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newConnector(t, nil).Run(ctx, protocol.Invocation{Operation: "request"}, map[string]any{
		"url": server.URL,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConnector_MissingURL(t *testing.T) {
	t.Parallel()

	_, err := newConnector(t, nil).Run(context.Background(), protocol.Invocation{Operation: "request"}, map[string]any{})

	assert.ErrorIs(t, err, httprequest.ErrHTTPRequestURLInvalid)
}
