// Package registry holds the connector factories and runs connector actions.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"sort"
	"strings"
	"sync"

	"github.com/asdev/flowrunner/pkg/protocol"
)

var ErrConnectorNotRegistered = errors.New("connector not registered")

// Registry maps connector names to factories and implements
// protocol.ConnectorRuntime on top of them.
type Registry struct {
	logger      *slog.Logger
	mu          sync.RWMutex
	factories   map[string]protocol.ConnectorFactory
	connections protocol.ConnectionResolver
}

var _ protocol.ConnectorRuntime = (*Registry)(nil)

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log.With("module", "connector_registry"),
		factories: make(map[string]protocol.ConnectorFactory),
	}
}

// SetConnectionResolver configures how ConnectionID values are turned into
// connector configuration.
func (r *Registry) SetConnectionResolver(resolver protocol.ConnectionResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connections = resolver
}

func (r *Registry) LoadConnectorPlugins(pluginsPath string) ([]protocol.ConnectorFactory, error) {
	return loadPlugin[protocol.ConnectorFactory](r.logger, pluginsPath, "Connector")
}

func (r *Registry) RegisterConnector(factory protocol.ConnectorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[factory.ID()] = factory
}

func (r *Registry) CreateConnector(connectorID string, config map[string]any) (protocol.Connector, error) {
	r.mu.RLock()
	factory, ok := r.factories[connectorID]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("connector '%s': %w", connectorID, ErrConnectorNotRegistered)
	}

	return factory.Create(config)
}

// Connectors returns the registered connector names, sorted.
func (r *Registry) Connectors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// RunAction creates the requested connector for its connection and runs the
// operation. Errors are returned as-is so their message ends up in the step log.
func (r *Registry) RunAction(ctx context.Context, request protocol.ActionRequest) (protocol.ActionResult, error) {
	config, err := r.connectionConfig(ctx, request.ConnectionID)
	if err != nil {
		return protocol.ActionResult{}, err
	}

	connector, err := r.CreateConnector(request.Connector, config)
	if err != nil {
		return protocol.ActionResult{}, err
	}

	r.logger.DebugContext(ctx, "Running connector action",
		"connector", request.Connector,
		"operation", request.Operation,
		"idempotency_key", request.IdempotencyKey)

	output, err := connector.Run(ctx, protocol.Invocation{
		Operation:      request.Operation,
		IdempotencyKey: request.IdempotencyKey,
		ConnectionID:   request.ConnectionID,
	}, request.Input)
	if err != nil {
		return protocol.ActionResult{}, err
	}

	if output == nil {
		output = map[string]any{}
	}

	return protocol.ActionResult{Output: output}, nil
}

func (r *Registry) connectionConfig(ctx context.Context, connectionID string) (map[string]any, error) {
	if connectionID == "" {
		return map[string]any{}, nil
	}

	r.mu.RLock()
	resolver := r.connections
	r.mu.RUnlock()

	if resolver == nil {
		return nil, fmt.Errorf("connection '%s' requested but no connection resolver is configured", connectionID)
	}

	config, err := resolver.ResolveConnection(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve connection '%s': %w", connectionID, err)
	}

	return config, nil
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/" + strings.ToLower(symbolName) + "s"

	if _, err := os.Stat(rootPath); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "*/*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))
	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s does not export %s: %w", p, symbolName, err)
		}

		castV, ok := v.(T)
		if !ok {
			// Lookup hands back a pointer to exported variables.
			ptr, isPtr := v.(*T)
			if !isPtr {
				return nil, fmt.Errorf("plugin %s: %s has unexpected type %T", p, symbolName, v)
			}

			castV = *ptr
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded connector plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
