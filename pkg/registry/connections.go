package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"

	"github.com/asdev/flowrunner/pkg/protocol"
)

var ErrConnectionNotFound = errors.New("connection not found")

// StaticConnections resolves connections from a fixed map of id to config.
type StaticConnections map[string]map[string]any

var _ protocol.ConnectionResolver = StaticConnections(nil)

// LoadConnectionsFile reads a JSON object of connection id to config.
func LoadConnectionsFile(path string) (StaticConnections, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var connections StaticConnections

	err = json.Unmarshal(raw, &connections)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connections file %s: %w", path, err)
	}

	return connections, nil
}

func (c StaticConnections) ResolveConnection(_ context.Context, connectionID string) (map[string]any, error) {
	config, ok := c[connectionID]
	if !ok {
		return nil, fmt.Errorf("'%s': %w", connectionID, ErrConnectionNotFound)
	}

	return maps.Clone(config), nil
}
