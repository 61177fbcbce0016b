// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/asdev/flowrunner/pkg/connectors/core"
	"github.com/asdev/flowrunner/pkg/connectors/httprequest"
	logconnector "github.com/asdev/flowrunner/pkg/connectors/log"
	"github.com/asdev/flowrunner/pkg/connectors/payment"
	"github.com/asdev/flowrunner/pkg/connectors/sms"
	"github.com/asdev/flowrunner/pkg/registry"
)

func registerConnectorPlugins(reg *registry.Registry, pluginsPath string) {
	plugins, err := reg.LoadConnectorPlugins(pluginsPath)
	if err != nil {
		panic(err)
	}

	for _, plugin := range plugins {
		reg.RegisterConnector(plugin)
	}
}

func registerNativeConnectors(reg *registry.Registry, logger *slog.Logger) {
	reg.RegisterConnector(core.NewCaseConnectorFactory())
	reg.RegisterConnector(payment.NewConnectorFactory())
	reg.RegisterConnector(sms.NewConnectorFactory())
	reg.RegisterConnector(httprequest.NewConnectorFactory(logger))
	reg.RegisterConnector(logconnector.NewConnectorFactory(logger))
}

// NewRegistry registers the built-in connectors, then the plugins found in
// pluginsPath. An empty pluginsPath skips plugin loading.
func NewRegistry(log *slog.Logger, pluginsPath string) *registry.Registry {
	reg := registry.NewRegistry(log)

	registerNativeConnectors(reg, log)

	if pluginsPath != "" {
		registerConnectorPlugins(reg, pluginsPath)
	}

	return reg
}
