// Package connectors holds the built-in connectors shipped with flowrunner.
package connectors

import (
	"errors"
	"fmt"
)

var ErrUnsupportedOperation = errors.New("unsupported operation")

// UnsupportedOperation builds the error returned when a connector is asked
// for an operation it does not implement.
func UnsupportedOperation(connector, operation string) error {
	return fmt.Errorf("%s: operation '%s': %w", connector, operation, ErrUnsupportedOperation)
}
