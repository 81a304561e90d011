// Package virtual provides the controller for in-memory devices.
//
// Virtual devices have no external I/O: Read and Write do nothing and the
// points only change through the update service, the MQTT bridge or
// automation logic. The instance configuration, when present, must be a JSON
// object and is kept as a generic map.
package virtual

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mekatrol/imperium-core/internal/device"
)

// Key is the controller key virtual devices are registered under.
const Key = "virtual"

// ErrInvalidConfig is returned for a configuration that is not a JSON object.
var ErrInvalidConfig = errors.New("virtual: invalid instance config")

// Controller is the virtual device controller.
type Controller struct{}

// New creates a virtual controller.
func New() *Controller {
	return &Controller{}
}

// Read does nothing.
func (*Controller) Read(context.Context, *device.Instance) error { return nil }

// Write does nothing.
func (*Controller) Write(context.Context, *device.Instance) error { return nil }

// ParseInstanceConfig accepts an empty string or a JSON object.
func (*Controller) ParseInstanceConfig(configJSON string) (any, error) {
	cfg := map[string]any{}
	if strings.TrimSpace(configJSON) == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}
