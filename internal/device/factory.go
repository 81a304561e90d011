package device

import (
	"fmt"
	"strings"
	"time"

	"github.com/mekatrol/imperium-core/internal/point"
)

// PointDefinition describes one point of a device, as supplied by configuration.
type PointDefinition struct {
	Key          string
	FriendlyName string

	// NativeType names the value type, e.g. "int", "double", "bool",
	// "datetime" or a point type name such as "TimeSpan".
	NativeType string

	ReadOnly bool

	// InitialValue seeds the device layer. It may be a string or any Go
	// value accepted by point.FromNative. Nil means the zero value.
	InitialValue any
}

// InstanceOption configures a device instance created by AddDeviceInstance.
type InstanceOption func(*Instance)

// WithEnabled sets the initial enabled flag. Devices are enabled by default.
func WithEnabled(enabled bool) InstanceOption {
	return func(i *Instance) { i.Enabled = enabled }
}

// WithOfflineTimeout sets the offline timeout used by RefreshDeviceStatus.
func WithOfflineTimeout(d time.Duration) InstanceOption {
	return func(i *Instance) { i.OfflineTimeout = d }
}

// AddDeviceInstance materialises a device instance from configuration and
// registers it with its points.
//
// Parameters:
//   - deviceKey: Globally unique device key
//   - controllerKey: Key of a controller already registered in r
//   - kind: Physical or virtual
//   - configJSON: Opaque controller configuration, parsed by the controller
//   - defs: Point definitions
//   - r: Registry to register into
//
// Returns:
//   - *Instance: A copy of the registered instance
//   - error: ErrControllerNotFound, ErrInvalidConfig, ErrNoPointType,
//     point construction errors, or registry errors
//
// Nothing is registered when an error is returned.
func AddDeviceInstance(deviceKey, controllerKey string, kind Kind, configJSON string, defs []PointDefinition, r *Registry, opts ...InstanceOption) (*Instance, error) {
	deviceKey = strings.TrimSpace(deviceKey)
	if deviceKey == "" {
		return nil, ErrInvalidKey
	}

	controller, err := r.GetController(controllerKey)
	if err != nil {
		return nil, fmt.Errorf("device %q: %w", deviceKey, err)
	}

	cfg, err := controller.ParseInstanceConfig(configJSON)
	if err != nil {
		return nil, fmt.Errorf("device %q: %w: %w", deviceKey, ErrInvalidConfig, err)
	}

	points := make([]*point.Point, 0, len(defs))
	for _, def := range defs {
		p, err := newDefinedPoint(deviceKey, def)
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", deviceKey, err)
		}
		points = append(points, p)
	}

	inst := &Instance{
		Key:           deviceKey,
		ControllerKey: controllerKey,
		Kind:          kind,
		Enabled:       true,
		Config:        cfg,
		Points:        points,
	}
	for _, opt := range opts {
		opt(inst)
	}

	if err := r.AddDeviceAndPoints(inst); err != nil {
		return nil, err
	}
	return r.GetDeviceInstance(deviceKey, true)
}

func newDefinedPoint(deviceKey string, def PointDefinition) (*point.Point, error) {
	typ, ok := point.TypeForNative(def.NativeType)
	if !ok {
		return nil, fmt.Errorf("%w: point %q has native type %q", ErrNoPointType, def.Key, def.NativeType)
	}

	initial, err := point.FromNative(typ, def.InitialValue)
	if err != nil {
		return nil, fmt.Errorf("point %q initial value: %w", def.Key, err)
	}

	p, err := point.New(def.Key, typ, point.Options{
		FriendlyName: def.FriendlyName,
		DeviceKey:    deviceKey,
		ReadOnly:     def.ReadOnly,
		InitialValue: initial,
	})
	if err != nil {
		return nil, fmt.Errorf("point %q: %w", def.Key, err)
	}
	return p, nil
}
