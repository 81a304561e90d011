package device

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mekatrol/imperium-core/internal/point"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// pointKey is the composite device+point key. Both parts are lowercased.
// Virtual points have an empty device part.
type pointKey struct {
	device string
	point  string
}

func newPointKey(deviceKey, key string) pointKey {
	return pointKey{device: normalise(deviceKey), point: normalise(key)}
}

func normalise(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Registry is the single source of truth for controllers, device instances
// and points.
//
// Structural changes (adding controllers, devices or points) take an
// exclusive lock. Point values are guarded by each point's own lock, so
// value updates never contend with the registry lock. Devices and points
// are never removed.
//
// All public methods are thread-safe.
type Registry struct {
	mu          sync.RWMutex
	controllers map[string]Controller
	devices     map[string]*Instance
	deviceOrder []string
	points      map[pointKey]*point.Point
	pointOrder  []pointKey

	listenersMu sync.RWMutex
	listeners   []Listener

	logger Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		controllers: make(map[string]Controller),
		devices:     make(map[string]*Instance),
		points:      make(map[pointKey]*point.Point),
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// AddListener registers a change listener.
func (r *Registry) AddListener(l Listener) {
	r.listenersMu.Lock()
	r.listeners = append(r.listeners, l)
	r.listenersMu.Unlock()
}

func (r *Registry) emit(c Change) {
	r.listenersMu.RLock()
	listeners := make([]Listener, len(r.listeners))
	copy(listeners, r.listeners)
	r.listenersMu.RUnlock()

	for _, l := range listeners {
		l(c)
	}
}

// AddController registers a controller under key.
//
// Returns ErrInvalidKey for an empty key and ErrDuplicateController when the
// key (case-insensitive) is already registered.
func (r *Registry) AddController(key string, c Controller) error {
	k := normalise(key)
	if k == "" {
		return ErrInvalidKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.controllers[k]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateController, key)
	}
	r.controllers[k] = c
	r.logger.Debug("controller registered", "controller", key)
	return nil
}

// GetController returns the controller registered under key.
func (r *Registry) GetController(key string) (Controller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.controllers[normalise(key)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrControllerNotFound, key)
	}
	return c, nil
}

// AddDeviceAndPoints registers a device instance and all of its points.
//
// Registration is all-or-nothing: an empty key, a duplicate device key, a
// duplicate point key within the device, or a point owned by a different
// device fails the whole registration and leaves the registry unchanged.
// The registry keeps its own copy of inst.
func (r *Registry) AddDeviceAndPoints(inst *Instance) error {
	if inst == nil {
		return fmt.Errorf("%w: nil instance", ErrInvalidKey)
	}
	dk := normalise(inst.Key)
	if dk == "" {
		return ErrInvalidKey
	}

	keys := make([]pointKey, 0, len(inst.Points))
	seen := make(map[pointKey]struct{}, len(inst.Points))
	for _, p := range inst.Points {
		if p == nil || normalise(p.Key()) == "" {
			return fmt.Errorf("%w: device %q has a point without a key", ErrInvalidKey, inst.Key)
		}
		if normalise(p.DeviceKey()) != dk {
			return fmt.Errorf("%w: point %q belongs to device %q, not %q",
				ErrInvalidKey, p.Key(), p.DeviceKey(), inst.Key)
		}
		pk := newPointKey(inst.Key, p.Key())
		if _, dup := seen[pk]; dup {
			return fmt.Errorf("%w: %s.%s", ErrDuplicatePoint, inst.Key, p.Key())
		}
		seen[pk] = struct{}{}
		keys = append(keys, pk)
	}

	stored := inst.clone(true)
	stored.Key = strings.TrimSpace(inst.Key)
	if stored.OfflineTimeout <= 0 || stored.Kind == KindVirtual {
		stored.Online = true
	}

	r.mu.Lock()
	if _, exists := r.devices[dk]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicateDevice, inst.Key)
	}
	for _, pk := range keys {
		if _, exists := r.points[pk]; exists {
			r.mu.Unlock()
			return fmt.Errorf("%w: %s.%s", ErrDuplicatePoint, pk.device, pk.point)
		}
	}

	r.devices[dk] = stored
	r.deviceOrder = append(r.deviceOrder, dk)
	for i, pk := range keys {
		r.points[pk] = stored.Points[i]
		r.pointOrder = append(r.pointOrder, pk)
	}
	r.mu.Unlock()

	for _, p := range stored.Points {
		r.watch(p)
	}

	r.logger.Info("device registered",
		"device", stored.Key,
		"controller", stored.ControllerKey,
		"kind", stored.Kind.String(),
		"points", len(stored.Points),
	)
	return nil
}

// AddVirtualPoint registers an in-memory point that belongs to no device.
// It is addressed with an empty device key.
func (r *Registry) AddVirtualPoint(p *point.Point) error {
	if p == nil || normalise(p.Key()) == "" {
		return ErrInvalidKey
	}
	if p.DeviceKey() != "" {
		return fmt.Errorf("%w: virtual point %q must not have a device key", ErrInvalidKey, p.Key())
	}

	pk := newPointKey("", p.Key())

	r.mu.Lock()
	if _, exists := r.points[pk]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicatePoint, p.Key())
	}
	r.points[pk] = p
	r.pointOrder = append(r.pointOrder, pk)
	r.mu.Unlock()

	r.watch(p)
	r.logger.Debug("virtual point registered", "point", p.Key())
	return nil
}

// watch forwards the point's value changes to the registry listeners.
func (r *Registry) watch(p *point.Point) {
	p.OnChange(func(cp *point.Point, v point.Value) {
		r.emit(Change{
			Kind:      PointChanged,
			DeviceKey: cp.DeviceKey(),
			PointKey:  cp.Key(),
			Value:     v,
			Time:      cp.LastUpdated(),
		})
	})
}

// GetDeviceInstance returns a copy of the device registered under key. When
// includePoints is false the copy has no points.
func (r *Registry) GetDeviceInstance(key string, includePoints bool) (*Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.devices[normalise(key)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, key)
	}
	return inst.clone(includePoints), nil
}

// GetDeviceInstances returns copies of all devices in registration order.
func (r *Registry) GetDeviceInstances(includePoints bool) []*Instance {
	return r.collect(includePoints, func(*Instance) bool { return true })
}

// GetEnabledDeviceInstances returns copies of all enabled devices in
// registration order.
func (r *Registry) GetEnabledDeviceInstances(includePoints bool) []*Instance {
	return r.collect(includePoints, func(i *Instance) bool { return i.Enabled })
}

func (r *Registry) collect(includePoints bool, keep func(*Instance) bool) []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Instance, 0, len(r.deviceOrder))
	for _, k := range r.deviceOrder {
		inst := r.devices[k]
		if keep(inst) {
			out = append(out, inst.clone(includePoints))
		}
	}
	return out
}

// GetAllPoints returns every registered point, device points and virtual
// points, in registration order. The slice is a copy.
func (r *Registry) GetAllPoints() []*point.Point {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*point.Point, 0, len(r.pointOrder))
	for _, pk := range r.pointOrder {
		out = append(out, r.points[pk])
	}
	return out
}

// GetDevicePoints returns a copy of the device's point list.
func (r *Registry) GetDevicePoints(deviceKey string) ([]*point.Point, error) {
	inst, err := r.GetDeviceInstance(deviceKey, true)
	if err != nil {
		return nil, err
	}
	return inst.Points, nil
}

// GetPoint resolves a point by its composite key. An empty device key
// addresses a virtual point.
func (r *Registry) GetPoint(deviceKey, pointKey string) (*point.Point, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.points[newPointKey(deviceKey, pointKey)]
	if !ok {
		if deviceKey == "" {
			return nil, fmt.Errorf("%w: %q", ErrPointNotFound, pointKey)
		}
		return nil, fmt.Errorf("%w: %s.%s", ErrPointNotFound, deviceKey, pointKey)
	}
	return p, nil
}

// SetDeviceEnabled includes or excludes a device from polling and MQTT
// routing. The device's state is kept.
func (r *Registry) SetDeviceEnabled(key string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.devices[normalise(key)]
	if !ok {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, key)
	}
	if inst.Enabled != enabled {
		inst.Enabled = enabled
		r.logger.Info("device enabled state changed", "device", inst.Key, "enabled", enabled)
	}
	return nil
}

// MarkDeviceCommunicated records a successful exchange with the device at t.
// A device that was offline is reported online immediately.
func (r *Registry) MarkDeviceCommunicated(key string, t time.Time) error {
	r.mu.Lock()
	inst, ok := r.devices[normalise(key)]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, key)
	}
	inst.LastCommunication = t.UTC()
	cameOnline := !inst.Online
	inst.Online = true
	deviceKey := inst.Key
	r.mu.Unlock()

	if cameOnline {
		r.logger.Info("device online", "device", deviceKey)
		r.emit(Change{Kind: DeviceStatusChanged, DeviceKey: deviceKey, Online: true, Time: t.UTC()})
	}
	return nil
}

// RefreshDeviceStatus recomputes online status from the time since last
// communication and each device's offline timeout, and emits a
// DeviceStatusChanged change for every transition. It returns the number of
// transitions.
func (r *Registry) RefreshDeviceStatus(now time.Time) int {
	var changes []Change

	r.mu.Lock()
	for _, k := range r.deviceOrder {
		inst := r.devices[k]
		if inst.Kind == KindVirtual || inst.OfflineTimeout <= 0 {
			continue
		}
		online := !inst.LastCommunication.IsZero() && now.Sub(inst.LastCommunication) <= inst.OfflineTimeout
		if online == inst.Online {
			continue
		}
		inst.Online = online
		changes = append(changes, Change{Kind: DeviceStatusChanged, DeviceKey: inst.Key, Online: online, Time: now.UTC()})
	}
	r.mu.Unlock()

	for _, c := range changes {
		if c.Online {
			r.logger.Info("device online", "device", c.DeviceKey)
		} else {
			r.logger.Warn("device offline", "device", c.DeviceKey)
		}
		r.emit(c)
	}
	return len(changes)
}
