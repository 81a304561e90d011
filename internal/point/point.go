package point

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Layer identifies one of the three value layers of a point.
type Layer int

// Value layers, in increasing order of precedence.
const (
	LayerDevice Layer = iota + 1
	LayerControl
	LayerOverride
)

var layerNames = [...]string{
	LayerDevice:   "Device",
	LayerControl:  "Control",
	LayerOverride: "Override",
}

// String returns the wire name of the layer.
func (l Layer) String() string {
	if l < LayerDevice || l > LayerOverride {
		return ""
	}
	return layerNames[l]
}

// ParseLayer parses a layer wire name (case-insensitive).
func ParseLayer(name string) (Layer, bool) {
	for l := LayerDevice; l <= LayerOverride; l++ {
		if strings.EqualFold(layerNames[l], strings.TrimSpace(name)) {
			return l, true
		}
	}
	return 0, false
}

// Options holds the optional attributes of a new point.
type Options struct {
	// ID is the point id. A new random id is generated when zero.
	ID uuid.UUID

	FriendlyName string

	// DeviceKey is the owning device. Empty for virtual in-memory points.
	DeviceKey string

	ReadOnly bool

	// InitialValue seeds the device layer. Defaults to the zero value of the
	// point type.
	InitialValue Value
}

// ChangeFunc is called after a write changed the visible value of a point.
// It runs outside the point lock.
type ChangeFunc func(p *Point, v Value)

// Point is a named, typed value slot with three value layers.
//
// All methods are safe for concurrent use.
type Point struct {
	id           uuid.UUID
	key          string
	typ          Type
	friendlyName string
	deviceKey    string
	readOnly     bool

	mu          sync.Mutex
	device      Value
	control     Value
	override    Value
	previous    Value
	changed     bool
	lastUpdated time.Time
	onChange    ChangeFunc
}

// New creates a point of the given type.
//
// Parameters:
//   - key: Point key, unique within the owning device
//   - typ: Declared point type
//   - opts: Optional attributes
//
// Returns:
//   - *Point: The new point
//   - error: ErrEmptyKey, ErrInvalidPointType, or ErrIncompatibleValueType
//     when the initial value does not match typ
func New(key string, typ Type, opts Options) (*Point, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrEmptyKey
	}
	if !typ.Valid() {
		return nil, ErrInvalidPointType
	}

	initial := opts.InitialValue
	if initial == nil {
		initial = ZeroValue(typ)
	} else if initial.Type() != typ {
		return nil, mismatch(typ, initial)
	}

	id := opts.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	return &Point{
		id:           id,
		key:          key,
		typ:          typ,
		friendlyName: opts.FriendlyName,
		deviceKey:    strings.TrimSpace(opts.DeviceKey),
		readOnly:     opts.ReadOnly,
		device:       initial,
	}, nil
}

// ID returns the process-unique point id.
func (p *Point) ID() uuid.UUID { return p.id }

// Key returns the point key.
func (p *Point) Key() string { return p.key }

// Type returns the declared point type.
func (p *Point) Type() Type { return p.typ }

// FriendlyName returns the human-readable label.
func (p *Point) FriendlyName() string { return p.friendlyName }

// DeviceKey returns the owning device key, or "" for a virtual point.
func (p *Point) DeviceKey() string { return p.deviceKey }

// ReadOnly reports whether the point rejects control and override writes
// from the update service.
func (p *Point) ReadOnly() bool { return p.readOnly }

// OnChange installs the change callback. Passing nil removes it.
func (p *Point) OnChange(fn ChangeFunc) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// Value returns the visible value: override, else control, else device.
func (p *Point) Value() Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.effective()
}

// DeviceValue returns the device layer.
func (p *Point) DeviceValue() Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.device
}

// ControlValue returns the control layer.
func (p *Point) ControlValue() Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.control
}

// OverrideValue returns the override layer.
func (p *Point) OverrideValue() Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.override
}

// ControlResolvedValue returns the value a controller should write to the
// device: override, else control. Nil when neither is set.
func (p *Point) ControlResolvedValue() Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.override != nil {
		return p.override
	}
	return p.control
}

// PreviousValue returns the visible value before the last change.
func (p *Point) PreviousValue() Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.previous
}

// HasChanged reports whether the most recent write changed the visible value.
func (p *Point) HasChanged() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.changed
}

// LastUpdated returns the time of the last write that changed any layer,
// zero if never.
func (p *Point) LastUpdated() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastUpdated
}

// State returns the layer supplying the visible value, or 0 when the point
// has no value.
func (p *Point) State() Layer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state()
}

// SetValue writes the device layer. It returns true when the visible value
// changed.
func (p *Point) SetValue(v Value) (bool, error) {
	return p.write(LayerDevice, v)
}

// SetNative converts v with FromNative and writes the device layer.
func (p *Point) SetNative(v any) (bool, error) {
	value, err := FromNative(p.typ, v)
	if err != nil {
		return false, err
	}
	return p.write(LayerDevice, value)
}

// SetControlValue writes the control layer. A nil value clears it.
func (p *Point) SetControlValue(v Value) (bool, error) {
	return p.write(LayerControl, v)
}

// SetOverrideValue writes the override layer. A nil value clears it.
func (p *Point) SetOverrideValue(v Value) (bool, error) {
	return p.write(LayerOverride, v)
}

// ClearOverride clears the override layer so the visible value reverts to
// control, else device.
func (p *Point) ClearOverride() bool {
	changed, _ := p.write(LayerOverride, nil)
	return changed
}

// Toggle inverts a boolean point. When the override layer is set it is
// inverted; otherwise the control layer is set to the inverse of control,
// falling back to device, defaulting to false.
func (p *Point) Toggle() (bool, error) {
	if p.typ != TypeBoolean {
		return false, mismatch(p.typ, Boolean(false))
	}

	p.mu.Lock()
	layer := LayerControl
	current := p.control
	if p.override != nil {
		layer = LayerOverride
		current = p.override
	} else if current == nil {
		current = p.device
	}
	b, _ := current.(Boolean)
	notify, changed := p.setLocked(layer, !b)
	p.mu.Unlock()

	notify()
	return changed, nil
}

// write type-checks v and stores it in the given layer.
func (p *Point) write(layer Layer, v Value) (bool, error) {
	if v != nil && v.Type() != p.typ {
		return false, mismatch(p.typ, v)
	}

	p.mu.Lock()
	notify, changed := p.setLocked(layer, v)
	p.mu.Unlock()

	notify()
	return changed, nil
}

// setLocked stores v in the layer and recomputes change state. The returned
// function delivers the change notification and must be called after the
// lock is released.
func (p *Point) setLocked(layer Layer, v Value) (func(), bool) {
	slot := p.layer(layer)
	if Equal(*slot, v) {
		p.changed = false
		return func() {}, false
	}

	before := p.effective()
	*slot = v
	after := p.effective()
	p.lastUpdated = time.Now().UTC()

	// Hidden layers are stamped but raise no change.
	if Equal(before, after) {
		p.changed = false
		return func() {}, false
	}

	p.previous = before
	p.changed = true

	fn := p.onChange
	if fn == nil {
		return func() {}, true
	}
	return func() { fn(p, after) }, true
}

func (p *Point) layer(l Layer) *Value {
	switch l {
	case LayerOverride:
		return &p.override
	case LayerControl:
		return &p.control
	default:
		return &p.device
	}
}

func (p *Point) effective() Value {
	switch p.state() {
	case LayerOverride:
		return p.override
	case LayerControl:
		return p.control
	case LayerDevice:
		return p.device
	}
	return nil
}

func (p *Point) state() Layer {
	switch {
	case p.override != nil:
		return LayerOverride
	case p.control != nil:
		return LayerControl
	case p.device != nil:
		return LayerDevice
	}
	return 0
}

// Snapshot is an immutable copy of a point's externally visible state.
type Snapshot struct {
	ID           uuid.UUID
	Key          string
	Type         Type
	ReadOnly     bool
	State        Layer
	LastUpdated  time.Time
	FriendlyName string
	DeviceKey    string
	Value        Value
}

// Snapshot returns a consistent copy of the point's visible state.
func (p *Point) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		ID:           p.id,
		Key:          p.key,
		Type:         p.typ,
		ReadOnly:     p.readOnly,
		State:        p.state(),
		LastUpdated:  p.lastUpdated,
		FriendlyName: p.friendlyName,
		DeviceKey:    p.deviceKey,
		Value:        p.effective(),
	}
}
