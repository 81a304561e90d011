package device

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mekatrol/imperium-core/internal/point"
)

// Kind distinguishes physical devices from virtual ones. Virtual devices
// never dispatch writes to external I/O.
type Kind int

// Device kinds.
const (
	KindPhysical Kind = iota
	KindVirtual
)

// String returns the config name of the kind.
func (k Kind) String() string {
	if k == KindVirtual {
		return "virtual"
	}
	return "physical"
}

// ParseKind parses "physical" or "virtual" (case-insensitive). Empty means physical.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "physical":
		return KindPhysical, nil
	case "virtual":
		return KindVirtual, nil
	}
	return 0, fmt.Errorf("device: unknown kind %q", s)
}

// Controller is a protocol implementation that reads and writes a class of
// devices.
type Controller interface {
	// Read populates point values from the external source.
	Read(ctx context.Context, inst *Instance) error

	// Write pushes control-resolved point values to the device.
	Write(ctx context.Context, inst *Instance) error

	// ParseInstanceConfig parses the opaque per-device configuration payload.
	// The result is stored in Instance.Config.
	ParseInstanceConfig(configJSON string) (any, error)
}

// Instance is a registered device and its points.
//
// Values returned by the Registry are copies: changing the struct or its
// Points slice does not affect the registry. The *point.Point values are
// shared and carry their own locking.
type Instance struct {
	Key           string
	ControllerKey string
	Kind          Kind
	Enabled       bool

	// Config is the controller-specific configuration parsed by
	// Controller.ParseInstanceConfig.
	Config any

	// OfflineTimeout is the time without successful communication after
	// which the device is reported offline. Zero disables the check.
	OfflineTimeout    time.Duration
	LastCommunication time.Time
	Online            bool

	Points []*point.Point
}

// Point returns the instance's point with the given key (case-insensitive),
// or nil.
func (i *Instance) Point(key string) *point.Point {
	for _, p := range i.Points {
		if strings.EqualFold(p.Key(), key) {
			return p
		}
	}
	return nil
}

func (i *Instance) clone(includePoints bool) *Instance {
	c := *i
	c.Points = nil
	if includePoints {
		c.Points = make([]*point.Point, len(i.Points))
		copy(c.Points, i.Points)
	}
	return &c
}

// ChangeKind identifies the kind of a registry change event.
type ChangeKind int

// Change kinds.
const (
	// PointChanged is emitted when a point's visible value changes.
	PointChanged ChangeKind = iota + 1

	// DeviceStatusChanged is emitted when a device goes online or offline.
	DeviceStatusChanged
)

// Change describes a point value change or a device status transition.
type Change struct {
	Kind      ChangeKind
	DeviceKey string
	PointKey  string
	Value     point.Value
	Online    bool
	Time      time.Time
}

// Listener receives registry changes. Listeners run synchronously on the
// goroutine that made the change, outside all registry and point locks, and
// should not block.
type Listener func(Change)
