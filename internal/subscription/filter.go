package subscription

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Subscription types.
const (
	TypeChange = "Change"
	TypeStatus = "Status"
	TypeAll    = "All"
)

// Entity types.
const (
	EntityPoint  = "Point"
	EntityDevice = "Device"
	EntityAny    = "*"
)

// ErrInvalidFilter is returned for a filter with an unknown type.
var ErrInvalidFilter = errors.New("subscription: invalid filter")

// Filter selects the events a client receives.
type Filter struct {
	SubscriptionType string `json:"subscriptionType"`
	EntityType       string `json:"entityType,omitempty"`
	EntityKey        string `json:"entityKey,omitempty"`
}

// normalise validates f and returns it in canonical form.
func (f Filter) normalise() (Filter, error) {
	var out Filter
	switch {
	case strings.EqualFold(f.SubscriptionType, TypeChange):
		out.SubscriptionType = TypeChange
	case strings.EqualFold(f.SubscriptionType, TypeStatus):
		out.SubscriptionType = TypeStatus
	case strings.EqualFold(f.SubscriptionType, TypeAll):
		out.SubscriptionType = TypeAll
	default:
		return Filter{}, fmt.Errorf("%w: subscriptionType %q", ErrInvalidFilter, f.SubscriptionType)
	}

	entity := strings.TrimSpace(f.EntityType)
	switch {
	case entity == "" || entity == EntityAny:
		out.EntityType = EntityAny
	case strings.EqualFold(entity, EntityPoint):
		out.EntityType = EntityPoint
	case strings.EqualFold(entity, EntityDevice):
		out.EntityType = EntityDevice
	default:
		return Filter{}, fmt.Errorf("%w: entityType %q", ErrInvalidFilter, f.EntityType)
	}

	out.EntityKey = strings.TrimSpace(f.EntityKey)
	if out.EntityKey == EntityAny {
		out.EntityKey = ""
	}
	return out, nil
}

func (f Filter) equal(o Filter) bool {
	return f.SubscriptionType == o.SubscriptionType &&
		f.EntityType == o.EntityType &&
		strings.EqualFold(f.EntityKey, o.EntityKey)
}

// Matches reports whether the event passes the filter. f must be normalised.
func (f Filter) Matches(ev Event) bool {
	if f.SubscriptionType != TypeAll && f.SubscriptionType != ev.EventType {
		return false
	}

	switch f.EntityType {
	case EntityDevice:
		return f.EntityKey == "" || strings.EqualFold(f.EntityKey, ev.DeviceKey)
	case EntityPoint:
		if ev.EntityType != EntityPoint {
			return false
		}
		return f.EntityKey == "" || strings.EqualFold(f.EntityKey, ev.entityKey())
	}
	return f.EntityKey == "" ||
		strings.EqualFold(f.EntityKey, ev.DeviceKey) ||
		strings.EqualFold(f.EntityKey, ev.entityKey())
}

// Event is a change pushed to clients.
type Event struct {
	EventType  string          `json:"eventType"`
	EntityType string          `json:"entityType"`
	DeviceKey  string          `json:"deviceKey"`
	PointKey   string          `json:"pointKey"`
	Value      json.RawMessage `json:"value"`
	Timestamp  string          `json:"timestamp,omitempty"`
}

// entityKey is the key a Point filter compares against.
func (ev Event) entityKey() string {
	if ev.EntityType != EntityPoint {
		return ev.DeviceKey
	}
	if ev.DeviceKey == "" {
		return ev.PointKey
	}
	return ev.DeviceKey + "." + ev.PointKey
}
