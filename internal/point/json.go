package point

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// wirePoint is the JSON shape of a point.
type wirePoint struct {
	ID           string          `json:"id"`
	Key          string          `json:"key"`
	PointType    string          `json:"pointType"`
	IsReadOnly   bool            `json:"isReadOnly"`
	PointState   *string         `json:"pointState"`
	LastUpdated  *time.Time      `json:"lastUpdated"`
	FriendlyName *string         `json:"friendlyName"`
	DeviceKey    *string         `json:"deviceKey"`
	Value        json.RawMessage `json:"value"`
}

// MarshalJSON encodes the snapshot in the point wire format.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	value, err := EncodeValue(s.Value)
	if err != nil {
		return nil, err
	}

	w := wirePoint{
		ID:           s.ID.String(),
		Key:          s.Key,
		PointType:    s.Type.String(),
		IsReadOnly:   s.ReadOnly,
		FriendlyName: optional(s.FriendlyName),
		DeviceKey:    optional(s.DeviceKey),
		Value:        value,
	}
	if name := s.State.String(); name != "" {
		w.PointState = &name
	}
	if !s.LastUpdated.IsZero() {
		ts := s.LastUpdated.UTC()
		w.LastUpdated = &ts
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the point wire format. Validation failures return
// ErrInvalidID, ErrInvalidPointType or ErrEmptyKey unwrapped.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var w wirePoint
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	id, err := uuid.Parse(strings.TrimSpace(w.ID))
	if err != nil || id == uuid.Nil {
		return ErrInvalidID
	}
	typ, err := ParseType(w.PointType)
	if err != nil {
		return ErrInvalidPointType
	}
	key := strings.TrimSpace(w.Key)
	if key == "" {
		return ErrEmptyKey
	}

	value, err := DecodeValue(typ, w.Value)
	if err != nil {
		return err
	}

	out := Snapshot{
		ID:       id,
		Key:      key,
		Type:     typ,
		ReadOnly: w.IsReadOnly,
		Value:    value,
	}
	if w.PointState != nil {
		out.State, _ = ParseLayer(*w.PointState)
	}
	if w.LastUpdated != nil {
		out.LastUpdated = w.LastUpdated.UTC()
	}
	if w.FriendlyName != nil {
		out.FriendlyName = *w.FriendlyName
	}
	if w.DeviceKey != nil {
		out.DeviceKey = *w.DeviceKey
	}
	*s = out
	return nil
}

// MarshalJSON encodes the point's current snapshot.
func (p *Point) MarshalJSON() ([]byte, error) {
	return p.Snapshot().MarshalJSON()
}

// UnmarshalJSON replaces the point with the decoded wire payload. The value
// is restored into the layer named by pointState, defaulting to device.
func (p *Point) UnmarshalJSON(data []byte) error {
	var s Snapshot
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.id = s.ID
	p.key = s.Key
	p.typ = s.Type
	p.readOnly = s.ReadOnly
	p.friendlyName = s.FriendlyName
	p.deviceKey = s.DeviceKey
	p.lastUpdated = s.LastUpdated
	p.device, p.control, p.override, p.previous = nil, nil, nil, nil
	p.changed = false

	if s.State == 0 {
		s.State = LayerDevice
	}
	*p.layer(s.State) = s.Value
	return nil
}

// EncodeValue returns the JSON encoding of v: a number for numeric types, a
// boolean literal for Boolean, a string otherwise, and null for nil.
func EncodeValue(v Value) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage("null"), nil
	}

	switch x := v.(type) {
	case Integer:
		return json.RawMessage(x.String()), nil
	case SingleFloat:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil, fmt.Errorf("%w: %s is not representable in JSON", ErrIncompatibleValueType, x)
		}
		return json.RawMessage(x.String()), nil
	case DoubleFloat:
		return json.Marshal(float64(x))
	case Boolean:
		return json.RawMessage(x.String()), nil
	}
	return json.Marshal(v.String())
}

// DecodeValue decodes a JSON value as type t. Both native JSON literals and
// quoted strings are accepted; null decodes to a nil value.
func DecodeValue(t Type, raw json.RawMessage) (Value, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		return Parse(t, s)
	}

	switch t {
	case TypeInteger, TypeSingleFloat, TypeDoubleFloat, TypeBoolean:
		return Parse(t, string(trimmed))
	}
	return nil, fmt.Errorf("%w: %s value must be a string, got %s", ErrIncompatibleValueType, t, strconv.Quote(string(trimmed)))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
