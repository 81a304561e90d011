package mqttdevice

import (
	"fmt"
	"strings"
	"sync"
)

// IdentityTransform is the name of the built-in pass-through transform.
const IdentityTransform = "identity"

// TransformFunc rewrites a raw JSON payload.
type TransformFunc func(payload []byte) ([]byte, error)

// Transform is a pair of payload rewrites for one class of device. Either
// function may be nil, meaning pass-through.
type Transform struct {
	Inbound  TransformFunc
	Outbound TransformFunc
}

func (t Transform) inbound(payload []byte) ([]byte, error) {
	if t.Inbound == nil {
		return payload, nil
	}
	return t.Inbound(payload)
}

func (t Transform) outbound(payload []byte) ([]byte, error) {
	if t.Outbound == nil {
		return payload, nil
	}
	return t.Outbound(payload)
}

// transforms is a name -> Transform registry (case-insensitive).
type transforms struct {
	mu    sync.RWMutex
	byKey map[string]Transform
}

func newTransforms() *transforms {
	return &transforms{byKey: map[string]Transform{IdentityTransform: {}}}
}

func (t *transforms) add(name string, tr Transform) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return fmt.Errorf("%w: empty transform name", ErrInvalidConfig)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byKey[key] = tr
	return nil
}

func (t *transforms) get(name string) (Transform, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = IdentityTransform
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr, ok := t.byKey[key]
	return tr, ok
}
