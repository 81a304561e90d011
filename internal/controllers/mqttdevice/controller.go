package mqttdevice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	bridge "github.com/mekatrol/imperium-core/internal/bridges/mqtt"
	"github.com/mekatrol/imperium-core/internal/device"
	"github.com/mekatrol/imperium-core/internal/point"
)

// Key is the controller key MQTT devices are registered under.
const Key = "mqtt"

// pointPlaceholder is replaced by the point key in command topics.
const pointPlaceholder = "{point}"

// pointGroup is the named capture group selecting a point.
const pointGroup = "point"

// Publisher sends a message to the broker. *bridge.Manager implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, retained bool) error
}

// Config is the parsed instance configuration.
type Config struct {
	TopicPattern string `json:"topicPattern"`
	CommandTopic string `json:"commandTopic"`
	Transform    string `json:"transform"`
	Retain       bool   `json:"retain"`
}

// Controller handles MQTT-bridged devices.
type Controller struct {
	publisher  Publisher
	transforms *transforms
}

var _ bridge.Bridged = (*Controller)(nil)

// New creates a controller that publishes commands through pub. pub may be
// nil for devices that are only read.
func New(pub Publisher) *Controller {
	return &Controller{publisher: pub, transforms: newTransforms()}
}

// RegisterTransform registers or replaces a named transform.
func (c *Controller) RegisterTransform(name string, t Transform) error {
	return c.transforms.add(name, t)
}

// ParseInstanceConfig parses and validates the JSON configuration. The
// topic pattern must compile and the transform must be registered.
func (c *Controller) ParseInstanceConfig(configJSON string) (any, error) {
	var cfg Config
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if strings.TrimSpace(cfg.TopicPattern) == "" {
		return nil, fmt.Errorf("%w: topicPattern is required", ErrInvalidConfig)
	}
	if _, err := regexp.Compile(cfg.TopicPattern); err != nil {
		return nil, fmt.Errorf("%w: topicPattern: %w", ErrInvalidConfig, err)
	}
	if strings.ContainsAny(cfg.CommandTopic, "+#") {
		return nil, fmt.Errorf("%w: commandTopic %q contains wildcards", ErrInvalidConfig, cfg.CommandTopic)
	}
	if _, ok := c.transforms.get(cfg.Transform); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransform, cfg.Transform)
	}
	return &cfg, nil
}

func configOf(inst *device.Instance) (*Config, error) {
	cfg, ok := inst.Config.(*Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("%w: device %q has %T", ErrInvalidConfig, inst.Key, inst.Config)
	}
	return cfg, nil
}

// TopicPattern returns the device's topic regular expression.
func (c *Controller) TopicPattern(inst *device.Instance) string {
	cfg, err := configOf(inst)
	if err != nil {
		return ""
	}
	return cfg.TopicPattern
}

// Read does nothing: values arrive through ProcessMessage.
func (c *Controller) Read(context.Context, *device.Instance) error {
	return nil
}

// ProcessMessage applies a matched message to the device layer of the
// device's points.
func (c *Controller) ProcessMessage(_ context.Context, inst *device.Instance, match bridge.Match, payload []byte) error {
	cfg, err := configOf(inst)
	if err != nil {
		return err
	}
	tr, ok := c.transforms.get(cfg.Transform)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTransform, cfg.Transform)
	}
	payload, err = tr.inbound(payload)
	if err != nil {
		return fmt.Errorf("inbound transform %q: %w", cfg.Transform, err)
	}

	if key, ok := match.Named[pointGroup]; ok {
		p := inst.Point(key)
		if p == nil {
			return fmt.Errorf("%w: %s.%s", ErrUnknownPoint, inst.Key, key)
		}
		return setScalar(p, payload)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	var errs []error
	for name, raw := range fields {
		p := inst.Point(name)
		if p == nil {
			continue
		}
		v, err := point.DecodeValue(p.Type(), raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("point %q: %w", p.Key(), err))
			continue
		}
		if v == nil {
			continue
		}
		if _, err := p.SetValue(v); err != nil {
			errs = append(errs, fmt.Errorf("point %q: %w", p.Key(), err))
		}
	}
	return errors.Join(errs...)
}

// setScalar accepts a bare value ("21.5", "on", "true") or a JSON literal.
func setScalar(p *point.Point, payload []byte) error {
	raw := strings.TrimSpace(string(payload))
	if p.Type() == point.TypeBoolean {
		switch strings.ToLower(raw) {
		case "on":
			raw = "true"
		case "off":
			raw = "false"
		}
	}

	var v point.Value
	var err error
	if json.Valid([]byte(raw)) && (strings.HasPrefix(raw, `"`) || raw == "null") {
		v, err = point.DecodeValue(p.Type(), json.RawMessage(raw))
	} else {
		v, err = point.Parse(p.Type(), raw)
	}
	if err != nil {
		return fmt.Errorf("point %q: %w", p.Key(), err)
	}
	if v == nil {
		return nil
	}
	_, err = p.SetValue(v)
	return err
}

// Write publishes the control-resolved values of the writable points.
func (c *Controller) Write(ctx context.Context, inst *device.Instance) error {
	cfg, err := configOf(inst)
	if err != nil {
		return err
	}
	if cfg.CommandTopic == "" {
		return nil
	}
	if c.publisher == nil {
		return ErrNoPublisher
	}
	tr, ok := c.transforms.get(cfg.Transform)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTransform, cfg.Transform)
	}

	values := make(map[string]json.RawMessage)
	for _, p := range inst.Points {
		if p.ReadOnly() {
			continue
		}
		v := p.ControlResolvedValue()
		if v == nil {
			continue
		}
		raw, err := point.EncodeValue(v)
		if err != nil {
			return fmt.Errorf("point %q: %w", p.Key(), err)
		}
		values[p.Key()] = raw
	}
	if len(values) == 0 {
		return nil
	}

	if strings.Contains(cfg.CommandTopic, pointPlaceholder) {
		var errs []error
		for key, raw := range values {
			topic := strings.ReplaceAll(cfg.CommandTopic, pointPlaceholder, key)
			if err := c.publish(ctx, tr, topic, raw, cfg.Retain); err != nil {
				errs = append(errs, fmt.Errorf("point %q: %w", key, err))
			}
		}
		return errors.Join(errs...)
	}

	payload, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encoding command for device %q: %w", inst.Key, err)
	}
	return c.publish(ctx, tr, cfg.CommandTopic, payload, cfg.Retain)
}

func (c *Controller) publish(ctx context.Context, tr Transform, topic string, payload []byte, retain bool) error {
	out, err := tr.outbound(payload)
	if err != nil {
		return fmt.Errorf("outbound transform: %w", err)
	}
	return c.publisher.Publish(ctx, topic, out, retain)
}
