package mqtt

import (
	"context"
	"fmt"
	"regexp"

	"github.com/mekatrol/imperium-core/internal/device"
	"github.com/mekatrol/imperium-core/internal/status"
)

// Match is a topic pattern match handed to a bridged controller.
type Match struct {
	Topic string

	// Groups holds the full match followed by each capture group, as
	// returned by regexp.FindStringSubmatch.
	Groups []string

	// Named maps named capture groups to their values.
	Named map[string]string
}

// Bridged is implemented by controllers whose devices receive MQTT messages.
type Bridged interface {
	device.Controller

	// TopicPattern returns the regular expression matched against inbound
	// topics for inst. An empty pattern means the device takes no messages.
	TopicPattern(inst *device.Instance) string

	// ProcessMessage extracts point values from a matching message.
	ProcessMessage(ctx context.Context, inst *device.Instance, match Match, payload []byte) error
}

// Route offers one inbound message to every enabled bridged device. It is
// the handler registered on the catch-all subscription and never fails:
// per-device errors are logged, reported and counted.
func (m *Manager) Route(topic string, payload []byte) error {
	if m.registry == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(m.ctx, routeTimeout)
	defer cancel()

	for _, inst := range m.registry.GetEnabledDeviceInstances(true) {
		controller, err := m.registry.GetController(inst.ControllerKey)
		if err != nil {
			continue
		}
		bridged, ok := controller.(Bridged)
		if !ok {
			continue
		}

		match, ok, err := m.match(bridged, inst, topic)
		if err != nil {
			m.logger.Warn("device topic pattern rejected", "device", inst.Key, "error", err)
			continue
		}
		if !ok {
			continue
		}

		tag := "device:" + inst.Key
		if err := deliver(ctx, bridged, inst, match, payload); err != nil {
			m.metrics.Count("mqtt.messages.failed", 1, tag)
			m.logger.Error("MQTT message processing failed", "device", inst.Key, "topic", topic, "error", err)
			if m.reporter != nil {
				m.reporter.ReportItem(ctx, status.Item{
					Category: status.CategoryDevice,
					Severity: status.SeverityError,
					Key:      inst.Key,
					Err:      err,
				})
			}
			continue
		}

		m.metrics.Count("mqtt.messages.routed", 1, tag)
		if err := m.registry.MarkDeviceCommunicated(inst.Key, m.now()); err != nil {
			m.logger.Debug("marking device communicated", "device", inst.Key, "error", err)
		}
	}
	return nil
}

func (m *Manager) match(b Bridged, inst *device.Instance, topic string) (Match, bool, error) {
	pattern := b.TopicPattern(inst)
	if pattern == "" {
		return Match{}, false, nil
	}
	re, err := m.compile(pattern)
	if err != nil {
		return Match{}, false, err
	}

	groups := re.FindStringSubmatch(topic)
	if groups == nil {
		return Match{}, false, nil
	}

	named := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if name != "" && i < len(groups) {
			named[name] = groups[i]
		}
	}
	return Match{Topic: topic, Groups: groups, Named: named}, true, nil
}

// compile returns the cached regexp for pattern.
func (m *Manager) compile(pattern string) (*regexp.Regexp, error) {
	m.patternsMu.Lock()
	defer m.patternsMu.Unlock()

	if re, ok := m.patterns[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidPattern, pattern, err)
	}
	m.patterns[pattern] = re
	return re, nil
}

// deliver calls the controller, converting a panic into ErrRoutePanic.
func deliver(ctx context.Context, b Bridged, inst *device.Instance, match Match, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrRoutePanic, r)
		}
	}()
	return b.ProcessMessage(ctx, inst, match, payload)
}
