package update

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mekatrol/imperium-core/internal/device"
	"github.com/mekatrol/imperium-core/internal/point"
	"github.com/mekatrol/imperium-core/internal/status"
)

// Action is a point update action.
type Action int

// Actions.
const (
	ActionControl Action = iota + 1
	ActionOverride
	ActionOverrideRelease
	ActionToggle
)

var actionNames = map[Action]string{
	ActionControl:         "Control",
	ActionOverride:        "Override",
	ActionOverrideRelease: "OverrideRelease",
	ActionToggle:          "Toggle",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// ParseAction parses an action name (case-insensitive).
func ParseAction(name string) (Action, error) {
	for a, n := range actionNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown action %q", ErrBadRequest, name)
}

// MarshalText encodes the action name.
func (a Action) MarshalText() ([]byte, error) {
	if _, ok := actionNames[a]; !ok {
		return nil, fmt.Errorf("%w: unknown action %d", ErrBadRequest, int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText decodes an action name.
func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Request is a point update request.
type Request struct {
	DeviceKey string  `json:"deviceKey"`
	PointKey  string  `json:"pointKey"`
	Action    Action  `json:"pointUpdateAction"`
	Value     *string `json:"value"`
}

// Logger defines the logging interface for the service.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Reporter receives anomalies and I/O failures for the status sink.
type Reporter interface {
	ReportItem(ctx context.Context, item status.Item) string
}

// Service applies point updates.
type Service struct {
	registry *device.Registry
	readOnly bool
	logger   Logger
	reporter Reporter
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithReadOnly disables device I/O: updates change the registry only.
func WithReadOnly(readOnly bool) Option { return func(s *Service) { s.readOnly = readOnly } }

// WithLogger sets the logger.
func WithLogger(l Logger) Option { return func(s *Service) { s.logger = l } }

// WithReporter sets the status reporter.
func WithReporter(r Reporter) Option { return func(s *Service) { s.reporter = r } }

// NewService creates a service over registry.
func NewService(registry *device.Registry, opts ...Option) *Service {
	s := &Service{registry: registry, logger: noopLogger{}, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Update applies req and returns the updated point.
//
// Returns:
//   - *point.Point: The point after the update
//   - error: ErrNotFound when the point does not exist, ErrBadRequest for
//     invalid input. Device I/O problems are never returned.
func (s *Service) Update(ctx context.Context, req Request) (*point.Point, error) {
	p, err := s.registry.GetPoint(req.DeviceKey, req.PointKey)
	if err != nil {
		if errors.Is(err, device.ErrPointNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, err
	}

	if err := apply(p, req); err != nil {
		return nil, err
	}

	if p.DeviceKey() == "" || s.readOnly {
		return p, nil
	}

	inst, err := s.registry.GetDeviceInstance(p.DeviceKey(), true)
	if err != nil {
		s.anomaly(ctx, p, "point update: device not found", err)
		return p, nil
	}
	if inst.Kind == device.KindVirtual {
		return p, nil
	}
	controller, err := s.registry.GetController(inst.ControllerKey)
	if err != nil {
		s.anomaly(ctx, p, "point update: controller not found", err)
		return p, nil
	}

	s.writeThrough(ctx, controller, inst)
	return p, nil
}

// apply changes the point's layers as the action requires.
func apply(p *point.Point, req Request) error {
	switch req.Action {
	case ActionControl, ActionOverride, ActionToggle:
		if p.ReadOnly() {
			return fmt.Errorf("%w: point %q is read-only", ErrBadRequest, p.Key())
		}
	}

	switch req.Action {
	case ActionControl:
		v, err := parseValue(p, req.Value)
		if err != nil {
			return err
		}
		_, err = p.SetControlValue(v)
		return err

	case ActionOverride:
		v, err := parseValue(p, req.Value)
		if err != nil {
			return err
		}
		_, err = p.SetOverrideValue(v)
		return err

	case ActionOverrideRelease:
		p.ClearOverride()
		return nil

	case ActionToggle:
		if p.Type() != point.TypeBoolean {
			return fmt.Errorf("%w: toggle requires a boolean point, %q is %s", ErrBadRequest, p.Key(), p.Type())
		}
		_, err := p.Toggle()
		return err
	}
	return fmt.Errorf("%w: unknown action %v", ErrBadRequest, req.Action)
}

// parseValue casts the raw request value to the point's type. A nil value
// clears the layer.
func parseValue(p *point.Point, raw *string) (point.Value, error) {
	if raw == nil {
		return nil, nil
	}
	v, ok := point.TryCastFromString(p.Type(), *raw)
	if !ok {
		return nil, fmt.Errorf("%w: %w: cannot parse %q as %s", ErrBadRequest, point.ErrIncompatibleValueType, *raw, p.Type())
	}
	return v, nil
}

// writeThrough writes the device then reads it back so the visible state
// reflects what the device applied. Failures are logged and reported.
func (s *Service) writeThrough(ctx context.Context, c device.Controller, inst *device.Instance) {
	if err := c.Write(ctx, inst); err != nil {
		s.ioFailure(ctx, inst.Key, "device write failed", err)
		return
	}
	if err := c.Read(ctx, inst); err != nil {
		s.ioFailure(ctx, inst.Key, "device read after write failed", err)
		return
	}
	if err := s.registry.MarkDeviceCommunicated(inst.Key, s.now()); err != nil {
		s.logger.Debug("marking device communicated", "device", inst.Key, "error", err)
	}
}

func (s *Service) anomaly(ctx context.Context, p *point.Point, msg string, err error) {
	s.logger.Warn(msg, "device", p.DeviceKey(), "point", p.Key(), "error", err)
	s.report(ctx, status.SeverityWarning, p.DeviceKey(), msg, err)
}

func (s *Service) ioFailure(ctx context.Context, key, msg string, err error) {
	s.logger.Error(msg, "device", key, "error", err)
	s.report(ctx, status.SeverityError, key, msg, err)
}

func (s *Service) report(ctx context.Context, severity status.Severity, key, msg string, err error) {
	if s.reporter == nil {
		return
	}
	s.reporter.ReportItem(ctx, status.Item{
		Category: status.CategoryUpdate,
		Severity: severity,
		Key:      key,
		Message:  msg,
		Err:      err,
	})
}
