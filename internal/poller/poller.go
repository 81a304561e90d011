package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	bridge "github.com/mekatrol/imperium-core/internal/bridges/mqtt"
	"github.com/mekatrol/imperium-core/internal/device"
	"github.com/mekatrol/imperium-core/internal/scheduler"
	"github.com/mekatrol/imperium-core/internal/status"
)

// DefaultConcurrency is the number of devices read in parallel.
const DefaultConcurrency = 4

// ErrAllDevicesFailed is returned when every polled device failed.
var ErrAllDevicesFailed = errors.New("poller: all devices failed")

// Logger defines the logging interface for the poller.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Reporter receives device errors for the status sink.
type Reporter interface {
	ReportItem(ctx context.Context, item status.Item) string
}

// Poller polls devices through their controllers.
type Poller struct {
	registry    *device.Registry
	reporter    Reporter
	logger      Logger
	concurrency int
	now         func() time.Time
}

// Option configures a Poller.
type Option func(*Poller)

// WithLogger sets the logger.
func WithLogger(l Logger) Option { return func(p *Poller) { p.logger = l } }

// WithReporter sets the status reporter.
func WithReporter(r Reporter) Option { return func(p *Poller) { p.reporter = r } }

// WithConcurrency sets how many devices are read in parallel.
func WithConcurrency(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(p *Poller) { p.now = now } }

// New creates a poller over registry.
func New(registry *device.Registry, opts ...Option) *Poller {
	p := &Poller{
		registry:    registry,
		logger:      noopLogger{},
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PollDevices is the device polling iteration.
func (p *Poller) PollDevices(ctx context.Context, _ *scheduler.Scope) error {
	var (
		mu       sync.Mutex
		attempts int
		failures []error
	)

	g := new(errgroup.Group)
	g.SetLimit(p.concurrency)

	for _, inst := range p.registry.GetEnabledDeviceInstances(true) {
		inst := inst
		if inst.Kind == device.KindVirtual {
			continue
		}
		controller, err := p.registry.GetController(inst.ControllerKey)
		if err != nil {
			p.logger.Warn("device has no controller", "device", inst.Key, "controller", inst.ControllerKey)
			continue
		}
		if _, pushed := controller.(bridge.Bridged); pushed {
			continue
		}

		attempts++
		g.Go(func() error {
			if err := read(ctx, controller, inst); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
				p.report(ctx, inst.Key, err)
				return nil
			}
			if err := p.registry.MarkDeviceCommunicated(inst.Key, p.now()); err != nil {
				p.logger.Debug("marking device communicated", "device", inst.Key, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait() // goroutines never return errors

	if err := ctx.Err(); err != nil {
		return err
	}
	if attempts > 0 && len(failures) == attempts {
		return fmt.Errorf("%w: %w", ErrAllDevicesFailed, errors.Join(failures...))
	}
	return nil
}

// read calls the controller, converting a panic into an error.
func read(ctx context.Context, c device.Controller, inst *device.Instance) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("device %q: read panicked: %v", inst.Key, r)
		}
	}()
	if err := c.Read(ctx, inst); err != nil {
		return fmt.Errorf("device %q: %w", inst.Key, err)
	}
	return nil
}

func (p *Poller) report(ctx context.Context, key string, err error) {
	p.logger.Warn("device read failed", "device", key, "error", err)
	if p.reporter != nil {
		p.reporter.ReportItem(ctx, status.Item{
			Category: status.CategoryDevice,
			Severity: status.SeverityWarning,
			Key:      key,
			Err:      err,
		})
	}
}

// Housekeeping is the device status iteration.
func (p *Poller) Housekeeping(_ context.Context, _ *scheduler.Scope) error {
	if n := p.registry.RefreshDeviceStatus(p.now()); n > 0 {
		p.logger.Debug("device status transitions", "count", n)
	}
	return nil
}
