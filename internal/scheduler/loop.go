package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status represents the current state of a loop.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusExited  Status = "exited"
)

// Default loop settings.
const (
	DefaultMaxConsecutiveErrors = 10
	DefaultErrorDelay           = 10 * time.Second
	DefaultSuccessDelay         = 500 * time.Millisecond
)

// Config holds the back-off settings of a loop.
type Config struct {
	// Name identifies the loop in logs and metrics.
	Name string

	// MaxConsecutiveErrors is the number of failed iterations in a row after
	// which the loop stops permanently.
	MaxConsecutiveErrors int

	// ErrorDelay is the sleep after a failed iteration.
	ErrorDelay time.Duration

	// SuccessDelay is the sleep after a successful iteration.
	SuccessDelay time.Duration
}

// DefaultConfig returns a Config with the default thresholds.
func DefaultConfig(name string) Config {
	return Config{
		Name:                 name,
		MaxConsecutiveErrors: DefaultMaxConsecutiveErrors,
		ErrorDelay:           DefaultErrorDelay,
		SuccessDelay:         DefaultSuccessDelay,
	}
}

// Iteration is one tick of a periodic subsystem. ctx is the scope's context
// and is cancelled when the iteration returns.
type Iteration func(ctx context.Context, scope *Scope) error

// Logger defines the logging interface for the scheduler.
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

// Counter receives iteration counts.
type Counter interface {
	Count(name string, value int64, tags ...string)
}

type noopCounter struct{}

func (noopCounter) Count(string, int64, ...string) {}

// Stats is a snapshot of a loop's counters.
type Stats struct {
	Status            Status
	Iterations        int
	Failures          int
	ConsecutiveErrors int
	LastError         error
}

// Loop runs an Iteration repeatedly with consecutive-failure back-off and
// fail-stop.
type Loop struct {
	config  Config
	iterate Iteration
	logger  Logger
	metrics Counter

	mu          sync.RWMutex
	status      Status
	iterations  int
	failures    int
	consecutive int
	lastError   error
}

// New creates a loop. Zero config fields take the defaults.
func New(cfg Config, iterate Iteration) *Loop {
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	if cfg.ErrorDelay <= 0 {
		cfg.ErrorDelay = DefaultErrorDelay
	}
	if cfg.SuccessDelay <= 0 {
		cfg.SuccessDelay = DefaultSuccessDelay
	}

	return &Loop{
		config:  cfg,
		iterate: iterate,
		logger:  noopLogger{},
		metrics: noopCounter{},
		status:  StatusIdle,
	}
}

// SetLogger sets the logger for the loop.
func (l *Loop) SetLogger(logger Logger) {
	l.logger = logger
}

// SetMetrics sets the counter sink for iteration metrics.
func (l *Loop) SetMetrics(c Counter) {
	l.metrics = c
}

// Name returns the configured loop name.
func (l *Loop) Name() string {
	return l.config.Name
}

// Status returns the current loop status.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Stats{
		Status:            l.status,
		Iterations:        l.iterations,
		Failures:          l.failures,
		ConsecutiveErrors: l.consecutive,
		LastError:         l.lastError,
	}
}

// Run executes the loop until ctx is cancelled or the consecutive-error
// threshold is reached.
//
// Returns:
//   - nil: ctx was cancelled
//   - ErrStopped: MaxConsecutiveErrors iterations failed in a row (wraps the last error)
//   - ErrAlreadyRunning: Run was called twice concurrently
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.status == StatusRunning {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	l.status = StatusRunning
	l.consecutive = 0
	l.mu.Unlock()

	l.logger.Info("loop started",
		"loop", l.config.Name,
		"max_consecutive_errors", l.config.MaxConsecutiveErrors,
		"error_delay", l.config.ErrorDelay,
		"success_delay", l.config.SuccessDelay,
	)

	for {
		if ctx.Err() != nil {
			return l.exit()
		}

		err := l.runOnce(ctx)
		if err != nil && ctx.Err() != nil {
			// Errors caused by shutdown are not failures.
			return l.exit()
		}

		delay := l.config.SuccessDelay
		if err != nil {
			consecutive := l.recordFailure(err)
			l.metrics.Count("scheduler.iteration.failure", 1, "loop:"+l.config.Name)
			l.logger.Error("loop iteration failed",
				"loop", l.config.Name,
				"consecutive_errors", consecutive,
				"error", err,
			)

			if consecutive >= l.config.MaxConsecutiveErrors {
				l.setStatus(StatusStopped)
				l.logger.Error("loop stopped: consecutive error threshold reached",
					"loop", l.config.Name,
					"consecutive_errors", consecutive,
				)
				return fmt.Errorf("%w: %s (%d): %w", ErrStopped, l.config.Name, consecutive, err)
			}
			delay = l.config.ErrorDelay
		} else {
			l.recordSuccess()
			l.metrics.Count("scheduler.iteration.success", 1, "loop:"+l.config.Name)
		}

		if !sleep(ctx, delay) {
			return l.exit()
		}
	}
}

// runOnce runs a single iteration in a fresh scope, converting panics to errors.
func (l *Loop) runOnce(ctx context.Context) (err error) {
	scope := newScope(ctx)
	defer scope.close()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	return l.iterate(scope.ctx, scope)
}

func (l *Loop) recordFailure(err error) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.iterations++
	l.failures++
	l.consecutive++
	l.lastError = err
	return l.consecutive
}

func (l *Loop) recordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.iterations++
	l.consecutive = 0
}

func (l *Loop) setStatus(s Status) {
	l.mu.Lock()
	l.status = s
	l.mu.Unlock()
}

func (l *Loop) exit() error {
	l.setStatus(StatusExited)
	l.logger.Info("loop exited", "loop", l.config.Name)
	return nil
}

// sleep waits for d or until ctx is done. It reports whether the full delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// IsStopped reports whether err came from a loop reaching its error threshold.
func IsStopped(err error) bool {
	return errors.Is(err, ErrStopped)
}
