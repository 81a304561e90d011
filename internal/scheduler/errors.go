package scheduler

import "errors"

// Domain errors for the scheduler package.
var (
	// ErrStopped is returned by Loop.Run when the consecutive-error threshold
	// was reached. The loop is terminal and must be restarted externally.
	ErrStopped = errors.New("scheduler: loop stopped after consecutive errors")

	// ErrPanic wraps a panic recovered from an iteration.
	ErrPanic = errors.New("scheduler: iteration panicked")

	// ErrAlreadyRunning is returned when Run is called on a running loop.
	ErrAlreadyRunning = errors.New("scheduler: loop already running")
)
