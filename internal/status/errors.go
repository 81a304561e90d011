package status

import "errors"

// Domain errors for the status package.
var (
	// ErrInvalidSeverity is returned when a severity name is not recognised.
	ErrInvalidSeverity = errors.New("status: invalid severity")
)
