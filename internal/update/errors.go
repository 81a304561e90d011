package update

import "errors"

// Domain errors for point updates.
var (
	// ErrNotFound is returned when the addressed point does not exist.
	ErrNotFound = errors.New("update: point not found")

	// ErrBadRequest is returned for an invalid action, an unparsable value,
	// toggling a non-boolean point, or writing a read-only point.
	ErrBadRequest = errors.New("update: bad request")
)
