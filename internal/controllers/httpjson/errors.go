package httpjson

import "errors"

// Domain errors for the HTTP JSON controller.
var (
	// ErrInvalidConfig is returned when the instance configuration is malformed.
	ErrInvalidConfig = errors.New("httpjson: invalid instance config")

	// ErrUnexpectedStatus is returned for a non-2xx device response.
	ErrUnexpectedStatus = errors.New("httpjson: unexpected response status")

	// ErrFieldNotFound is returned when a mapped field is absent from the
	// device response.
	ErrFieldNotFound = errors.New("httpjson: field not found")
)
