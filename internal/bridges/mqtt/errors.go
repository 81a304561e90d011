package mqtt

import "errors"

// Domain errors for the MQTT bridge.
var (
	// ErrNoHost is returned when the well-known host key has no settings.
	ErrNoHost = errors.New("mqtt: no broker host configured")

	// ErrRoutePanic wraps a panic raised while a device processed a message.
	ErrRoutePanic = errors.New("mqtt: device message handler panicked")

	// ErrInvalidPattern is returned when a device's topic pattern does not
	// compile as a regular expression.
	ErrInvalidPattern = errors.New("mqtt: invalid topic pattern")
)
