package mqttdevice

import "errors"

// Domain errors for the MQTT device controller.
var (
	// ErrInvalidConfig is returned when the instance configuration is malformed.
	ErrInvalidConfig = errors.New("mqttdevice: invalid instance config")

	// ErrUnknownTransform is returned for a transform name that is not registered.
	ErrUnknownTransform = errors.New("mqttdevice: unknown transform")

	// ErrUnknownPoint is returned when a scalar message names a point the
	// device does not have.
	ErrUnknownPoint = errors.New("mqttdevice: unknown point")

	// ErrNoPublisher is returned by Write when no publisher is configured.
	ErrNoPublisher = errors.New("mqttdevice: no publisher")

	// ErrInvalidPayload is returned when a message cannot be decoded.
	ErrInvalidPayload = errors.New("mqttdevice: invalid payload")
)
