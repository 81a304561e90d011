package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when a connection attempt fails for a
	// transport reason (unreachable host, timeout, TLS failure).
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrConnectionRejected is returned when the broker answered the connect
	// request with a refusal (bad credentials, not authorised, client id
	// rejected, unsupported protocol version).
	ErrConnectionRejected = errors.New("mqtt: connection rejected by broker")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned for an empty topic, or a publish topic
	// containing wildcards.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)
