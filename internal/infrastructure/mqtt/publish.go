package mqtt

import (
	"context"
	"fmt"
	"strings"
)

// maxPayloadSize caps outbound payloads at 1MB, in line with typical broker limits.
const maxPayloadSize = 1 << 20

// CatchAll is the topic filter that matches every topic.
const CatchAll = "#"

// Publish sends payload to topic and waits for the broker to accept it.
//
// Parameters:
//   - ctx: Cancels the wait (the message may still be delivered)
//   - topic: Concrete topic, no wildcards
//   - payload: Message body (max 1MB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected or ErrPublishFailed
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	if err := validatePublishTopic(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := wait(ctx, c.client.Publish(topic, qos, retained, payload), defaultOperationTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// DefaultQoS returns the QoS from the connection options.
func (c *Client) DefaultQoS() byte {
	return c.opts.QoS
}

func validatePublishTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: publish topic %q contains wildcards", ErrInvalidTopic, topic)
	}
	return nil
}
