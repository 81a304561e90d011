package mqtt

import (
	"context"
	"fmt"
)

// Subscribe registers handler for messages matching the topic filter.
// Filters may use the + and # wildcards.
//
// Subscriptions are not restored after a lost connection; the owner
// re-subscribes after dialing again.
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected or ErrSubscribeFailed
func (c *Client) Subscribe(ctx context.Context, filter string, qos byte, handler MessageHandler) error {
	if filter == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := wait(ctx, c.client.Subscribe(filter, qos, c.wrapHandler(handler)), defaultOperationTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}
