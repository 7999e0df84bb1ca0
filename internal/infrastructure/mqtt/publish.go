package mqtt

import (
	"context"
	"fmt"
	"time"
)

// maxPayloadSize caps outbound messages at 1MB, the common broker default.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits until the broker accepts it, the
// configured publish timeout elapses, or ctx ends.
//
// Acceptance is all MQTT offers: there is no end-to-end acknowledgement from
// the device. Failures are returned, never retried.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" || IsWildcard(topic) {
		return ErrInvalidTopic
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

	token := c.client.Publish(topic, qos, retained, payload)

	timer := time.NewTimer(c.publishTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, c.publishTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrPublishFailed, ctx.Err())
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// DefaultQoS returns the QoS configured for this client.
func (c *Client) DefaultQoS() byte {
	return byte(c.cfg.QoS)
}
