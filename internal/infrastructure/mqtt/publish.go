package mqtt

import (
	"fmt"
)

// maxPayloadSize caps a single publish at 256KB. Sensor payloads are a few
// hundred bytes; anything near the cap is a bug upstream.
const maxPayloadSize = 256 << 10

// Publish sends payload to topic and waits up to the publish timeout for
// the broker to acknowledge it (QoS 1/2) or the client to write it (QoS 0).
//
//	err := client.Publish(client.Topics().Temperature(), body, 1, false)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validatePublish(topic, payload, qos); err != nil {
		return err
	}

	pc := c.pahoClient()
	if pc == nil || !c.IsConnected() {
		return ErrNotConnected
	}

	token := pc.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// PublishRetained publishes with the configured QoS and the retain flag set.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}

func validatePublish(topic string, payload []byte, qos byte) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: payload is %d bytes, limit %d", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	return nil
}
