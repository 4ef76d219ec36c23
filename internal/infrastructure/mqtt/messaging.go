package mqtt

import (
	"fmt"
	"slices"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publish sends payload on topic and waits for the broker's ack (for
// QoS > 0). Snapshots are published retained; commands, acks and signals
// are not.
//
// Parameters:
//   - topic: Full topic, no wildcards
//   - payload: Message body, at most 1 MiB
//   - qos: 0, 1 or 2
//   - retained: Whether the broker keeps the message for late subscribers
//
// Returns:
//   - error: ErrNotConnected, a validation error, or wrapped ErrPublish
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validate(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d byte payload exceeds %d", ErrPublish, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return wait(c.paho.Publish(topic, qos, retained, payload), operationTimeout, ErrPublish)
}

// PublishRetained publishes a retained message at the configured QoS.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}

// Subscribe registers handler for topic, which may hold + and # wildcards.
// The subscription is replayed after reconnects until Unsubscribe.
//
// Parameters:
//   - topic: Topic filter
//   - qos: Requested QoS
//   - handler: Called on paho's goroutine; a panic is recovered and logged
//
// Returns:
//   - error: ErrNotConnected, a validation error, or wrapped ErrSubscribe
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := validate(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribe)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	if err := wait(c.paho.Subscribe(topic, qos, c.deliver(handler)), operationTimeout, ErrSubscribe); err != nil {
		c.mu.Lock()
		delete(c.subs, topic)
		c.mu.Unlock()
		return err
	}
	return nil
}

// Unsubscribe drops a subscription. Messages already in flight may still
// reach the handler.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	delete(c.subs, topic)
	c.mu.Unlock()

	return wait(c.paho.Unsubscribe(topic), operationTimeout, ErrUnsubscribe)
}

// Subscriptions returns the subscribed topic filters, sorted.
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	topics := make([]string, 0, len(c.subs))
	for t := range c.subs {
		topics = append(topics, t)
	}
	c.mu.RUnlock()

	slices.Sort(topics)
	return topics
}

func validate(topic string, qos byte) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if qos > maxQoS {
		return ErrBadQoS
	}
	return nil
}

// deliver adapts a MessageHandler to paho, logging handler errors and
// recovering panics.
func (c *Client) deliver(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if l := c.log(); l != nil {
					l.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if l := c.log(); l != nil {
				l.Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
