// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"slices"

	"github.com/eclipse/paho.golang/paho"
	"github.com/kopi-greenbeans/mcmonitor/internal/options"
)

type (
	// SubscribeOptions are the resolved subscribe options.
	SubscribeOptions struct {
		QoS byte
	}

	// SubscribeOption represents a single subscribe option.
	SubscribeOption interface{ subscribe(*SubscribeOptions) }

	// WithQoS sets the QoS level for the subscription. Only 0 and 1 are
	// supported.
	WithQoS byte
)

// Subscribe to a topic. The subscription is recorded and restored on every
// new connection. If the client is currently connected the SUBSCRIBE is also
// sent immediately and its SUBACK checked; otherwise Subscribe returns nil and
// the topic is subscribed once the client connects.
func (c *SessionClient) Subscribe(
	ctx context.Context,
	topic string,
	opts ...SubscribeOption,
) error {
	if !c.sessionStarted.Load() {
		return &ClientStateError{State: NotStarted}
	}
	if topic == "" {
		return &InvalidArgumentError{message: "empty topic filter"}
	}

	var opt SubscribeOptions
	opt.Apply(opts)
	if opt.QoS >= 2 {
		return &InvalidArgumentError{message: "unsupported QoS"}
	}

	c.subscriptionsMu.Lock()
	defer c.subscriptionsMu.Unlock()

	sub := subscription{topic: topic, opts: opt}
	idx := slices.IndexFunc(c.subscriptions, func(s subscription) bool {
		return s.topic == topic
	})
	if idx < 0 {
		c.subscriptions = append(c.subscriptions, sub)
	} else {
		c.subscriptions[idx] = sub
	}

	conn, _ := c.current()
	if conn == nil {
		return nil
	}
	return c.subscribe(ctx, conn, sub)
}

// Unsubscribe removes a recorded subscription. An UNSUBSCRIBE is sent if the
// client is currently connected; the wait for the UNSUBACK ends early if the
// connection goes down.
func (c *SessionClient) Unsubscribe(ctx context.Context, topic string) error {
	c.subscriptionsMu.Lock()
	c.subscriptions = slices.DeleteFunc(
		c.subscriptions,
		func(s subscription) bool { return s.topic == topic },
	)
	conn, _ := c.current()
	c.subscriptionsMu.Unlock()

	if conn == nil {
		return nil
	}

	ctx, cancel := conn.down.With(ctx)
	defer cancel()

	packet := &paho.Unsubscribe{Topics: []string{topic}}
	c.log.Packet(ctx, "unsubscribe", packet)
	unsuback, err := conn.client.Unsubscribe(ctx, packet)
	if err != nil {
		return &ConnectionError{message: "error during MQTT unsubscribe", wrapped: err}
	}
	c.log.Packet(ctx, "unsuback", unsuback)
	return nil
}

// activate restores all recorded subscriptions on a fresh connection and then
// publishes it as the current one. Holding subscriptionsMu throughout keeps a
// concurrent Subscribe from slipping between the two steps.
func (c *SessionClient) activate(ctx context.Context, conn *connection) error {
	c.subscriptionsMu.Lock()
	defer c.subscriptionsMu.Unlock()

	for _, sub := range c.subscriptions {
		if err := c.subscribe(ctx, conn, sub); err != nil {
			return err
		}
	}
	c.setConnection(conn)
	return nil
}

func (c *SessionClient) subscribe(
	ctx context.Context,
	conn *connection,
	sub subscription,
) error {
	ctx, cancel := conn.down.With(ctx)
	defer cancel()

	packet := &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{
			Topic: sub.topic,
			QoS:   sub.opts.QoS,
		}},
	}
	c.log.Packet(ctx, "subscribe", packet)

	suback, err := conn.client.Subscribe(ctx, packet)
	if suback != nil {
		c.log.Packet(ctx, "suback", suback)
		for _, reason := range suback.Reasons {
			if reason >= subackFailure {
				return &SubackError{Topic: sub.topic, ReasonCode: reason}
			}
		}
	}
	if err != nil {
		return &ConnectionError{
			message: "error during MQTT subscribe",
			wrapped: err,
		}
	}
	return nil
}

// Apply resolves the provided list of options.
func (o *SubscribeOptions) Apply(
	opts []SubscribeOption,
	rest ...SubscribeOption,
) {
	for opt := range options.Apply[SubscribeOption](opts, rest...) {
		opt.subscribe(o)
	}
}

func (o *SubscribeOptions) subscribe(opt *SubscribeOptions) {
	if o != nil {
		*opt = *o
	}
}

func (o WithQoS) subscribe(opt *SubscribeOptions) {
	opt.QoS = byte(o)
}
