// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"

	"github.com/eclipse/paho.golang/paho"
	"github.com/kopi-greenbeans/mcmonitor/internal/options"
)

type (
	// PublishOptions are the resolved publish options.
	PublishOptions struct {
		ContentType string
		QoS         byte
		Retain      bool
	}

	// PublishOption represents a single publish option.
	PublishOption interface{ publish(*PublishOptions) }

	// WithContentType sets the content type of the message.
	WithContentType string

	// WithRetain sets the retain flag of the message.
	WithRetain bool
)

// Publish a message, waiting for a connection if the client is currently
// disconnected. For QoS 1 it returns once the PUBACK has been received.
func (c *SessionClient) Publish(
	ctx context.Context,
	topic string,
	payload []byte,
	opts ...PublishOption,
) error {
	var opt PublishOptions
	opt.Apply(opts)
	if opt.QoS >= 2 {
		return &InvalidArgumentError{message: "unsupported QoS"}
	}
	if topic == "" {
		return &InvalidArgumentError{message: "empty topic name"}
	}

	conn, err := c.awaitConnection(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := conn.down.With(ctx)
	defer cancel()

	packet := &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     opt.QoS,
		Retain:  opt.Retain,
	}
	if opt.ContentType != "" {
		packet.Properties = &paho.PublishProperties{
			ContentType: opt.ContentType,
		}
	}
	c.log.Packet(ctx, "publish", packet)

	res, err := conn.client.Publish(ctx, packet)
	// Paho 0.21 may return (nil, nil) for QoS 0.
	if res != nil {
		c.log.Packet(ctx, "puback", res)
	}
	if err != nil {
		return &ConnectionError{message: "error during MQTT publish", wrapped: err}
	}
	if res != nil && res.ReasonCode >= 0x80 {
		return &PubackError{ReasonCode: res.ReasonCode}
	}
	return nil
}

// Apply resolves the provided list of options.
func (o *PublishOptions) Apply(
	opts []PublishOption,
	rest ...PublishOption,
) {
	for opt := range options.Apply[PublishOption](opts, rest...) {
		opt.publish(o)
	}
}

func (o *PublishOptions) publish(opt *PublishOptions) {
	if o != nil {
		*opt = *o
	}
}

func (o WithContentType) publish(opt *PublishOptions) {
	opt.ContentType = string(o)
}

func (o WithQoS) publish(opt *PublishOptions) {
	opt.QoS = byte(o)
}

func (o WithRetain) publish(opt *PublishOptions) {
	opt.Retain = bool(o)
}
