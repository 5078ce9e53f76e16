// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package protocol

import (
	"context"
	"log/slog"

	"github.com/kopi-greenbeans/mcmonitor/internal/log"
	"github.com/kopi-greenbeans/mcmonitor/internal/options"
	"github.com/kopi-greenbeans/mcmonitor/mqtt"
)

type (
	// TelemetrySender provides the ability to send telemetry on a single
	// topic.
	TelemetrySender[T any] struct {
		client   MqttPublisher
		encoding Encoding[T]
		topic    string
		qos      byte
		log      log.Logger
	}

	// TelemetrySenderOption represents a single telemetry sender option.
	TelemetrySenderOption interface {
		telemetrySender(*TelemetrySenderOptions)
	}

	// TelemetrySenderOptions are the resolved telemetry sender options.
	TelemetrySenderOptions struct {
		QoS    byte
		Logger *slog.Logger
	}

	// SendOption represent a single per-send option.
	SendOption interface{ send(*SendOptions) }

	// SendOptions are the resolved per-send options.
	SendOptions struct {
		Retain bool
	}

	// WithRetain indicates that the telemetry event should be retained by the
	// broker.
	WithRetain bool
)

// NewTelemetrySender creates a new telemetry sender.
func NewTelemetrySender[T any](
	client MqttPublisher,
	encoding Encoding[T],
	topic string,
	opt ...TelemetrySenderOption,
) (*TelemetrySender[T], error) {
	var opts TelemetrySenderOptions
	opts.Apply(opt)

	switch {
	case client == nil:
		return nil, argumentError("client", client)
	case encoding == nil:
		return nil, argumentError("encoding", encoding)
	case topic == "":
		return nil, argumentError("topic", topic)
	case opts.QoS > 1:
		return nil, argumentError("qos", opts.QoS)
	}

	return &TelemetrySender[T]{
		client:   client,
		encoding: encoding,
		topic:    topic,
		qos:      opts.QoS,
		log:      log.Wrap(opts.Logger).With(slog.String("topic", topic)),
	}, nil
}

// Send a telemetry value.
func (ts *TelemetrySender[T]) Send(
	ctx context.Context,
	val T,
	opt ...SendOption,
) error {
	var opts SendOptions
	opts.Apply(opt)

	data, err := serialize(ts.encoding, val)
	if err != nil {
		return err
	}

	ts.log.Debug(ctx, "sending telemetry", slog.Int("payload_size", len(data.Payload)))
	if err := ts.client.Publish(
		ctx,
		ts.topic,
		data.Payload,
		mqtt.WithQoS(ts.qos),
		mqtt.WithContentType(data.ContentType),
		mqtt.WithRetain(opts.Retain),
	); err != nil {
		return mqttError("publish", ts.topic, err)
	}
	return nil
}

// Apply resolves the provided list of options.
func (o *TelemetrySenderOptions) Apply(
	opts []TelemetrySenderOption,
	rest ...TelemetrySenderOption,
) {
	for opt := range options.Apply[TelemetrySenderOption](opts, rest...) {
		opt.telemetrySender(o)
	}
}

func (o *TelemetrySenderOptions) telemetrySender(opt *TelemetrySenderOptions) {
	if o != nil {
		*opt = *o
	}
}

func (o WithQoS) telemetrySender(opt *TelemetrySenderOptions) {
	opt.QoS = byte(o)
}

func (o withLogger) telemetrySender(opt *TelemetrySenderOptions) {
	opt.Logger = o.Logger
}

// Apply resolves the provided list of options.
func (o *SendOptions) Apply(
	opts []SendOption,
	rest ...SendOption,
) {
	for opt := range options.Apply[SendOption](opts, rest...) {
		opt.send(o)
	}
}

func (o WithRetain) send(opt *SendOptions) {
	opt.Retain = bool(o)
}
