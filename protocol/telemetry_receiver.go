// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package protocol

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kopi-greenbeans/mcmonitor/internal/log"
	"github.com/kopi-greenbeans/mcmonitor/internal/options"
	"github.com/kopi-greenbeans/mcmonitor/internal/wallclock"
	"github.com/kopi-greenbeans/mcmonitor/mqtt"
)

type (
	// TelemetryReceiver provides the ability to handle the receipt of a single
	// telemetry topic.
	TelemetryReceiver[T any] struct {
		client   MqttClient
		encoding Encoding[T]
		topic    string
		handler  TelemetryHandler[T]
		qos      byte
		log      log.Logger
	}

	// TelemetryReceiverOption represents a single telemetry receiver option.
	TelemetryReceiverOption interface {
		telemetryReceiver(*TelemetryReceiverOptions)
	}

	// TelemetryReceiverOptions are the resolved telemetry receiver options.
	TelemetryReceiverOptions struct {
		QoS    byte
		Logger *slog.Logger
	}

	// TelemetryHandler is the user-provided implementation of a single
	// telemetry event handler. It is called on the MQTT receive goroutine and
	// should hand work off rather than block.
	TelemetryHandler[T any] func(context.Context, *TelemetryMessage[T]) error

	// TelemetryMessage contains per-message data exposed to the telemetry
	// handlers.
	TelemetryMessage[T any] struct {
		Message[T]
	}

	// WithQoS sets the subscription QoS for the telemetry topic.
	WithQoS byte

	withLogger struct{ *slog.Logger }
)

// NewTelemetryReceiver creates a new telemetry receiver for an exact topic or
// topic filter.
func NewTelemetryReceiver[T any](
	client MqttClient,
	encoding Encoding[T],
	topic string,
	handler TelemetryHandler[T],
	opt ...TelemetryReceiverOption,
) (*TelemetryReceiver[T], error) {
	var opts TelemetryReceiverOptions
	opts.Apply(opt)

	switch {
	case client == nil:
		return nil, argumentError("client", client)
	case encoding == nil:
		return nil, argumentError("encoding", encoding)
	case handler == nil:
		return nil, argumentError("handler", handler)
	case topic == "":
		return nil, argumentError("topic", topic)
	case opts.QoS > 1:
		return nil, argumentError("qos", opts.QoS)
	}

	return &TelemetryReceiver[T]{
		client:   client,
		encoding: encoding,
		topic:    topic,
		handler:  handler,
		qos:      opts.QoS,
		log:      log.Wrap(opts.Logger).With(slog.String("topic", topic)),
	}, nil
}

// Listen to the MQTT telemetry topic. Returns a function to stop listening.
func (tr *TelemetryReceiver[T]) Listen(ctx context.Context) (func(), error) {
	remove := tr.client.RegisterMessageHandler(tr.onMessage)

	if err := tr.client.Subscribe(ctx, tr.topic, mqtt.WithQoS(tr.qos)); err != nil {
		remove()
		return nil, mqttError("subscribe", tr.topic, err)
	}

	return func() {
		remove()
		if err := tr.client.Unsubscribe(context.Background(), tr.topic); err != nil {
			// Most likely deferred, so log rather than return.
			tr.log.Err(context.Background(), mqttError("unsubscribe", tr.topic, err))
		}
	}, nil
}

func (tr *TelemetryReceiver[T]) onMessage(
	ctx context.Context,
	pub *mqtt.Message,
) {
	if !mqtt.IsTopicFilterMatch(tr.topic, pub.Topic) {
		return
	}

	msg := &TelemetryMessage[T]{Message: Message[T]{
		Topic:     pub.Topic,
		Timestamp: wallclock.Instance.Now(),
	}}

	var err error
	msg.Payload, err = deserialize(tr.encoding, &Data{
		Payload:     pub.Payload,
		ContentType: pub.ContentType,
	})
	if err != nil {
		tr.drop(ctx, pub, err)
		return
	}

	if err := tr.handler(ctx, msg); err != nil {
		tr.log.Err(ctx, &Error{
			Message:     "telemetry handler failed",
			Kind:        ExecutionException,
			NestedError: err,
			Topic:       pub.Topic,
		})
	}
}

// Malformed messages are logged at warn and otherwise ignored.
func (tr *TelemetryReceiver[T]) drop(
	ctx context.Context,
	pub *mqtt.Message,
	err error,
) {
	var e *Error
	if !errors.As(err, &e) {
		e = &Error{
			Message:     "cannot deserialize payload",
			Kind:        PayloadInvalid,
			NestedError: err,
		}
	}
	e.Topic = pub.Topic

	attrs := append(e.Attrs(), slog.Int("payload_size", len(pub.Payload)))
	tr.log.Warn(ctx, "dropping malformed message: "+e.Error(), attrs...)
}

func argumentError(name string, value any) error {
	return &Error{
		Message:       "invalid argument",
		Kind:          ArgumentInvalid,
		PropertyName:  name,
		PropertyValue: value,
	}
}

// Apply resolves the provided list of options.
func (o *TelemetryReceiverOptions) Apply(
	opts []TelemetryReceiverOption,
	rest ...TelemetryReceiverOption,
) {
	for opt := range options.Apply[TelemetryReceiverOption](opts, rest...) {
		opt.telemetryReceiver(o)
	}
}

func (o *TelemetryReceiverOptions) telemetryReceiver(
	opt *TelemetryReceiverOptions,
) {
	if o != nil {
		*opt = *o
	}
}

func (o WithQoS) telemetryReceiver(opt *TelemetryReceiverOptions) {
	opt.QoS = byte(o)
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) interface {
	TelemetryReceiverOption
	TelemetrySenderOption
} {
	return withLogger{logger}
}

func (o withLogger) telemetryReceiver(opt *TelemetryReceiverOptions) {
	opt.Logger = o.Logger
}
