// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package source

import (
	"context"
	"log/slog"

	"github.com/kopi-greenbeans/mcmonitor/internal/log"
	"github.com/kopi-greenbeans/mcmonitor/internal/options"
	"github.com/kopi-greenbeans/mcmonitor/internal/wallclock"
	"github.com/kopi-greenbeans/mcmonitor/mqtt"
	"github.com/kopi-greenbeans/mcmonitor/protocol"
	"github.com/kopi-greenbeans/mcmonitor/store"
	"github.com/kopi-greenbeans/mcmonitor/telemetry"
)

// Decoded messages and link changes are queued, in arrival order, between
// the MQTT receive goroutine and the consumer loop.
const queueSize = 64

type (
	// LiveClient is the MQTT session the live source drives. It is started
	// when the source runs and stopped when it returns.
	LiveClient interface {
		protocol.MqttClient
		Start() error
		Stop() error
		RegisterConnectEventHandler(mqtt.ConnectEventHandler) func()
		RegisterDisconnectEventHandler(mqtt.DisconnectEventHandler) func()
		RegisterFatalErrorHandler(func(error)) func()
	}

	// ClientFactory creates a fresh, unstarted client for each activation.
	ClientFactory func() (LiveClient, error)

	// Live ingests sensor telemetry and moisture predictions from MQTT.
	Live struct {
		newClient ClientFactory
		cache     *store.MoistureCache
		clock     wallclock.WallClock
		logger    *slog.Logger
		log       log.Logger
	}

	// LiveOption represents a single live source option.
	LiveOption interface{ live(*LiveOptions) }

	// LiveOptions are the resolved live source options.
	LiveOptions struct {
		Clock  wallclock.WallClock
		Logger *slog.Logger
	}

	prediction struct {
		payload telemetry.PredictionPayload
		at      int64
	}

	sensor struct {
		payload telemetry.SensorPayload
		at      int64
	}

	// event is one entry of the consumer queue; exactly one field is set.
	event struct {
		sensor     *sensor
		prediction *prediction
		online     *bool
	}
)

// NewLive creates a live source. The cache provides the moisture assigned to
// telemetry before the first prediction of a session and is updated by every
// valid prediction.
func NewLive(
	newClient ClientFactory,
	cache *store.MoistureCache,
	opt ...LiveOption,
) *Live {
	var opts LiveOptions
	opts.Apply(opt)

	if opts.Clock == nil {
		opts.Clock = wallclock.Instance
	}

	return &Live{
		newClient: newClient,
		cache:     cache,
		clock:     opts.Clock,
		logger:    opts.Logger,
		log:       log.Wrap(opts.Logger).With(slog.String("source", "live")),
	}
}

// Run connects, subscribes to both topics and applies messages in arrival
// order until the context is cancelled. Connection failures are retried by
// the client and only logged; a fatal client error leaves the last state in
// place. On return the client is stopped before anything else, so teardown
// never waits on the broker.
func (l *Live) Run(ctx context.Context, emit Emitter) error {
	client, err := l.newClient()
	if err != nil {
		return err
	}

	events := make(chan event, queueSize)
	link := func(online bool) {
		_ = enqueue(ctx, events, event{online: &online})
	}

	defer client.RegisterFatalErrorHandler(func(err error) {
		l.log.Err(ctx, err, slog.String("state", "stale"))
	})()
	defer client.RegisterConnectEventHandler(func(*mqtt.ConnectEvent) {
		l.log.Info(ctx, "broker connected")
		link(true)
	})()
	defer client.RegisterDisconnectEventHandler(func(e *mqtt.DisconnectEvent) {
		if e.Error != nil && ctx.Err() == nil {
			l.log.Warn(ctx, "broker disconnected",
				slog.String("error", e.Error.Error()))
		}
		link(false)
	})()

	telemetryReceiver, err := protocol.NewTelemetryReceiver(
		client,
		protocol.JSON[telemetry.SensorPayload]{},
		telemetry.TelemetryTopic,
		func(
			_ context.Context,
			msg *protocol.TelemetryMessage[telemetry.SensorPayload],
		) error {
			return enqueue(ctx, events, event{sensor: &sensor{
				payload: msg.Payload,
				at:      l.clock.Now().UnixMilli(),
			}})
		},
		protocol.WithLogger(l.logger),
	)
	if err != nil {
		return err
	}

	predictionReceiver, err := protocol.NewTelemetryReceiver(
		client,
		protocol.JSON[telemetry.PredictionPayload]{},
		telemetry.PredictionTopic,
		func(
			_ context.Context,
			msg *protocol.TelemetryMessage[telemetry.PredictionPayload],
		) error {
			return enqueue(ctx, events, event{prediction: &prediction{
				payload: msg.Payload,
				at:      l.clock.Now().UnixMilli(),
			}})
		},
		protocol.WithLogger(l.logger),
	)
	if err != nil {
		return err
	}

	if err := client.Start(); err != nil {
		return err
	}
	stop := func() {
		if err := client.Stop(); err != nil {
			l.log.Err(context.Background(), err)
		}
	}

	// Subscriptions are recorded by the client and sent on every connect, so
	// these return immediately while still disconnected.
	stopTelemetry, err := telemetryReceiver.Listen(ctx)
	if err != nil {
		stop()
		return err
	}
	defer stopTelemetry()

	stopPrediction, err := predictionReceiver.Listen(ctx)
	if err != nil {
		stop()
		return err
	}
	defer stopPrediction()

	// Deferred last so it runs first: once stopped, the receivers' stop
	// functions only drop their handlers and send nothing.
	defer stop()

	l.log.Info(ctx, "live source started")
	stream := NewStream()
	for {
		select {
		case <-ctx.Done():
			l.log.Info(ctx, "live source stopped")
			return nil

		case e := <-events:
			if l.apply(ctx, stream, e) {
				emit(stream.Snapshot())
			}
		}
	}
}

// apply handles one queued event and reports whether the stream changed.
func (l *Live) apply(ctx context.Context, stream *Stream, e event) bool {
	switch {
	case e.sensor != nil:
		l.applySensor(stream, *e.sensor)
		return true
	case e.prediction != nil:
		return l.applyPrediction(ctx, stream, *e.prediction)
	case e.online != nil:
		return stream.SetOnline(*e.online)
	}
	return false
}

// applySensor appends a reading built from telemetry. Moisture comes from the
// cache if present, else the previous current reading, else 0.
func (l *Live) applySensor(stream *Stream, s sensor) {
	r := telemetry.Reading{
		Timestamp:   s.at,
		Temperature: s.payload.TempC.Value,
		Humidity:    s.payload.RH.Value,
		CO2:         s.payload.CO2ppm.Value,
	}

	if mc, ok := l.cache.Get(); ok {
		r.Moisture = mc
	} else if prev, ok := stream.Current(); ok {
		r.Moisture = prev.Moisture
	}

	stream.Push(r)
}

// applyPrediction merges a finite mc_pred into the stream and the cache. It
// reports whether the stream changed.
func (l *Live) applyPrediction(
	ctx context.Context,
	stream *Stream,
	p prediction,
) bool {
	if !p.payload.MCPred.Valid {
		l.log.Debug(ctx, "ignoring prediction without a numeric mc_pred")
		return false
	}
	mc := p.payload.MCPred.Value

	if err := l.cache.Set(ctx, mc); err != nil {
		l.log.Err(ctx, err)
	}
	stream.MergeMoisture(mc, p.at)
	return true
}

// enqueue hands a decoded message to the consumer loop, giving up once the
// activation's context ends so the receive goroutine is never left blocked.
func enqueue[T any](ctx context.Context, ch chan<- T, v T) error {
	select {
	case ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Apply resolves the provided list of options.
func (o *LiveOptions) Apply(opts []LiveOption, rest ...LiveOption) {
	for opt := range options.Apply[LiveOption](opts, rest...) {
		opt.live(o)
	}
}

func (o *LiveOptions) live(opt *LiveOptions) {
	if o != nil {
		*opt = *o
	}
}
