// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Command gbsensor publishes simulated chamber telemetry and moisture
// predictions to the broker, standing in for the ESP32 node and the
// prediction service during development.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kopi-greenbeans/mcmonitor/internal/config"
	"github.com/kopi-greenbeans/mcmonitor/mqtt"
	"github.com/kopi-greenbeans/mcmonitor/protocol"
	"github.com/kopi-greenbeans/mcmonitor/source"
	"github.com/kopi-greenbeans/mcmonitor/telemetry"
	"github.com/lmittmann/tint"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	cfg := must(config.Load())
	slog.SetDefault(slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: cfg.LogLevel,
	})))

	client := must(mqtt.NewSessionClientFromEnv(
		mqtt.WithLogger(slog.Default()),
	))
	client.RegisterFatalErrorHandler(func(err error) {
		slog.Error("session ended", slog.String("error", err.Error()))
		stop()
	})
	check(client.Start())
	defer func() { _ = client.Stop() }()

	sensors := must(protocol.NewTelemetrySender[telemetry.SensorPayload](
		client,
		protocol.JSON[telemetry.SensorPayload]{},
		telemetry.TelemetryTopic,
		protocol.WithQoS(1),
		protocol.WithLogger(slog.Default()),
	))
	predictions := must(protocol.NewTelemetrySender[telemetry.PredictionPayload](
		client,
		protocol.JSON[telemetry.PredictionPayload]{},
		telemetry.PredictionTopic,
		protocol.WithQoS(1),
		protocol.WithLogger(slog.Default()),
	))

	sim := source.NewSimulated(
		cfg.DeviceID,
		source.WithInterval(cfg.SimInterval),
		source.WithLogger(slog.Default()),
	)
	err := sim.Run(ctx, func(s source.Snapshot) {
		r := s.Current
		if r == nil {
			return
		}

		if err := sensors.Send(ctx, telemetry.SensorPayload{
			TempC:  telemetry.NewNumber(r.Temperature),
			RH:     telemetry.NewNumber(r.Humidity),
			CO2ppm: telemetry.NewNumber(r.CO2),
		}); err != nil {
			slog.Warn("telemetry not sent", slog.String("error", err.Error()))
			return
		}

		// The last prediction is retained so a fresh dashboard session
		// receives it on subscribe.
		if err := predictions.Send(ctx, telemetry.PredictionPayload{
			MCPred: telemetry.NewNumber(r.Moisture),
		}, protocol.WithRetain(true)); err != nil {
			slog.Warn("prediction not sent", slog.String("error", err.Error()))
			return
		}

		slog.Info("published", slog.Any("reading", *r))
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("simulation stopped", slog.String("error", err.Error()))
	}
}

func check(e error) {
	if e != nil {
		panic(e)
	}
}

func must[T any](t T, e error) T {
	check(e)
	return t
}
