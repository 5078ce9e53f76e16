// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Command gbmonitor serves the green-bean moisture dashboard API, fed either
// by the MQTT broker or by the built-in simulation.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kopi-greenbeans/mcmonitor/api"
	"github.com/kopi-greenbeans/mcmonitor/internal/config"
	"github.com/kopi-greenbeans/mcmonitor/monitor"
	"github.com/kopi-greenbeans/mcmonitor/mqtt"
	"github.com/kopi-greenbeans/mcmonitor/source"
	"github.com/kopi-greenbeans/mcmonitor/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, closer := newLogger(cfg.LogLevel, cfg.LogFile)
	defer closer.Close()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	kv, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	cache := store.NewMoistureCache(ctx, kv, log)
	if mc, ok := cache.Get(); ok {
		log.Info("restored last moisture", slog.Float64("mc", mc))
	}

	mon, err := monitor.New(
		cfg.Mode,
		cfg.DeviceID,
		cfg.Thresholds,
		sourceFactory(cache, cfg.SimInterval, log),
		log,
	)
	if err != nil {
		return err
	}

	if cfg.LogLevel > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(mon, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 2)
	go func() { errc <- mon.Run(ctx) }()
	go func() {
		log.Info("listening",
			slog.String("addr", cfg.HTTPAddr),
			slog.String("mode", string(cfg.Mode)),
			slog.String("device", cfg.DeviceID),
		)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errc:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("stopped", slog.String("error", err.Error()))
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		shutdownTimeout,
	)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn("http shutdown", slog.String("error", shutdownErr.Error()))
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openStore(
	ctx context.Context,
	cfg *config.Config,
) (store.KeyValue, func(), error) {
	switch cfg.Store {
	case config.StoreRedis:
		r, err := store.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	case config.StoreMemory:
		return store.NewMemory(), func() {}, nil
	default:
		f, err := store.NewFile(cfg.StoreDir)
		if err != nil {
			return nil, nil, err
		}
		return f, func() {}, nil
	}
}

func sourceFactory(
	cache *store.MoistureCache,
	interval time.Duration,
	log *slog.Logger,
) monitor.SourceFactory {
	newClient := func() (source.LiveClient, error) {
		client, err := mqtt.NewSessionClientFromEnv(mqtt.WithLogger(log))
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	return func(mode monitor.Mode, device string) (source.Source, error) {
		switch mode {
		case monitor.ModeLive:
			return source.NewLive(newClient, cache, source.WithLogger(log)), nil
		case monitor.ModeSim:
			return source.NewSimulated(
				device,
				source.WithInterval(interval),
				source.WithLogger(log),
			), nil
		default:
			return nil, fmt.Errorf("unknown mode %q", mode)
		}
	}
}
