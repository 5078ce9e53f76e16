// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/kopi-greenbeans/mcmonitor/internal/log"
)

type logger struct{ log.Logger }

func (l *logger) attempt(
	ctx context.Context,
	task string,
	attempt uint64,
) {
	l.Debug(ctx, "retry",
		slog.String("task", task),
		slog.Uint64("attempt", attempt),
	)
}

func (l *logger) wait(
	ctx context.Context,
	task string,
	attempt uint64,
	interval time.Duration,
	err error,
) {
	l.Warn(ctx, "retry scheduled",
		slog.String("task", task),
		slog.Uint64("attempt", attempt),
		slog.Duration("interval", interval),
		slog.String("error", err.Error()),
	)
}

func (l *logger) complete(
	ctx context.Context,
	task string,
	attempt uint64,
	err error,
) {
	if err != nil {
		l.Info(ctx, "retry failed",
			slog.String("task", task),
			slog.Uint64("attempt", attempt),
			slog.String("error", err.Error()),
		)
	} else {
		l.Info(ctx, "retry succeeded",
			slog.String("task", task),
			slog.Uint64("attempt", attempt),
		)
	}
}

// run is the retry loop shared by the policies; next returns the interval to
// wait before the following attempt, or zero to stop.
func run(
	ctx context.Context,
	l *logger,
	name string,
	task Task,
	next func(attempt uint64, retry bool) time.Duration,
	after func(time.Duration) <-chan time.Time,
) error {
	for attempt := uint64(1); ; attempt++ {
		l.attempt(ctx, name, attempt)
		retry, err := task(ctx)
		if err == nil {
			l.complete(ctx, name, attempt, nil)
			return nil
		}

		if ctx.Err() != nil {
			l.complete(ctx, name, attempt, ctx.Err())
			return ctx.Err()
		}

		interval := next(attempt, retry)
		if interval == 0 {
			l.complete(ctx, name, attempt, err)
			return err
		}
		l.wait(ctx, name, attempt, interval, err)

		select {
		case <-after(interval):
		case <-ctx.Done():
			l.complete(ctx, name, attempt, ctx.Err())
			return ctx.Err()
		}
	}
}
