// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/kopi-greenbeans/mcmonitor/internal/log"
	"github.com/kopi-greenbeans/mcmonitor/internal/wallclock"
)

// DefaultFixedInterval is the reconnect period used by the dashboard's live
// stream when none is configured.
const DefaultFixedInterval = 2 * time.Second

// FixedInterval implements a retry policy that waits the same interval
// between every attempt. There is no growth and, by default, no attempt cap.
type FixedInterval struct {
	// Interval between attempts. Defaults to DefaultFixedInterval.
	Interval time.Duration

	// MaxAttempts sets the maximum number of attempts. The default value of 0
	// indicates unlimited attempts.
	MaxAttempts uint64

	// Logger provides a logger which will be used to log retry attempts and
	// results.
	Logger *slog.Logger

	// Clock overrides the wall clock used to wait between attempts.
	Clock wallclock.WallClock
}

// Start initiates the retry executions.
func (f *FixedInterval) Start(
	ctx context.Context,
	name string,
	task Task,
) error {
	clock := f.Clock
	if clock == nil {
		clock = wallclock.Instance
	}

	interval := f.Interval
	if interval <= 0 {
		interval = DefaultFixedInterval
	}

	return run(
		ctx,
		&logger{log.Wrap(f.Logger)},
		name,
		task,
		func(attempt uint64, retry bool) time.Duration {
			if !retry || attempt == f.MaxAttempts {
				return 0
			}
			return interval
		},
		clock.After,
	)
}
