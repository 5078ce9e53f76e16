// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package source

import (
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/kopi-greenbeans/mcmonitor/internal/wallclock"
)

type (
	withClock  struct{ wallclock.WallClock }
	withLogger struct{ *slog.Logger }
	withRand   struct{ *rand.Rand }

	// WithInterval sets the simulation tick interval.
	WithInterval time.Duration

	// Option applies to both sources.
	Option interface {
		LiveOption
		SimulatedOption
	}
)

// WithClock overrides the wall clock used for timestamps and ticks.
func WithClock(clock wallclock.WallClock) Option {
	return withClock{clock}
}

// WithRand sets the random source of the simulation.
func WithRand(r *rand.Rand) SimulatedOption {
	return withRand{r}
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) Option {
	return withLogger{logger}
}

func (o withClock) live(opt *LiveOptions) {
	opt.Clock = o.WallClock
}

func (o withClock) simulated(opt *SimulatedOptions) {
	opt.Clock = o.WallClock
}

func (o withLogger) live(opt *LiveOptions) {
	opt.Logger = o.Logger
}

func (o withLogger) simulated(opt *SimulatedOptions) {
	opt.Logger = o.Logger
}

func (o withRand) simulated(opt *SimulatedOptions) {
	opt.Rand = o.Rand
}

func (o WithInterval) simulated(opt *SimulatedOptions) {
	opt.Interval = time.Duration(o)
}
