// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package source

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/kopi-greenbeans/mcmonitor/internal/log"
	"github.com/kopi-greenbeans/mcmonitor/internal/options"
	"github.com/kopi-greenbeans/mcmonitor/internal/wallclock"
	"github.com/kopi-greenbeans/mcmonitor/telemetry"
)

// Simulation parameters.
const (
	DefaultInterval = 2 * time.Second

	// Seeded history: SeedPoints readings spaced SeedSpacing apart, ending
	// at activation time.
	SeedPoints  = 61
	SeedSpacing = time.Minute

	MinMoisture = 8.0
	MaxMoisture = 14.0
)

type (
	// Simulated produces plausible readings for a device without a broker:
	// an hour of seeded history followed by a random walk.
	Simulated struct {
		device   string
		rand     *rand.Rand
		clock    wallclock.WallClock
		interval time.Duration
		log      log.Logger
	}

	// SimulatedOption represents a single simulated source option.
	SimulatedOption interface{ simulated(*SimulatedOptions) }

	// SimulatedOptions are the resolved simulated source options.
	SimulatedOptions struct {
		Rand     *rand.Rand
		Clock    wallclock.WallClock
		Interval time.Duration
		Logger   *slog.Logger
	}
)

// NewSimulated creates a simulated source for a device.
func NewSimulated(device string, opt ...SimulatedOption) *Simulated {
	var opts SimulatedOptions
	opts.Apply(opt)

	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.Clock == nil {
		opts.Clock = wallclock.Instance
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}

	return &Simulated{
		device:   device,
		rand:     opts.Rand,
		clock:    opts.Clock,
		interval: opts.Interval,
		log: log.Wrap(opts.Logger).With(
			slog.String("source", "sim"),
			slog.String("device", device),
		),
	}
}

// Run seeds the history, emits it, and then emits one perturbed reading per
// tick until the context is cancelled.
func (s *Simulated) Run(ctx context.Context, emit Emitter) error {
	stream := NewStream()
	stream.SetOnline(true)
	for _, r := range s.Seed(s.clock.Now()) {
		stream.Push(r)
	}
	emit(stream.Snapshot())
	s.log.Info(ctx, "simulated source started", slog.Int("seeded", stream.Window().Len()))

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info(ctx, "simulated source stopped")
			return nil

		case now := <-ticker.C():
			prev, _ := stream.Current()
			next := s.Step(prev, now)
			stream.Push(next)
			s.log.Debug(ctx, "tick", slog.Any("reading", next))
			emit(stream.Snapshot())
		}
	}
}

// Seed generates SeedPoints readings ending at now, oldest first.
func (s *Simulated) Seed(now time.Time) []telemetry.Reading {
	baseT := s.uniform(26, 27)
	baseRH := s.uniform(65, 70)
	baseCO2 := s.uniform(550, 600)

	out := make([]telemetry.Reading, 0, SeedPoints)
	for i := SeedPoints - 1; i >= 0; i-- {
		x := float64(i)
		t := baseT + math.Sin(x/18)*0.5 + s.uniform(-0.1, 0.1)
		rh := baseRH + math.Sin(x/26)*2 + s.uniform(-0.6, 0.6)
		co2 := baseCO2 + math.Sin(x/14)*15 + s.uniform(-4, 4)

		out = append(out, reading(
			now.Add(-time.Duration(i)*SeedSpacing).UnixMilli(),
			t, rh, co2,
		))
	}
	return out
}

// Step perturbs the previous reading into the next one at now.
func (s *Simulated) Step(prev telemetry.Reading, now time.Time) telemetry.Reading {
	return reading(
		now.UnixMilli(),
		prev.Temperature+s.uniform(-0.1, 0.1),
		prev.Humidity+s.uniform(-0.5, 0.5),
		prev.CO2+math.Round(s.uniform(-5, 5)),
	)
}

// Moisture derives the moisture content from temperature and humidity,
// clamped to [MinMoisture, MaxMoisture].
func Moisture(t, rh float64) float64 {
	return min(max(7.5+rh/10-t/30, MinMoisture), MaxMoisture)
}

func reading(ts int64, t, rh, co2 float64) telemetry.Reading {
	t, rh = round2(t), round2(rh)
	return telemetry.Reading{
		Timestamp:   ts,
		Temperature: t,
		Humidity:    rh,
		CO2:         math.Round(co2),
		Moisture:    round2(Moisture(t, rh)),
	}
}

func (s *Simulated) uniform(lo, hi float64) float64 {
	return lo + s.rand.Float64()*(hi-lo)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Apply resolves the provided list of options.
func (o *SimulatedOptions) Apply(
	opts []SimulatedOption,
	rest ...SimulatedOption,
) {
	for opt := range options.Apply[SimulatedOption](opts, rest...) {
		opt.simulated(o)
	}
}

func (o *SimulatedOptions) simulated(opt *SimulatedOptions) {
	if o != nil {
		*opt = *o
	}
}
