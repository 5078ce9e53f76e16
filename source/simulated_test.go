// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package source

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/kopi-greenbeans/mcmonitor/internal/wallclock"
	"github.com/kopi-greenbeans/mcmonitor/telemetry"
	"github.com/stretchr/testify/require"
)

func TestMoisture(t *testing.T) {
	require.InDelta(t, 7.5+6.5-26.0/30, Moisture(26, 65), 1e-9)
	require.Equal(t, MinMoisture, Moisture(60, 0))
	require.Equal(t, MaxMoisture, Moisture(0, 100))
}

func TestSeed(t *testing.T) {
	now := time.UnixMilli(1_734_000_000_000)
	sim := NewSimulated("ESP32-GB-01", WithRand(rand.New(rand.NewPCG(1, 2))))

	seed := sim.Seed(now)
	require.Len(t, seed, SeedPoints)
	require.Equal(t, now.UnixMilli(), seed[len(seed)-1].Timestamp)
	require.Equal(t, now.Add(-60*time.Minute).UnixMilli(), seed[0].Timestamp)

	for i, r := range seed {
		if i > 0 {
			require.Equal(t, int64(60_000), r.Timestamp-seed[i-1].Timestamp)
		}
		require.GreaterOrEqual(t, r.Moisture, MinMoisture)
		require.LessOrEqual(t, r.Moisture, MaxMoisture)
		require.GreaterOrEqual(t, r.Temperature, 25.4)
		require.LessOrEqual(t, r.Temperature, 27.6)
		require.GreaterOrEqual(t, r.Humidity, 62.4)
		require.LessOrEqual(t, r.Humidity, 72.6)
		require.Equal(t, float64(int64(r.CO2)), r.CO2)
	}
}

func TestStep(t *testing.T) {
	sim := NewSimulated("ESP32-GB-01", WithRand(rand.New(rand.NewPCG(3, 4))))
	prev := telemetry.Reading{Temperature: 26.5, Humidity: 67, CO2: 575}
	now := time.UnixMilli(5_000)

	for range 100 {
		next := sim.Step(prev, now)
		require.Equal(t, int64(5_000), next.Timestamp)
		require.InDelta(t, prev.Temperature, next.Temperature, 0.11)
		require.InDelta(t, prev.Humidity, next.Humidity, 0.51)
		require.InDelta(t, prev.CO2, next.CO2, 5)
		require.Equal(t, round2(Moisture(next.Temperature, next.Humidity)), next.Moisture)
		prev = next
	}
}

func TestSimulatedRun(t *testing.T) {
	start := time.UnixMilli(1_734_000_000_000)
	clock := wallclock.NewFake(start)
	sim := NewSimulated(
		"ESP32-GB-01",
		WithRand(rand.New(rand.NewPCG(5, 6))),
		WithClock(clock),
	)

	ctx, cancel := context.WithCancel(context.Background())
	snaps := make(chan Snapshot, 4)
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx, func(s Snapshot) { snaps <- s }) }()

	first := <-snaps
	require.True(t, first.Online)
	require.Len(t, first.Window, 61)
	require.NotNil(t, first.Current)
	require.Equal(t, first.Window[60], *first.Current)
	for _, r := range first.Window {
		require.GreaterOrEqual(t, r.Moisture, 8.0)
		require.LessOrEqual(t, r.Moisture, 14.0)
	}

	require.Eventually(t, func() bool { return clock.Tickers() == 1 },
		time.Second, time.Millisecond)
	clock.Advance(DefaultInterval)

	second := <-snaps
	require.Len(t, second.Window, 62)
	require.Equal(t, start.Add(DefaultInterval).UnixMilli(), second.Current.Timestamp)
	require.Equal(t, second.Window[61], *second.Current)
	require.Equal(t, first.Window, second.Window[:61])

	cancel()
	require.NoError(t, <-done)
	require.Zero(t, clock.Tickers())
}

func TestSimulatedRunInterval(t *testing.T) {
	start := time.UnixMilli(1_734_000_000_000)
	clock := wallclock.NewFake(start)
	sim := NewSimulated(
		"ESP32-GB-02",
		WithRand(rand.New(rand.NewPCG(7, 8))),
		WithClock(clock),
		WithInterval(500*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	snaps := make(chan Snapshot, 4)
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx, func(s Snapshot) { snaps <- s }) }()

	<-snaps
	require.Eventually(t, func() bool { return clock.Tickers() == 1 },
		time.Second, time.Millisecond)

	clock.Advance(500 * time.Millisecond)
	next := <-snaps
	require.Len(t, next.Window, SeedPoints+1)
	require.Equal(t, start.Add(500*time.Millisecond).UnixMilli(), next.Current.Timestamp)

	cancel()
	require.NoError(t, <-done)
}
