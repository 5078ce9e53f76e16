// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package source

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kopi-greenbeans/mcmonitor/internal/mqtttest"
	"github.com/kopi-greenbeans/mcmonitor/mqtt"
	"github.com/kopi-greenbeans/mcmonitor/mqtt/retry"
	"github.com/kopi-greenbeans/mcmonitor/store"
	"github.com/kopi-greenbeans/mcmonitor/telemetry"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/require"
)

func sensorPayload(t, rh, co2 float64) telemetry.SensorPayload {
	return telemetry.SensorPayload{
		TempC:  telemetry.NewNumber(t),
		RH:     telemetry.NewNumber(rh),
		CO2ppm: telemetry.NewNumber(co2),
	}
}

func predictionPayload(mc float64) telemetry.PredictionPayload {
	return telemetry.PredictionPayload{MCPred: telemetry.NewNumber(mc)}
}

func newTestLive(t *testing.T, kv store.KeyValue) *Live {
	cache := store.NewMoistureCache(context.Background(), kv, nil)
	return NewLive(nil, cache)
}

func TestLiveFreshSessionMoistureZero(t *testing.T) {
	l := newTestLive(t, store.NewMemory())
	s := NewStream()

	l.applySensor(s, sensor{payload: sensorPayload(26.4, 64.7, 560), at: 100})

	cur, ok := s.Current()
	require.True(t, ok)
	require.Equal(t, telemetry.Reading{
		Timestamp:   100,
		Temperature: 26.4,
		Humidity:    64.7,
		CO2:         560,
		Moisture:    0,
	}, cur)
	require.Equal(t, 1, s.Window().Len())
}

func TestLiveMoistureFromCache(t *testing.T) {
	kv := store.NewMemory()
	require.NoError(t, kv.Set(context.Background(), store.LastMoistureKey, "11.8"))

	l := newTestLive(t, kv)
	s := NewStream()
	l.applySensor(s, sensor{payload: sensorPayload(26, 65, 560), at: 100})

	cur, _ := s.Current()
	require.Equal(t, 11.8, cur.Moisture)
}

func TestLiveMoistureFromPrevious(t *testing.T) {
	l := newTestLive(t, store.NewMemory())
	s := NewStream()
	s.Push(telemetry.Reading{Timestamp: 50, Moisture: 10.7})

	l.applySensor(s, sensor{payload: sensorPayload(26, 65, 560), at: 100})

	cur, _ := s.Current()
	require.Equal(t, 10.7, cur.Moisture)
	require.Equal(t, 2, s.Window().Len())
}

func TestLivePrediction(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	l := newTestLive(t, kv)
	s := NewStream()

	l.applySensor(s, sensor{payload: sensorPayload(26, 65, 560), at: 100})
	require.True(t, l.applyPrediction(ctx, s, prediction{
		payload: predictionPayload(11.3),
		at:      200,
	}))

	cur, _ := s.Current()
	require.Equal(t, 11.3, cur.Moisture)
	require.Equal(t, int64(100), cur.Timestamp)

	raw, ok, err := kv.Get(ctx, store.LastMoistureKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "11.3", raw)

	// Later telemetry picks up the cached prediction.
	l.applySensor(s, sensor{payload: sensorPayload(26, 65, 560), at: 300})
	cur, _ = s.Current()
	require.Equal(t, 11.3, cur.Moisture)
}

func TestLivePredictionInvalidIgnored(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	l := newTestLive(t, kv)
	s := NewStream()

	require.False(t, l.applyPrediction(ctx, s, prediction{at: 100}))
	_, ok := s.Current()
	require.False(t, ok)

	_, ok, err := kv.Get(ctx, store.LastMoistureKey)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLiveWithMochi(t *testing.T) {
	broker := mqtttest.StartBroker(t, 18841)

	factory := func() (LiveClient, error) {
		return mqtt.NewSessionClient(
			mqtt.WebSocketConnection(broker.URL()),
			mqtt.WithConnectionRetry(&retry.FixedInterval{
				Interval: 50 * time.Millisecond,
			}),
		), nil
	}
	cache := store.NewMoistureCache(context.Background(), store.NewMemory(), nil)
	live := NewLive(factory, cache)

	ctx, cancel := context.WithCancel(context.Background())
	snaps := make(chan Snapshot, 16)
	done := make(chan error, 1)
	go func() {
		done <- live.Run(ctx, func(s Snapshot) { snaps <- s })
	}()

	publisher := mqtt.NewSessionClient(mqtt.WebSocketConnection(broker.URL()))
	require.NoError(t, publisher.Start())
	t.Cleanup(func() { _ = publisher.Stop() })

	publish := func(topic string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return publisher.Publish(ctx, topic, b)
	}

	// The live client may not have subscribed yet; keep publishing until the
	// first reading arrives. Malformed messages in between are dropped.
	var snap Snapshot
	require.Eventually(t, func() bool {
		_ = publisher.Publish(
			ctx, telemetry.TelemetryTopic, []byte(`{"temp_c": "oops"`),
		)
		_ = publish(telemetry.TelemetryTopic, map[string]any{
			"temp_c": 26.4, "rh": "64.7", "co2_ppm": 560,
		})
		select {
		case snap = <-snaps:
			return true
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 10*time.Second, 10*time.Millisecond)

	require.NotNil(t, snap.Current)
	require.Equal(t, 26.4, snap.Current.Temperature)
	require.Equal(t, 64.7, snap.Current.Humidity)
	require.Zero(t, snap.Current.Moisture)

	// Drain any duplicate telemetry from the retry loop.
	for len(snaps) > 0 {
		<-snaps
	}

	require.NoError(t, publish(
		telemetry.PredictionTopic,
		map[string]any{"mc_pred": 11.3},
	))
	require.Eventually(t, func() bool {
		select {
		case snap = <-snaps:
			return snap.Current != nil && snap.Current.Moisture == 11.3
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	last := snap.Window[len(snap.Window)-1]
	require.Equal(t, 11.3, last.Moisture)
	require.True(t, snap.Online)

	mc, ok := cache.Get()
	require.True(t, ok)
	require.Equal(t, 11.3, mc)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("live source did not stop")
	}
}

func TestLiveApplyInArrivalOrder(t *testing.T) {
	ctx := context.Background()
	l := newTestLive(t, store.NewMemory())
	s := NewStream()

	online := true
	for _, e := range []event{
		{sensor: &sensor{payload: sensorPayload(26, 65, 560), at: 100}},
		{prediction: &prediction{payload: predictionPayload(10.9), at: 150}},
		{sensor: &sensor{payload: sensorPayload(26.1, 65.2, 561), at: 200}},
		{online: &online},
	} {
		require.True(t, l.apply(ctx, s, e))
	}
	require.False(t, l.apply(ctx, s, event{online: &online}))

	snap := s.Snapshot()
	require.True(t, snap.Online)
	require.Len(t, snap.Window, 2)
	require.Equal(t, 10.9, snap.Window[0].Moisture)
	require.Equal(t, 10.9, snap.Window[1].Moisture)
	require.Equal(t, int64(200), snap.Current.Timestamp)
}

// stallUnsubscribe never lets an UNSUBSCRIBE complete until released.
type stallUnsubscribe struct {
	mochi.HookBase
	subscribed chan struct{}
	release    chan struct{}
}

func (h *stallUnsubscribe) ID() string {
	return "stall-unsubscribe"
}

func (h *stallUnsubscribe) Provides(b byte) bool {
	return b == mochi.OnSubscribed || b == mochi.OnUnsubscribe
}

func (h *stallUnsubscribe) OnSubscribed(*mochi.Client, packets.Packet, []byte) {
	select {
	case h.subscribed <- struct{}{}:
	default:
	}
}

func (h *stallUnsubscribe) OnUnsubscribe(
	_ *mochi.Client,
	pk packets.Packet,
) packets.Packet {
	<-h.release
	return pk
}

func TestLiveStopsWithoutWaitingOnBroker(t *testing.T) {
	hook := &stallUnsubscribe{
		subscribed: make(chan struct{}, 8),
		release:    make(chan struct{}),
	}
	broker := mqtttest.StartBroker(t, 18842, mqtttest.WithHook(hook))
	t.Cleanup(func() { close(hook.release) })

	factory := func() (LiveClient, error) {
		return mqtt.NewSessionClient(
			mqtt.WebSocketConnection(broker.URL()),
			mqtt.WithConnectionRetry(&retry.FixedInterval{
				Interval: 50 * time.Millisecond,
			}),
		), nil
	}
	cache := store.NewMoistureCache(context.Background(), store.NewMemory(), nil)
	live := NewLive(factory, cache)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- live.Run(ctx, func(Snapshot) {}) }()

	for range 2 {
		select {
		case <-hook.subscribed:
		case <-time.After(10 * time.Second):
			t.Fatal("live source did not subscribe")
		}
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("live source waited on the broker during teardown")
	}
}
