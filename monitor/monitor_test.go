// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package monitor

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/kopi-greenbeans/mcmonitor/alarm"
	"github.com/kopi-greenbeans/mcmonitor/source"
	"github.com/kopi-greenbeans/mcmonitor/telemetry"
	"github.com/stretchr/testify/require"
)

// fakeSource emits whatever is sent on its channel.
type fakeSource struct {
	device string
	snaps  chan source.Snapshot
}

func (f *fakeSource) Run(ctx context.Context, emit source.Emitter) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-f.snaps:
			emit(s)
		}
	}
}

type fakeFactory struct {
	mu      sync.Mutex
	sources []*fakeSource
	created chan *fakeSource
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{created: make(chan *fakeSource, 8)}
}

func (f *fakeFactory) New(_ Mode, device string) (source.Source, error) {
	s := &fakeSource{device: device, snaps: make(chan source.Snapshot)}
	f.mu.Lock()
	f.sources = append(f.sources, s)
	f.mu.Unlock()
	f.created <- s
	return s, nil
}

func snapshot(rs ...telemetry.Reading) source.Snapshot {
	cur := rs[len(rs)-1]
	return source.Snapshot{Current: &cur, Window: rs}
}

func startMonitor(t *testing.T, mode Mode) (*Monitor, *fakeFactory, chan View) {
	factory := newFakeFactory()
	m, err := New(mode, DefaultDeviceID, alarm.DefaultThresholds(), factory.New, nil)
	require.NoError(t, err)

	views := make(chan View, 16)
	_, unsubscribe := m.Subscribe(func(v View) { views <- v })
	t.Cleanup(unsubscribe)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return m, factory, views
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
		panic("unreachable")
	}
}

func TestMonitorEvaluatesOnCurrentChange(t *testing.T) {
	m, factory, views := startMonitor(t, ModeLive)
	src := recv(t, factory.created)

	low := telemetry.Reading{Timestamp: 1, Moisture: 9}
	src.snaps <- snapshot(low)
	v := recv(t, views)
	require.Equal(t, alarm.StatusAlarm, v.Status)
	require.Len(t, v.Alarms, 1)
	require.Equal(t, alarm.Low, v.Alarms[0].Severity)

	// Same current again: no new record.
	src.snaps <- snapshot(low)
	v = recv(t, views)
	require.Len(t, v.Alarms, 1)

	ok := telemetry.Reading{Timestamp: 2, Moisture: 11}
	src.snaps <- snapshot(low, ok)
	v = recv(t, views)
	require.Equal(t, alarm.StatusOK, v.Status)
	require.Len(t, v.Alarms, 1)
	require.Len(t, v.Window, 2)

	require.Equal(t, v, m.Snapshot())
}

func TestMonitorThresholds(t *testing.T) {
	m, factory, views := startMonitor(t, ModeLive)
	src := recv(t, factory.created)

	src.snaps <- snapshot(telemetry.Reading{Timestamp: 1, Moisture: 13})
	v := recv(t, views)
	require.Equal(t, alarm.StatusAlarm, v.Status)

	hi := 14.0
	require.NoError(t, m.SetThresholds(nil, &hi))
	v = recv(t, views)
	require.Equal(t, alarm.Thresholds{Min: 10, Max: 14}, v.Thresholds)
	require.Equal(t, alarm.StatusOK, v.Status)
	// History is not rewritten.
	require.Len(t, v.Alarms, 1)

	nan := math.NaN()
	var terr *InvalidThresholdError
	require.ErrorAs(t, m.SetThresholds(&nan, nil), &terr)
	require.Equal(t, "min", terr.Name)
	require.Equal(t, alarm.Thresholds{Min: 10, Max: 14}, m.Thresholds())
}

func TestMonitorDeviceChangeRestartsSimulation(t *testing.T) {
	m, factory, views := startMonitor(t, ModeSim)
	first := recv(t, factory.created)
	require.Equal(t, DefaultDeviceID, first.device)

	require.NoError(t, m.SetDevice("ESP32-GB-02"))
	v := recv(t, views)
	require.Equal(t, "Chamber B", v.Device.Name)

	second := recv(t, factory.created)
	require.Equal(t, "ESP32-GB-02", second.device)

	second.snaps <- snapshot(telemetry.Reading{Timestamp: 5, Moisture: 11})
	v = recv(t, views)
	require.Equal(t, int64(5), v.Current.Timestamp)
}

func TestMonitorDeviceChangeKeepsLiveSource(t *testing.T) {
	m, factory, views := startMonitor(t, ModeLive)
	recv(t, factory.created)

	require.NoError(t, m.SetDevice("ESP32-GB-03"))
	recv(t, views)

	select {
	case <-factory.created:
		t.Fatal("live source restarted")
	case <-time.After(100 * time.Millisecond):
	}
	require.Equal(t, "QC Roastery", m.Device().Location)
}

func TestMonitorUnknownDevice(t *testing.T) {
	m, _, _ := startMonitor(t, ModeSim)

	var derr *UnknownDeviceError
	require.ErrorAs(t, m.SetDevice("ESP32-GB-99"), &derr)
	require.Equal(t, DefaultDeviceID, m.Device().ID)

	_, err := New(ModeSim, "nope", alarm.DefaultThresholds(), nil, nil)
	require.ErrorAs(t, err, &derr)
}

func TestMonitorNotifications(t *testing.T) {
	m, _, views := startMonitor(t, ModeSim)
	require.True(t, m.Notifications())

	m.SetNotifications(false)
	v := recv(t, views)
	require.False(t, v.Notifications)
	require.False(t, m.Notifications())
}

func TestMonitorEmptyView(t *testing.T) {
	factory := newFakeFactory()
	m, err := New(ModeLive, DefaultDeviceID, alarm.DefaultThresholds(), factory.New, nil)
	require.NoError(t, err)

	v := m.Snapshot()
	require.Nil(t, v.Current)
	require.NotNil(t, v.Window)
	require.Empty(t, v.Window)
	require.Equal(t, alarm.StatusOK, v.Status)
	require.Equal(t, ModeLive, v.Mode)
}

func TestDevices(t *testing.T) {
	ds := Devices()
	require.Len(t, ds, 3)
	require.Equal(t, Device{
		ID: "ESP32-GB-02", Name: "Chamber B", RSSI: -67, Location: "Gudang 2",
	}, ds[1])

	ds[0].Name = "changed"
	d, ok := LookupDevice("ESP32-GB-01")
	require.True(t, ok)
	require.Equal(t, "Chamber A", d.Name)
}

func TestMonitorOnlineFollowsSource(t *testing.T) {
	m, factory, views := startMonitor(t, ModeLive)
	src := recv(t, factory.created)
	require.False(t, m.Snapshot().Online)

	low := telemetry.Reading{Timestamp: 1, Moisture: 9}
	s := snapshot(low)
	s.Online = true
	src.snaps <- s
	v := recv(t, views)
	require.True(t, v.Online)
	require.Len(t, v.Alarms, 1)

	// A link change alone does not re-evaluate the unchanged reading.
	s.Online = false
	src.snaps <- s
	v = recv(t, views)
	require.False(t, v.Online)
	require.Len(t, v.Alarms, 1)
}
