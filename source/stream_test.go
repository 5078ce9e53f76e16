// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package source

import (
	"testing"

	"github.com/kopi-greenbeans/mcmonitor/telemetry"
	"github.com/stretchr/testify/require"
)

func TestMergeMoisture(t *testing.T) {
	s := NewStream()
	s.Push(telemetry.Reading{
		Timestamp:   100,
		Temperature: 26,
		Humidity:    65,
		CO2:         560,
		Moisture:    0,
	})

	s.MergeMoisture(11.3, 200)

	want := telemetry.Reading{
		Timestamp:   100,
		Temperature: 26,
		Humidity:    65,
		CO2:         560,
		Moisture:    11.3,
	}
	snap := s.Snapshot()
	require.Equal(t, &want, snap.Current)
	require.Equal(t, []telemetry.Reading{want}, snap.Window)
}

func TestMergeMoistureIdempotent(t *testing.T) {
	s := NewStream()
	s.Push(telemetry.Reading{Timestamp: 100, Temperature: 26})

	s.MergeMoisture(11.3, 200)
	first := s.Snapshot()
	s.MergeMoisture(11.3, 300)
	second := s.Snapshot()

	require.Equal(t, first, second)
	require.Len(t, second.Window, 1)
}

func TestMergeMoistureWithoutCurrent(t *testing.T) {
	s := NewStream()
	s.MergeMoisture(12.1, 500)

	snap := s.Snapshot()
	require.Equal(t, &telemetry.Reading{Timestamp: 500, Moisture: 12.1}, snap.Current)
	require.Empty(t, snap.Window)
}

func TestSnapshotIsCopy(t *testing.T) {
	s := NewStream()
	s.Push(telemetry.Reading{Moisture: 10})

	snap := s.Snapshot()
	snap.Current.Moisture = 99
	snap.Window[0].Moisture = 99

	cur, _ := s.Current()
	require.Equal(t, 10.0, cur.Moisture)
	last, _ := s.Window().Last()
	require.Equal(t, 10.0, last.Moisture)
}

func TestStreamOnline(t *testing.T) {
	s := NewStream()
	require.False(t, s.Snapshot().Online)

	require.True(t, s.SetOnline(true))
	require.False(t, s.SetOnline(true))
	require.True(t, s.Snapshot().Online)

	require.True(t, s.SetOnline(false))
	require.False(t, s.Snapshot().Online)
}
