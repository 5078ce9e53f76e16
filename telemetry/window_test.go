// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWindowAppendOrder(t *testing.T) {
	w := NewWindow(0)
	require.Equal(t, WindowCapacity, w.Cap())
	require.Zero(t, w.Len())

	_, ok := w.Last()
	require.False(t, ok)

	for i := range 3 {
		w.Append(Reading{Timestamp: int64(i)})
	}
	require.Equal(t, 3, w.Len())
	require.Equal(t, []Reading{{Timestamp: 0}, {Timestamp: 1}, {Timestamp: 2}}, w.Readings())

	last, ok := w.Last()
	require.True(t, ok)
	require.Equal(t, int64(2), last.Timestamp)
}

func TestWindowEvictsOldest(t *testing.T) {
	w := NewWindow(0)
	for i := range WindowCapacity + 25 {
		w.Append(Reading{Timestamp: int64(i)})
		require.LessOrEqual(t, w.Len(), WindowCapacity)
	}

	rs := w.Readings()
	require.Len(t, rs, WindowCapacity)
	require.Equal(t, int64(25), rs[0].Timestamp)
	require.Equal(t, int64(WindowCapacity+24), rs[len(rs)-1].Timestamp)
	for i := 1; i < len(rs); i++ {
		require.Equal(t, rs[i-1].Timestamp+1, rs[i].Timestamp)
	}
}

func TestWindowAmendLast(t *testing.T) {
	w := NewWindow(3)
	require.ErrorIs(t, w.AmendLast(func(*Reading) {}), ErrEmptyWindow)

	for i := range 5 {
		w.Append(Reading{Timestamp: int64(i)})
	}
	require.NoError(t, w.AmendLast(func(r *Reading) { r.Moisture = 11.3 }))

	rs := w.Readings()
	require.Equal(t, []Reading{
		{Timestamp: 2},
		{Timestamp: 3},
		{Timestamp: 4, Moisture: 11.3},
	}, rs)
	require.Equal(t, 3, w.Len())
}

func TestWindowReadingsIsCopy(t *testing.T) {
	w := NewWindow(2)
	w.Append(Reading{Moisture: 1})

	rs := w.Readings()
	rs[0].Moisture = 99

	last, _ := w.Last()
	require.Equal(t, 1.0, last.Moisture)
}
