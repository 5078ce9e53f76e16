// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package source produces the current reading and rolling window, either
// from the live MQTT stream or from a local simulation.
package source

import (
	"context"

	"github.com/kopi-greenbeans/mcmonitor/telemetry"
)

type (
	// Snapshot is the observable output of a source: the current reading
	// (nil until the first one arrives), a copy of the window, oldest first,
	// and whether the source is currently receiving data.
	Snapshot struct {
		Current *telemetry.Reading  `json:"current"`
		Window  []telemetry.Reading `json:"window"`
		Online  bool                `json:"online"`
	}

	// Emitter receives every snapshot a source produces. It is called from
	// the source's consumer goroutine, one snapshot at a time.
	Emitter func(Snapshot)

	// Source runs until the context is cancelled, emitting snapshots. It
	// releases everything it acquired before returning.
	Source interface {
		Run(ctx context.Context, emit Emitter) error
	}

	// Stream is the reading state owned by a single source activation. It is
	// not safe for concurrent use.
	Stream struct {
		current *telemetry.Reading
		window  *telemetry.Window
		online  bool
	}
)

// NewStream creates an empty stream with a window of telemetry.WindowCapacity.
func NewStream() *Stream {
	return &Stream{window: telemetry.NewWindow(telemetry.WindowCapacity)}
}

// Current returns the current reading.
func (s *Stream) Current() (telemetry.Reading, bool) {
	if s.current == nil {
		return telemetry.Reading{}, false
	}
	return *s.current, true
}

// Push appends a reading and makes it current.
func (s *Stream) Push(r telemetry.Reading) {
	s.window.Append(r)
	s.current = &r
}

// MergeMoisture patches the moisture of the current reading, synthesizing a
// reading at ts when there is none, and amends the newest window entry. An
// empty window is left empty.
func (s *Stream) MergeMoisture(mc float64, ts int64) {
	if s.current == nil {
		s.current = &telemetry.Reading{Timestamp: ts}
	}
	s.current.Moisture = mc

	// ErrEmptyWindow is expected before the first telemetry.
	_ = s.window.AmendLast(func(r *telemetry.Reading) { r.Moisture = mc })
}

// SetOnline records the link state and reports whether it changed.
func (s *Stream) SetOnline(online bool) bool {
	changed := s.online != online
	s.online = online
	return changed
}

// Window returns the underlying window.
func (s *Stream) Window() *telemetry.Window {
	return s.window
}

// Snapshot copies the stream state.
func (s *Stream) Snapshot() Snapshot {
	snap := Snapshot{Window: s.window.Readings(), Online: s.online}
	if s.current != nil {
		c := *s.current
		snap.Current = &c
	}
	return snap
}
