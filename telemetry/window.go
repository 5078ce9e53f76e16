// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

import "errors"

// WindowCapacity is the number of readings retained by a Window.
const WindowCapacity = 600

// ErrEmptyWindow is returned by AmendLast when there is nothing to amend.
var ErrEmptyWindow = errors.New("window is empty")

// Window is a bounded, time-ordered sequence of readings. When full, appending
// evicts the oldest reading. It is not safe for concurrent use; each source
// owns its window.
type Window struct {
	buf   []Reading
	start int
	size  int
}

// NewWindow creates an empty window with the given capacity. A non-positive
// capacity selects WindowCapacity.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = WindowCapacity
	}
	return &Window{buf: make([]Reading, capacity)}
}

// Append adds a reading at the newest end.
func (w *Window) Append(r Reading) {
	if w.size < len(w.buf) {
		w.buf[(w.start+w.size)%len(w.buf)] = r
		w.size++
		return
	}
	w.buf[w.start] = r
	w.start = (w.start + 1) % len(w.buf)
}

// AmendLast applies fn to the newest reading in place.
func (w *Window) AmendLast(fn func(*Reading)) error {
	if w.size == 0 {
		return ErrEmptyWindow
	}
	fn(&w.buf[w.index(w.size-1)])
	return nil
}

// Last returns the newest reading.
func (w *Window) Last() (Reading, bool) {
	if w.size == 0 {
		return Reading{}, false
	}
	return w.buf[w.index(w.size-1)], true
}

// Len returns the number of readings held.
func (w *Window) Len() int { return w.size }

// Cap returns the maximum number of readings held before the oldest is
// evicted.
func (w *Window) Cap() int { return len(w.buf) }

// Readings returns a copy of the window, oldest first.
func (w *Window) Readings() []Reading {
	out := make([]Reading, w.size)
	for i := range w.size {
		out[i] = w.buf[w.index(i)]
	}
	return out
}

func (w *Window) index(i int) int {
	return (w.start + i) % len(w.buf)
}
