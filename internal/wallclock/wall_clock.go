// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package wallclock

import (
	"time"
)

type (
	// WallClock abstracts the subset of package time used by the monitor, so
	// tests can control apparent time.
	WallClock interface {
		After(d time.Duration) <-chan time.Time
		NewTicker(d time.Duration) Ticker
		Now() time.Time
	}

	// Ticker abstracts the functionality of time.Ticker.
	Ticker interface {
		C() <-chan time.Time
		Stop()
	}

	wallClock struct{}

	ticker struct {
		*time.Ticker
	}
)

// After indirects time.After.
func (wallClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// NewTicker indirects time.NewTicker.
func (wallClock) NewTicker(d time.Duration) Ticker {
	return ticker{Ticker: time.NewTicker(d)}
}

// Now indirects time.Now.
func (wallClock) Now() time.Time {
	return time.Now()
}

// C indirects time.Ticker.C.
func (t ticker) C() <-chan time.Time {
	return t.Ticker.C
}

// Instance is a WallClock singleton used for indirect time-based references to
// package time. Components that accept a clock option default to it.
var Instance WallClock = wallClock{}
