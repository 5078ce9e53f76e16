// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package wallclock

import (
	"sync"
	"time"
)

type (
	// Fake is a manually advanced WallClock for tests.
	Fake struct {
		mu      sync.Mutex
		now     time.Time
		timers  []*fakeTimer
		tickers []*fakeTicker
	}

	fakeTimer struct {
		at time.Time
		c  chan time.Time
	}

	fakeTicker struct {
		clock   *Fake
		period  time.Duration
		next    time.Time
		c       chan time.Time
		stopped bool
	}
)

// NewFake returns a fake clock reading the given time.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTimer{at: f.now.Add(d), c: make(chan time.Time, 1)}
	if d <= 0 {
		t.c <- f.now
		return t.c
	}
	f.timers = append(f.timers, t)
	return t.c
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTicker{
		clock:  f,
		period: d,
		next:   f.now.Add(d),
		c:      make(chan time.Time, 1),
	}
	f.tickers = append(f.tickers, t)
	return t
}

// Tickers returns the number of running tickers, letting tests wait until a
// component has started its timer.
func (f *Fake) Tickers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tickers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves the clock forward, firing due timers and tickers. Like
// time.Ticker, a ticker whose channel is full drops the tick.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = f.now.Add(d)

	pending := f.timers[:0]
	for _, t := range f.timers {
		if t.at.After(f.now) {
			pending = append(pending, t)
			continue
		}
		t.c <- f.now
	}
	f.timers = pending

	for _, t := range f.tickers {
		if t.stopped {
			continue
		}
		for !t.next.After(f.now) {
			select {
			case t.c <- f.now:
			default:
			}
			t.next = t.next.Add(t.period)
		}
	}
}

func (t *fakeTicker) C() <-chan time.Time {
	return t.c
}

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}
