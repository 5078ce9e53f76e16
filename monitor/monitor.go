// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package monitor runs the single active source, evaluates alarms on every
// new current reading and fans the resulting views out to listeners.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/kopi-greenbeans/mcmonitor/alarm"
	"github.com/kopi-greenbeans/mcmonitor/internal/log"
	"github.com/kopi-greenbeans/mcmonitor/source"
	"github.com/kopi-greenbeans/mcmonitor/telemetry"
)

// Mode selects the active source.
type Mode string

const (
	ModeLive Mode = "live"
	ModeSim  Mode = "sim"
)

type (
	// SourceFactory builds the source to activate for a mode and device.
	SourceFactory func(mode Mode, device string) (source.Source, error)

	// View is everything a renderer needs at one moment.
	View struct {
		Mode          Mode                `json:"mode"`
		Device        Device              `json:"device"`
		Current       *telemetry.Reading  `json:"current"`
		Window        []telemetry.Reading `json:"window"`
		Status        string              `json:"status"`
		Thresholds    alarm.Thresholds    `json:"thresholds"`
		Alarms        []alarm.Record      `json:"alarms"`
		Notifications bool                `json:"notifications"`
		Online        bool                `json:"online"`
	}

	// Listener receives a view after every change.
	Listener func(View)

	// Monitor owns exactly one active source at a time.
	Monitor struct {
		mode      Mode
		newSource SourceFactory
		evaluator *alarm.Evaluator
		log       log.Logger

		mu         sync.RWMutex
		device     Device
		snapshot   source.Snapshot
		notify     bool
		generation uint64

		restart chan struct{}

		listenersMu sync.Mutex
		listeners   map[string]Listener

		// Serializes updates with their delivery so views arrive in order.
		updateMu sync.Mutex
	}

	// UnknownDeviceError is returned when selecting a device that does not
	// exist.
	UnknownDeviceError struct {
		ID string
	}

	// InvalidThresholdError is returned for a non-finite threshold.
	InvalidThresholdError struct {
		Name  string
		Value float64
	}
)

func (e *UnknownDeviceError) Error() string {
	return fmt.Sprintf("unknown device %q", e.ID)
}

func (e *InvalidThresholdError) Error() string {
	return fmt.Sprintf("threshold %s must be a finite number, got %v", e.Name, e.Value)
}

// New creates a monitor. Notifications start enabled.
func New(
	mode Mode,
	deviceID string,
	thresholds alarm.Thresholds,
	newSource SourceFactory,
	logger *slog.Logger,
) (*Monitor, error) {
	device, ok := LookupDevice(deviceID)
	if !ok {
		return nil, &UnknownDeviceError{deviceID}
	}
	if mode != ModeLive && mode != ModeSim {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}

	return &Monitor{
		mode:      mode,
		newSource: newSource,
		evaluator: alarm.NewEvaluator(thresholds, logger),
		log:       log.Wrap(logger).With(slog.String("mode", string(mode))),
		device:    device,
		notify:    true,
		restart:   make(chan struct{}, 1),
		listeners: make(map[string]Listener),
	}, nil
}

// Run activates the source and keeps it running until the context is
// cancelled. In simulation mode, selecting another device restarts the
// source. A source that fails is logged and not restarted until the next
// device change; the last view stays in place.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		m.mu.Lock()
		m.generation++
		gen, device := m.generation, m.device
		m.mu.Unlock()

		src, err := m.newSource(m.mode, device.ID)
		if err != nil {
			return err
		}

		srcCtx, cancel := context.WithCancel(ctx)
		exited := make(chan struct{})
		go func() {
			defer close(exited)
			err := src.Run(srcCtx, func(s source.Snapshot) {
				m.apply(srcCtx, gen, s)
			})
			if err != nil && srcCtx.Err() == nil {
				m.log.Err(ctx, err, slog.String("device", device.ID))
			}
		}()

		m.log.Info(ctx, "source activated", slog.String("device", device.ID))

		select {
		case <-ctx.Done():
			cancel()
			<-exited
			return nil

		case <-m.restart:
			cancel()
			<-exited
		}
	}
}

// apply records a snapshot from the active generation and evaluates alarms
// when the current reading changed.
func (m *Monitor) apply(ctx context.Context, gen uint64, s source.Snapshot) {
	m.update(func() bool {
		if gen != m.generation {
			return false
		}

		prev := m.snapshot.Current
		m.snapshot = s
		if s.Current != nil && (prev == nil || *prev != *s.Current) {
			m.evaluator.Evaluate(ctx, *s.Current)
		}
		return true
	})
}

// Snapshot returns the current view.
func (m *Monitor) Snapshot() View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.viewLocked()
}

func (m *Monitor) viewLocked() View {
	v := View{
		Mode:          m.mode,
		Device:        m.device,
		Window:        append([]telemetry.Reading(nil), m.snapshot.Window...),
		Thresholds:    m.evaluator.Thresholds(),
		Alarms:        m.evaluator.History(),
		Notifications: m.notify,
		Online:        m.snapshot.Online,
	}
	if v.Window == nil {
		v.Window = []telemetry.Reading{}
	}
	if m.snapshot.Current != nil {
		c := *m.snapshot.Current
		v.Current = &c
	}
	v.Status = alarm.Status(v.Current, v.Thresholds)
	return v
}

// Mode returns the active source mode.
func (m *Monitor) Mode() Mode {
	return m.mode
}

// Device returns the selected device.
func (m *Monitor) Device() Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.device
}

// SetDevice selects a device. In simulation mode the source restarts with a
// fresh history for it; the live subscription is unaffected.
func (m *Monitor) SetDevice(id string) error {
	device, ok := LookupDevice(id)
	if !ok {
		return &UnknownDeviceError{id}
	}

	var changed bool
	m.update(func() bool {
		changed = m.device.ID != id
		m.device = device
		return true
	})

	if changed && m.mode == ModeSim {
		select {
		case m.restart <- struct{}{}:
		default:
		}
	}
	return nil
}

// Thresholds returns the alarm thresholds.
func (m *Monitor) Thresholds() alarm.Thresholds {
	return m.evaluator.Thresholds()
}

// SetThresholds updates either or both thresholds. Existing alarm records
// are not re-evaluated.
func (m *Monitor) SetThresholds(lo, hi *float64) error {
	if lo != nil && (math.IsNaN(*lo) || math.IsInf(*lo, 0)) {
		return &InvalidThresholdError{"min", *lo}
	}
	if hi != nil && (math.IsNaN(*hi) || math.IsInf(*hi, 0)) {
		return &InvalidThresholdError{"max", *hi}
	}

	m.update(func() bool {
		if lo != nil {
			m.evaluator.SetMin(*lo)
		}
		if hi != nil {
			m.evaluator.SetMax(*hi)
		}
		return true
	})
	return nil
}

// Alarms returns the alarm history, most recent first.
func (m *Monitor) Alarms() []alarm.Record {
	return m.evaluator.History()
}

// Notifications reports whether notifications are enabled.
func (m *Monitor) Notifications() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.notify
}

// SetNotifications toggles notifications. It has no effect beyond the flag.
func (m *Monitor) SetNotifications(on bool) {
	m.update(func() bool {
		m.notify = on
		return true
	})
}

// Subscribe registers a listener and returns its ID and a function removing
// it.
func (m *Monitor) Subscribe(l Listener) (string, func()) {
	id := uuid.NewString()

	m.listenersMu.Lock()
	m.listeners[id] = l
	m.listenersMu.Unlock()

	return id, func() {
		m.listenersMu.Lock()
		delete(m.listeners, id)
		m.listenersMu.Unlock()
	}
}

// update applies fn under the state lock and, if it reports a change,
// delivers the resulting view. Updates and their deliveries are serialized,
// so listeners see views in order; a listener must not call back into the
// monitor's setters.
func (m *Monitor) update(fn func() bool) {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	m.mu.Lock()
	changed := fn()
	view := m.viewLocked()
	m.mu.Unlock()

	if !changed {
		return
	}

	m.listenersMu.Lock()
	ls := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		ls = append(ls, l)
	}
	m.listenersMu.Unlock()

	for _, l := range ls {
		l(view)
	}
}
