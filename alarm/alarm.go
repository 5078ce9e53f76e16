// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package alarm evaluates moisture readings against the configured
// thresholds and keeps a bounded history of out-of-range events.
package alarm

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/kopi-greenbeans/mcmonitor/internal/log"
	"github.com/kopi-greenbeans/mcmonitor/telemetry"
)

// HistoryCapacity is the number of alarm records retained.
const HistoryCapacity = 50

// Default moisture thresholds in percent.
const (
	DefaultMin = 10.0
	DefaultMax = 12.5
)

// Badge texts for the live status.
const (
	StatusOK    = "Aman"
	StatusAlarm = "Alarm"
)

type (
	// Severity of an alarm record.
	Severity string

	// Record is an immutable alarm history entry.
	Record struct {
		Timestamp int64    `json:"ts"`
		Severity  Severity `json:"level"`
		Message   string   `json:"message"`
	}

	// Thresholds bound the acceptable moisture range, inclusive.
	Thresholds struct {
		Min float64 `json:"min"`
		Max float64 `json:"max"`
	}

	// Evaluator compares each new current reading with the thresholds and
	// prepends a Record when it falls outside them. It never records
	// recovery. Safe for concurrent use.
	Evaluator struct {
		mu         sync.RWMutex
		thresholds Thresholds
		history    []Record
		log        log.Logger
	}
)

const (
	Low  Severity = "LOW"
	High Severity = "HIGH"
)

// DefaultThresholds returns [DefaultMin, DefaultMax].
func DefaultThresholds() Thresholds {
	return Thresholds{Min: DefaultMin, Max: DefaultMax}
}

// NewEvaluator creates an evaluator with the given thresholds and an empty
// history.
func NewEvaluator(thresholds Thresholds, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
		history:    make([]Record, 0, HistoryCapacity),
		log:        log.Wrap(logger),
	}
}

// Classify returns the severity of a moisture value against the thresholds,
// or false when it is in range. Comparisons against NaN never trigger.
func (t Thresholds) Classify(mc float64) (Severity, bool) {
	switch {
	case mc < t.Min:
		return Low, true
	case mc > t.Max:
		return High, true
	default:
		return "", false
	}
}

// Status computes the live badge for the current reading independently of
// the history.
func Status(current *telemetry.Reading, t Thresholds) string {
	if current == nil {
		return StatusOK
	}
	if _, out := t.Classify(current.Moisture); out {
		return StatusAlarm
	}
	return StatusOK
}

// Evaluate checks a new current reading and records an alarm if it is out of
// range. It reports the record and whether one was added.
func (e *Evaluator) Evaluate(
	ctx context.Context,
	r telemetry.Reading,
) (Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	severity, out := e.thresholds.Classify(r.Moisture)
	if !out {
		return Record{}, false
	}

	rec := Record{
		Timestamp: r.Timestamp,
		Severity:  severity,
		Message: fmt.Sprintf(
			"MC %s%% di luar rentang %s–%s%%",
			formatPercent(r.Moisture),
			formatPercent(e.thresholds.Min),
			formatPercent(e.thresholds.Max),
		),
	}

	// Prepend, evicting the oldest beyond capacity.
	n := min(len(e.history)+1, HistoryCapacity)
	history := make([]Record, n, HistoryCapacity)
	history[0] = rec
	copy(history[1:], e.history)
	e.history = history

	e.log.Info(ctx, "moisture out of range",
		slog.String("severity", string(severity)),
		slog.Float64("mc", r.Moisture),
	)
	return rec, true
}

// Thresholds returns the current thresholds.
func (e *Evaluator) Thresholds() Thresholds {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.thresholds
}

// SetMin updates the lower threshold. Existing records are unaffected.
func (e *Evaluator) SetMin(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.thresholds.Min = v
}

// SetMax updates the upper threshold. Existing records are unaffected.
func (e *Evaluator) SetMax(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.thresholds.Max = v
}

// History returns a copy of the records, most recent first.
func (e *Evaluator) History() []Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Record, len(e.history))
	copy(out, e.history)
	return out
}

// formatPercent renders the shortest decimal form, as a browser would print
// a number: 12.5, 10, 9.99.
func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
