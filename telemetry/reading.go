// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package telemetry holds the sensor reading model and the rolling window of
// recent readings.
package telemetry

import (
	"log/slog"
	"time"
)

// Reading is one normalized sensor sample.
type Reading struct {
	// Milliseconds since the Unix epoch.
	Timestamp   int64   `json:"ts"`
	Temperature float64 `json:"T"`
	Humidity    float64 `json:"RH"`
	CO2         float64 `json:"CO2"`
	Moisture    float64 `json:"MC"`
}

// Time returns the reading timestamp as a time.Time.
func (r Reading) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// LogValue implements slog.LogValuer.
func (r Reading) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Time("ts", r.Time()),
		slog.Float64("t", r.Temperature),
		slog.Float64("rh", r.Humidity),
		slog.Float64("co2", r.CO2),
		slog.Float64("mc", r.Moisture),
	)
}
