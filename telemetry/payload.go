// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MQTT topics carrying device data.
const (
	TelemetryTopic  = "kopi/greenbeans/data"
	PredictionTopic = "kopi/greenbeans/prediction"
)

type (
	// Number is a JSON value coerced to a finite float64. It accepts a JSON
	// number or a string holding one; anything else decodes without error but
	// leaves Valid false.
	Number struct {
		Value float64
		Valid bool
	}

	// SensorPayload is the telemetry topic message.
	SensorPayload struct {
		TempC  Number `json:"temp_c"`
		RH     Number `json:"rh"`
		CO2ppm Number `json:"co2_ppm"`
	}

	// PredictionPayload is the prediction topic message.
	PredictionPayload struct {
		MCPred Number `json:"mc_pred"`
	}

	// FieldError reports a missing or non-numeric telemetry field.
	FieldError struct {
		Field string
	}
)

// NewNumber returns a valid Number.
func NewNumber(v float64) Number {
	return Number{Value: v, Valid: !math.IsNaN(v) && !math.IsInf(v, 0)}
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q missing or not a finite number", e.Field)
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	*n = Number{}

	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}

	raw := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	*n = NewNumber(v)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, n.Value, 'f', -1, 64), nil
}

// Validate requires every sensor field to be a finite number.
func (p SensorPayload) Validate() error {
	switch {
	case !p.TempC.Valid:
		return &FieldError{"temp_c"}
	case !p.RH.Valid:
		return &FieldError{"rh"}
	case !p.CO2ppm.Valid:
		return &FieldError{"co2_ppm"}
	}
	return nil
}
