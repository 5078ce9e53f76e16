// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package config loads the monitor's application settings from the
// environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kopi-greenbeans/mcmonitor/alarm"
	"github.com/kopi-greenbeans/mcmonitor/monitor"
	"github.com/kopi-greenbeans/mcmonitor/source"
	"github.com/sosodev/duration"
)

// Store backends.
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Defaults applied when a variable is unset.
const (
	DefaultStoreDir = ".gbstate"
	DefaultHTTPAddr = ":8080"
)

const (
	envMode     = "GB_MODE"
	envDeviceID = "GB_DEVICE_ID"
	envMCMin    = "GB_MC_MIN"
	envMCMax    = "GB_MC_MAX"
	envStore    = "GB_STORE"
	envStoreDir = "GB_STORE_DIR"
	envRedisURL = "GB_REDIS_URL"
	envHTTPAddr = "GB_HTTP_ADDR"
	envLogLevel = "GB_LOG_LEVEL"
	envLogFile  = "GB_LOG_FILE"
	envSimTick  = "GB_SIM_INTERVAL"

	// Presence of a broker host decides the default mode.
	envMQTTHost     = "MQTT_HOST"
	envViteMQTTHost = "VITE_MQTT_HOST"
)

type (
	// Config holds the application settings. MQTT connection settings are
	// read separately by mqtt.SessionClientConfigFromEnv.
	Config struct {
		Mode       monitor.Mode
		DeviceID   string
		Thresholds alarm.Thresholds
		Store      string
		StoreDir   string
		RedisURL   string
		HTTPAddr   string
		LogLevel   slog.Level
		LogFile    string

		// SimInterval is the simulated source's tick period.
		SimInterval time.Duration
	}

	// InvalidValueError is returned when a variable does not parse.
	InvalidValueError struct {
		Name  string
		Value string
		err   error
	}
)

func (e *InvalidValueError) Error() string {
	msg := fmt.Sprintf("invalid value %q for %s", e.Value, e.Name)
	if e.err != nil {
		msg += ": " + e.err.Error()
	}
	return msg
}

func (e *InvalidValueError) Unwrap() error {
	return e.err
}

// LoadDotEnv loads the given .env files (".env" if none) into the process
// environment. Missing files are ignored and existing variables are kept.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// FromEnv reads the configuration from the process environment.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Mode:       monitor.ModeSim,
		DeviceID:   monitor.DefaultDeviceID,
		Thresholds: alarm.DefaultThresholds(),
		Store:      StoreFile,
		StoreDir:   DefaultStoreDir,
		HTTPAddr:   DefaultHTTPAddr,
		LogLevel:   slog.LevelInfo,

		SimInterval: source.DefaultInterval,
	}
	if os.Getenv(envMQTTHost) != "" || os.Getenv(envViteMQTTHost) != "" {
		cfg.Mode = monitor.ModeLive
	}

	if val, ok := lookup(envMode); ok {
		switch mode := monitor.Mode(strings.ToLower(val)); mode {
		case monitor.ModeLive, monitor.ModeSim:
			cfg.Mode = mode
		default:
			return nil, &InvalidValueError{Name: envMode, Value: val}
		}
	}

	if val, ok := lookup(envDeviceID); ok {
		if _, known := monitor.LookupDevice(val); !known {
			return nil, &InvalidValueError{Name: envDeviceID, Value: val}
		}
		cfg.DeviceID = val
	}

	var err error
	if cfg.Thresholds.Min, err = parseFloat(envMCMin, cfg.Thresholds.Min); err != nil {
		return nil, err
	}
	if cfg.Thresholds.Max, err = parseFloat(envMCMax, cfg.Thresholds.Max); err != nil {
		return nil, err
	}

	if val, ok := lookup(envStore); ok {
		switch s := strings.ToLower(val); s {
		case StoreFile, StoreRedis, StoreMemory:
			cfg.Store = s
		default:
			return nil, &InvalidValueError{Name: envStore, Value: val}
		}
	}
	if val, ok := lookup(envStoreDir); ok {
		cfg.StoreDir = val
	}
	if val, ok := lookup(envRedisURL); ok {
		cfg.RedisURL = val
	}
	if cfg.Store == StoreRedis && cfg.RedisURL == "" {
		return nil, &InvalidValueError{
			Name: envRedisURL,
			err:  errors.New("required when GB_STORE=redis"),
		}
	}

	if val, ok := lookup(envHTTPAddr); ok {
		cfg.HTTPAddr = val
	}
	if val, ok := lookup(envLogLevel); ok {
		if err := cfg.LogLevel.UnmarshalText([]byte(val)); err != nil {
			return nil, &InvalidValueError{Name: envLogLevel, Value: val, err: err}
		}
	}
	if val, ok := lookup(envLogFile); ok {
		cfg.LogFile = val
	}

	if val, ok := lookup(envSimTick); ok {
		d, err := parseDuration(val)
		if err != nil || d <= 0 {
			return nil, &InvalidValueError{Name: envSimTick, Value: val, err: err}
		}
		cfg.SimInterval = d
	}

	return cfg, nil
}

// Load is LoadDotEnv followed by FromEnv.
func Load(files ...string) (*Config, error) {
	if err := LoadDotEnv(files...); err != nil {
		return nil, err
	}
	return FromEnv()
}

func lookup(name string) (string, bool) {
	val, ok := os.LookupEnv(name)
	val = strings.TrimSpace(val)
	return val, ok && val != ""
}

// parseDuration accepts ISO 8601 (PT2S) or Go (2s) durations.
func parseDuration(val string) (time.Duration, error) {
	if d, err := duration.Parse(val); err == nil {
		return d.ToTimeDuration(), nil
	}
	return time.ParseDuration(val)
}

func parseFloat(name string, def float64) (float64, error) {
	val, ok := lookup(name)
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, &InvalidValueError{Name: name, Value: val, err: err}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &InvalidValueError{Name: name, Value: val}
	}
	return f, nil
}
