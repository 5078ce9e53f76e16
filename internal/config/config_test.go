// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kopi-greenbeans/mcmonitor/alarm"
	"github.com/kopi-greenbeans/mcmonitor/monitor"
	"github.com/stretchr/testify/require"
)

var allVars = []string{
	envMode, envDeviceID, envMCMin, envMCMax, envStore, envStoreDir,
	envRedisURL, envHTTPAddr, envLogLevel, envLogFile,
	envMQTTHost, envViteMQTTHost, envSimTick,
}

func clearEnv(t *testing.T) {
	for _, v := range allVars {
		t.Setenv(v, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, &Config{
		Mode:       monitor.ModeSim,
		DeviceID:   monitor.DefaultDeviceID,
		Thresholds: alarm.Thresholds{Min: 10, Max: 12.5},
		Store:      StoreFile,
		StoreDir:   DefaultStoreDir,
		HTTPAddr:   DefaultHTTPAddr,
		LogLevel:   slog.LevelInfo,

		SimInterval: 2 * time.Second,
	}, cfg)
}

func TestFromEnvLiveWhenHostSet(t *testing.T) {
	clearEnv(t)
	t.Setenv(envViteMQTTHost, "broker.local")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, monitor.ModeLive, cfg.Mode)

	t.Setenv(envMode, "sim")
	cfg, err = FromEnv()
	require.NoError(t, err)
	require.Equal(t, monitor.ModeSim, cfg.Mode)
}

func TestFromEnvFull(t *testing.T) {
	clearEnv(t)
	t.Setenv(envMode, "LIVE")
	t.Setenv(envDeviceID, "ESP32-GB-02")
	t.Setenv(envMCMin, "9.5")
	t.Setenv(envMCMax, "13")
	t.Setenv(envStore, "redis")
	t.Setenv(envRedisURL, "redis://localhost:6379/0")
	t.Setenv(envHTTPAddr, "127.0.0.1:9000")
	t.Setenv(envLogLevel, "debug")
	t.Setenv(envLogFile, "gb.log")
	t.Setenv(envSimTick, "PT0.5S")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, &Config{
		Mode:       monitor.ModeLive,
		DeviceID:   "ESP32-GB-02",
		Thresholds: alarm.Thresholds{Min: 9.5, Max: 13},
		Store:      StoreRedis,
		StoreDir:   DefaultStoreDir,
		RedisURL:   "redis://localhost:6379/0",
		HTTPAddr:   "127.0.0.1:9000",
		LogLevel:   slog.LevelDebug,
		LogFile:    "gb.log",

		SimInterval: 500 * time.Millisecond,
	}, cfg)
}

func TestFromEnvInvalid(t *testing.T) {
	for _, tc := range []struct {
		name, key, val string
	}{
		{"mode", envMode, "offline"},
		{"device", envDeviceID, "ESP32-GB-99"},
		{"min", envMCMin, "ten"},
		{"max", envMCMax, "NaN"},
		{"store", envStore, "s3"},
		{"redis without url", envStore, "redis"},
		{"log level", envLogLevel, "loud"},
		{"sim interval", envSimTick, "-1s"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.val)

			_, err := FromEnv()
			var invalid *InvalidValueError
			require.ErrorAs(t, err, &invalid)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"GB_MC_MAX=14\nGB_HTTP_ADDR=:9090\n",
	), 0o600))

	// Variables already present take precedence over the file.
	t.Setenv(envHTTPAddr, ":7070")
	require.NoError(t, os.Unsetenv(envMCMax))

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	require.Equal(t, 14.0, cfg.Thresholds.Max)
	require.Equal(t, ":7070", cfg.HTTPAddr)
}
