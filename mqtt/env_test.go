// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"bytes"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kopi-greenbeans/mcmonitor/mqtt/retry"
	"github.com/stretchr/testify/require"
)

func TestBrokerURL(t *testing.T) {
	require.Equal(t,
		"ws://broker.local:8083/mqtt",
		BrokerURL(false, "broker.local", 8083, "/mqtt"),
	)
	require.Equal(t,
		"wss://broker.local:8084/mqtt",
		BrokerURL(true, "broker.local", 8084, ""),
	)
	require.Equal(t,
		"ws://10.0.0.2:9001/ws",
		BrokerURL(false, "10.0.0.2", 9001, "ws"),
	)
}

func TestConfigFromEnvDefaults(t *testing.T) {
	t.Setenv(envHost, "broker.local")

	provider, opts, err := SessionClientConfigFromEnv()
	require.NoError(t, err)
	require.NotNil(t, provider)

	policy, ok := opts.ConnectionRetry.(*retry.FixedInterval)
	require.True(t, ok)
	require.Zero(t, policy.Interval)
	require.Zero(t, opts.KeepAlive)
}

func TestConfigFromEnvNoHost(t *testing.T) {
	t.Setenv(envHost, "")
	t.Setenv(vitePrefix+envHost, "")

	provider, opts, err := SessionClientConfigFromEnv()
	require.NoError(t, err)
	require.Nil(t, provider)
	require.NotNil(t, opts)

	_, err = NewSessionClientFromEnv()
	var argErr *InvalidArgumentError
	require.ErrorAs(t, err, &argErr)
}

func TestConfigFromEnvFull(t *testing.T) {
	dir := t.TempDir()
	passFile := filepath.Join(dir, "password")
	require.NoError(t, os.WriteFile(passFile, []byte("s3cret\n"), 0o600))

	t.Setenv(envHost, "broker.local")
	t.Setenv(envUseTLS, "true")
	t.Setenv(envClientID, "dashboard-1")
	t.Setenv(envUsername, "kopi")
	t.Setenv(envPasswordFile, passFile)
	t.Setenv(envKeepAlive, "PT30S")
	t.Setenv(envConnectTimeout, "PT10S")
	t.Setenv(envReconnectPeriod, "PT5S")
	t.Setenv(envReconnectBackoff, "exponential")

	provider, opts, err := SessionClientConfigFromEnv()
	require.NoError(t, err)
	require.NotNil(t, provider)

	require.Equal(t, "dashboard-1", opts.ClientID)
	require.Equal(t, "kopi", opts.Username)
	require.Equal(t, []byte("s3cret"), opts.Password)
	require.Equal(t, uint16(30), opts.KeepAlive)
	require.Equal(t, 10*time.Second, opts.ConnectionTimeout)

	policy, ok := opts.ConnectionRetry.(*retry.ExponentialBackoff)
	require.True(t, ok)
	require.Equal(t, 5*time.Second, policy.MinInterval)
}

func TestConfigFromEnvViteAliases(t *testing.T) {
	t.Setenv(envHost, "")
	require.NoError(t, os.Unsetenv(envHost))
	t.Setenv(vitePrefix+envHost, "vite.local")
	t.Setenv(vitePrefix+envPort, "9001")

	env := map[string]string{}
	for _, kv := range lookupEnv() {
		env[kv[0]] = kv[1]
	}
	require.Equal(t, "vite.local", env[envHost])
	require.Equal(t, "9001", env[envPort])

	provider, _, err := SessionClientConfigFromEnv()
	require.NoError(t, err)
	require.NotNil(t, provider)
}

func TestConfigFromEnvUnprefixedWins(t *testing.T) {
	t.Setenv(vitePrefix+envHost, "vite.local")
	t.Setenv(envHost, "direct.local")

	var last string
	for _, kv := range lookupEnv() {
		if kv[0] == envHost {
			last = kv[1]
		}
	}
	require.Equal(t, "direct.local", last)
}

func TestConfigFromEnvDefaultPorts(t *testing.T) {
	ws := connectionProviderBuilder{hostname: "h", transport: "ws"}
	require.Equal(t, "ws://h:8083/mqtt", ws.URL())

	wss := connectionProviderBuilder{hostname: "h", transport: "ws", useTLS: true}
	require.Equal(t, "wss://h:8084/mqtt", wss.URL())

	tcp := connectionProviderBuilder{hostname: "h", transport: "tcp"}
	require.Equal(t, "tcp://h:1883", tcp.URL())
}

func TestConfigFromEnvInvalid(t *testing.T) {
	for name, env := range map[string][2]string{
		"Port":      {envPort, "not-a-port"},
		"UseTLS":    {envUseTLS, "maybe"},
		"KeepAlive": {envKeepAlive, "soon"},
		"Timeout":   {envConnectTimeout, "later"},
		"Backoff":   {envReconnectBackoff, "linear"},
		"Transport": {envTransport, "quic"},
		"Password":  {envPasswordFile, "/nonexistent/password"},
	} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(env[0], env[1])
			_, _, err := SessionClientConfigFromEnv()
			var argErr *InvalidArgumentError
			require.ErrorAs(t, err, &argErr)
		})
	}
}

// lockedBuffer collects log output written from the connection goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestClientFromEnvLogsFailedConnects(t *testing.T) {
	// Reserve a port and release it so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	t.Setenv(envHost, "127.0.0.1")
	t.Setenv(envPort, strconv.Itoa(port))
	t.Setenv(envReconnectPeriod, "PT0.05S")

	var out lockedBuffer
	logger := slog.New(slog.NewTextHandler(&out, nil))

	client, err := NewSessionClientFromEnv(WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, client.Start())
	defer func() { require.NoError(t, client.Stop()) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "retry scheduled")
	}, 5*time.Second, 20*time.Millisecond)
	require.Contains(t, out.String(), "error opening WebSocket connection")
}

func TestRetryLoggerNotOverridden(t *testing.T) {
	own := slog.New(slog.NewTextHandler(&lockedBuffer{}, nil))
	client := NewSessionClient(nil,
		WithConnectionRetry(&retry.ExponentialBackoff{Logger: own}),
		WithLogger(slog.Default()),
	)
	policy, ok := client.options.ConnectionRetry.(*retry.ExponentialBackoff)
	require.True(t, ok)
	require.Same(t, own, policy.Logger)

	shared := &retry.FixedInterval{}
	client = NewSessionClient(nil,
		WithConnectionRetry(shared),
		WithLogger(slog.Default()),
	)
	fixed, ok := client.options.ConnectionRetry.(*retry.FixedInterval)
	require.True(t, ok)
	require.Same(t, slog.Default(), fixed.Logger)
	require.Nil(t, shared.Logger)
}
