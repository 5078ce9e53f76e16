// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"crypto/tls"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kopi-greenbeans/mcmonitor/mqtt/retry"
	"github.com/sosodev/duration"
)

// Default broker ports for MQTT over WebSocket.
const (
	DefaultWebSocketPort       uint16 = 8083
	DefaultSecureWebSocketPort uint16 = 8084
	DefaultTCPPort             uint16 = 1883
)

type connectionProviderBuilder struct {
	hostname  string
	port      uint16
	path      string
	useTLS    bool
	transport string
}

// Environment variables understood by SessionClientConfigFromEnv. Each
// connection variable may also be given with a VITE_ prefix, as used by the
// browser build; the unprefixed name wins when both are set.
const (
	envHost             = "MQTT_HOST"
	envPort             = "MQTT_PORT"
	envPath             = "MQTT_PATH"
	envUseTLS           = "MQTT_USE_TLS"
	envTransport        = "MQTT_TRANSPORT"
	envClientID         = "MQTT_CLIENT_ID"
	envUsername         = "MQTT_USERNAME"
	envPasswordFile     = "MQTT_PASSWORD_FILE"
	envKeepAlive        = "MQTT_KEEP_ALIVE"
	envConnectTimeout   = "MQTT_CONNECT_TIMEOUT"
	envReconnectPeriod  = "MQTT_RECONNECT_PERIOD"
	envReconnectBackoff = "MQTT_RECONNECT_BACKOFF"

	vitePrefix = "VITE_"
)

// SessionClientConfigFromEnv parses a session client configuration from
// well-known environment variables. Note that this will only return an error if
// the environment variables parse incorrectly; the returned connection
// provider is nil when no broker host is configured, so callers can fall back
// to offline operation.
func SessionClientConfigFromEnv() (
	ConnectionProvider,
	*SessionClientOptions,
	error,
) {
	opts := &SessionClientOptions{}
	conn := connectionProviderBuilder{transport: "ws"}

	var reconnectPeriod time.Duration
	backoff := "fixed"

	for _, env := range lookupEnv() {
		key, val := env[0], env[1]
		switch key {
		case envHost:
			conn.hostname = val

		case envPort:
			port, err := strconv.ParseUint(val, 10, 16)
			if err != nil {
				return nil, nil, &InvalidArgumentError{
					message: "could not parse broker port",
					wrapped: err,
				}
			}
			conn.port = uint16(port)

		case envPath:
			conn.path = val

		case envUseTLS:
			useTLS, err := strconv.ParseBool(val)
			if err != nil {
				return nil, nil, &InvalidArgumentError{
					message: "could not parse MQTT use TLS",
					wrapped: err,
				}
			}
			conn.useTLS = useTLS

		case envTransport:
			switch val {
			case "ws", "tcp":
				conn.transport = val
			default:
				return nil, nil, &InvalidArgumentError{
					message: "MQTT transport must be ws or tcp",
				}
			}

		case envClientID:
			opts.ClientID = val

		case envUsername:
			opts.Username = val

		case envPasswordFile:
			password, err := os.ReadFile(val)
			if err != nil {
				return nil, nil, &InvalidArgumentError{
					message: "could not read MQTT password file",
					wrapped: err,
				}
			}
			opts.Password = []byte(strings.TrimRight(string(password), "\r\n"))

		case envKeepAlive:
			keepAlive, err := parseDuration(val)
			if err != nil {
				return nil, nil, &InvalidArgumentError{
					message: "could not parse MQTT keep-alive",
					wrapped: err,
				}
			}
			secs := keepAlive / time.Second
			if secs < 1 || secs > 0xFFFF {
				return nil, nil, &InvalidArgumentError{
					message: "MQTT keep-alive out of range",
				}
			}
			opts.KeepAlive = uint16(secs)

		case envConnectTimeout:
			timeout, err := parseDuration(val)
			if err != nil {
				return nil, nil, &InvalidArgumentError{
					message: "could not parse MQTT connect timeout",
					wrapped: err,
				}
			}
			opts.ConnectionTimeout = timeout

		case envReconnectPeriod:
			period, err := parseDuration(val)
			if err != nil {
				return nil, nil, &InvalidArgumentError{
					message: "could not parse MQTT reconnect period",
					wrapped: err,
				}
			}
			reconnectPeriod = period

		case envReconnectBackoff:
			switch val {
			case "fixed", "exponential":
				backoff = val
			default:
				return nil, nil, &InvalidArgumentError{
					message: "MQTT reconnect backoff must be fixed or exponential",
				}
			}
		}
	}

	switch backoff {
	case "fixed":
		opts.ConnectionRetry = &retry.FixedInterval{Interval: reconnectPeriod}
	case "exponential":
		opts.ConnectionRetry = &retry.ExponentialBackoff{
			MinInterval: reconnectPeriod,
		}
	}

	if conn.hostname == "" {
		return nil, opts, nil
	}
	return conn.build(), opts, nil
}

// NewSessionClientFromEnv is a shorthand for constructing a session client
// using SessionClientConfigFromEnv. Options given here override those from the
// environment.
func NewSessionClientFromEnv(
	opt ...SessionClientOption,
) (*SessionClient, error) {
	provider, opts, err := SessionClientConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, &InvalidArgumentError{
			message: "MQTT broker host is not configured",
		}
	}
	return NewSessionClient(
		provider,
		append([]SessionClientOption{opts}, opt...)...,
	), nil
}

// URL returns the broker URL the provider would connect to.
func (b *connectionProviderBuilder) URL() string {
	if b.transport == "tcp" {
		return "tcp://" + b.hostname + ":" + strconv.Itoa(int(b.portOrDefault()))
	}
	return BrokerURL(b.useTLS, b.hostname, b.portOrDefault(), b.path)
}

func (b *connectionProviderBuilder) portOrDefault() uint16 {
	switch {
	case b.port != 0:
		return b.port
	case b.transport == "tcp":
		return DefaultTCPPort
	case b.useTLS:
		return DefaultSecureWebSocketPort
	default:
		return DefaultWebSocketPort
	}
}

func (b *connectionProviderBuilder) build() ConnectionProvider {
	if b.transport == "tcp" {
		return TCPConnection(b.hostname, b.portOrDefault())
	}

	var opts []WebSocketOption
	if b.useTLS {
		opts = append(opts, WithTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		}))
	}
	return WebSocketConnection(b.URL(), opts...)
}

// lookupEnv returns the recognized key/value pairs with VITE_ aliases folded
// into their unprefixed names. Unprefixed values are ordered last so they
// override aliases.
func lookupEnv() [][2]string {
	var aliased, direct [][2]string
	for _, env := range os.Environ() {
		key, val, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		if name, ok := strings.CutPrefix(key, vitePrefix); ok {
			switch name {
			case envHost, envPort, envPath:
				aliased = append(aliased, [2]string{name, val})
			}
			continue
		}
		direct = append(direct, [2]string{key, val})
	}
	return append(aliased, direct...)
}

// parseDuration accepts an ISO 8601 duration (PT60S) or, for convenience, a
// Go duration string (60s).
func parseDuration(val string) (time.Duration, error) {
	d, err := duration.Parse(val)
	if err == nil {
		return d.ToTimeDuration(), nil
	}
	if td, goErr := time.ParseDuration(val); goErr == nil {
		return td, nil
	}
	return 0, err
}
