// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package mqtttest spins up an in-process MQTT broker for tests.
package mqtttest

import (
	"fmt"
	"testing"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/require"
)

// Credentials accepted by a broker started with WithCredentials.
const (
	Username = "gary"
	Password = "pineapple"
)

// Broker is a running in-process broker with a WebSocket listener.
type Broker struct {
	*mochi.Server
	Port int
}

// BrokerOption configures StartBroker.
type BrokerOption func(*brokerConfig)

type brokerConfig struct {
	ledger *auth.Ledger
	hooks  []mochi.Hook
}

// WithHook adds a hook to the broker, for tests that need to observe or
// delay packet handling.
func WithHook(hook mochi.Hook) BrokerOption {
	return func(c *brokerConfig) {
		c.hooks = append(c.hooks, hook)
	}
}

// WithCredentials makes the broker reject every client that does not present
// Username and Password.
func WithCredentials() BrokerOption {
	return func(c *brokerConfig) {
		c.ledger = &auth.Ledger{
			Auth: auth.AuthRules{{
				Username: auth.RString(Username),
				Password: auth.RString(Password),
				Allow:    true,
			}},
		}
	}
}

// StartBroker starts a broker serving MQTT over WebSocket on the given port.
// It is closed when the test ends.
func StartBroker(t *testing.T, port int, opts ...BrokerOption) *Broker {
	t.Helper()

	var cfg brokerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	server := mochi.New(nil)
	if cfg.ledger != nil {
		require.NoError(t, server.AddHook(
			new(auth.Hook),
			&auth.Options{Ledger: cfg.ledger},
		))
	} else {
		require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	}
	for _, hook := range cfg.hooks {
		require.NoError(t, server.AddHook(hook, nil))
	}

	require.NoError(t, server.AddListener(listeners.NewWebsocket(
		listeners.Config{
			ID:      fmt.Sprintf("ws%d", port),
			Address: fmt.Sprintf("localhost:%d", port),
		},
	)))
	require.NoError(t, server.Serve())

	t.Cleanup(func() { _ = server.Close() })
	return &Broker{Server: server, Port: port}
}

// URL returns the ws:// URL of the broker.
func (b *Broker) URL() string {
	return fmt.Sprintf("ws://localhost:%d/mqtt", b.Port)
}
