// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"github.com/kopi-greenbeans/mcmonitor/internal/log"
	"github.com/kopi-greenbeans/mcmonitor/mqtt/internal"
	"github.com/kopi-greenbeans/mcmonitor/mqtt/retry"
)

type (
	// SessionClient implements an MQTT v5 client with QoS 0 and QoS 1
	// support that reconnects automatically and restores its subscriptions on
	// every new connection.
	SessionClient struct {
		// Used to ensure Start() and Stop() are each called only once.
		sessionStarted atomic.Bool
		sessionStopped atomic.Bool

		// Cancels the connection goroutine; stopped is closed once it exits.
		cancel  context.CancelFunc
		stopped chan struct{}

		// The current connection, or nil while disconnected. up is closed
		// whenever a connection is established and replaced when it drops.
		conn   *connection
		up     chan struct{}
		connMu sync.RWMutex

		// Topics to (re)subscribe on every connection, in subscribe order.
		subscriptions   []subscription
		subscriptionsMu sync.Mutex

		messageHandlers         *internal.HandlerList[MessageHandler]
		connectEventHandlers    *internal.HandlerList[ConnectEventHandler]
		disconnectEventHandlers *internal.HandlerList[DisconnectEventHandler]
		fatalErrorHandlers      *internal.HandlerList[func(error)]

		connectionProvider ConnectionProvider
		options            SessionClientOptions

		log logger
	}

	// A single network connection and the paho client running on it.
	connection struct {
		client *paho.Client
		conn   interface{ Close() error }
		down   *internal.Background
	}

	subscription struct {
		topic string
		opts  SubscribeOptions
	}
)

// NewSessionClient constructs a new session client with user options.
func NewSessionClient(
	connectionProvider ConnectionProvider,
	opts ...SessionClientOption,
) *SessionClient {
	client := &SessionClient{
		connectionProvider: connectionProvider,

		up:      make(chan struct{}),
		stopped: make(chan struct{}),

		messageHandlers:         internal.NewHandlerList[MessageHandler](),
		connectEventHandlers:    internal.NewHandlerList[ConnectEventHandler](),
		disconnectEventHandlers: internal.NewHandlerList[DisconnectEventHandler](),
		fatalErrorHandlers:      internal.NewHandlerList[func(error)](),
	}

	client.options.Apply(opts)

	if client.options.ClientID == "" {
		client.options.ClientID = randomClientID()
	}

	if client.options.KeepAlive == 0 {
		client.options.KeepAlive = defaultKeepAlive
	}

	client.options.ConnectionRetry = withRetryLogger(
		client.options.ConnectionRetry,
		client.options.Logger,
	)

	client.log = logger{log.Wrap(client.options.Logger)}

	return client
}

// ID returns the MQTT client ID for this session client.
func (c *SessionClient) ID() string {
	return c.options.ClientID
}

// Start the session client, spawning the goroutine that connects and keeps
// reconnecting until Stop is called or a fatal error occurs. It does not wait
// for the first connection.
func (c *SessionClient) Start() error {
	if !c.sessionStarted.CompareAndSwap(false, true) {
		return &ClientStateError{State: Started}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.manageConnection(ctx)
	return nil
}

// Stop the session client, forcibly closing the current connection. In-flight
// messages are discarded. It blocks until the connection goroutine exits.
func (c *SessionClient) Stop() error {
	if !c.sessionStarted.Load() {
		return &ClientStateError{State: NotStarted}
	}
	if !c.sessionStopped.CompareAndSwap(false, true) {
		return &ClientStateError{State: ShutDown}
	}

	c.cancel()
	<-c.stopped
	return nil
}

// Done returns a channel that is closed once the session client has shut
// down, either through Stop or a fatal error.
func (c *SessionClient) Done() <-chan struct{} {
	return c.stopped
}

// RegisterMessageHandler registers a handler called for every received
// message. It returns a function to remove the handler.
func (c *SessionClient) RegisterMessageHandler(
	handler MessageHandler,
) func() {
	return c.messageHandlers.Append(handler)
}

// RegisterConnectEventHandler registers a handler called after every
// successful connection, once subscriptions have been restored.
func (c *SessionClient) RegisterConnectEventHandler(
	handler ConnectEventHandler,
) func() {
	return c.connectEventHandlers.Append(handler)
}

// RegisterDisconnectEventHandler registers a handler called whenever an
// established connection is lost or closed.
func (c *SessionClient) RegisterDisconnectEventHandler(
	handler DisconnectEventHandler,
) func() {
	return c.disconnectEventHandlers.Append(handler)
}

// RegisterFatalErrorHandler registers a handler called in a goroutine when the
// session client terminates due to a fatal error.
func (c *SessionClient) RegisterFatalErrorHandler(
	handler func(error),
) func() {
	return c.fatalErrorHandlers.Append(handler)
}

func (c *SessionClient) current() (*connection, <-chan struct{}) {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn, c.up
}

// awaitConnection blocks until a connection is available.
func (c *SessionClient) awaitConnection(
	ctx context.Context,
) (*connection, error) {
	if !c.sessionStarted.Load() {
		return nil, &ClientStateError{State: NotStarted}
	}
	for {
		conn, up := c.current()
		if conn != nil {
			return conn, nil
		}
		select {
		case <-up:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.stopped:
			return nil, &ClientStateError{State: ShutDown}
		}
	}
}

// withRetryLogger returns the policy to use for connection attempts. Built-in
// policies without a logger get a copy carrying the client's logger, so
// failed attempts are logged.
func withRetryLogger(policy retry.Policy, logger *slog.Logger) retry.Policy {
	switch p := policy.(type) {
	case nil:
		return &retry.FixedInterval{Logger: logger}
	case *retry.FixedInterval:
		if p.Logger == nil {
			cp := *p
			cp.Logger = logger
			return &cp
		}
	case *retry.ExponentialBackoff:
		if p.Logger == nil {
			cp := *p
			cp.Logger = logger
			return &cp
		}
	}
	return policy
}

func randomClientID() string {
	return "gbmonitor-" + uuid.NewString()[:8]
}
