// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"log/slog"
	"time"

	"github.com/kopi-greenbeans/mcmonitor/internal/options"
	"github.com/kopi-greenbeans/mcmonitor/mqtt/retry"
)

type (
	// SessionClientOptions are the resolved session client options.
	SessionClientOptions struct {
		ClientID string

		// KeepAlive in seconds. Defaults to 60.
		KeepAlive uint16

		Username string
		Password []byte

		// ConnectionRetry is the policy used for every connection attempt,
		// the initial one included. Defaults to a fixed two second interval
		// with no attempt cap.
		ConnectionRetry retry.Policy

		// ConnectionTimeout bounds a single connection attempt (dial plus
		// CONNECT/CONNACK). Zero means no bound beyond the context.
		ConnectionTimeout time.Duration

		Logger *slog.Logger
	}

	// SessionClientOption represents a single session client option.
	SessionClientOption interface{ sessionClient(*SessionClientOptions) }

	// WithClientID sets the MQTT client ID.
	WithClientID string

	// WithKeepAlive sets the keep-alive interval in seconds.
	WithKeepAlive uint16

	// WithUsername sets the username sent in the CONNECT packet.
	WithUsername string

	// WithPassword sets the password sent in the CONNECT packet.
	WithPassword []byte

	// WithConnectionTimeout bounds a single connection attempt.
	WithConnectionTimeout time.Duration

	withConnectionRetry struct{ retry.Policy }
	withLogger          struct{ *slog.Logger }
)

// WithConnectionRetry sets the connection retry policy.
func WithConnectionRetry(policy retry.Policy) SessionClientOption {
	return withConnectionRetry{policy}
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) SessionClientOption {
	return withLogger{logger}
}

// Apply resolves the provided list of options.
func (o *SessionClientOptions) Apply(
	opts []SessionClientOption,
	rest ...SessionClientOption,
) {
	for opt := range options.Apply[SessionClientOption](opts, rest...) {
		opt.sessionClient(o)
	}
}

func (o *SessionClientOptions) sessionClient(opt *SessionClientOptions) {
	if o != nil {
		*opt = *o
	}
}

func (o WithClientID) sessionClient(opt *SessionClientOptions) {
	opt.ClientID = string(o)
}

func (o WithKeepAlive) sessionClient(opt *SessionClientOptions) {
	opt.KeepAlive = uint16(o)
}

func (o WithUsername) sessionClient(opt *SessionClientOptions) {
	opt.Username = string(o)
}

func (o WithPassword) sessionClient(opt *SessionClientOptions) {
	opt.Password = []byte(o)
}

func (o WithConnectionTimeout) sessionClient(opt *SessionClientOptions) {
	opt.ConnectionTimeout = time.Duration(o)
}

func (o withConnectionRetry) sessionClient(opt *SessionClientOptions) {
	opt.ConnectionRetry = o.Policy
}

func (o withLogger) sessionClient(opt *SessionClientOptions) {
	opt.Logger = o.Logger
}
