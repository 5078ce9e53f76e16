// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import "context"

type (
	// Message represents a received PUBLISH.
	Message struct {
		Topic       string
		Payload     []byte
		ContentType string
		QoS         byte
		Retain      bool
	}

	// MessageHandler is a user-defined callback used to handle messages
	// received on any subscribed topic. Handlers are called in order on the
	// client's receive goroutine and must not block for long.
	MessageHandler func(context.Context, *Message)

	// ConnectEvent contains the relevent metadata provided to the handler
	// when the session client connects to the server.
	ConnectEvent struct {
		ReasonCode     byte
		SessionPresent bool
	}

	// ConnectEventHandler is a user-defined callback function used to respond
	// to connection notifications from the session client.
	ConnectEventHandler func(*ConnectEvent)

	// DisconnectEvent contains the relevent metadata provided to the handler
	// when the session client disconnects from the server.
	DisconnectEvent struct {
		Error error
	}

	// DisconnectEventHandler is a user-defined callback function used to
	// respond to disconnection notifications from the session client.
	DisconnectEventHandler func(*DisconnectEvent)
)
