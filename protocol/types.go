// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package protocol

import (
	"context"
	"time"

	"github.com/kopi-greenbeans/mcmonitor/mqtt"
)

type (
	// MqttClient is the subset of the session client used to receive
	// telemetry.
	MqttClient interface {
		Subscribe(context.Context, string, ...mqtt.SubscribeOption) error
		Unsubscribe(context.Context, string) error
		RegisterMessageHandler(mqtt.MessageHandler) func()
	}

	// MqttPublisher is the subset of the session client used to send
	// telemetry.
	MqttPublisher interface {
		Publish(context.Context, string, []byte, ...mqtt.PublishOption) error
	}

	// Message contains common message data that is exposed to message
	// handlers.
	Message[T any] struct {
		// The decoded payload.
		Payload T

		// The topic the message arrived on.
		Topic string

		// Local receipt time.
		Timestamp time.Time
	}
)
