// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package protocol

import "log/slog"

type (
	// Error represents a structured protocol error.
	Error struct {
		Message string
		Kind    Kind

		NestedError error

		Topic       string
		ContentType string

		PropertyName  string
		PropertyValue any
	}

	// Kind defines the type of error being thrown.
	Kind int
)

// The following are the defined error kinds.
const (
	PayloadInvalid Kind = iota
	HeaderInvalid
	ArgumentInvalid
	ExecutionException
	MqttError
)

func (k Kind) String() string {
	switch k {
	case PayloadInvalid:
		return "payload invalid"
	case HeaderInvalid:
		return "header invalid"
	case ArgumentInvalid:
		return "argument invalid"
	case ExecutionException:
		return "execution exception"
	case MqttError:
		return "mqtt error"
	default:
		return "unknown error"
	}
}

// Error returns the error as a string.
func (e *Error) Error() string {
	if e.NestedError != nil {
		return e.Message + ": " + e.NestedError.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.NestedError
}

// Attrs exposes the error's fields for structured logging.
func (e *Error) Attrs() []slog.Attr {
	a := make([]slog.Attr, 0, 6)
	a = append(a, slog.String("kind", e.Kind.String()))

	if e.Topic != "" {
		a = append(a, slog.String("topic", e.Topic))
	}
	if e.NestedError != nil {
		a = append(a, slog.String("nested_error", e.NestedError.Error()))
	}

	switch e.Kind {
	case HeaderInvalid:
		a = append(a, slog.String("content_type", e.ContentType))
	case PayloadInvalid, ArgumentInvalid:
		if e.PropertyName != "" {
			a = append(a,
				slog.String("property_name", e.PropertyName),
				slog.Any("property_value", e.PropertyValue),
			)
		}
	}
	return a
}

// mqttError wraps a failure of the underlying MQTT client.
func mqttError(op, topic string, err error) error {
	return &Error{
		Message:     op + " failed",
		Kind:        MqttError,
		NestedError: err,
		Topic:       topic,
	}
}
