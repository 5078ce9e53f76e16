// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package protocol

import (
	"encoding/json"
	"errors"
)

type (
	// Encoding is a translation between a concrete Go type T and encoded data.
	// All methods *must* be thread-safe.
	Encoding[T any] interface {
		Serialize(T) (*Data, error)
		Deserialize(*Data) (T, error)
	}

	// Data represents encoded values along with their transmitted content type.
	Data struct {
		Payload     []byte
		ContentType string
	}

	// JSON is a simple implementation of a JSON encoding. If T implements
	// Validator, decoded values are validated before they are returned.
	JSON[T any] struct{}

	// Validator is implemented by payload types that check their own
	// invariants after decoding.
	Validator interface {
		Validate() error
	}
)

// ErrUnsupportedContentType should be returned if the content type is not
// supported by this encoding.
var ErrUnsupportedContentType = errors.New("unsupported content type")

// Utility to serialize with a protocol error.
func serialize[T any](encoding Encoding[T], value T) (*Data, error) {
	data, err := encoding.Serialize(value)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			return nil, e
		}
		return nil, &Error{
			Message:     "cannot serialize payload",
			Kind:        PayloadInvalid,
			NestedError: err,
		}
	}
	return data, nil
}

// Utility to deserialize with a protocol error.
func deserialize[T any](encoding Encoding[T], data *Data) (T, error) {
	value, err := encoding.Deserialize(data)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			return value, e
		}
		if errors.Is(err, ErrUnsupportedContentType) {
			return value, &Error{
				Message:     "content type mismatch",
				Kind:        HeaderInvalid,
				ContentType: data.ContentType,
			}
		}
		return value, &Error{
			Message:     "cannot deserialize payload",
			Kind:        PayloadInvalid,
			NestedError: err,
		}
	}
	return value, nil
}

// Serialize translates the Go type T into JSON bytes.
func (JSON[T]) Serialize(t T) (*Data, error) {
	bytes, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return &Data{bytes, "application/json"}, nil
}

// Deserialize translates JSON bytes into the Go type T.
func (JSON[T]) Deserialize(data *Data) (T, error) {
	var t T
	switch data.ContentType {
	case "", "application/json":
		if err := json.Unmarshal(data.Payload, &t); err != nil {
			return t, err
		}
		if v, ok := any(&t).(Validator); ok {
			if err := v.Validate(); err != nil {
				return t, err
			}
		} else if v, ok := any(t).(Validator); ok {
			if err := v.Validate(); err != nil {
				return t, err
			}
		}
		return t, nil
	default:
		return t, ErrUnsupportedContentType
	}
}
