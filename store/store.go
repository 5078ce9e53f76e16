// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package store provides the small durable key/value capability used to keep
// state across restarts.
package store

import (
	"context"
	"fmt"
	"sync"
)

// KeyValue is a string key/value store. Get reports false for a missing key.
type KeyValue interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Error wraps a backend failure with the operation and key.
type Error struct {
	Op      string
	Key     string
	Backend string
	wrapped error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s %q: %v", e.Backend, e.Op, e.Key, e.wrapped)
}

func (e *Error) Unwrap() error {
	return e.wrapped
}

// Memory is an in-process KeyValue. The zero value is ready to use.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Get returns the value held in memory for key.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Set replaces the value held in memory for key.
func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string]string)
	}
	m.data[key] = value
	return nil
}
