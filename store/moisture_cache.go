// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package store

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"sync"

	"github.com/kopi-greenbeans/mcmonitor/internal/log"
)

// LastMoistureKey is the key under which the last predicted moisture is kept.
const LastMoistureKey = "gb:last_mc"

// MoistureCache holds the last known predicted moisture in memory and mirrors
// it to a KeyValue store so it survives restarts. It is never cleared.
type MoistureCache struct {
	kv  KeyValue
	log log.Logger

	mu    sync.RWMutex
	value float64
	ok    bool
}

// NewMoistureCache loads the persisted value, if any. A missing or unparsable
// value leaves the cache empty; a store failure is logged and also leaves it
// empty.
func NewMoistureCache(
	ctx context.Context,
	kv KeyValue,
	logger *slog.Logger,
) *MoistureCache {
	c := &MoistureCache{kv: kv, log: log.Wrap(logger)}

	raw, found, err := kv.Get(ctx, LastMoistureKey)
	if err != nil {
		c.log.Err(ctx, err)
		return c
	}
	if !found {
		return c
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		c.log.Warn(ctx, "ignoring invalid cached moisture",
			slog.String("value", raw),
		)
		return c
	}
	c.value, c.ok = v, true
	return c
}

// Get returns the cached moisture and whether one is present.
func (c *MoistureCache) Get() (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.ok
}

// Set updates the in-memory value and persists it. The in-memory value is
// updated even when persisting fails.
func (c *MoistureCache) Set(ctx context.Context, v float64) error {
	c.mu.Lock()
	c.value, c.ok = v, true
	c.mu.Unlock()

	return c.kv.Set(ctx, LastMoistureKey, strconv.FormatFloat(v, 'f', -1, 64))
}
