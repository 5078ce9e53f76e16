// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package store

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Redis is a KeyValue backed by a Redis server. Keys are stored verbatim with
// no expiry.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to the Redis server at url (redis://host:port/db) and
// verifies it with a PING.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, &Error{Op: "open", Key: url, Backend: "redis", wrapped: err}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &Error{Op: "ping", Key: url, Backend: "redis", wrapped: err}
	}
	return NewRedisFromClient(client), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Get returns the value stored at key. A missing key is reported through the
// boolean rather than as an error.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", false, nil
	case err != nil:
		return "", false, &Error{Op: "get", Key: key, Backend: "redis", wrapped: err}
	}
	return v, true, nil
}

// Set stores value at key with no expiry.
func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return &Error{Op: "set", Key: key, Backend: "redis", wrapped: err}
	}
	return nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
