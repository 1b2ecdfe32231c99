// Package cache defines the port interface for caching.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Cache is the port interface for key-value caching.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// GetJSON reads key and decodes it into a T. A miss returns ok=false.
func GetJSON[T any](ctx context.Context, c Cache, key string) (*T, bool, error) {
	data, found, err := c.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return &v, true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	return c.Set(ctx, key, data, ttl)
}
