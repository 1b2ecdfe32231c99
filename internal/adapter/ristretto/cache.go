// Package ristretto implements the cache port using dgraph-io/ristretto as
// the in-process L1 cache.
package ristretto

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache wraps a ristretto cache. Values are costed by their byte length.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a cache bounded to maxSizeMB megabytes of values.
func New(maxSizeMB int64) (*Cache, error) {
	maxCost := maxSizeMB << 20
	if maxCost <= 0 {
		return nil, fmt.Errorf("ristretto: max size must be positive, got %d MB", maxSizeMB)
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCost / 1024 * 10, // ~10x expected 1 KiB entries
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	return &Cache{c: c}, nil
}

// Get retrieves a value.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores a value. A non-positive ttl keeps the entry until evicted.
// Writes are buffered; call Wait to observe them immediately.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

// Delete removes a value.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Wait blocks until buffered writes are applied.
func (c *Cache) Wait() { c.c.Wait() }

// Close shuts down the cache and releases resources.
func (c *Cache) Close() { c.c.Close() }
