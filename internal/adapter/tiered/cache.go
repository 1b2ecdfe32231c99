// Package tiered implements a two-level (L1 + L2) cache adapter.
package tiered

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Strob0t/Upchuck/internal/port/cache"
)

var _ cache.Cache = (*Cache)(nil)

// Cache combines an L1 (in-process) and L2 (shared) cache.
// Get checks L1 first, then L2, backfilling L1 on an L2 hit. An L2 failure
// degrades to a miss so that a broker outage only costs a database read.
type Cache struct {
	l1    cache.Cache
	l2    cache.Cache
	l1TTL time.Duration
}

// New creates a tiered cache. l1TTL caps how long entries live in L1; a nil
// l2 runs the cache on L1 alone.
func New(l1, l2 cache.Cache, l1TTL time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1TTL: l1TTL}
}

// Get checks L1, then L2.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found || c.l2 == nil {
		return val, found, nil
	}

	val, found, err = c.l2.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "l2 cache get failed", "key", key, "error", err)
		return nil, false, nil
	}
	if !found {
		return nil, false, nil
	}
	_ = c.l1.Set(ctx, key, val, c.l1TTL)
	return val, true, nil
}

// Set writes to both levels. The L1 copy never outlives l1TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l1TTL := ttl
	if c.l1TTL > 0 && (l1TTL <= 0 || l1TTL > c.l1TTL) {
		l1TTL = c.l1TTL
	}
	if err := c.l1.Set(ctx, key, value, l1TTL); err != nil {
		return err
	}
	if c.l2 == nil {
		return nil
	}
	return c.l2.Set(ctx, key, value, ttl)
}

// Delete removes key from both levels, attempting both even when one fails.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.l1.Delete(ctx, key)
	if c.l2 != nil {
		err = errors.Join(err, c.l2.Delete(ctx, key))
	}
	return err
}
