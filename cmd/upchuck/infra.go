package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	cfnats "github.com/Strob0t/Upchuck/internal/adapter/nats"
	"github.com/Strob0t/Upchuck/internal/adapter/natskv"
	"github.com/Strob0t/Upchuck/internal/adapter/postgres"
	"github.com/Strob0t/Upchuck/internal/adapter/ristretto"
	"github.com/Strob0t/Upchuck/internal/adapter/tiered"
	"github.com/Strob0t/Upchuck/internal/config"
	"github.com/Strob0t/Upchuck/internal/port/cache"
)

// openStore connects to PostgreSQL. The caller closes the pool.
func openStore(ctx context.Context, pg config.Postgres) (*pgxpool.Pool, *postgres.Store, error) {
	pool, err := postgres.NewPool(ctx, pg)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	slog.Info("postgres connected", "max_conns", pg.MaxConns)
	return pool, postgres.NewStore(pool), nil
}

// buildConfigCache assembles the ristretto L1 and, when a bucket is
// configured, the JetStream KV L2. The returned func releases the L1.
func buildConfigCache(ctx context.Context, c config.Cache, q *cfnats.Queue) (cache.Cache, func(), error) {
	l1, err := ristretto.New(c.L1MaxSizeMB)
	if err != nil {
		return nil, nil, fmt.Errorf("l1 cache: %w", err)
	}

	var l2 cache.Cache
	if c.L2Bucket != "" && q != nil {
		kv, err := q.KeyValue(ctx, c.L2Bucket, c.L2TTL)
		if err != nil {
			l1.Close()
			return nil, nil, fmt.Errorf("l2 cache: %w", err)
		}
		l2 = natskv.New(kv)
	}

	slog.Info("agent config cache ready", "l1_mb", c.L1MaxSizeMB, "l2_bucket", c.L2Bucket)
	return tiered.New(l1, l2, c.L1TTL), l1.Close, nil
}
