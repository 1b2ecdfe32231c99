package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	cfotel "github.com/Strob0t/Upchuck/internal/adapter/otel"
	"github.com/Strob0t/Upchuck/internal/config"
	"github.com/Strob0t/Upchuck/internal/port/eventstore"
	"github.com/Strob0t/Upchuck/internal/port/messagequeue"
)

const defaultOutboxBatch = 100

// OutboxRelay publishes committed domain events from the outbox to the
// broker on the subject named by the event type.
type OutboxRelay struct {
	events  eventstore.Store
	queue   messagequeue.Queue
	metrics *cfotel.Metrics
	cfg     config.Outbox
	now     func() time.Time
}

// NewOutboxRelay creates a new OutboxRelay.
func NewOutboxRelay(events eventstore.Store, q messagequeue.Queue, cfg config.Outbox) *OutboxRelay {
	return &OutboxRelay{events: events, queue: q, cfg: cfg, now: time.Now}
}

// SetMetrics attaches OTEL instruments.
func (r *OutboxRelay) SetMetrics(m *cfotel.Metrics) { r.metrics = m }

func (r *OutboxRelay) batchSize() int {
	if r.cfg.BatchSize <= 0 {
		return defaultOutboxBatch
	}
	return r.cfg.BatchSize
}

// RelayOnce publishes one batch and returns how many events were marked
// dispatched. Publishing stops at the first failure; the rest of the batch
// stays in the outbox for the next pass, preserving order.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	envs, err := r.events.ListUndispatched(ctx, r.batchSize())
	if err != nil {
		return 0, fmt.Errorf("list undispatched events: %w", err)
	}
	if len(envs) == 0 {
		return 0, nil
	}

	sent := make([]uuid.UUID, 0, len(envs))
	var pubErr error
	for i := range envs {
		env := &envs[i]
		data, err := json.Marshal(env)
		if err != nil {
			pubErr = fmt.Errorf("encode event %s: %w", env.ID, err)
			break
		}
		if err := r.queue.PublishMsg(ctx, string(env.Type), env.ID.String(), data); err != nil {
			pubErr = fmt.Errorf("publish event %s: %w", env.ID, err)
			break
		}
		sent = append(sent, env.ID)
	}

	if len(sent) > 0 {
		// A crash before this point republishes the batch; the broker drops
		// the repeats by message id.
		if err := r.events.MarkDispatched(ctx, sent, r.now().UTC()); err != nil {
			return 0, fmt.Errorf("mark events dispatched: %w", err)
		}
		if r.metrics != nil {
			r.metrics.EventsRelayed.Add(ctx, int64(len(sent)))
		}
	}
	return len(sent), pubErr
}

// Purge deletes dispatched events older than the retention window.
func (r *OutboxRelay) Purge(ctx context.Context) (int64, error) {
	if r.cfg.Retention <= 0 {
		return 0, nil
	}
	n, err := r.events.PurgeDispatched(ctx, r.now().Add(-r.cfg.Retention))
	if err != nil {
		return 0, fmt.Errorf("purge dispatched events: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "dispatched events purged", "count", n)
	}
	return n, nil
}

// Run relays every poll_interval until ctx is cancelled. A full batch is
// followed immediately by another pass. Purging runs once per hour.
func (r *OutboxRelay) Run(ctx context.Context) error {
	interval := r.cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	batch := r.batchSize()
	lastPurge := time.Time{}

	for {
		n, err := r.RelayOnce(ctx)
		if err != nil && ctx.Err() == nil {
			slog.Error("outbox relay failed", "error", err)
		}
		if r.now().Sub(lastPurge) >= time.Hour {
			if _, err := r.Purge(ctx); err != nil && ctx.Err() == nil {
				slog.Error("outbox purge failed", "error", err)
			}
			lastPurge = r.now()
		}
		if err == nil && n == batch {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
