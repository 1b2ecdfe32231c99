package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/Upchuck/internal/domain"
	"github.com/Strob0t/Upchuck/internal/domain/queue"
	"github.com/Strob0t/Upchuck/internal/port/database"
)

const (
	retryFailedBatch = 500
	reclaimBatch     = 100

	leaseExpiredMessage = "processing lease expired"
)

// QueueService exposes the processing queue and its retry budget.
type QueueService struct {
	store         database.Store
	maxRetryCount int
	now           func() time.Time
}

// NewQueueService creates a new QueueService. A non-positive maxRetryCount
// falls back to queue.DefaultMaxRetryCount.
func NewQueueService(store database.Store, maxRetryCount int) *QueueService {
	if maxRetryCount <= 0 {
		maxRetryCount = queue.DefaultMaxRetryCount
	}
	return &QueueService{
		store:         store,
		maxRetryCount: maxRetryCount,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Get returns a queue item by ID.
func (s *QueueService) Get(ctx context.Context, id uuid.UUID) (*queue.Item, error) {
	return s.store.GetQueueItem(ctx, id)
}

// List returns queue items, newest first.
func (s *QueueService) List(ctx context.Context, filter database.QueueFilter) ([]queue.Item, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.NewValidationError("status", "unknown queue status "+string(filter.Status))
	}
	return s.store.ListQueueItems(ctx, filter)
}

// Retry puts a failed item back in the queue. An exhausted budget or a
// non-Failed item yields an InvalidStateError.
func (s *QueueService) Retry(ctx context.Context, id uuid.UUID) (*queue.Item, error) {
	it, err := s.store.GetQueueItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := it.Retry(s.maxRetryCount); err != nil {
		return nil, err
	}
	if err := s.store.SaveQueueItem(ctx, it, queue.StatusFailed); err != nil {
		return nil, fmt.Errorf("retry item %s: %w", id, err)
	}
	slog.InfoContext(ctx, "queue item requeued", "item_id", id, "retry_count", it.RetryCount)
	return it, nil
}

// RetryFailed requeues every failed item that still has budget and returns
// how many were requeued. Items claimed concurrently are skipped.
func (s *QueueService) RetryFailed(ctx context.Context) (int, error) {
	items, err := s.store.ListRetryableQueueItems(ctx, s.maxRetryCount, retryFailedBatch)
	if err != nil {
		return 0, fmt.Errorf("list retryable items: %w", err)
	}

	n := 0
	for i := range items {
		it := &items[i]
		if err := it.Retry(s.maxRetryCount); err != nil {
			continue
		}
		if err := s.store.SaveQueueItem(ctx, it, queue.StatusFailed); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				continue
			}
			return n, fmt.Errorf("retry item %s: %w", it.ID, err)
		}
		n++
	}
	slog.InfoContext(ctx, "failed queue items requeued", "count", n)
	return n, nil
}

// ReclaimExpired fails items that have been Processing for longer than
// lease, which happens when a worker dies or its result write is lost. The
// failure counts against the retry budget. Items that finish concurrently
// are skipped.
func (s *QueueService) ReclaimExpired(ctx context.Context, lease time.Duration) (int, error) {
	if lease <= 0 {
		return 0, nil
	}
	items, err := s.store.ListExpiredProcessingItems(ctx, s.now().Add(-lease), reclaimBatch)
	if err != nil {
		return 0, fmt.Errorf("list expired items: %w", err)
	}

	n := 0
	for i := range items {
		it := &items[i]
		if err := it.FailProcessing(leaseExpiredMessage); err != nil {
			continue
		}
		if err := s.store.SaveQueueItem(ctx, it, queue.StatusProcessing); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				continue
			}
			return n, fmt.Errorf("reclaim item %s: %w", it.ID, err)
		}
		slog.WarnContext(ctx, "processing lease expired",
			"item_id", it.ID, "file_path", it.FilePath, "retry_count", it.RetryCount,
			"can_retry", it.CanRetry(s.maxRetryCount))
		n++
	}
	return n, nil
}

// RunLeaseSweeper calls ReclaimExpired four times per lease until ctx is
// cancelled. A non-positive lease disables it.
func (s *QueueService) RunLeaseSweeper(ctx context.Context, lease time.Duration) error {
	if lease <= 0 {
		slog.Info("processing lease sweeper disabled")
		return nil
	}
	ticker := time.NewTicker(max(lease/4, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.ReclaimExpired(ctx, lease); err != nil && ctx.Err() == nil {
				slog.Error("processing lease sweep failed", "error", err)
			}
		}
	}
}
