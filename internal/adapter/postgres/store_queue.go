package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/Upchuck/internal/domain"
	"github.com/Strob0t/Upchuck/internal/domain/queue"
	"github.com/Strob0t/Upchuck/internal/port/database"
)

const queueColumns = `id, file_path, message_id, status, queued_at, processing_started_at,
	completed_at, error_message, retry_count, processing_metadata`

func scanQueueItem(row scannable) (queue.Item, error) {
	var (
		it       queue.Item
		id       string
		status   string
		metadata []byte
	)
	err := row.Scan(&id, &it.FilePath, &it.MessageID, &status, &it.QueuedAt, &it.ProcessingStartedAt,
		&it.CompletedAt, &it.ErrorMessage, &it.RetryCount, &metadata)
	if err != nil {
		return it, err
	}
	if it.ID, err = parseID(id, "queue item"); err != nil {
		return it, err
	}
	it.Status = queue.Status(status)
	it.ProcessingMetadata = metadata
	return it, nil
}

func collectQueueItems(rows pgx.Rows) ([]queue.Item, error) {
	defer rows.Close()
	var items []queue.Item
	for rows.Next() {
		it, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, it)
	}
	return orEmpty(items), rows.Err()
}

func (s *Store) EnqueueItem(ctx context.Context, it *queue.Item) (*queue.Item, bool, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO processing_queue (id, file_path, message_id, status, queued_at, retry_count, processing_metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (message_id) DO NOTHING
		 RETURNING `+queueColumns,
		it.ID, it.FilePath, it.MessageID, string(it.Status), it.QueuedAt, it.RetryCount, []byte(it.ProcessingMetadata))
	stored, err := scanQueueItem(row)
	if err == nil {
		return &stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("enqueue %s: %w", it.MessageID, err)
	}

	row = s.pool.QueryRow(ctx,
		`SELECT `+queueColumns+` FROM processing_queue WHERE message_id = $1`, it.MessageID)
	existing, err := scanQueueItem(row)
	if err != nil {
		return nil, false, notFoundWrap(err, "enqueue %s: load existing", it.MessageID)
	}
	return &existing, false, nil
}

func (s *Store) GetQueueItem(ctx context.Context, id uuid.UUID) (*queue.Item, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+queueColumns+` FROM processing_queue WHERE id = $1`, id)
	it, err := scanQueueItem(row)
	if err != nil {
		return nil, notFoundWrap(err, "get queue item %s", id)
	}
	return &it, nil
}

func (s *Store) ListQueueItems(ctx context.Context, filter database.QueueFilter) ([]queue.Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+queueColumns+` FROM processing_queue
		 WHERE ($1 = '' OR status = $1)
		 ORDER BY queued_at DESC LIMIT $2`,
		string(filter.Status), limitOrDefault(filter.Limit))
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	return collectQueueItems(rows)
}

func (s *Store) ListRetryableQueueItems(ctx context.Context, maxRetryCount, limit int) ([]queue.Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+queueColumns+` FROM processing_queue
		 WHERE status = 'Failed' AND retry_count < $1
		 ORDER BY queued_at LIMIT $2`,
		maxRetryCount, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("list retryable queue items: %w", err)
	}
	return collectQueueItems(rows)
}

func (s *Store) ListExpiredProcessingItems(ctx context.Context, startedBefore time.Time, limit int) ([]queue.Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+queueColumns+` FROM processing_queue
		 WHERE status = 'Processing' AND processing_started_at < $1
		 ORDER BY processing_started_at LIMIT $2`,
		startedBefore, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("list expired processing items: %w", err)
	}
	return collectQueueItems(rows)
}

// ClaimQueueItem locks the row, checks the transition in the domain and
// writes it back under a status guard.
func (s *Store) ClaimQueueItem(ctx context.Context, id uuid.UUID, maxRetryCount int) (*queue.Item, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	row := tx.QueryRow(ctx, `SELECT `+queueColumns+` FROM processing_queue WHERE id = $1 FOR UPDATE`, id)
	it, err := scanQueueItem(row)
	if err != nil {
		return nil, notFoundWrap(err, "claim queue item %s", id)
	}

	if it.Status == queue.StatusFailed && !it.CanRetry(maxRetryCount) {
		return nil, fmt.Errorf("claim queue item %s: retry budget exhausted: %w", id,
			domain.NewInvalidStateError("queue item", "claim", string(it.Status)))
	}
	if !it.CanStart() {
		return nil, fmt.Errorf("claim queue item %s (status %s): %w", id, it.Status, domain.ErrConflict)
	}

	if err := s.startProcessing(ctx, tx, &it); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim %s: %w", id, err)
	}
	return &it, nil
}

// ClaimNextQueueItem takes the oldest Queued item, then the oldest Failed
// item with retry budget left. Rows locked by other workers are skipped.
func (s *Store) ClaimNextQueueItem(ctx context.Context, maxRetryCount int) (*queue.Item, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	row := tx.QueryRow(ctx,
		`SELECT `+queueColumns+` FROM processing_queue
		 WHERE status = 'Queued' OR (status = 'Failed' AND retry_count < $1)
		 ORDER BY (status = 'Failed'), queued_at
		 LIMIT 1
		 FOR UPDATE SKIP LOCKED`, maxRetryCount)
	it, err := scanQueueItem(row)
	if err != nil {
		return nil, notFoundWrap(err, "claim next queue item")
	}

	if err := s.startProcessing(ctx, tx, &it); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim %s: %w", it.ID, err)
	}
	return &it, nil
}

func (s *Store) startProcessing(ctx context.Context, tx pgx.Tx, it *queue.Item) error {
	expected := it.Status
	if err := it.StartProcessing(); err != nil {
		return fmt.Errorf("claim queue item %s: %w", it.ID, err)
	}
	return updateQueueItem(ctx, tx, it, expected)
}

func (s *Store) SaveQueueItem(ctx context.Context, it *queue.Item, expected queue.Status) error {
	return updateQueueItem(ctx, s.pool, it, expected)
}

// updateQueueItem writes every mutable column of it, provided the stored
// status still equals expected.
func updateQueueItem(ctx context.Context, q querier, it *queue.Item, expected queue.Status) error {
	tag, err := q.Exec(ctx,
		`UPDATE processing_queue
		 SET status = $2, processing_started_at = $3, completed_at = $4, error_message = $5,
		     retry_count = $6, processing_metadata = $7
		 WHERE id = $1 AND status = $8`,
		it.ID, string(it.Status), it.ProcessingStartedAt, it.CompletedAt, it.ErrorMessage,
		it.RetryCount, []byte(it.ProcessingMetadata), string(expected))
	if err != nil {
		return fmt.Errorf("update queue item %s: %w", it.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update queue item %s (expected %s): %w", it.ID, expected, domain.ErrConflict)
	}
	return nil
}

// SaveProcessingResult finishes an item and records everything the agent
// produced, with their events, in one transaction.
func (s *Store) SaveProcessingResult(ctx context.Context, res database.ProcessingResult) error {
	if res.Item == nil {
		return errors.New("save processing result: nil item")
	}
	if res.Item.Status != queue.StatusCompleted && res.Item.Status != queue.StatusFailed {
		return fmt.Errorf("save processing result %s: %w", res.Item.ID,
			domain.NewInvalidStateError("queue item", "save result", string(res.Item.Status)))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := updateQueueItem(ctx, tx, res.Item, queue.StatusProcessing); err != nil {
		return err
	}
	for _, d := range res.Extractions {
		if err := insertExtraction(ctx, tx, d); err != nil {
			return err
		}
		if err := appendEvents(ctx, tx, d.Events()); err != nil {
			return err
		}
	}
	for _, p := range res.Proposals {
		if err := insertProposal(ctx, tx, p); err != nil {
			return err
		}
		if err := appendEvents(ctx, tx, p.Events()); err != nil {
			return err
		}
	}
	if err := appendEvents(ctx, tx, res.Events); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit processing result %s: %w", res.Item.ID, err)
	}

	for _, d := range res.Extractions {
		d.ClearEvents()
	}
	for _, p := range res.Proposals {
		p.ClearEvents()
	}
	return nil
}
