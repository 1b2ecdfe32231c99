package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/Upchuck/internal/domain/event"
	"github.com/Strob0t/Upchuck/internal/port/eventstore"
)

var _ eventstore.Store = (*EventStore)(nil)

// EventStore implements eventstore.Store on the outbox_events table.
type EventStore struct {
	pool Pool
}

// NewEventStore creates an EventStore backed by the given pool.
func NewEventStore(pool Pool) *EventStore {
	return &EventStore{pool: pool}
}

const envelopeColumns = `id, event_type, aggregate_id, payload, occurred_at, dispatched_at`

func scanEnvelope(row scannable) (event.Envelope, error) {
	var (
		env       event.Envelope
		id, aggID string
		eventType string
		payload   []byte
	)
	if err := row.Scan(&id, &eventType, &aggID, &payload, &env.OccurredAt, &env.DispatchedAt); err != nil {
		return env, err
	}
	var err error
	if env.ID, err = parseID(id, "event"); err != nil {
		return env, err
	}
	if env.AggregateID, err = parseID(aggID, "aggregate"); err != nil {
		return env, err
	}
	env.Type = event.Type(eventType)
	env.Payload = payload
	return env, nil
}

func (s *EventStore) query(ctx context.Context, what, sql string, args ...any) ([]event.Envelope, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	defer rows.Close()

	var out []event.Envelope
	for rows.Next() {
		env, err := scanEnvelope(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", what, err)
		}
		out = append(out, env)
	}
	return orEmpty(out), rows.Err()
}

func (s *EventStore) ListUndispatched(ctx context.Context, limit int) ([]event.Envelope, error) {
	return s.query(ctx, "list undispatched events",
		`SELECT `+envelopeColumns+` FROM outbox_events
		 WHERE dispatched_at IS NULL ORDER BY seq LIMIT $1`, limitOrDefault(limit))
}

func (s *EventStore) MarkDispatched(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE outbox_events SET dispatched_at = $2
		 WHERE id = ANY($1::uuid[]) AND dispatched_at IS NULL`, strIDs, at)
	if err != nil {
		return fmt.Errorf("mark %d events dispatched: %w", len(ids), err)
	}
	return nil
}

func (s *EventStore) LoadByAggregate(ctx context.Context, aggregateID uuid.UUID) ([]event.Envelope, error) {
	return s.query(ctx, fmt.Sprintf("load events for %s", aggregateID),
		`SELECT `+envelopeColumns+` FROM outbox_events
		 WHERE aggregate_id = $1 ORDER BY seq`, aggregateID)
}

func (s *EventStore) PurgeDispatched(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM outbox_events WHERE dispatched_at IS NOT NULL AND dispatched_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge dispatched events: %w", err)
	}
	return tag.RowsAffected(), nil
}
