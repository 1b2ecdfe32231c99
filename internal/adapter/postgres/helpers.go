package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Strob0t/Upchuck/internal/domain"
	"github.com/Strob0t/Upchuck/internal/domain/event"
	"github.com/Strob0t/Upchuck/internal/port/database"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

// orEmpty returns items unchanged if non-nil, or an empty slice if nil.
// Useful to ensure JSON serialization produces [] instead of null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// limitOrDefault maps a non-positive limit to database.DefaultListLimit.
func limitOrDefault(limit int) int {
	if limit <= 0 {
		return database.DefaultListLimit
	}
	return limit
}

// nullUUID returns nil for uuid.Nil so optional filters bind as SQL NULL.
func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

// nullJSON returns nil for an empty payload (for nullable JSONB columns).
func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func parseID(s, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse %s id %q: %w", what, s, err)
	}
	return id, nil
}

// notFoundWrap checks whether err is pgx.ErrNoRows and, if so, wraps
// domain.ErrNotFound with the given message. Otherwise it wraps the
// original error.
func notFoundWrap(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// execExpectOne verifies that an Exec affected exactly one row. If not
// (and err is nil), it returns domain.ErrNotFound with the given message.
func execExpectOne(tag pgconn.CommandTag, err error, format string, args ...any) error {
	if err != nil {
		return fmt.Errorf(fmt.Sprintf(format, args...)+": %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf(fmt.Sprintf(format, args...)+": %w", domain.ErrNotFound)
	}
	return nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool { return pgCode(err) == pgUniqueViolation }

func isForeignKeyViolation(err error) bool { return pgCode(err) == pgForeignKeyViolation }

// insertErr maps constraint violations raised by an INSERT to domain errors:
// a duplicate key is a conflict, a dangling reference is a missing parent.
func insertErr(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("%s: %w", msg, domain.ErrConflict)
	case isForeignKeyViolation(err):
		return fmt.Errorf("%s: agent configuration: %w", msg, domain.ErrNotFound)
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}

// appendEvents writes events to the outbox through q, normally the
// transaction that persisted the entity raising them.
func appendEvents(ctx context.Context, q querier, events []event.Event) error {
	envs, err := event.WrapAll(events)
	if err != nil {
		return fmt.Errorf("wrap events: %w", err)
	}
	for i := range envs {
		env := &envs[i]
		_, err := q.Exec(ctx,
			`INSERT INTO outbox_events (id, event_type, aggregate_id, payload, occurred_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			env.ID, string(env.Type), env.AggregateID, []byte(env.Payload), env.OccurredAt)
		if err != nil {
			return fmt.Errorf("append event %s: %w", env.Type, err)
		}
	}
	return nil
}
