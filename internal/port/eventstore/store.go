// Package eventstore defines the port interface for the transactional
// outbox that holds domain events until they are relayed.
package eventstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/Upchuck/internal/domain/event"
)

// Store reads and acknowledges outbox entries. Entries are appended by the
// database store inside the transaction that produced them.
type Store interface {
	// ListUndispatched returns up to limit envelopes not yet relayed,
	// oldest first.
	ListUndispatched(ctx context.Context, limit int) ([]event.Envelope, error)

	// MarkDispatched stamps the given envelopes as relayed.
	MarkDispatched(ctx context.Context, ids []uuid.UUID, at time.Time) error

	// LoadByAggregate returns every envelope for one entity, oldest first.
	LoadByAggregate(ctx context.Context, aggregateID uuid.UUID) ([]event.Envelope, error)

	// PurgeDispatched deletes relayed envelopes older than before.
	PurgeDispatched(ctx context.Context, before time.Time) (int64, error)
}
