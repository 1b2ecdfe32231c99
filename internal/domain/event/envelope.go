package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the persisted and transported form of an event. The outbox
// stores envelopes; the relay publishes them with ID as the message id so
// that redelivery after a crash is deduplicated by the broker.
type Envelope struct {
	ID           uuid.UUID       `json:"id"`
	Type         Type            `json:"type"`
	AggregateID  uuid.UUID       `json:"aggregate_id"`
	Payload      json.RawMessage `json:"payload"`
	OccurredAt   time.Time       `json:"occurred_at"`
	DispatchedAt *time.Time      `json:"dispatched_at,omitempty"`
}

// Wrap marshals e into a new Envelope with a fresh ID.
func Wrap(e Event) (Envelope, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", e.EventType(), err)
	}
	return Envelope{
		ID:          uuid.New(),
		Type:        e.EventType(),
		AggregateID: e.AggregateID(),
		Payload:     payload,
		OccurredAt:  e.OccurredAt(),
	}, nil
}

// WrapAll wraps events in order.
func WrapAll(events []Event) ([]Envelope, error) {
	out := make([]Envelope, 0, len(events))
	for _, e := range events {
		env, err := Wrap(e)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

// Decode unmarshals the envelope payload into its concrete event type.
func (env Envelope) Decode() (Event, error) {
	var (
		ev  Event
		err error
	)
	switch env.Type {
	case TypeDataExtracted:
		var p DataExtracted
		err = json.Unmarshal(env.Payload, &p)
		ev = p
	case TypeProposalCreated:
		var p ProposalCreated
		err = json.Unmarshal(env.Payload, &p)
		ev = p
	case TypeProposalApproved:
		var p ProposalApproved
		err = json.Unmarshal(env.Payload, &p)
		ev = p
	case TypeProposalApplied:
		var p ProposalApplied
		err = json.Unmarshal(env.Payload, &p)
		ev = p
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return ev, nil
}
