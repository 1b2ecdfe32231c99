// Package event defines the domain events emitted by curation entities and
// the per-entity buffer that holds them until the store commits.
package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/Upchuck/internal/domain/confidence"
)

// Type identifies the kind of domain event.
type Type string

const (
	TypeDataExtracted    Type = "curation.data_extracted"
	TypeProposalCreated  Type = "curation.proposal_created"
	TypeProposalApproved Type = "curation.proposal_approved"
	TypeProposalApplied  Type = "curation.proposal_applied"
)

// Event is implemented by every domain event payload.
type Event interface {
	EventType() Type
	AggregateID() uuid.UUID
	OccurredAt() time.Time
}

// DataExtracted is raised when an agent records an extraction.
type DataExtracted struct {
	DataID          uuid.UUID        `json:"data_id"`
	AgentType       string           `json:"agent_type"`
	SourceFilePath  string           `json:"source_file_path"`
	DataType        string           `json:"data_type"`
	DataValue       string           `json:"data_value"`
	ConfidenceScore confidence.Score `json:"confidence_score"`
	ExtractedAt     time.Time        `json:"extracted_at"`
}

func (e DataExtracted) EventType() Type        { return TypeDataExtracted }
func (e DataExtracted) AggregateID() uuid.UUID { return e.DataID }
func (e DataExtracted) OccurredAt() time.Time  { return e.ExtractedAt }

// ProposalCreated is raised when an elevation proposal enters review.
type ProposalCreated struct {
	ProposalID      uuid.UUID        `json:"proposal_id"`
	AgentType       string           `json:"agent_type"`
	SourceFilePath  string           `json:"source_file_path"`
	ConfidenceScore confidence.Score `json:"confidence_score"`
	CreatedAt       time.Time        `json:"created_at"`
}

func (e ProposalCreated) EventType() Type        { return TypeProposalCreated }
func (e ProposalCreated) AggregateID() uuid.UUID { return e.ProposalID }
func (e ProposalCreated) OccurredAt() time.Time  { return e.CreatedAt }

// ProposalApproved is raised when a proposal is approved. Its consumer writes
// the curated content to OutputDestination.
type ProposalApproved struct {
	ProposalID        uuid.UUID `json:"proposal_id"`
	AgentType         string    `json:"agent_type"`
	OutputDestination string    `json:"output_destination"`
	ReviewerComments  *string   `json:"reviewer_comments"`
	ApprovedAt        time.Time `json:"approved_at"`
}

func (e ProposalApproved) EventType() Type        { return TypeProposalApproved }
func (e ProposalApproved) AggregateID() uuid.UUID { return e.ProposalID }
func (e ProposalApproved) OccurredAt() time.Time  { return e.ApprovedAt }

// ProposalApplied is raised when a FullyAutonomous agent's output is applied
// without a review record. It carries the curated content because no
// proposal row holds it.
type ProposalApplied struct {
	ApplicationID        uuid.UUID        `json:"application_id"`
	QueueItemID          uuid.UUID        `json:"queue_item_id"`
	AgentType            string           `json:"agent_type"`
	AgentConfigurationID uuid.UUID        `json:"agent_configuration_id"`
	SourceFilePath       string           `json:"source_file_path"`
	OutputDestination    string           `json:"output_destination"`
	CuratedContent       string           `json:"curated_content"`
	ConfidenceScore      confidence.Score `json:"confidence_score"`
	AppliedAt            time.Time        `json:"applied_at"`
}

func (e ProposalApplied) EventType() Type        { return TypeProposalApplied }
func (e ProposalApplied) AggregateID() uuid.UUID { return e.ApplicationID }
func (e ProposalApplied) OccurredAt() time.Time  { return e.AppliedAt }

// Buffer accumulates events raised by one entity. It is not safe for
// concurrent use; entities are mutated by one caller at a time.
type Buffer struct {
	events []Event
}

// Record appends an event.
func (b *Buffer) Record(e Event) {
	b.events = append(b.events, e)
}

// Events returns a copy of the buffered events in the order they were raised.
func (b *Buffer) Events() []Event {
	if len(b.events) == 0 {
		return nil
	}
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int { return len(b.events) }

// Clear drops all buffered events. Calling it on an empty buffer is a no-op.
func (b *Buffer) Clear() {
	b.events = nil
}
