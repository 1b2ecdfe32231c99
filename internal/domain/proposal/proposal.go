// Package proposal defines the elevation proposal and its review state
// machine: Pending until approved, denied or expired.
package proposal

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Strob0t/Upchuck/internal/domain"
	"github.com/Strob0t/Upchuck/internal/domain/confidence"
	"github.com/Strob0t/Upchuck/internal/domain/event"
)

// ReviewStatus is the review state of a proposal.
type ReviewStatus string

const (
	StatusPending  ReviewStatus = "Pending"
	StatusApproved ReviewStatus = "Approved"
	StatusDenied   ReviewStatus = "Denied"
	StatusExpired  ReviewStatus = "Expired"
)

var validStatuses = map[ReviewStatus]bool{
	StatusPending:  true,
	StatusApproved: true,
	StatusDenied:   true,
	StatusExpired:  true,
}

// Valid reports whether s is a known review status.
func (s ReviewStatus) Valid() bool { return validStatuses[s] }

// IsTerminal reports whether no further transition is possible.
func (s ReviewStatus) IsTerminal() bool { return s != StatusPending }

const entityName = "proposal"

// MaxReviewerCommentsLength bounds reviewer comments, in runes.
const MaxReviewerCommentsLength = 2000

var now = func() time.Time { return time.Now().UTC() }

// ElevationProposal is a candidate curated replacement for source content.
// ReviewedAt is nil exactly while the proposal is Pending.
type ElevationProposal struct {
	ID                   uuid.UUID        `json:"id"`
	SourceFilePath       string           `json:"source_file_path"`
	AgentType            string           `json:"agent_type"`
	OriginalContent      string           `json:"original_content"`
	CuratedContent       string           `json:"curated_content"`
	ConfidenceScore      confidence.Score `json:"confidence_score"`
	AgentRationale       string           `json:"agent_rationale"`
	ReviewStatus         ReviewStatus     `json:"review_status"`
	CreatedAt            time.Time        `json:"created_at"`
	ReviewedAt           *time.Time       `json:"reviewed_at,omitempty"`
	ReviewerComments     *string          `json:"reviewer_comments,omitempty"`
	OutputDestination    string           `json:"output_destination"`
	AgentConfigurationID uuid.UUID        `json:"agent_configuration_id"`
	ProcessingMetadata   json.RawMessage  `json:"processing_metadata"`

	events event.Buffer
}

// Params are the inputs of New. ProcessingMetadata defaults to {}.
type Params struct {
	SourceFilePath       string
	AgentType            string
	OriginalContent      string
	CuratedContent       string
	ConfidenceScore      confidence.Score
	AgentRationale       string
	OutputDestination    string
	AgentConfigurationID uuid.UUID
	ProcessingMetadata   json.RawMessage
}

// New validates p and returns a Pending proposal with a ProposalCreated
// event buffered.
func New(p Params) (*ElevationProposal, error) {
	required := []struct{ field, value string }{
		{"source_file_path", p.SourceFilePath},
		{"agent_type", p.AgentType},
		{"original_content", p.OriginalContent},
		{"curated_content", p.CuratedContent},
		{"agent_rationale", p.AgentRationale},
		{"output_destination", p.OutputDestination},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, domain.NewValidationError(r.field, r.field+" cannot be empty")
		}
	}
	if p.AgentConfigurationID == uuid.Nil {
		return nil, domain.NewValidationError("agent_configuration_id", "agent configuration id cannot be nil")
	}

	metadata := p.ProcessingMetadata
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}

	pr := &ElevationProposal{
		ID:                   uuid.New(),
		SourceFilePath:       p.SourceFilePath,
		AgentType:            p.AgentType,
		OriginalContent:      p.OriginalContent,
		CuratedContent:       p.CuratedContent,
		ConfidenceScore:      p.ConfidenceScore,
		AgentRationale:       p.AgentRationale,
		ReviewStatus:         StatusPending,
		CreatedAt:            now(),
		OutputDestination:    p.OutputDestination,
		AgentConfigurationID: p.AgentConfigurationID,
		ProcessingMetadata:   metadata,
	}
	pr.events.Record(event.ProposalCreated{
		ProposalID:      pr.ID,
		AgentType:       pr.AgentType,
		SourceFilePath:  pr.SourceFilePath,
		ConfidenceScore: pr.ConfidenceScore,
		CreatedAt:       pr.CreatedAt,
	})
	return pr, nil
}

func (p *ElevationProposal) review(operation string, status ReviewStatus, comments *string) error {
	if p.ReviewStatus != StatusPending {
		return domain.NewInvalidStateError(entityName, operation, string(p.ReviewStatus))
	}
	if comments != nil && utf8.RuneCountInString(*comments) > MaxReviewerCommentsLength {
		return domain.NewValidationError("reviewer_comments", "reviewer comments exceed 2000 characters")
	}
	ts := now()
	p.ReviewStatus = status
	p.ReviewedAt = &ts
	if comments != nil {
		p.ReviewerComments = comments
	}
	return nil
}

// Approve accepts a Pending proposal and buffers ProposalApproved.
func (p *ElevationProposal) Approve(reviewerComments *string) error {
	if err := p.review("approve", StatusApproved, reviewerComments); err != nil {
		return err
	}
	p.events.Record(event.ProposalApproved{
		ProposalID:        p.ID,
		AgentType:         p.AgentType,
		OutputDestination: p.OutputDestination,
		ReviewerComments:  p.ReviewerComments,
		ApprovedAt:        *p.ReviewedAt,
	})
	return nil
}

// Deny rejects a Pending proposal. No event is raised.
func (p *ElevationProposal) Deny(reviewerComments *string) error {
	return p.review("deny", StatusDenied, reviewerComments)
}

// Expire closes a Pending proposal that was never reviewed in time.
func (p *ElevationProposal) Expire() error {
	return p.review("expire", StatusExpired, nil)
}

// Events returns the buffered events not yet committed.
func (p *ElevationProposal) Events() []event.Event { return p.events.Events() }

// ClearEvents drains the buffer after a successful commit.
func (p *ElevationProposal) ClearEvents() { p.events.Clear() }
