// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/Upchuck/internal/domain/agentconfig"
	"github.com/Strob0t/Upchuck/internal/domain/event"
	"github.com/Strob0t/Upchuck/internal/domain/extraction"
	"github.com/Strob0t/Upchuck/internal/domain/proposal"
	"github.com/Strob0t/Upchuck/internal/domain/queue"
	"github.com/Strob0t/Upchuck/internal/domain/stats"
)

// DefaultListLimit applies when a filter leaves Limit at zero.
const DefaultListLimit = 100

// QueueFilter narrows ListQueueItems.
type QueueFilter struct {
	Status queue.Status
	Limit  int
}

// ProposalFilter narrows ListProposals.
type ProposalFilter struct {
	Status               proposal.ReviewStatus
	AgentType            string
	AgentConfigurationID uuid.UUID
	Limit                int
}

// ExtractionFilter narrows ListExtractions.
type ExtractionFilter struct {
	SourceFilePath       string
	AgentType            string
	AgentConfigurationID uuid.UUID
	Limit                int
}

// ProcessingResult is everything a worker persists when an item finishes.
// Item must already be Completed or Failed; the transition from Processing
// and the inserts commit together. Events holds events not owned by any
// stored entity, such as applied proposals.
type ProcessingResult struct {
	Item        *queue.Item
	Extractions []*extraction.ExtractedData
	Proposals   []*proposal.ElevationProposal
	Events      []event.Event
}

// Store is the port interface for database operations. Methods that persist
// entities carrying buffered events write those events to the outbox in the
// same transaction and clear the buffer only after commit.
type Store interface {
	// Agent configurations
	ListAgentConfigs(ctx context.Context) ([]agentconfig.AgentConfiguration, error)
	GetAgentConfig(ctx context.Context, id uuid.UUID) (*agentconfig.AgentConfiguration, error)
	GetAgentConfigByType(ctx context.Context, agentType string) (*agentconfig.AgentConfiguration, error)
	CreateAgentConfig(ctx context.Context, c *agentconfig.AgentConfiguration) error
	// UpdateAgentConfig writes c only if the stored version equals
	// expectedVersion; otherwise it returns domain.ErrConflict.
	UpdateAgentConfig(ctx context.Context, c *agentconfig.AgentConfiguration, expectedVersion int) error
	// DeleteAgentConfig fails with domain.ErrConflict while proposals or
	// extractions still reference the configuration.
	DeleteAgentConfig(ctx context.Context, id uuid.UUID) error

	// Processing queue
	// EnqueueItem inserts it unless its MessageID already exists, in which
	// case the stored item is returned with created=false.
	EnqueueItem(ctx context.Context, it *queue.Item) (stored *queue.Item, created bool, err error)
	GetQueueItem(ctx context.Context, id uuid.UUID) (*queue.Item, error)
	ListQueueItems(ctx context.Context, filter QueueFilter) ([]queue.Item, error)
	// ClaimQueueItem moves one Queued (or retryable Failed) item to
	// Processing with a conditional update. domain.ErrConflict means another
	// worker won.
	ClaimQueueItem(ctx context.Context, id uuid.UUID, maxRetryCount int) (*queue.Item, error)
	// ClaimNextQueueItem claims the oldest claimable item, skipping rows
	// locked by other workers. domain.ErrNotFound means nothing is claimable.
	ClaimNextQueueItem(ctx context.Context, maxRetryCount int) (*queue.Item, error)
	// SaveQueueItem writes it if the stored status still equals expected.
	SaveQueueItem(ctx context.Context, it *queue.Item, expected queue.Status) error
	SaveProcessingResult(ctx context.Context, res ProcessingResult) error
	ListRetryableQueueItems(ctx context.Context, maxRetryCount, limit int) ([]queue.Item, error)
	// ListExpiredProcessingItems returns Processing items started before
	// startedBefore, oldest first.
	ListExpiredProcessingItems(ctx context.Context, startedBefore time.Time, limit int) ([]queue.Item, error)

	// Extractions
	CreateExtraction(ctx context.Context, d *extraction.ExtractedData) error
	ListExtractions(ctx context.Context, filter ExtractionFilter) ([]extraction.ExtractedData, error)

	// Proposals
	CreateProposal(ctx context.Context, p *proposal.ElevationProposal) error
	GetProposal(ctx context.Context, id uuid.UUID) (*proposal.ElevationProposal, error)
	ListProposals(ctx context.Context, filter ProposalFilter) ([]proposal.ElevationProposal, error)
	// SaveProposalReview persists a review decision only if the stored
	// proposal is still Pending; otherwise domain.ErrConflict.
	SaveProposalReview(ctx context.Context, p *proposal.ElevationProposal) error
	ListStalePendingProposals(ctx context.Context, createdBefore time.Time, limit int) ([]proposal.ElevationProposal, error)

	// Stats
	PendingProposalsSummary(ctx context.Context) ([]stats.PendingSummary, error)
	AgentProcessingStats(ctx context.Context) ([]stats.AgentStats, error)
	QueueDepth(ctx context.Context) (stats.QueueDepth, error)

	// Health
	Ping(ctx context.Context) error
}
