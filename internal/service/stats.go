package service

import (
	"context"

	"github.com/Strob0t/Upchuck/internal/domain/stats"
	"github.com/Strob0t/Upchuck/internal/port/database"
)

// StatsService serves the review and agent dashboards.
type StatsService struct {
	store database.Store
}

// NewStatsService creates a new StatsService.
func NewStatsService(store database.Store) *StatsService {
	return &StatsService{store: store}
}

// PendingSummary returns the Pending proposals per agent type.
func (s *StatsService) PendingSummary(ctx context.Context) ([]stats.PendingSummary, error) {
	return s.store.PendingProposalsSummary(ctx)
}

// AgentStats returns output and approval counts per agent configuration.
func (s *StatsService) AgentStats(ctx context.Context) ([]stats.AgentStats, error) {
	return s.store.AgentProcessingStats(ctx)
}

// QueueDepth returns item counts per queue status.
func (s *StatsService) QueueDepth(ctx context.Context) (stats.QueueDepth, error) {
	return s.store.QueueDepth(ctx)
}
