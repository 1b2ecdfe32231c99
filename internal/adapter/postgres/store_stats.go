package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/Upchuck/internal/domain/queue"
	"github.com/Strob0t/Upchuck/internal/domain/stats"
)

func (s *Store) PendingProposalsSummary(ctx context.Context) ([]stats.PendingSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT agent_type, pending_count, average_confidence, oldest_proposal, newest_proposal
		 FROM pending_proposals_summary ORDER BY agent_type`)
	if err != nil {
		return nil, fmt.Errorf("pending proposals summary: %w", err)
	}
	defer rows.Close()

	var out []stats.PendingSummary
	for rows.Next() {
		var p stats.PendingSummary
		if err := rows.Scan(&p.AgentType, &p.PendingCount, &p.AverageConfidence, &p.OldestProposal, &p.NewestProposal); err != nil {
			return nil, fmt.Errorf("scan pending summary: %w", err)
		}
		out = append(out, p)
	}
	return orEmpty(out), rows.Err()
}

func (s *Store) AgentProcessingStats(ctx context.Context) ([]stats.AgentStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT agent_type, is_enabled, autonomy_level, total_proposals, total_extractions,
		        approved_proposals, average_proposal_confidence, average_extraction_confidence
		 FROM agent_processing_stats ORDER BY agent_type`)
	if err != nil {
		return nil, fmt.Errorf("agent processing stats: %w", err)
	}
	defer rows.Close()

	var out []stats.AgentStats
	for rows.Next() {
		var a stats.AgentStats
		if err := rows.Scan(&a.AgentType, &a.IsEnabled, &a.AutonomyLevel, &a.TotalProposals, &a.TotalExtractions,
			&a.ApprovedProposals, &a.AverageProposalConfidence, &a.AverageExtractionConfidence); err != nil {
			return nil, fmt.Errorf("scan agent stats: %w", err)
		}
		out = append(out, a)
	}
	return orEmpty(out), rows.Err()
}

// QueueDepth reports every status, including those with no items.
func (s *Store) QueueDepth(ctx context.Context) (stats.QueueDepth, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM processing_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue depth: %w", err)
	}
	defer rows.Close()

	depth := stats.QueueDepth{
		string(queue.StatusQueued):     0,
		string(queue.StatusProcessing): 0,
		string(queue.StatusCompleted):  0,
		string(queue.StatusFailed):     0,
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan queue depth: %w", err)
		}
		depth[status] = n
	}
	return depth, rows.Err()
}
