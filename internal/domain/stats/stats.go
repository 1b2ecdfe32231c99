// Package stats holds the read models for the review and agent dashboards.
package stats

import "time"

// PendingSummary aggregates the Pending proposals of one agent type.
type PendingSummary struct {
	AgentType         string    `json:"agent_type"`
	PendingCount      int       `json:"pending_count"`
	AverageConfidence float64   `json:"average_confidence"`
	OldestProposal    time.Time `json:"oldest_proposal"`
	NewestProposal    time.Time `json:"newest_proposal"`
}

// AgentStats aggregates the output of one agent configuration.
type AgentStats struct {
	AgentType                   string   `json:"agent_type"`
	IsEnabled                   bool     `json:"is_enabled"`
	AutonomyLevel               string   `json:"autonomy_level"`
	TotalProposals              int      `json:"total_proposals"`
	TotalExtractions            int      `json:"total_extractions"`
	ApprovedProposals           int      `json:"approved_proposals"`
	AverageProposalConfidence   *float64 `json:"average_proposal_confidence,omitempty"`
	AverageExtractionConfidence *float64 `json:"average_extraction_confidence,omitempty"`
}

// ApprovalRate returns approved/total proposals, or 0 with no proposals.
func (s AgentStats) ApprovalRate() float64 {
	if s.TotalProposals == 0 {
		return 0
	}
	return float64(s.ApprovedProposals) / float64(s.TotalProposals)
}

// QueueDepth counts queue items per status.
type QueueDepth map[string]int
