package service

import (
	"github.com/Strob0t/Upchuck/internal/domain/agentconfig"
	"github.com/Strob0t/Upchuck/internal/domain/confidence"
)

// Decision is what happens to one agent proposal.
type Decision string

const (
	// DecisionRequireReview stores a Pending proposal for a human.
	DecisionRequireReview Decision = "require_review"
	// DecisionAutoApprove stores the proposal already Approved.
	DecisionAutoApprove Decision = "auto_approve"
	// DecisionBypass acts without any review record.
	DecisionBypass Decision = "bypass"
	// DecisionSkip drops the output of a disabled agent.
	DecisionSkip Decision = "skip"
)

// AutonomyPolicy maps an agent configuration and a proposal's confidence to
// a Decision. Entities never apply autonomy themselves.
type AutonomyPolicy struct{}

// Decide applies the configuration's autonomy level. Output below the
// threshold always goes to review.
func (AutonomyPolicy) Decide(cfg *agentconfig.AgentConfiguration, score confidence.Score) Decision {
	if !cfg.IsEnabled {
		return DecisionSkip
	}
	if !score.AtLeast(cfg.ConfidenceThreshold) {
		return DecisionRequireReview
	}
	switch cfg.AutonomyLevel {
	case agentconfig.AutonomySemiAutonomous:
		return DecisionAutoApprove
	case agentconfig.AutonomyFullyAutonomous:
		return DecisionBypass
	default:
		return DecisionRequireReview
	}
}
