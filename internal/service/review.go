package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	cfotel "github.com/Strob0t/Upchuck/internal/adapter/otel"
	"github.com/Strob0t/Upchuck/internal/config"
	"github.com/Strob0t/Upchuck/internal/domain"
	"github.com/Strob0t/Upchuck/internal/domain/proposal"
	"github.com/Strob0t/Upchuck/internal/port/database"
)

const defaultSweepBatch = 100

// ReviewService drives the human review of elevation proposals.
type ReviewService struct {
	store   database.Store
	metrics *cfotel.Metrics
	cfg     config.Review
	now     func() time.Time
}

// NewReviewService creates a new ReviewService.
func NewReviewService(store database.Store, cfg config.Review) *ReviewService {
	return &ReviewService{store: store, cfg: cfg, now: time.Now}
}

// SetMetrics attaches OTEL instruments.
func (s *ReviewService) SetMetrics(m *cfotel.Metrics) { s.metrics = m }

// List returns proposals matching filter, newest first.
func (s *ReviewService) List(ctx context.Context, filter database.ProposalFilter) ([]proposal.ElevationProposal, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.NewValidationError("status", "unknown review status "+string(filter.Status))
	}
	return s.store.ListProposals(ctx, filter)
}

// Get returns a proposal by ID.
func (s *ReviewService) Get(ctx context.Context, id uuid.UUID) (*proposal.ElevationProposal, error) {
	return s.store.GetProposal(ctx, id)
}

// Approve accepts a Pending proposal.
func (s *ReviewService) Approve(ctx context.Context, id uuid.UUID, comments *string) (*proposal.ElevationProposal, error) {
	return s.review(ctx, id, "approve", func(p *proposal.ElevationProposal) error { return p.Approve(comments) })
}

// Deny rejects a Pending proposal.
func (s *ReviewService) Deny(ctx context.Context, id uuid.UUID, comments *string) (*proposal.ElevationProposal, error) {
	return s.review(ctx, id, "deny", func(p *proposal.ElevationProposal) error { return p.Deny(comments) })
}

// Expire closes a Pending proposal without a decision.
func (s *ReviewService) Expire(ctx context.Context, id uuid.UUID) (*proposal.ElevationProposal, error) {
	return s.review(ctx, id, "expire", (*proposal.ElevationProposal).Expire)
}

func (s *ReviewService) review(ctx context.Context, id uuid.UUID, op string, fn func(*proposal.ElevationProposal) error) (_ *proposal.ElevationProposal, err error) {
	ctx, span := cfotel.StartReviewSpan(ctx, id.String(), op)
	defer func() { cfotel.EndSpan(span, err) }()

	p, err := s.store.GetProposal(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	if err := s.store.SaveProposalReview(ctx, p); err != nil {
		return nil, fmt.Errorf("%s proposal %s: %w", op, id, err)
	}

	if s.metrics != nil {
		s.metrics.RecordReview(ctx, p.AgentType, string(p.ReviewStatus))
	}
	slog.InfoContext(ctx, "proposal reviewed",
		"proposal_id", id, "agent_type", p.AgentType, "status", p.ReviewStatus)
	return p, nil
}

// ExpireStale expires Pending proposals older than review.expire_after and
// returns how many it expired. Proposals reviewed concurrently are skipped.
func (s *ReviewService) ExpireStale(ctx context.Context) (int, error) {
	if s.cfg.ExpireAfter <= 0 {
		return 0, nil
	}
	batch := s.cfg.SweepBatch
	if batch <= 0 {
		batch = defaultSweepBatch
	}

	stale, err := s.store.ListStalePendingProposals(ctx, s.now().Add(-s.cfg.ExpireAfter), batch)
	if err != nil {
		return 0, fmt.Errorf("list stale proposals: %w", err)
	}

	expired := 0
	for i := range stale {
		p := &stale[i]
		if err := p.Expire(); err != nil {
			continue
		}
		if err := s.store.SaveProposalReview(ctx, p); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				continue
			}
			return expired, fmt.Errorf("expire proposal %s: %w", p.ID, err)
		}
		if s.metrics != nil {
			s.metrics.RecordReview(ctx, p.AgentType, string(p.ReviewStatus))
		}
		expired++
	}
	if expired > 0 {
		slog.InfoContext(ctx, "stale proposals expired", "count", expired)
	}
	return expired, nil
}

// RunSweeper calls ExpireStale every sweep_interval until ctx is cancelled.
func (s *ReviewService) RunSweeper(ctx context.Context) error {
	if s.cfg.ExpireAfter <= 0 || s.cfg.SweepInterval <= 0 {
		slog.Info("proposal expiry sweeper disabled")
		return nil
	}
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.ExpireStale(ctx); err != nil && ctx.Err() == nil {
				slog.Error("proposal sweep failed", "error", err)
			}
		}
	}
}
