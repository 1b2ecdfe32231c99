package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/Upchuck/internal/domain"
	"github.com/Strob0t/Upchuck/internal/domain/confidence"
	"github.com/Strob0t/Upchuck/internal/domain/proposal"
	"github.com/Strob0t/Upchuck/internal/port/database"
)

const proposalColumns = `id, source_file_path, agent_type, original_content, curated_content,
	confidence_score, agent_rationale, review_status, created_at, reviewed_at, reviewer_comments,
	output_destination, agent_configuration_id, processing_metadata`

func scanProposal(row scannable) (proposal.ElevationProposal, error) {
	var (
		p        proposal.ElevationProposal
		id       string
		configID string
		score    float64
		status   string
		metadata []byte
	)
	err := row.Scan(&id, &p.SourceFilePath, &p.AgentType, &p.OriginalContent, &p.CuratedContent,
		&score, &p.AgentRationale, &status, &p.CreatedAt, &p.ReviewedAt, &p.ReviewerComments,
		&p.OutputDestination, &configID, &metadata)
	if err != nil {
		return p, err
	}
	if p.ID, err = parseID(id, "proposal"); err != nil {
		return p, err
	}
	if p.AgentConfigurationID, err = parseID(configID, "agent configuration"); err != nil {
		return p, err
	}
	if p.ConfidenceScore, err = confidence.New(score); err != nil {
		return p, fmt.Errorf("proposal %s confidence: %w", id, err)
	}
	p.ReviewStatus = proposal.ReviewStatus(status)
	p.ProcessingMetadata = metadata
	return p, nil
}

func collectProposals(rows pgx.Rows) ([]proposal.ElevationProposal, error) {
	defer rows.Close()
	var out []proposal.ElevationProposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		out = append(out, p)
	}
	return orEmpty(out), rows.Err()
}

// insertProposal writes every column, so a proposal approved before its
// first save lands with its final status.
func insertProposal(ctx context.Context, q querier, p *proposal.ElevationProposal) error {
	_, err := q.Exec(ctx,
		`INSERT INTO elevation_proposals
		   (id, source_file_path, agent_type, original_content, curated_content, confidence_score,
		    agent_rationale, review_status, created_at, reviewed_at, reviewer_comments,
		    output_destination, agent_configuration_id, processing_metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		p.ID, p.SourceFilePath, p.AgentType, p.OriginalContent, p.CuratedContent, p.ConfidenceScore.Value(),
		p.AgentRationale, string(p.ReviewStatus), p.CreatedAt, p.ReviewedAt, p.ReviewerComments,
		p.OutputDestination, p.AgentConfigurationID, []byte(p.ProcessingMetadata))
	if err != nil {
		return insertErr(err, "insert proposal %s", p.ID)
	}
	return nil
}

func (s *Store) CreateProposal(ctx context.Context, p *proposal.ElevationProposal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := insertProposal(ctx, tx, p); err != nil {
		return err
	}
	if err := appendEvents(ctx, tx, p.Events()); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit proposal %s: %w", p.ID, err)
	}
	p.ClearEvents()
	return nil
}

func (s *Store) GetProposal(ctx context.Context, id uuid.UUID) (*proposal.ElevationProposal, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+proposalColumns+` FROM elevation_proposals WHERE id = $1`, id)
	p, err := scanProposal(row)
	if err != nil {
		return nil, notFoundWrap(err, "get proposal %s", id)
	}
	return &p, nil
}

func (s *Store) ListProposals(ctx context.Context, filter database.ProposalFilter) ([]proposal.ElevationProposal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+proposalColumns+` FROM elevation_proposals
		 WHERE ($1 = '' OR review_status = $1)
		   AND ($2 = '' OR agent_type = $2)
		   AND ($3::uuid IS NULL OR agent_configuration_id = $3)
		 ORDER BY created_at DESC LIMIT $4`,
		string(filter.Status), filter.AgentType, nullUUID(filter.AgentConfigurationID), limitOrDefault(filter.Limit))
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	return collectProposals(rows)
}

func (s *Store) ListStalePendingProposals(ctx context.Context, createdBefore time.Time, limit int) ([]proposal.ElevationProposal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+proposalColumns+` FROM elevation_proposals
		 WHERE review_status = 'Pending' AND created_at < $1
		 ORDER BY created_at LIMIT $2`,
		createdBefore, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("list stale proposals: %w", err)
	}
	return collectProposals(rows)
}

// SaveProposalReview writes a review decision if the stored row is still
// Pending, together with any events the decision raised.
func (s *Store) SaveProposalReview(ctx context.Context, p *proposal.ElevationProposal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	tag, err := tx.Exec(ctx,
		`UPDATE elevation_proposals
		 SET review_status = $2, reviewed_at = $3, reviewer_comments = $4
		 WHERE id = $1 AND review_status = 'Pending'`,
		p.ID, string(p.ReviewStatus), p.ReviewedAt, p.ReviewerComments)
	if err != nil {
		return fmt.Errorf("review proposal %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("review proposal %s: no longer pending: %w", p.ID, domain.ErrConflict)
	}
	if err := appendEvents(ctx, tx, p.Events()); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit review %s: %w", p.ID, err)
	}
	p.ClearEvents()
	return nil
}
