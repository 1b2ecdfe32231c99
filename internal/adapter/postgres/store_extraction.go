package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/Upchuck/internal/domain/confidence"
	"github.com/Strob0t/Upchuck/internal/domain/extraction"
	"github.com/Strob0t/Upchuck/internal/port/database"
)

const extractionColumns = `id, source_file_path, agent_type, data_type, data_value, data_uom,
	confidence_score, extracted_at, context, agent_configuration_id, processing_metadata`

func scanExtraction(row scannable) (extraction.ExtractedData, error) {
	var (
		d        extraction.ExtractedData
		id       string
		configID string
		score    float64
		metadata []byte
	)
	err := row.Scan(&id, &d.SourceFilePath, &d.AgentType, &d.DataType, &d.DataValue, &d.DataUOM,
		&score, &d.ExtractedAt, &d.Context, &configID, &metadata)
	if err != nil {
		return d, err
	}
	if d.ID, err = parseID(id, "extraction"); err != nil {
		return d, err
	}
	if d.AgentConfigurationID, err = parseID(configID, "agent configuration"); err != nil {
		return d, err
	}
	if d.ConfidenceScore, err = confidence.New(score); err != nil {
		return d, fmt.Errorf("extraction %s confidence: %w", id, err)
	}
	d.ProcessingMetadata = metadata
	return d, nil
}

func insertExtraction(ctx context.Context, q querier, d *extraction.ExtractedData) error {
	_, err := q.Exec(ctx,
		`INSERT INTO extracted_data
		   (id, source_file_path, agent_type, data_type, data_value, data_uom,
		    confidence_score, extracted_at, context, agent_configuration_id, processing_metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.ID, d.SourceFilePath, d.AgentType, d.DataType, d.DataValue, d.DataUOM,
		d.ConfidenceScore.Value(), d.ExtractedAt, d.Context, d.AgentConfigurationID, nullJSON(d.ProcessingMetadata))
	if err != nil {
		return insertErr(err, "insert extraction %s", d.ID)
	}
	return nil
}

func (s *Store) CreateExtraction(ctx context.Context, d *extraction.ExtractedData) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := insertExtraction(ctx, tx, d); err != nil {
		return err
	}
	if err := appendEvents(ctx, tx, d.Events()); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit extraction %s: %w", d.ID, err)
	}
	d.ClearEvents()
	return nil
}

func (s *Store) ListExtractions(ctx context.Context, filter database.ExtractionFilter) ([]extraction.ExtractedData, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+extractionColumns+` FROM extracted_data
		 WHERE ($1 = '' OR source_file_path = $1)
		   AND ($2 = '' OR agent_type = $2)
		   AND ($3::uuid IS NULL OR agent_configuration_id = $3)
		 ORDER BY extracted_at DESC LIMIT $4`,
		filter.SourceFilePath, filter.AgentType, nullUUID(filter.AgentConfigurationID), limitOrDefault(filter.Limit))
	if err != nil {
		return nil, fmt.Errorf("list extractions: %w", err)
	}
	defer rows.Close()

	var out []extraction.ExtractedData
	for rows.Next() {
		d, err := scanExtraction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan extraction: %w", err)
		}
		out = append(out, d)
	}
	return orEmpty(out), rows.Err()
}
