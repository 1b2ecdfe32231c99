package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Strob0t/Upchuck/internal/domain"
	"github.com/Strob0t/Upchuck/internal/domain/agentconfig"
	"github.com/Strob0t/Upchuck/internal/domain/confidence"
)

const agentConfigColumns = `id, agent_type, is_enabled, autonomy_level, confidence_threshold,
	configuration_json, model_parameters, processing_rules, version, created_at, updated_at`

func scanAgentConfig(row scannable) (agentconfig.AgentConfiguration, error) {
	var (
		c         agentconfig.AgentConfiguration
		id        string
		autonomy  string
		threshold float64
	)
	err := row.Scan(&id, &c.AgentType, &c.IsEnabled, &autonomy, &threshold,
		&c.ConfigurationJSON, &c.ModelParameters, &c.ProcessingRules, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, err
	}
	if c.ID, err = parseID(id, "agent configuration"); err != nil {
		return c, err
	}
	c.AutonomyLevel = agentconfig.AutonomyLevel(autonomy)
	if c.ConfidenceThreshold, err = confidence.New(threshold); err != nil {
		return c, fmt.Errorf("agent configuration %s threshold: %w", id, err)
	}
	return c, nil
}

func (s *Store) ListAgentConfigs(ctx context.Context) ([]agentconfig.AgentConfiguration, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+agentConfigColumns+` FROM agent_configurations ORDER BY agent_type`)
	if err != nil {
		return nil, fmt.Errorf("list agent configs: %w", err)
	}
	defer rows.Close()

	var configs []agentconfig.AgentConfiguration
	for rows.Next() {
		c, err := scanAgentConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent config: %w", err)
		}
		configs = append(configs, c)
	}
	return orEmpty(configs), rows.Err()
}

func (s *Store) GetAgentConfig(ctx context.Context, id uuid.UUID) (*agentconfig.AgentConfiguration, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agentConfigColumns+` FROM agent_configurations WHERE id = $1`, id)
	c, err := scanAgentConfig(row)
	if err != nil {
		return nil, notFoundWrap(err, "get agent config %s", id)
	}
	return &c, nil
}

func (s *Store) GetAgentConfigByType(ctx context.Context, agentType string) (*agentconfig.AgentConfiguration, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agentConfigColumns+` FROM agent_configurations WHERE agent_type = $1`, agentType)
	c, err := scanAgentConfig(row)
	if err != nil {
		return nil, notFoundWrap(err, "get agent config %q", agentType)
	}
	return &c, nil
}

func (s *Store) CreateAgentConfig(ctx context.Context, c *agentconfig.AgentConfiguration) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_configurations
		   (id, agent_type, is_enabled, autonomy_level, confidence_threshold,
		    configuration_json, model_parameters, processing_rules, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.AgentType, c.IsEnabled, string(c.AutonomyLevel), c.ConfidenceThreshold.Value(),
		c.ConfigurationJSON, c.ModelParameters, c.ProcessingRules, c.Version, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return insertErr(err, "create agent config %q", c.AgentType)
	}
	return nil
}

func (s *Store) UpdateAgentConfig(ctx context.Context, c *agentconfig.AgentConfiguration, expectedVersion int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_configurations
		 SET is_enabled = $2, autonomy_level = $3, confidence_threshold = $4, configuration_json = $5,
		     model_parameters = $6, processing_rules = $7, version = $8, updated_at = $9
		 WHERE id = $1 AND version = $10`,
		c.ID, c.IsEnabled, string(c.AutonomyLevel), c.ConfidenceThreshold.Value(), c.ConfigurationJSON,
		c.ModelParameters, c.ProcessingRules, c.Version, c.UpdatedAt, expectedVersion)
	if err != nil {
		return fmt.Errorf("update agent config %s: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update agent config %s (version %d): %w", c.ID, expectedVersion, domain.ErrConflict)
	}
	return nil
}

func (s *Store) DeleteAgentConfig(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM agent_configurations WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("delete agent config %s: still referenced: %w", id, domain.ErrConflict)
	}
	return execExpectOne(tag, err, "delete agent config %s", id)
}
