// Package service implements business logic on top of ports.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/Upchuck/internal/config"
	"github.com/Strob0t/Upchuck/internal/domain"
	"github.com/Strob0t/Upchuck/internal/domain/agentconfig"
	"github.com/Strob0t/Upchuck/internal/domain/confidence"
	"github.com/Strob0t/Upchuck/internal/port/cache"
	"github.com/Strob0t/Upchuck/internal/port/database"
)

const agentConfigCachePrefix = "agentconfig:"

// AgentConfigService handles agent configuration business logic. Lookups by
// agent type go through an optional cache that every write invalidates.
type AgentConfigService struct {
	store    database.Store
	cache    cache.Cache
	cacheTTL time.Duration
}

// NewAgentConfigService creates a new AgentConfigService. c may be nil.
func NewAgentConfigService(store database.Store, c cache.Cache, cacheTTL time.Duration) *AgentConfigService {
	return &AgentConfigService{store: store, cache: c, cacheTTL: cacheTTL}
}

// List returns all configurations ordered by agent type.
func (s *AgentConfigService) List(ctx context.Context) ([]agentconfig.AgentConfiguration, error) {
	return s.store.ListAgentConfigs(ctx)
}

// Get returns a configuration by ID.
func (s *AgentConfigService) Get(ctx context.Context, id uuid.UUID) (*agentconfig.AgentConfiguration, error) {
	return s.store.GetAgentConfig(ctx, id)
}

// GetByType returns the configuration for agentType, preferring the cache.
func (s *AgentConfigService) GetByType(ctx context.Context, agentType string) (*agentconfig.AgentConfiguration, error) {
	key := agentConfigCachePrefix + agentType
	if s.cache != nil {
		c, ok, err := cache.GetJSON[agentconfig.AgentConfiguration](ctx, s.cache, key)
		if err != nil {
			slog.WarnContext(ctx, "agent config cache read failed", "agent_type", agentType, "error", err)
		}
		if ok {
			return c, nil
		}
	}

	c, err := s.store.GetAgentConfigByType(ctx, agentType)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, key, c, s.cacheTTL); err != nil {
			slog.WarnContext(ctx, "agent config cache write failed", "agent_type", agentType, "error", err)
		}
	}
	return c, nil
}

// Create validates req and stores a new configuration at version 1.
func (s *AgentConfigService) Create(ctx context.Context, req agentconfig.CreateRequest) (*agentconfig.AgentConfiguration, error) {
	if err := validateJSONFields(&req.ConfigurationJSON, req.ModelParameters, req.ProcessingRules); err != nil {
		return nil, err
	}
	c, err := agentconfig.New(req)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateAgentConfig(ctx, c); err != nil {
		return nil, fmt.Errorf("create agent config %s: %w", c.AgentType, err)
	}
	s.invalidate(ctx, c.AgentType)
	slog.InfoContext(ctx, "agent configuration created", "agent_type", c.AgentType, "autonomy_level", c.AutonomyLevel)
	return c, nil
}

// Update applies req to the configuration of agentType if its version still
// equals expectedVersion; otherwise it returns domain.ErrConflict.
func (s *AgentConfigService) Update(ctx context.Context, agentType string, expectedVersion int, req agentconfig.UpdateRequest) (*agentconfig.AgentConfiguration, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := validateJSONFields(req.ConfigurationJSON, req.ModelParameters, req.ProcessingRules); err != nil {
		return nil, err
	}
	return s.mutate(ctx, agentType, expectedVersion, func(c *agentconfig.AgentConfiguration) { c.Update(req) })
}

// Enable turns on the agent of agentType.
func (s *AgentConfigService) Enable(ctx context.Context, agentType string) (*agentconfig.AgentConfiguration, error) {
	return s.mutate(ctx, agentType, 0, (*agentconfig.AgentConfiguration).Enable)
}

// Disable turns off the agent of agentType.
func (s *AgentConfigService) Disable(ctx context.Context, agentType string) (*agentconfig.AgentConfiguration, error) {
	return s.mutate(ctx, agentType, 0, (*agentconfig.AgentConfiguration).Disable)
}

// mutate loads the stored configuration, applies fn and writes it back with
// an expected-version check. expectedVersion 0 means "whatever was loaded".
func (s *AgentConfigService) mutate(ctx context.Context, agentType string, expectedVersion int, fn func(*agentconfig.AgentConfiguration)) (*agentconfig.AgentConfiguration, error) {
	c, err := s.store.GetAgentConfigByType(ctx, agentType)
	if err != nil {
		return nil, err
	}
	if expectedVersion == 0 {
		expectedVersion = c.Version
	}
	if c.Version != expectedVersion {
		return nil, fmt.Errorf("agent config %s at version %d, expected %d: %w",
			agentType, c.Version, expectedVersion, domain.ErrConflict)
	}

	fn(c)
	if err := s.store.UpdateAgentConfig(ctx, c, expectedVersion); err != nil {
		return nil, fmt.Errorf("update agent config %s: %w", agentType, err)
	}
	s.invalidate(ctx, agentType)
	return c, nil
}

// Delete removes the configuration for agentType. It fails with
// domain.ErrConflict while extractions or proposals still reference it.
func (s *AgentConfigService) Delete(ctx context.Context, agentType string) error {
	c, err := s.store.GetAgentConfigByType(ctx, agentType)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAgentConfig(ctx, c.ID); err != nil {
		return fmt.Errorf("delete agent config %s: %w", agentType, err)
	}
	s.invalidate(ctx, agentType)
	return nil
}

// Seed creates a configuration for every agent type in agents that has none
// yet. Existing configurations are left untouched. It returns the agent
// types it created.
func (s *AgentConfigService) Seed(ctx context.Context, agents config.Agents) ([]string, error) {
	types := make([]string, 0, len(agents.Types))
	for name := range agents.Types {
		types = append(types, name)
	}
	sort.Strings(types)

	var created []string
	for _, agentType := range types {
		_, err := s.store.GetAgentConfigByType(ctx, agentType)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return created, err
		}

		req, err := seedRequest(agentType, agents.Resolved(agentType))
		if err != nil {
			return created, err
		}
		if _, err := s.Create(ctx, req); err != nil {
			return created, err
		}
		created = append(created, agentType)
	}
	return created, nil
}

func seedRequest(agentType string, st config.AgentSettings) (agentconfig.CreateRequest, error) {
	level, err := agentconfig.ParseAutonomyLevel(st.AutonomyLevel)
	if err != nil {
		return agentconfig.CreateRequest{}, err
	}
	threshold, err := confidence.New(st.ConfidenceThreshold)
	if err != nil {
		return agentconfig.CreateRequest{}, domain.NewValidationError("confidence_threshold", err.Error())
	}

	params, err := json.Marshal(struct {
		Model       string  `json:"model,omitempty"`
		Temperature float64 `json:"temperature,omitempty"`
		MaxTokens   int     `json:"max_tokens,omitempty"`
	}{st.Model, st.Temperature, st.MaxTokens})
	if err != nil {
		return agentconfig.CreateRequest{}, err
	}
	modelParams := string(params)

	return agentconfig.CreateRequest{
		AgentType:           agentType,
		AutonomyLevel:       level,
		ConfidenceThreshold: &threshold,
		ConfigurationJSON:   "{}",
		ModelParameters:     &modelParams,
		IsEnabled:           st.Enabled,
	}, nil
}

func (s *AgentConfigService) invalidate(ctx context.Context, agentType string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, agentConfigCachePrefix+agentType); err != nil {
		slog.WarnContext(ctx, "agent config cache invalidation failed", "agent_type", agentType, "error", err)
	}
}

// validateJSONFields rejects non-JSON payloads before they reach the JSONB
// columns. Nil values are skipped, as is a blank configuration, which the
// entity ignores on update and rejects on create.
func validateJSONFields(configuration, modelParameters, processingRules *string) error {
	fields := []struct {
		name       string
		value      *string
		blankIsNil bool
	}{
		{"configuration_json", configuration, true},
		{"model_parameters", modelParameters, false},
		{"processing_rules", processingRules, false},
	}
	for _, f := range fields {
		if f.value == nil || (f.blankIsNil && strings.TrimSpace(*f.value) == "") {
			continue
		}
		if !json.Valid([]byte(*f.value)) {
			return domain.NewValidationError(f.name, f.name+" must be valid JSON")
		}
	}
	return nil
}
