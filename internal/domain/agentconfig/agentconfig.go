// Package agentconfig defines the per-agent-type policy that governs whether
// agent output needs human review.
package agentconfig

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/Upchuck/internal/domain"
	"github.com/Strob0t/Upchuck/internal/domain/confidence"
)

// AutonomyLevel controls whether agent output requires review before it
// takes effect.
type AutonomyLevel string

const (
	// AutonomyReviewRequired sends every proposal to human review.
	AutonomyReviewRequired AutonomyLevel = "ReviewRequired"
	// AutonomySemiAutonomous auto-approves proposals at or above the threshold.
	AutonomySemiAutonomous AutonomyLevel = "SemiAutonomous"
	// AutonomyFullyAutonomous acts without a review record at or above the threshold.
	AutonomyFullyAutonomous AutonomyLevel = "FullyAutonomous"
)

var validAutonomyLevels = map[AutonomyLevel]bool{
	AutonomyReviewRequired:  true,
	AutonomySemiAutonomous:  true,
	AutonomyFullyAutonomous: true,
}

// Valid reports whether a is one of the known autonomy levels.
func (a AutonomyLevel) Valid() bool { return validAutonomyLevels[a] }

// ParseAutonomyLevel accepts the canonical names case-insensitively.
func ParseAutonomyLevel(s string) (AutonomyLevel, error) {
	for level := range validAutonomyLevels {
		if strings.EqualFold(string(level), strings.TrimSpace(s)) {
			return level, nil
		}
	}
	return "", domain.NewValidationError("autonomy_level", "unknown autonomy level "+s)
}

var now = func() time.Time { return time.Now().UTC() }

// AgentConfiguration is the long-lived policy record for one agent type.
// Proposals and extractions reference it by ID only.
type AgentConfiguration struct {
	ID                  uuid.UUID        `json:"id"`
	AgentType           string           `json:"agent_type"`
	IsEnabled           bool             `json:"is_enabled"`
	AutonomyLevel       AutonomyLevel    `json:"autonomy_level"`
	ConfidenceThreshold confidence.Score `json:"confidence_threshold"`
	ConfigurationJSON   string           `json:"configuration_json"`
	ModelParameters     *string          `json:"model_parameters,omitempty"`
	ProcessingRules     *string          `json:"processing_rules,omitempty"`
	Version             int              `json:"version"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// CreateRequest holds the fields for a new configuration. ConfidenceThreshold
// is required; IsEnabled defaults to true when nil.
type CreateRequest struct {
	AgentType           string            `json:"agent_type"`
	AutonomyLevel       AutonomyLevel     `json:"autonomy_level"`
	ConfidenceThreshold *confidence.Score `json:"confidence_threshold"`
	ConfigurationJSON   string            `json:"configuration_json"`
	ModelParameters     *string           `json:"model_parameters,omitempty"`
	ProcessingRules     *string           `json:"processing_rules,omitempty"`
	IsEnabled           *bool             `json:"is_enabled,omitempty"`
}

// New validates req and returns a configuration at version 1.
func New(req CreateRequest) (*AgentConfiguration, error) {
	if strings.TrimSpace(req.AgentType) == "" {
		return nil, domain.NewValidationError("agent_type", "agent type cannot be empty")
	}
	if strings.TrimSpace(req.ConfigurationJSON) == "" {
		return nil, domain.NewValidationError("configuration_json", "configuration JSON cannot be empty")
	}
	if !req.AutonomyLevel.Valid() {
		return nil, domain.NewValidationError("autonomy_level", "unknown autonomy level "+string(req.AutonomyLevel))
	}
	if req.ConfidenceThreshold == nil {
		return nil, domain.NewValidationError("confidence_threshold", "confidence threshold is required")
	}

	ts := now()
	return &AgentConfiguration{
		ID:                  uuid.New(),
		AgentType:           req.AgentType,
		IsEnabled:           req.IsEnabled == nil || *req.IsEnabled,
		AutonomyLevel:       req.AutonomyLevel,
		ConfidenceThreshold: *req.ConfidenceThreshold,
		ConfigurationJSON:   req.ConfigurationJSON,
		ModelParameters:     req.ModelParameters,
		ProcessingRules:     req.ProcessingRules,
		Version:             1,
		CreatedAt:           ts,
		UpdatedAt:           ts,
	}, nil
}

// UpdateRequest carries the optional fields of an update. Nil fields are left
// untouched; a blank ConfigurationJSON is ignored.
type UpdateRequest struct {
	AutonomyLevel       *AutonomyLevel    `json:"autonomy_level,omitempty"`
	ConfidenceThreshold *confidence.Score `json:"confidence_threshold,omitempty"`
	ConfigurationJSON   *string           `json:"configuration_json,omitempty"`
	ModelParameters     *string           `json:"model_parameters,omitempty"`
	ProcessingRules     *string           `json:"processing_rules,omitempty"`
	IsEnabled           *bool             `json:"is_enabled,omitempty"`
}

// Validate rejects values the store would refuse.
func (r *UpdateRequest) Validate() error {
	if r.AutonomyLevel != nil && !r.AutonomyLevel.Valid() {
		return domain.NewValidationError("autonomy_level", "unknown autonomy level "+string(*r.AutonomyLevel))
	}
	return nil
}

// Update is the only mutation path. It always advances UpdatedAt and Version,
// even when no field changes, so concurrent edits are detected by the store.
func (c *AgentConfiguration) Update(req UpdateRequest) {
	if req.AutonomyLevel != nil {
		c.AutonomyLevel = *req.AutonomyLevel
	}
	if req.ConfidenceThreshold != nil {
		c.ConfidenceThreshold = *req.ConfidenceThreshold
	}
	if req.ConfigurationJSON != nil && strings.TrimSpace(*req.ConfigurationJSON) != "" {
		c.ConfigurationJSON = *req.ConfigurationJSON
	}
	if req.ModelParameters != nil {
		c.ModelParameters = req.ModelParameters
	}
	if req.ProcessingRules != nil {
		c.ProcessingRules = req.ProcessingRules
	}
	if req.IsEnabled != nil {
		c.IsEnabled = *req.IsEnabled
	}

	c.UpdatedAt = now()
	c.Version++
}

// Enable turns the agent on.
func (c *AgentConfiguration) Enable() {
	enabled := true
	c.Update(UpdateRequest{IsEnabled: &enabled})
}

// Disable turns the agent off.
func (c *AgentConfiguration) Disable() {
	enabled := false
	c.Update(UpdateRequest{IsEnabled: &enabled})
}
