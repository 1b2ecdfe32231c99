// Package agentbackend defines the port through which workers hand a queued
// file to an agent and receive its extractions and proposal.
package agentbackend

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/Strob0t/Upchuck/internal/domain/confidence"
)

// Request is what an agent receives for one queue item. The agent reads the
// source file itself.
type Request struct {
	ItemID            uuid.UUID       `json:"item_id"`
	FilePath          string          `json:"file_path"`
	AgentType         string          `json:"agent_type"`
	Configuration     json.RawMessage `json:"configuration"`
	ModelParameters   json.RawMessage `json:"model_parameters,omitempty"`
	ProcessingRules   json.RawMessage `json:"processing_rules,omitempty"`
	PristineVaultPath string          `json:"pristine_vault_path,omitempty"`
}

// Extraction is one data point produced by an agent.
type Extraction struct {
	DataType   string           `json:"data_type"`
	DataValue  string           `json:"data_value"`
	DataUOM    string           `json:"data_uom"`
	Confidence confidence.Score `json:"confidence"`
	Context    *string          `json:"context,omitempty"`
}

// Proposal is a curated replacement produced by an agent.
type Proposal struct {
	OriginalContent   string           `json:"original_content"`
	CuratedContent    string           `json:"curated_content"`
	Confidence        confidence.Score `json:"confidence"`
	Rationale         string           `json:"rationale"`
	OutputDestination string           `json:"output_destination"`
}

// Result is an agent's output for one request. Both parts are optional.
type Result struct {
	Extractions []Extraction    `json:"extractions,omitempty"`
	Proposal    *Proposal       `json:"proposal,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// Backend is the port interface for an agent implementation.
type Backend interface {
	// Name returns the unique identifier for this backend (e.g. "nats").
	Name() string

	// Process runs the agent against one file.
	Process(ctx context.Context, req Request) (*Result, error)
}
