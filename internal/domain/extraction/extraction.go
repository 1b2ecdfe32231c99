// Package extraction defines ExtractedData, an immutable structured data
// point an agent pulled from a source file.
package extraction

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/Upchuck/internal/domain"
	"github.com/Strob0t/Upchuck/internal/domain/confidence"
	"github.com/Strob0t/Upchuck/internal/domain/event"
)

var now = func() time.Time { return time.Now().UTC() }

// ExtractedData is never mutated after New; only its event buffer drains.
type ExtractedData struct {
	ID                   uuid.UUID        `json:"id"`
	SourceFilePath       string           `json:"source_file_path"`
	AgentType            string           `json:"agent_type"`
	DataType             string           `json:"data_type"`
	DataValue            string           `json:"data_value"`
	DataUOM              string           `json:"data_uom"`
	ConfidenceScore      confidence.Score `json:"confidence_score"`
	ExtractedAt          time.Time        `json:"extracted_at"`
	Context              *string          `json:"context,omitempty"`
	AgentConfigurationID uuid.UUID        `json:"agent_configuration_id"`
	ProcessingMetadata   json.RawMessage  `json:"processing_metadata,omitempty"`

	events event.Buffer
}

// Params are the inputs of New.
type Params struct {
	SourceFilePath       string
	AgentType            string
	DataType             string
	DataValue            string
	DataUOM              string
	ConfidenceScore      confidence.Score
	AgentConfigurationID uuid.UUID
	Context              *string
	ProcessingMetadata   json.RawMessage
}

// New validates p and records a DataExtracted event.
func New(p Params) (*ExtractedData, error) {
	required := []struct{ field, value string }{
		{"source_file_path", p.SourceFilePath},
		{"agent_type", p.AgentType},
		{"data_type", p.DataType},
		{"data_value", p.DataValue},
		{"data_uom", p.DataUOM},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, domain.NewValidationError(r.field, r.field+" cannot be empty")
		}
	}
	if p.AgentConfigurationID == uuid.Nil {
		return nil, domain.NewValidationError("agent_configuration_id", "agent configuration id cannot be nil")
	}

	d := &ExtractedData{
		ID:                   uuid.New(),
		SourceFilePath:       p.SourceFilePath,
		AgentType:            p.AgentType,
		DataType:             p.DataType,
		DataValue:            p.DataValue,
		DataUOM:              p.DataUOM,
		ConfidenceScore:      p.ConfidenceScore,
		ExtractedAt:          now(),
		Context:              p.Context,
		AgentConfigurationID: p.AgentConfigurationID,
		ProcessingMetadata:   p.ProcessingMetadata,
	}
	d.events.Record(event.DataExtracted{
		DataID:          d.ID,
		AgentType:       d.AgentType,
		SourceFilePath:  d.SourceFilePath,
		DataType:        d.DataType,
		DataValue:       d.DataValue,
		ConfidenceScore: d.ConfidenceScore,
		ExtractedAt:     d.ExtractedAt,
	})
	return d, nil
}

// Events returns the buffered events not yet committed.
func (d *ExtractedData) Events() []event.Event { return d.events.Events() }

// ClearEvents drains the buffer after a successful commit.
func (d *ExtractedData) ClearEvents() { d.events.Clear() }
