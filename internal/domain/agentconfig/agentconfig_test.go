package agentconfig

import (
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/Upchuck/internal/domain"
	"github.com/Strob0t/Upchuck/internal/domain/confidence"
)

func validRequest() CreateRequest {
	threshold := confidence.MustNew(0.75)
	return CreateRequest{
		AgentType:           "Statistics",
		AutonomyLevel:       AutonomyReviewRequired,
		ConfidenceThreshold: &threshold,
		ConfigurationJSON:   `{"model":"llama3.2"}`,
	}
}

func TestNew(t *testing.T) {
	c, err := New(validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Version != 1 {
		t.Errorf("expected version 1, got %d", c.Version)
	}
	if !c.IsEnabled {
		t.Error("expected enabled by default")
	}
	if c.CreatedAt.IsZero() || !c.CreatedAt.Equal(c.UpdatedAt) {
		t.Error("expected created_at == updated_at on creation")
	}
	if c.ModelParameters != nil || c.ProcessingRules != nil {
		t.Error("expected optional payloads nil")
	}
}

func TestNewDisabled(t *testing.T) {
	req := validRequest()
	off := false
	req.IsEnabled = &off
	c, err := New(req)
	if err != nil {
		t.Fatal(err)
	}
	if c.IsEnabled {
		t.Error("expected disabled")
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateRequest)
		field  string
	}{
		{"empty agent type", func(r *CreateRequest) { r.AgentType = "" }, "agent_type"},
		{"blank agent type", func(r *CreateRequest) { r.AgentType = "   " }, "agent_type"},
		{"empty configuration", func(r *CreateRequest) { r.ConfigurationJSON = "" }, "configuration_json"},
		{"blank configuration", func(r *CreateRequest) { r.ConfigurationJSON = "\t\n" }, "configuration_json"},
		{"unknown autonomy", func(r *CreateRequest) { r.AutonomyLevel = "Yolo" }, "autonomy_level"},
		{"missing threshold", func(r *CreateRequest) { r.ConfidenceThreshold = nil }, "confidence_threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			_, err := New(req)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			var ve *domain.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Fatalf("expected field %s, got %v", tt.field, err)
			}
		})
	}
}

func TestUpdateOverwritesSuppliedFields(t *testing.T) {
	c, _ := New(validRequest())
	before := c.UpdatedAt

	restore := now
	now = func() time.Time { return before.Add(time.Minute) }
	t.Cleanup(func() { now = restore })

	level := AutonomySemiAutonomous
	threshold := confidence.MustNew(0.9)
	cfgJSON := `{"model":"other"}`
	params := `{"temperature":0.3}`
	c.Update(UpdateRequest{
		AutonomyLevel:       &level,
		ConfidenceThreshold: &threshold,
		ConfigurationJSON:   &cfgJSON,
		ModelParameters:     &params,
	})

	if c.AutonomyLevel != AutonomySemiAutonomous {
		t.Errorf("autonomy not updated: %s", c.AutonomyLevel)
	}
	if c.ConfidenceThreshold != threshold {
		t.Errorf("threshold not updated: %v", c.ConfidenceThreshold)
	}
	if c.ConfigurationJSON != cfgJSON {
		t.Errorf("configuration not updated: %s", c.ConfigurationJSON)
	}
	if c.ModelParameters == nil || *c.ModelParameters != params {
		t.Error("model parameters not updated")
	}
	if c.ProcessingRules != nil {
		t.Error("processing rules should be untouched")
	}
	if c.Version != 2 {
		t.Errorf("expected version 2, got %d", c.Version)
	}
	if !c.UpdatedAt.After(before) {
		t.Error("expected updated_at to advance")
	}
}

func TestUpdateIgnoresBlankConfiguration(t *testing.T) {
	c, _ := New(validRequest())
	blank := "  "
	c.Update(UpdateRequest{ConfigurationJSON: &blank})

	if c.ConfigurationJSON != `{"model":"llama3.2"}` {
		t.Errorf("blank configuration must be ignored, got %q", c.ConfigurationJSON)
	}
	if c.Version != 2 {
		t.Errorf("version must still advance, got %d", c.Version)
	}
}

func TestEnableDisable(t *testing.T) {
	c, _ := New(validRequest())

	c.Disable()
	if c.IsEnabled || c.Version != 2 {
		t.Fatalf("after Disable: enabled=%v version=%d", c.IsEnabled, c.Version)
	}
	c.Enable()
	if !c.IsEnabled || c.Version != 3 {
		t.Fatalf("after Enable: enabled=%v version=%d", c.IsEnabled, c.Version)
	}
}

func TestParseAutonomyLevel(t *testing.T) {
	got, err := ParseAutonomyLevel("semiautonomous")
	if err != nil || got != AutonomySemiAutonomous {
		t.Fatalf("got %q, %v", got, err)
	}
	if _, err := ParseAutonomyLevel("sometimes"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestUpdateRequestValidate(t *testing.T) {
	bad := AutonomyLevel("bogus")
	req := UpdateRequest{AutonomyLevel: &bad}
	if err := req.Validate(); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
