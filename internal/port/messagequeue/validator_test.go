package messagequeue

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/Strob0t/Upchuck/internal/domain/event"
)

func TestValidateValidFileChanged(t *testing.T) {
	data := []byte(`{"file_path":"/vault/a.md","message_id":"m-1","change_type":"modified"}`)
	if err := Validate(SubjectFileChanged, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateFileChangedRequiresFields(t *testing.T) {
	data := []byte(`{"file_path":"/vault/a.md"}`)
	err := Validate(SubjectFileChanged, data)
	if err == nil {
		t.Fatal("expected error for missing message_id")
	}
	if !strings.Contains(err.Error(), "schema validation failed") {
		t.Fatalf("expected 'schema validation failed' in error, got: %v", err)
	}
}

func TestValidateValidQueueItemQueued(t *testing.T) {
	data := []byte(`{"item_id":"i1","file_path":"/a.md","message_id":"m-1"}`)
	if err := Validate(SubjectQueueItemQueued, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateValidQueueItemDone(t *testing.T) {
	data := []byte(`{"item_id":"i1","status":"Completed","retry_count":0,"extractions":2,"proposals":1}`)
	if err := Validate(SubjectQueueItemDone, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateCurationEnvelope(t *testing.T) {
	env, err := event.Wrap(event.ProposalCreated{ProposalID: uuid.New(), AgentType: "Stats"})
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(string(env.Type), data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateCurationUnknownEventType(t *testing.T) {
	data := []byte(`{"id":"00000000-0000-0000-0000-000000000001","type":"curation.bogus","payload":{}}`)
	if err := Validate("curation.bogus", data); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestValidateAgentSubject(t *testing.T) {
	data := []byte(`{"anything":"goes"}`)
	if err := Validate(AgentSubject("Statistics"), data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateUnknownSubject(t *testing.T) {
	data := []byte(`{"foo":"bar"}`)
	if err := Validate("unknown.subject", data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateInvalidJSON(t *testing.T) {
	data := []byte(`{not valid json`)
	err := Validate(SubjectFileChanged, data)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if !strings.Contains(err.Error(), "invalid JSON") {
		t.Fatalf("expected 'invalid JSON' in error, got: %v", err)
	}
}

func TestValidateInvalidSchema(t *testing.T) {
	data := []byte(`"just a string"`)
	err := Validate(SubjectQueueItemQueued, data)
	if err == nil {
		t.Fatal("expected schema validation error")
	}
	if !strings.Contains(err.Error(), "schema validation failed") {
		t.Fatalf("expected 'schema validation failed' in error, got: %v", err)
	}
}
