package messagequeue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Strob0t/Upchuck/internal/domain/event"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch {
	case subject == SubjectFileChanged:
		var p FileChangedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.FilePath == "" || p.MessageID == "" {
			return fmt.Errorf("schema validation failed for %s: file_path and message_id are required", subject)
		}
		return nil
	case subject == SubjectQueueItemQueued:
		return unmarshalInto(subject, data, &QueueItemQueuedPayload{})
	case subject == SubjectQueueItemDone:
		return unmarshalInto(subject, data, &QueueItemDonePayload{})
	case strings.HasPrefix(subject, SubjectCuration+"."):
		var env event.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if _, err := env.Decode(); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		return nil
	case strings.HasPrefix(subject, SubjectAgentProcess+"."):
		// agents.process.{agent_type} carries the agent request; accept any valid JSON.
		return nil
	default:
		return nil
	}
}

func unmarshalInto(subject string, data []byte, target any) error {
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	return nil
}
