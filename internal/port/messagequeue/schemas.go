package messagequeue

import "encoding/json"

// Change types carried by files.changed.
const (
	ChangeCreated  = "created"
	ChangeModified = "modified"
	ChangeDeleted  = "deleted"
)

// FileChangedPayload is the schema for files.changed messages.
type FileChangedPayload struct {
	FilePath   string          `json:"file_path"`
	MessageID  string          `json:"message_id"`
	ChangeType string          `json:"change_type"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// QueueItemQueuedPayload is the schema for queue.item.queued messages.
type QueueItemQueuedPayload struct {
	ItemID    string `json:"item_id"`
	FilePath  string `json:"file_path"`
	MessageID string `json:"message_id"`
}

// QueueItemDonePayload is the schema for queue.item.done messages.
type QueueItemDonePayload struct {
	ItemID      string `json:"item_id"`
	Status      string `json:"status"`
	RetryCount  int    `json:"retry_count"`
	Error       string `json:"error,omitempty"`
	Extractions int    `json:"extractions"`
	Proposals   int    `json:"proposals"`
}
