// Package queue defines the processing queue item: one unit of work moving
// from Queued through Processing to Completed or Failed, with bounded retry.
package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/Upchuck/internal/domain"
)

// Status is the lifecycle state of a queue item.
type Status string

const (
	StatusQueued     Status = "Queued"
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
)

// DefaultMaxRetryCount is used when no retry budget is configured.
const DefaultMaxRetryCount = 3

// MaxErrorMessageLength bounds the stored error message, in runes.
const MaxErrorMessageLength = 2000

var validStatuses = map[Status]bool{
	StatusQueued:     true,
	StatusProcessing: true,
	StatusCompleted:  true,
	StatusFailed:     true,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return validStatuses[s] }

const entityName = "queue item"

var now = func() time.Time { return time.Now().UTC() }

// Item is one queued unit of work, keyed for deduplication by MessageID.
type Item struct {
	ID                  uuid.UUID       `json:"id"`
	FilePath            string          `json:"file_path"`
	MessageID           string          `json:"message_id"`
	Status              Status          `json:"status"`
	QueuedAt            time.Time       `json:"queued_at"`
	ProcessingStartedAt *time.Time      `json:"processing_started_at,omitempty"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
	ErrorMessage        *string         `json:"error_message,omitempty"`
	RetryCount          int             `json:"retry_count"`
	ProcessingMetadata  json.RawMessage `json:"processing_metadata"`
}

// New returns a Queued item. A nil or empty metadata payload becomes {}.
func New(filePath, messageID string, metadata json.RawMessage) (*Item, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, domain.NewValidationError("file_path", "file path cannot be empty")
	}
	if strings.TrimSpace(messageID) == "" {
		return nil, domain.NewValidationError("message_id", "message id cannot be empty")
	}
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}
	return &Item{
		ID:                 uuid.New(),
		FilePath:           filePath,
		MessageID:          messageID,
		Status:             StatusQueued,
		QueuedAt:           now(),
		ProcessingMetadata: metadata,
	}, nil
}

// CanStart reports whether StartProcessing is legal.
func (i *Item) CanStart() bool {
	return i.Status == StatusQueued || i.Status == StatusFailed
}

// StartProcessing claims the item. Legal from Queued or Failed. The
// completion time of an earlier attempt is cleared so that
// QueuedAt <= ProcessingStartedAt <= CompletedAt holds for the new attempt.
func (i *Item) StartProcessing() error {
	if !i.CanStart() {
		return domain.NewInvalidStateError(entityName, "start processing", string(i.Status))
	}
	ts := now()
	i.Status = StatusProcessing
	i.ProcessingStartedAt = &ts
	i.CompletedAt = nil
	i.ErrorMessage = nil
	return nil
}

// CompleteProcessing marks a Processing item as done.
func (i *Item) CompleteProcessing() error {
	if i.Status != StatusProcessing {
		return domain.NewInvalidStateError(entityName, "complete processing", string(i.Status))
	}
	ts := now()
	i.Status = StatusCompleted
	i.CompletedAt = &ts
	return nil
}

// FailProcessing marks a Processing item as failed and consumes one retry.
func (i *Item) FailProcessing(errorMessage string) error {
	if i.Status != StatusProcessing {
		return domain.NewInvalidStateError(entityName, "fail processing", string(i.Status))
	}
	if r := []rune(errorMessage); len(r) > MaxErrorMessageLength {
		errorMessage = string(r[:MaxErrorMessageLength])
	}
	ts := now()
	i.Status = StatusFailed
	i.CompletedAt = &ts
	i.ErrorMessage = &errorMessage
	i.RetryCount++
	return nil
}

// CanRetry reports whether a failed item still has retry budget.
func (i *Item) CanRetry(maxRetryCount int) bool {
	return i.Status == StatusFailed && i.RetryCount < maxRetryCount
}

// Retry puts a failed item back in the queue. It fails once the budget is
// exhausted or when the item is not Failed.
func (i *Item) Retry(maxRetryCount int) error {
	if i.Status == StatusFailed && !i.CanRetry(maxRetryCount) {
		return fmt.Errorf("%w: retry budget exhausted (%d of %d)",
			domain.NewInvalidStateError(entityName, "retry", string(i.Status)), i.RetryCount, maxRetryCount)
	}
	if !i.CanRetry(maxRetryCount) {
		return domain.NewInvalidStateError(entityName, "retry", string(i.Status))
	}
	i.Status = StatusQueued
	i.ErrorMessage = nil
	return nil
}
