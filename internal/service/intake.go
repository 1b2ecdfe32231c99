package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Strob0t/Upchuck/internal/config"
	"github.com/Strob0t/Upchuck/internal/domain"
	"github.com/Strob0t/Upchuck/internal/domain/queue"
	"github.com/Strob0t/Upchuck/internal/logger"
	"github.com/Strob0t/Upchuck/internal/port/database"
	"github.com/Strob0t/Upchuck/internal/port/messagequeue"
)

// IntakeService turns file change notifications into queue items.
type IntakeService struct {
	store database.Store
	queue messagequeue.Queue
	vault config.Vault
	exts  map[string]bool
}

// NewIntakeService creates a new IntakeService. q may be nil, in which case
// no queue.item.queued notification is published.
func NewIntakeService(store database.Store, q messagequeue.Queue, vault config.Vault) *IntakeService {
	exts := make(map[string]bool, len(vault.FileExtensions))
	for _, e := range vault.FileExtensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}
	return &IntakeService{store: store, queue: q, vault: vault, exts: exts}
}

// Accepts reports whether path is a vault file that should be processed:
// inside the raw vault, with a configured extension, and not matched by an
// exclude pattern.
func (s *IntakeService) Accepts(path string) bool {
	if !s.exts[strings.ToLower(filepath.Ext(path))] {
		return false
	}

	rel, err := filepath.Rel(s.vault.RawPath, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return false
	}

	for _, pattern := range s.vault.ExcludePatterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return false
		}
	}
	return true
}

// Enqueue stores a queue item for path. A repeated messageID returns the
// stored item with created=false and publishes nothing.
func (s *IntakeService) Enqueue(ctx context.Context, path, messageID string, metadata json.RawMessage) (*queue.Item, bool, error) {
	it, err := queue.New(path, messageID, metadata)
	if err != nil {
		return nil, false, err
	}

	stored, created, err := s.store.EnqueueItem(ctx, it)
	if err != nil {
		return nil, false, fmt.Errorf("enqueue %s: %w", path, err)
	}
	if !created {
		slog.DebugContext(ctx, "duplicate file notification", "message_id", messageID, "item_id", stored.ID)
		return stored, false, nil
	}

	slog.InfoContext(logger.WithItemID(ctx, stored.ID.String()), "queue item created", "file_path", path)
	s.notify(ctx, stored)
	return stored, true, nil
}

func (s *IntakeService) notify(ctx context.Context, it *queue.Item) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(messagequeue.QueueItemQueuedPayload{
		ItemID:    it.ID.String(),
		FilePath:  it.FilePath,
		MessageID: it.MessageID,
	})
	if err != nil {
		slog.ErrorContext(ctx, "encode queue notification", "error", err)
		return
	}
	// Workers also poll, so a lost notification only delays processing.
	if err := s.queue.PublishMsg(ctx, messagequeue.SubjectQueueItemQueued, it.ID.String(), data); err != nil {
		slog.WarnContext(ctx, "publish queue notification failed", "item_id", it.ID, "error", err)
	}
}

// HandleFileChanged is the files.changed subscription handler. Rejected
// files and malformed payloads are acknowledged; only store failures are
// returned for redelivery.
func (s *IntakeService) HandleFileChanged(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.FileChangedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		slog.ErrorContext(ctx, "invalid file change payload", "error", err)
		return nil
	}

	if p.ChangeType == messagequeue.ChangeDeleted {
		slog.DebugContext(ctx, "ignoring deleted file", "file_path", p.FilePath)
		return nil
	}
	if !s.Accepts(p.FilePath) {
		slog.DebugContext(ctx, "file filtered out", "file_path", p.FilePath)
		return nil
	}

	_, _, err := s.Enqueue(ctx, p.FilePath, p.MessageID, p.Metadata)
	if errors.Is(err, domain.ErrValidation) {
		slog.WarnContext(ctx, "file change rejected", "file_path", p.FilePath, "error", err)
		return nil
	}
	return err
}

// Start subscribes to files.changed. The returned function cancels the
// subscription.
func (s *IntakeService) Start(ctx context.Context) (func(), error) {
	if s.queue == nil {
		return nil, errors.New("intake: no message queue configured")
	}
	return s.queue.Subscribe(ctx, messagequeue.SubjectFileChanged, s.HandleFileChanged)
}
