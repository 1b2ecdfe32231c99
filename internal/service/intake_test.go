package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Strob0t/Upchuck/internal/config"
	"github.com/Strob0t/Upchuck/internal/domain"
	"github.com/Strob0t/Upchuck/internal/port/messagequeue"
)

func testVault() config.Vault {
	return config.Vault{
		RawPath:         "/vault/raw",
		PristinePath:    "/vault/pristine",
		FileExtensions:  []string{".md", "txt"},
		ExcludePatterns: []string{".obsidian/**", "**/templates/**", "**/*.excalidraw.md"},
	}
}

func TestIntakeService_Accepts(t *testing.T) {
	svc := NewIntakeService(newMockStore(), nil, testVault())

	tests := []struct {
		path string
		want bool
	}{
		{"/vault/raw/run.md", true},
		{"/vault/raw/notes/deep/Run.MD", true},
		{"/vault/raw/todo.txt", true},
		{"/vault/raw/image.png", false},
		{"/vault/raw/.obsidian/workspace.md", false},
		{"/vault/raw/a/templates/daily.md", false},
		{"/vault/raw/drawing.excalidraw.md", false},
		{"/vault/pristine/run.md", false},
		{"/elsewhere/run.md", false},
	}
	for _, tt := range tests {
		if got := svc.Accepts(tt.path); got != tt.want {
			t.Errorf("Accepts(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestIntakeService_EnqueueDeduplicates(t *testing.T) {
	store := newMockStore()
	q := &mockQueue{}
	svc := NewIntakeService(store, q, testVault())
	ctx := context.Background()

	first, created, err := svc.Enqueue(ctx, "/vault/raw/run.md", "msg-1", nil)
	if err != nil || !created {
		t.Fatalf("first enqueue: created=%v err=%v", created, err)
	}
	second, created, err := svc.Enqueue(ctx, "/vault/raw/run.md", "msg-1", nil)
	if err != nil || created {
		t.Fatalf("second enqueue: created=%v err=%v", created, err)
	}
	if first.ID != second.ID {
		t.Fatal("duplicate must return the stored item")
	}

	msgs := q.messages(messagequeue.SubjectQueueItemQueued)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(msgs))
	}
	var p messagequeue.QueueItemQueuedPayload
	if err := json.Unmarshal(msgs[0].data, &p); err != nil {
		t.Fatal(err)
	}
	if p.ItemID != first.ID.String() || msgs[0].msgID != first.ID.String() {
		t.Errorf("unexpected notification %+v (msg id %s)", p, msgs[0].msgID)
	}
}

func TestIntakeService_PublishFailureDoesNotFailEnqueue(t *testing.T) {
	q := &mockQueue{publishErr: errors.New("nats down")}
	svc := NewIntakeService(newMockStore(), q, testVault())

	if _, created, err := svc.Enqueue(context.Background(), "/vault/raw/a.md", "m", nil); err != nil || !created {
		t.Fatalf("expected enqueue to succeed, got created=%v err=%v", created, err)
	}
}

func TestIntakeService_HandleFileChanged(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		queued  int
	}{
		{"accepted", `{"file_path":"/vault/raw/a.md","message_id":"m1","change_type":"modified"}`, 1},
		{"deleted", `{"file_path":"/vault/raw/a.md","message_id":"m2","change_type":"deleted"}`, 0},
		{"filtered", `{"file_path":"/vault/raw/a.png","message_id":"m3","change_type":"created"}`, 0},
		{"blank message id", `{"file_path":"/vault/raw/a.md","message_id":"","change_type":"created"}`, 0},
		{"malformed", `{"file_path":`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			svc := NewIntakeService(store, &mockQueue{}, testVault())

			if err := svc.HandleFileChanged(context.Background(), messagequeue.SubjectFileChanged, []byte(tt.payload)); err != nil {
				t.Fatalf("expected message acknowledged, got %v", err)
			}
			if len(store.items) != tt.queued {
				t.Fatalf("expected %d queued items, got %d", tt.queued, len(store.items))
			}
		})
	}
}

func TestIntakeService_Start(t *testing.T) {
	q := &mockQueue{}
	svc := NewIntakeService(newMockStore(), q, testVault())

	if _, err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if q.handlers[messagequeue.SubjectFileChanged] == nil {
		t.Fatal("expected files.changed subscription")
	}

	if _, err := NewIntakeService(newMockStore(), nil, testVault()).Start(context.Background()); err == nil {
		t.Fatal("expected error without a queue")
	}
}

func TestIntakeService_EnqueueValidation(t *testing.T) {
	svc := NewIntakeService(newMockStore(), nil, testVault())
	if _, _, err := svc.Enqueue(context.Background(), " ", "m", nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
