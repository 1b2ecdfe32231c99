package service

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/Strob0t/Upchuck/internal/domain/confidence"
	"github.com/Strob0t/Upchuck/internal/domain/extraction"
	"github.com/Strob0t/Upchuck/internal/domain/queue"
	"github.com/Strob0t/Upchuck/internal/port/database"
)

func TestStatsService(t *testing.T) {
	store := newMockStore()
	it, _ := queue.New("/a.md", "m", nil)
	store.items[it.ID] = *it
	svc := NewStatsService(store)
	ctx := context.Background()

	pending, err := svc.PendingSummary(ctx)
	if err != nil || len(pending) != 1 || pending[0].PendingCount != 2 {
		t.Fatalf("PendingSummary: %v %v", pending, err)
	}

	agents, err := svc.AgentStats(ctx)
	if err != nil || len(agents) != 1 {
		t.Fatalf("AgentStats: %v %v", agents, err)
	}
	if rate := agents[0].ApprovalRate(); rate != 0.25 {
		t.Errorf("expected approval rate 0.25, got %v", rate)
	}

	depth, err := svc.QueueDepth(ctx)
	if err != nil || depth[string(queue.StatusQueued)] != 1 {
		t.Fatalf("QueueDepth: %v %v", depth, err)
	}
}

func TestExtractionService_List(t *testing.T) {
	store := newMockStore()
	d, err := extraction.New(extraction.Params{
		SourceFilePath:       "/run.md",
		AgentType:            "Statistics",
		DataType:             "distance",
		DataValue:            "5",
		DataUOM:              "km",
		ConfidenceScore:      confidence.MustNew(0.9),
		AgentConfigurationID: uuid.New(),
	})
	if err != nil {
		t.Fatal(err)
	}
	store.extractions = append(store.extractions, *d)

	got, err := NewExtractionService(store).List(context.Background(), database.ExtractionFilter{AgentType: "Statistics"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].DataValue != "5" {
		t.Fatalf("unexpected extractions: %+v", got)
	}
}
