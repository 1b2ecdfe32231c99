package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/Upchuck/internal/config"
	"github.com/Strob0t/Upchuck/internal/domain"
	"github.com/Strob0t/Upchuck/internal/domain/confidence"
	"github.com/Strob0t/Upchuck/internal/domain/event"
	"github.com/Strob0t/Upchuck/internal/domain/proposal"
	"github.com/Strob0t/Upchuck/internal/port/database"
)

func seedProposal(t *testing.T, store *mockStore, createdAt time.Time) *proposal.ElevationProposal {
	t.Helper()
	p, err := proposal.New(proposal.Params{
		SourceFilePath:       "/vault/raw/run.md",
		AgentType:            "Statistics",
		OriginalContent:      "ran 5k",
		CuratedContent:       "Ran 5 km.",
		ConfidenceScore:      confidence.MustNew(0.7),
		AgentRationale:       "units",
		OutputDestination:    "/vault/pristine/run.md",
		AgentConfigurationID: uuid.New(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !createdAt.IsZero() {
		p.CreatedAt = createdAt
	}
	if err := store.CreateProposal(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	store.outbox = nil
	return p
}

func TestReviewService_Approve(t *testing.T) {
	store := newMockStore()
	svc := NewReviewService(store, config.Review{})
	p := seedProposal(t, store, time.Time{})

	got, err := svc.Approve(context.Background(), p.ID, strPtr("ship it"))
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if got.ReviewStatus != proposal.StatusApproved || got.ReviewedAt == nil {
		t.Fatalf("unexpected proposal %+v", got)
	}
	if len(store.outbox) != 1 || store.outbox[0].EventType() != event.TypeProposalApproved {
		t.Fatalf("expected ProposalApproved in outbox, got %v", outboxTypes(store))
	}

	_, err = svc.Approve(context.Background(), p.ID, nil)
	var ise *domain.InvalidStateError
	if !errors.As(err, &ise) || ise.State != string(proposal.StatusApproved) {
		t.Fatalf("second approve: expected InvalidStateError(Approved), got %v", err)
	}
}

func TestReviewService_DenyAndExpire(t *testing.T) {
	store := newMockStore()
	svc := NewReviewService(store, config.Review{})
	ctx := context.Background()

	denied := seedProposal(t, store, time.Time{})
	if _, err := svc.Deny(ctx, denied.ID, strPtr("wrong units")); err != nil {
		t.Fatalf("Deny: %v", err)
	}
	expired := seedProposal(t, store, time.Time{})
	if _, err := svc.Expire(ctx, expired.ID); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if len(store.outbox) != 0 {
		t.Fatalf("deny and expire raise no events, got %v", outboxTypes(store))
	}

	if _, err := svc.Deny(ctx, uuid.New(), nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReviewService_ConcurrentReviewConflict(t *testing.T) {
	store := newMockStore()
	store.saveReviewErr = domain.ErrConflict
	svc := NewReviewService(store, config.Review{})
	p := seedProposal(t, store, time.Time{})

	if _, err := svc.Approve(context.Background(), p.ID, nil); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestReviewService_ListRejectsUnknownStatus(t *testing.T) {
	svc := NewReviewService(newMockStore(), config.Review{})
	_, err := svc.List(context.Background(), database.ProposalFilter{Status: "Maybe"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestReviewService_ExpireStale(t *testing.T) {
	store := newMockStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewReviewService(store, config.Review{ExpireAfter: 24 * time.Hour, SweepBatch: 10})
	svc.now = func() time.Time { return now }

	old := seedProposal(t, store, now.Add(-48*time.Hour))
	fresh := seedProposal(t, store, now.Add(-time.Hour))
	reviewed := seedProposal(t, store, now.Add(-72*time.Hour))
	if _, err := svc.Deny(context.Background(), reviewed.ID, nil); err != nil {
		t.Fatal(err)
	}

	n, err := svc.ExpireStale(context.Background())
	if err != nil {
		t.Fatalf("ExpireStale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired, got %d", n)
	}
	if got, _ := store.GetProposal(context.Background(), old.ID); got.ReviewStatus != proposal.StatusExpired {
		t.Errorf("old proposal: expected Expired, got %s", got.ReviewStatus)
	}
	if got, _ := store.GetProposal(context.Background(), fresh.ID); got.ReviewStatus != proposal.StatusPending {
		t.Errorf("fresh proposal: expected Pending, got %s", got.ReviewStatus)
	}
}

func TestReviewService_ExpireStaleDisabled(t *testing.T) {
	store := newMockStore()
	svc := NewReviewService(store, config.Review{})
	seedProposal(t, store, time.Now().Add(-365*24*time.Hour))

	n, err := svc.ExpireStale(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected disabled sweep, got %d %v", n, err)
	}
	if err := svc.RunSweeper(context.Background()); err != nil {
		t.Fatalf("RunSweeper disabled: %v", err)
	}
}

func TestReviewService_RunSweeperStopsOnCancel(t *testing.T) {
	store := newMockStore()
	svc := NewReviewService(store, config.Review{ExpireAfter: time.Millisecond, SweepInterval: 5 * time.Millisecond})
	p := seedProposal(t, store, time.Now().Add(-time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.RunSweeper(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, _ := store.GetProposal(context.Background(), p.ID); got.ReviewStatus == proposal.StatusExpired {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("RunSweeper: %v", err)
	}
	if got, _ := store.GetProposal(context.Background(), p.ID); got.ReviewStatus != proposal.StatusExpired {
		t.Fatal("expected sweeper to expire the proposal")
	}
}
