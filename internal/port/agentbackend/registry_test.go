package agentbackend_test

import (
	"context"
	"testing"

	"github.com/Strob0t/Upchuck/internal/port/agentbackend"
)

type testBackend struct {
	name string
}

func (b *testBackend) Name() string { return b.name }
func (b *testBackend) Process(_ context.Context, _ agentbackend.Request) (*agentbackend.Result, error) {
	return &agentbackend.Result{}, nil
}

func TestRegisterAndLookup(t *testing.T) {
	r := agentbackend.NewRegistry(nil)
	r.Register("Statistics", &testBackend{name: "stats"})

	b, err := r.Lookup("Statistics")
	if err != nil {
		t.Fatal(err)
	}
	if b.Name() != "stats" {
		t.Fatalf("expected stats, got %s", b.Name())
	}
}

func TestLookupUnknownWithoutFallback(t *testing.T) {
	r := agentbackend.NewRegistry(nil)
	if _, err := r.Lookup("nonexistent"); err == nil {
		t.Fatal("expected error for unknown agent type")
	}
}

func TestLookupFallback(t *testing.T) {
	r := agentbackend.NewRegistry(&testBackend{name: "nats"})
	r.Register("Statistics", &testBackend{name: "stats"})

	b, err := r.Lookup("Summary")
	if err != nil {
		t.Fatal(err)
	}
	if b.Name() != "nats" {
		t.Fatalf("expected fallback nats, got %s", b.Name())
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	r := agentbackend.NewRegistry(nil)
	r.Register("Statistics", &testBackend{name: "a"})

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	r.Register("Statistics", &testBackend{name: "b"})
}

func TestAvailable(t *testing.T) {
	r := agentbackend.NewRegistry(nil)
	r.Register("b", &testBackend{name: "b"})
	r.Register("a", &testBackend{name: "a"})

	names := r.Available()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("expected [a b], got %v", names)
	}
}
