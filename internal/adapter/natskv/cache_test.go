package natskv_test

import (
	"context"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/Strob0t/Upchuck/internal/adapter/nats"
	"github.com/Strob0t/Upchuck/internal/adapter/natskv"
	"github.com/Strob0t/Upchuck/internal/config"
	"github.com/Strob0t/Upchuck/internal/port/cache/cachetest"
)

func TestCompliance(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}
	ctx := context.Background()

	q, err := nats.Connect(ctx, config.NATS{URL: url, Stream: "UPCHUCK_TEST", DedupWindow: time.Minute})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })

	kv, err := q.KeyValue(ctx, "upchuck-test-cache", time.Minute)
	if err != nil {
		t.Fatalf("KeyValue: %v", err)
	}
	cachetest.Run(t, natskv.New(kv), nil)
}

var kvKey = regexp.MustCompile(`^[-/_=.a-zA-Z0-9]+$`)

func TestEncodedKeysAreValid(t *testing.T) {
	for _, k := range []string{"agentconfig:Statistics", "agent config/with space", "ünïcode"} {
		if got := natskv.EncodeKeyForTest(k); !kvKey.MatchString(got) {
			t.Errorf("encoded %q = %q, not a valid KV key", k, got)
		}
	}
}
