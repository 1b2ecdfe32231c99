package nats

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/Upchuck/internal/config"
	"github.com/Strob0t/Upchuck/internal/logger"
	"github.com/Strob0t/Upchuck/internal/port/messagequeue"
)

const testStream = "UPCHUCK_TEST"

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), config.NATS{
		URL:         url,
		Stream:      testStream,
		DedupWindow: time.Minute,
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q
}

// uniqueSubject returns a subject under queue.test. which the stream
// captures and the validator accepts as any valid JSON.
func uniqueSubject(t *testing.T) string {
	t.Helper()
	return "queue.test." + strings.ReplaceAll(t.Name(), "/", "_")
}

// consumeDLQ attaches a raw consumer to subject.dlq so the payload is not
// run through the validator again.
func consumeDLQ(t *testing.T, q *Queue, subject string) (<-chan jetstream.Msg, func()) {
	t.Helper()
	c, err := q.js.CreateOrUpdateConsumer(context.Background(), testStream, jetstream.ConsumerConfig{
		FilterSubject: subject + dlqSuffix,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		t.Fatalf("create DLQ consumer: %v", err)
	}

	ch := make(chan jetstream.Msg, 1)
	var once sync.Once
	sub, err := c.Consume(func(msg jetstream.Msg) {
		once.Do(func() { ch <- msg })
		_ = msg.Ack()
	})
	if err != nil {
		t.Fatalf("consume DLQ: %v", err)
	}
	return ch, sub.Stop
}

func TestQueue_PublishSubscribe(t *testing.T) {
	q := testConnect(t)
	subject := uniqueSubject(t)

	want := messagequeue.QueueItemQueuedPayload{ItemID: "i-1", FilePath: "/vault/a.md", MessageID: "m-1"}
	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got := make(chan messagequeue.QueueItemQueuedPayload, 1)
	var once sync.Once
	stop, err := q.Subscribe(context.Background(), subject, func(_ context.Context, _ string, d []byte) error {
		var p messagequeue.QueueItemQueuedPayload
		if err := json.Unmarshal(d, &p); err != nil {
			return err
		}
		once.Do(func() { got <- p })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case p := <-got:
		if p != want {
			t.Errorf("got %+v, want %+v", p, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestQueue_RequestIDPropagation(t *testing.T) {
	q := testConnect(t)
	subject := uniqueSubject(t)

	const wantReqID = "req-abc-123"

	got := make(chan string, 1)
	var once sync.Once
	stop, err := q.Subscribe(context.Background(), subject, func(ctx context.Context, _ string, _ []byte) error {
		once.Do(func() { got <- logger.RequestID(ctx) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	ctx := logger.WithRequestID(context.Background(), wantReqID)
	if err := q.Publish(ctx, subject, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case id := <-got:
		if id != wantReqID {
			t.Errorf("request ID = %q, want %q", id, wantReqID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestQueue_PublishRejectsInvalidPayload(t *testing.T) {
	q := testConnect(t)

	err := q.Publish(context.Background(), messagequeue.SubjectFileChanged, []byte(`{"file_path":"/a.md"}`))
	if err == nil {
		t.Fatal("expected validation error for missing message_id")
	}
}

func TestQueue_PublishMsgDeduplicates(t *testing.T) {
	q := testConnect(t)
	subject := uniqueSubject(t)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		count int
	)
	stop, err := q.Subscribe(ctx, subject, func(_ context.Context, _ string, _ []byte) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	msgID := "dedup-" + time.Now().Format(time.RFC3339Nano)
	for range 2 {
		if err := q.PublishMsg(ctx, subject, msgID, []byte(`{"n":1}`)); err != nil {
			t.Fatalf("PublishMsg: %v", err)
		}
	}

	time.Sleep(time.Second)
	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("delivered %d times, want 1", count)
	}
}

func TestQueue_DLQ_InvalidPayload(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()
	subject := messagequeue.SubjectQueueItemQueued

	dlq, stopDLQ := consumeDLQ(t, q, subject)
	defer stopDLQ()

	mainStop, err := q.Subscribe(ctx, subject, func(_ context.Context, _ string, _ []byte) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe main: %v", err)
	}
	defer mainStop()

	// Bypass Publish, which would reject the payload up front.
	if _, err := q.js.Publish(ctx, subject, []byte("not-json")); err != nil {
		t.Fatalf("raw publish: %v", err)
	}

	select {
	case msg := <-dlq:
		if string(msg.Data()) != "not-json" {
			t.Errorf("DLQ data = %q, want %q", msg.Data(), "not-json")
		}
		if msg.Headers().Get(headerError) == "" {
			t.Error("expected error header on DLQ message")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for DLQ message")
	}
}

func TestQueue_DLQ_RetryExhaustion(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()
	subject := uniqueSubject(t)

	dlq, stopDLQ := consumeDLQ(t, q, subject)
	defer stopDLQ()

	mainStop, err := q.Subscribe(ctx, subject, func(_ context.Context, _ string, _ []byte) error {
		return errAlwaysFail
	})
	if err != nil {
		t.Fatalf("Subscribe main: %v", err)
	}
	defer mainStop()

	// A Retry-Count of maxRetries-1 means the next failure exhausts the message.
	msg := &nats.Msg{Subject: subject, Data: []byte(`{"exhausted":true}`), Header: nats.Header{}}
	msg.Header.Set(headerRetryCount, "2")
	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		t.Fatalf("PublishMsg: %v", err)
	}

	select {
	case m := <-dlq:
		if string(m.Data()) != `{"exhausted":true}` {
			t.Errorf("DLQ data = %q", m.Data())
		}
		if m.Headers().Get(headerError) != errAlwaysFail.Error() {
			t.Errorf("error header = %q", m.Headers().Get(headerError))
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for DLQ message after retry exhaustion")
	}
}

func TestQueue_KeyValue(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()

	kv, err := q.KeyValue(ctx, "test-kv-"+t.Name(), 30*time.Second)
	if err != nil {
		t.Fatalf("KeyValue: %v", err)
	}

	if _, err := kv.Put(ctx, "greeting", []byte("hello")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entry, err := kv.Get(ctx, "greeting")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(entry.Value()) != "hello" {
		t.Errorf("value = %q, want %q", entry.Value(), "hello")
	}

	if err := kv.Delete(ctx, "greeting"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := kv.Get(ctx, "greeting"); err == nil {
		t.Error("expected error after delete, got nil")
	}
}

func TestQueue_IsConnected(t *testing.T) {
	q := testConnect(t)

	if !q.IsConnected() {
		t.Error("IsConnected() = false after Connect, want true")
	}
}

func TestDurableName(t *testing.T) {
	tests := map[string]string{
		"queue.item.queued": "upchuck_queue_item_queued",
		"curation.*":        "upchuck_curation_star",
		"files.>":           "upchuck_files_all",
	}
	for in, want := range tests {
		if got := durableName(in); got != want {
			t.Errorf("durableName(%q) = %q, want %q", in, got, want)
		}
	}
}

var errAlwaysFail = errSentinel("handler always fails")

type errSentinel string

func (e errSentinel) Error() string { return string(e) }
