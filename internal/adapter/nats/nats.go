// Package nats implements the message queue port using NATS JetStream.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/Upchuck/internal/config"
	"github.com/Strob0t/Upchuck/internal/logger"
	"github.com/Strob0t/Upchuck/internal/port/messagequeue"
)

const (
	headerRequestID  = "X-Request-ID"
	headerRetryCount = "Retry-Count"
	headerError      = "X-Error"

	// maxRetries is the number of handler failures after which a message
	// is moved to <subject>.dlq.
	maxRetries = 3
	dlqSuffix  = ".dlq"
)

// streamSubjects are captured by the stream. agents.process.* is core
// request/reply traffic and deliberately not persisted.
var streamSubjects = []string{
	"files.>",
	"queue.>",
	messagequeue.SubjectCuration + ".>",
}

var _ messagequeue.Queue = (*Queue)(nil)

// Queue implements messagequeue.Queue using NATS JetStream.
type Queue struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream string
}

// Connect establishes a connection to NATS and ensures the JetStream stream exists.
func Connect(ctx context.Context, cfg config.NATS) (*Queue, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("upchuck"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       cfg.Stream,
		Subjects:   streamSubjects,
		Duplicates: cfg.DedupWindow,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", cfg.URL, "stream", cfg.Stream)
	return &Queue{nc: nc, js: js, stream: cfg.Stream}, nil
}

// Conn exposes the underlying connection for request/reply clients.
func (q *Queue) Conn() *nats.Conn { return q.nc }

// Publish sends a message to the given subject.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	return q.PublishMsg(ctx, subject, "", data)
}

// PublishMsg sends a message with a Nats-Msg-Id so that JetStream drops a
// repeat inside the stream's duplicate window. An empty msgID disables
// deduplication.
func (q *Queue) PublishMsg(ctx context.Context, subject, msgID string, data []byte) error {
	if err := messagequeue.Validate(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}

	msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header{}}
	if id := logger.RequestID(ctx); id != "" {
		msg.Header.Set(headerRequestID, id)
	}

	var opts []jetstream.PublishOpt
	if msgID != "" {
		opts = append(opts, jetstream.WithMsgID(msgID))
	}

	ack, err := q.js.PublishMsg(ctx, msg, opts...)
	if err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	if ack.Duplicate {
		slog.Debug("nats duplicate publish dropped", "subject", subject, "msg_id", msgID)
	}
	return nil
}

// Subscribe registers a handler for messages on the given subject. The
// consumer is durable, so instances subscribing to the same subject share
// the work.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, q.stream, jetstream.ConsumerConfig{
		Durable:       durableName(subject),
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		q.handle(msg, handler)
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

func (q *Queue) handle(msg jetstream.Msg, handler messagequeue.Handler) {
	ctx := context.Background()
	if id := msg.Headers().Get(headerRequestID); id != "" {
		ctx = logger.WithRequestID(ctx, id)
	}

	if err := messagequeue.Validate(msg.Subject(), msg.Data()); err != nil {
		slog.ErrorContext(ctx, "invalid message", "subject", msg.Subject(), "error", err)
		q.moveToDLQ(ctx, msg, err)
		return
	}

	if err := handler(ctx, msg.Subject(), msg.Data()); err != nil {
		failures := retryCount(msg) + 1
		slog.ErrorContext(ctx, "message handler failed",
			"subject", msg.Subject(), "attempt", failures, "error", err)
		if failures >= maxRetries {
			q.moveToDLQ(ctx, msg, err)
			return
		}
		if nakErr := msg.NakWithDelay(time.Duration(failures) * time.Second); nakErr != nil {
			slog.ErrorContext(ctx, "nats nak failed", "error", nakErr)
		}
		return
	}

	if ackErr := msg.Ack(); ackErr != nil {
		slog.ErrorContext(ctx, "nats ack failed", "error", ackErr)
	}
}

// moveToDLQ republishes the message on <subject>.dlq and terminates the
// original. On publish failure the original is left for redelivery.
func (q *Queue) moveToDLQ(ctx context.Context, msg jetstream.Msg, cause error) {
	dlq := &nats.Msg{Subject: msg.Subject() + dlqSuffix, Data: msg.Data(), Header: nats.Header{}}
	for k, v := range msg.Headers() {
		dlq.Header[k] = v
	}
	dlq.Header.Set(headerError, cause.Error())

	if _, err := q.js.PublishMsg(ctx, dlq); err != nil {
		slog.ErrorContext(ctx, "dlq publish failed", "subject", dlq.Subject, "error", err)
		_ = msg.Nak()
		return
	}
	slog.WarnContext(ctx, "message moved to dlq", "subject", msg.Subject())
	if err := msg.Term(); err != nil {
		slog.ErrorContext(ctx, "nats term failed", "error", err)
	}
}

// retryCount returns the failures already seen for msg: the larger of the
// Retry-Count header and the redeliveries reported by JetStream.
func retryCount(msg jetstream.Msg) int {
	n := 0
	if v := msg.Headers().Get(headerRetryCount); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			n = parsed
		}
	}
	if md, err := msg.Metadata(); err == nil && int(md.NumDelivered)-1 > n {
		n = int(md.NumDelivered) - 1
	}
	return n
}

// durableName derives a consumer name from a subject filter. Consumer names
// may not contain '.', '*' or '>'.
func durableName(subject string) string {
	r := strings.NewReplacer(".", "_", "*", "star", ">", "all")
	return "upchuck_" + r.Replace(subject)
}

// KeyValue returns (creating if needed) a JetStream KV bucket whose entries
// expire after ttl.
func (q *Queue) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := q.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("nats kv %s: %w", bucket, err)
	}
	return kv, nil
}

// Drain gracefully drains subscriptions and closes the connection.
func (q *Queue) Drain() error {
	if err := q.nc.Drain(); err != nil {
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

// Close shuts down the NATS connection.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// IsConnected reports whether the NATS connection is up.
func (q *Queue) IsConnected() bool {
	return q.nc.IsConnected()
}
