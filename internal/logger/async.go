package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Closer allows flushing and stopping the async handler.
type Closer interface {
	Close()
}

// nopCloser is a no-op Closer for synchronous mode.
type nopCloser struct{}

func (nopCloser) Close() {}

// pending is a record together with the handler it was logged through, so
// attributes and groups added with With survive the hop to the writers.
type pending struct {
	handler slog.Handler
	rec     slog.Record
}

// asyncBuffer is shared by an AsyncHandler and every handler derived from it.
type asyncBuffer struct {
	mu      sync.RWMutex
	closed  bool
	ch      chan pending
	writers sync.WaitGroup
	dropped atomic.Int64
	once    sync.Once
}

// AsyncHandler writes Info and Debug records from a buffered channel drained
// by background writers. When the buffer is full those records are dropped
// and counted; Warn and Error records are written inline instead, so queue
// failures always reach the log. Records are handed to the inner handler
// with a background context, so context-derived attributes must be attached
// before Handle is called.
type AsyncHandler struct {
	inner slog.Handler
	buf   *asyncBuffer
}

// NewAsyncHandler creates an AsyncHandler with the given buffer capacity and
// number of writers.
func NewAsyncHandler(inner slog.Handler, bufferSize, writers int) *AsyncHandler {
	b := &asyncBuffer{ch: make(chan pending, bufferSize)}
	for range max(writers, 1) {
		b.writers.Add(1)
		go b.write()
	}
	return &AsyncHandler{inner: inner, buf: b}
}

func (b *asyncBuffer) write() {
	defer b.writers.Done()
	for p := range b.ch {
		_ = p.handler.Handle(context.Background(), p.rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle buffers the record. After Close it writes synchronously.
func (h *AsyncHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	h.buf.mu.RLock()
	if h.buf.closed {
		h.buf.mu.RUnlock()
		return h.inner.Handle(ctx, rec)
	}
	select {
	case h.buf.ch <- pending{handler: h.inner, rec: rec.Clone()}:
		h.buf.mu.RUnlock()
		return nil
	default:
	}
	h.buf.mu.RUnlock()

	if rec.Level >= slog.LevelWarn {
		return h.inner.Handle(ctx, rec)
	}
	h.buf.dropped.Add(1)
	return nil
}

// WithAttrs returns a handler sharing the buffer with h.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), buf: h.buf}
}

// WithGroup returns a handler sharing the buffer with h.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), buf: h.buf}
}

// DroppedCount returns the number of dropped records.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.buf.dropped.Load()
}

// Close stops buffering, waits for the writers to drain and reports the
// number of dropped records once. Calling it again is a no-op.
func (h *AsyncHandler) Close() {
	h.buf.once.Do(func() {
		h.buf.mu.Lock()
		h.buf.closed = true
		close(h.buf.ch)
		h.buf.mu.Unlock()
		h.buf.writers.Wait()

		if n := h.buf.dropped.Load(); n > 0 {
			rec := slog.NewRecord(time.Now(), slog.LevelWarn, "async log buffer overflow", 0)
			rec.AddAttrs(slog.Int64("dropped", n))
			_ = h.inner.Handle(context.Background(), rec)
		}
	})
}
