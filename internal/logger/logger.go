// Package logger provides structured logging setup for Upchuck.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Strob0t/Upchuck/internal/config"
)

const asyncWorkers = 2

// New creates a *slog.Logger from the given Logging config.
// Output is JSON to stdout with a "service" attribute on every record and
// the request and queue item ids carried by the context. The returned
// Closer flushes the async buffer and must be called on shutdown.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	return newWithWriter(cfg, os.Stdout)
}

func newWithWriter(cfg config.Logging, w io.Writer) (*slog.Logger, Closer) {
	var (
		handler slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(cfg.Level)})
		closer  Closer       = nopCloser{}
	)

	if cfg.Async {
		size := cfg.BufferSize
		if size <= 0 {
			size = 1024
		}
		async := NewAsyncHandler(handler, size, asyncWorkers)
		handler, closer = async, async
	}

	return slog.New(&contextHandler{inner: handler}).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// contextHandler copies ids stored in the context onto the record before it
// reaches the inner handler. It runs ahead of the async handler, which
// drops the context.
type contextHandler struct {
	inner slog.Handler
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	if id := RequestID(ctx); id != "" {
		rec.AddAttrs(slog.String("request_id", id))
	}
	if id := ItemID(ctx); id != "" {
		rec.AddAttrs(slog.String("item_id", id))
	}
	return h.inner.Handle(ctx, rec)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{inner: h.inner.WithGroup(name)}
}
