package http

import (
	"context"
	"net/http"
	"time"

	"github.com/Strob0t/Upchuck/internal/service"
)

const (
	defaultBodyLimit   = 1 << 20
	healthCheckTimeout = 2 * time.Second
)

// HealthCheck probes one dependency for GET /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handlers holds the HTTP handlers and their service dependencies.
type Handlers struct {
	Reviews     *service.ReviewService
	Agents      *service.AgentConfigService
	Queue       *service.QueueService
	Stats       *service.StatsService
	Extractions *service.ExtractionService
	Checks      []HealthCheck
	BodyLimit   int64
}

func (h *Handlers) bodyLimit() int64 {
	if h.BodyLimit <= 0 {
		return defaultBodyLimit
	}
	return h.BodyLimit
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health reports "ok" when every dependency check passes and "degraded"
// with 503 otherwise.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(h.Checks))}
	status := http.StatusOK
	for _, c := range h.Checks {
		if err := c.Check(ctx); err != nil {
			resp.Checks[c.Name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.Name] = "ok"
	}
	writeJSON(w, status, resp)
}
