package http

import (
	"net/http"

	"github.com/Strob0t/Upchuck/internal/domain/queue"
	"github.com/Strob0t/Upchuck/internal/domain/stats"
	"github.com/Strob0t/Upchuck/internal/port/database"
)

const queueItemNotFound = "queue item not found"

// ListQueueItems handles GET /api/v1/queue.
func (h *Handlers) ListQueueItems(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	filter := database.QueueFilter{
		Status: queue.Status(r.URL.Query().Get("status")),
		Limit:  limit,
	}
	items, err := h.Queue.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err, "listing queue items failed")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

// GetQueueItem handles GET /api/v1/queue/{id}.
func (h *Handlers) GetQueueItem(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	it, err := h.Queue.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, queueItemNotFound)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// RetryQueueItem handles POST /api/v1/queue/{id}/retry.
func (h *Handlers) RetryQueueItem(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	it, err := h.Queue.Retry(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, queueItemNotFound)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// ListExtractions handles GET /api/v1/extractions.
func (h *Handlers) ListExtractions(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := database.ExtractionFilter{
		SourceFilePath: q.Get("source_file_path"),
		AgentType:      q.Get("agent_type"),
		Limit:          limit,
	}
	items, err := h.Extractions.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err, "listing extractions failed")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

// PendingStats handles GET /api/v1/stats/pending.
func (h *Handlers) PendingStats(w http.ResponseWriter, r *http.Request) {
	items, err := h.Stats.PendingSummary(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

type agentStatsResponse struct {
	stats.AgentStats
	ApprovalRate float64 `json:"approval_rate"`
}

// AgentStats handles GET /api/v1/stats/agents.
func (h *Handlers) AgentStats(w http.ResponseWriter, r *http.Request) {
	items, err := h.Stats.AgentStats(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	resp := make([]agentStatsResponse, 0, len(items))
	for _, s := range items {
		resp = append(resp, agentStatsResponse{AgentStats: s, ApprovalRate: s.ApprovalRate()})
	}
	writeJSON(w, http.StatusOK, resp)
}

// QueueStats handles GET /api/v1/stats/queue.
func (h *Handlers) QueueStats(w http.ResponseWriter, r *http.Request) {
	depth, err := h.Stats.QueueDepth(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, depth)
}
