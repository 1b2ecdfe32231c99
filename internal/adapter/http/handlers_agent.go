package http

import (
	"net/http"

	"github.com/Strob0t/Upchuck/internal/domain/agentconfig"
)

const agentNotFound = "agent configuration not found"

// updateAgentRequest carries the optimistic-concurrency version next to
// the fields to change.
type updateAgentRequest struct {
	ExpectedVersion int `json:"expected_version"`
	agentconfig.UpdateRequest
}

// ListAgentConfigs handles GET /api/v1/agents.
func (h *Handlers) ListAgentConfigs(w http.ResponseWriter, r *http.Request) {
	items, err := h.Agents.List(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

// GetAgentConfig handles GET /api/v1/agents/{type}.
func (h *Handlers) GetAgentConfig(w http.ResponseWriter, r *http.Request) {
	c, err := h.Agents.GetByType(r.Context(), urlParam(r, "type"))
	if err != nil {
		writeDomainError(w, err, agentNotFound)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// CreateAgentConfig handles POST /api/v1/agents.
func (h *Handlers) CreateAgentConfig(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[agentconfig.CreateRequest](w, r, h.bodyLimit())
	if !ok {
		return
	}
	if !requireField(w, req.AgentType, "agent_type") {
		return
	}
	c, err := h.Agents.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "creation failed")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// UpdateAgentConfig handles PUT /api/v1/agents/{type}.
func (h *Handlers) UpdateAgentConfig(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[updateAgentRequest](w, r, h.bodyLimit())
	if !ok {
		return
	}
	if req.ExpectedVersion < 1 {
		writeError(w, http.StatusBadRequest, "expected_version is required")
		return
	}
	c, err := h.Agents.Update(r.Context(), urlParam(r, "type"), req.ExpectedVersion, req.UpdateRequest)
	if err != nil {
		writeDomainError(w, err, agentNotFound)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DeleteAgentConfig handles DELETE /api/v1/agents/{type}.
func (h *Handlers) DeleteAgentConfig(w http.ResponseWriter, r *http.Request) {
	if err := h.Agents.Delete(r.Context(), urlParam(r, "type")); err != nil {
		writeDomainError(w, err, agentNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EnableAgentConfig handles POST /api/v1/agents/{type}/enable.
func (h *Handlers) EnableAgentConfig(w http.ResponseWriter, r *http.Request) {
	c, err := h.Agents.Enable(r.Context(), urlParam(r, "type"))
	if err != nil {
		writeDomainError(w, err, agentNotFound)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DisableAgentConfig handles POST /api/v1/agents/{type}/disable.
func (h *Handlers) DisableAgentConfig(w http.ResponseWriter, r *http.Request) {
	c, err := h.Agents.Disable(r.Context(), urlParam(r, "type"))
	if err != nil {
		writeDomainError(w, err, agentNotFound)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
