package http

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/Strob0t/Upchuck/internal/domain/proposal"
	"github.com/Strob0t/Upchuck/internal/port/database"
)

const proposalNotFound = "proposal not found"

type reviewRequest struct {
	Comments *string `json:"comments,omitempty"`
}

// ListProposals handles GET /api/v1/proposals.
func (h *Handlers) ListProposals(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := database.ProposalFilter{
		Status:    proposal.ReviewStatus(q.Get("status")),
		AgentType: q.Get("agent_type"),
		Limit:     limit,
	}
	items, err := h.Reviews.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err, "listing proposals failed")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

// GetProposal handles GET /api/v1/proposals/{id}.
func (h *Handlers) GetProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	p, err := h.Reviews.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, proposalNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ApproveProposal handles POST /api/v1/proposals/{id}/approve.
func (h *Handlers) ApproveProposal(w http.ResponseWriter, r *http.Request) {
	h.reviewProposal(w, r, h.Reviews.Approve)
}

// DenyProposal handles POST /api/v1/proposals/{id}/deny.
func (h *Handlers) DenyProposal(w http.ResponseWriter, r *http.Request) {
	h.reviewProposal(w, r, h.Reviews.Deny)
}

// ExpireProposal handles POST /api/v1/proposals/{id}/expire.
func (h *Handlers) ExpireProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	p, err := h.Reviews.Expire(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, proposalNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) reviewProposal(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, id uuid.UUID, comments *string) (*proposal.ElevationProposal, error),
) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	req, ok := readJSON[reviewRequest](w, r, h.bodyLimit())
	if !ok {
		return
	}
	p, err := fn(r.Context(), id, req.Comments)
	if err != nil {
		writeDomainError(w, err, proposalNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
