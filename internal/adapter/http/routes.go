package http

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// Proposals
		r.Get("/proposals", h.ListProposals)
		r.Get("/proposals/{id}", h.GetProposal)
		r.Post("/proposals/{id}/approve", h.ApproveProposal)
		r.Post("/proposals/{id}/deny", h.DenyProposal)
		r.Post("/proposals/{id}/expire", h.ExpireProposal)

		// Extractions
		r.Get("/extractions", h.ListExtractions)

		// Agent configurations
		r.Get("/agents", h.ListAgentConfigs)
		r.Post("/agents", h.CreateAgentConfig)
		r.Get("/agents/{type}", h.GetAgentConfig)
		r.Put("/agents/{type}", h.UpdateAgentConfig)
		r.Delete("/agents/{type}", h.DeleteAgentConfig)
		r.Post("/agents/{type}/enable", h.EnableAgentConfig)
		r.Post("/agents/{type}/disable", h.DisableAgentConfig)

		// Processing queue
		r.Get("/queue", h.ListQueueItems)
		r.Get("/queue/{id}", h.GetQueueItem)
		r.Post("/queue/{id}/retry", h.RetryQueueItem)

		// Stats
		r.Get("/stats/pending", h.PendingStats)
		r.Get("/stats/agents", h.AgentStats)
		r.Get("/stats/queue", h.QueueStats)
	})
}
