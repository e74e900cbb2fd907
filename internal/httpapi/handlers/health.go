package handlers

import (
	"net/http"

	"certmill/internal/httpkit"
)

// Health reports service liveness plus current scheduler load.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":  "ok",
		"service": "certmill-api",
		"version": "0.1.0",
	}
	if h.scheduler != nil {
		health["scheduler"] = h.scheduler.Snapshot()
	}
	httpkit.WriteJSON(w, 200, health)
}
