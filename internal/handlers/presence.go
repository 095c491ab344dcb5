package handlers

import (
	"net/http"

	"github.com/Murkirpus/Redis-Chat/internal/api/middleware"
	"github.com/Murkirpus/Redis-Chat/internal/metrics"
)

// Heartbeat marks the caller's session as active.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	h.store.Heartbeat(r.Context(), middleware.SessionID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// Online returns how many sessions heartbeated within the activity
// window.
func (h *Handler) Online(w http.ResponseWriter, r *http.Request) {
	count := h.store.OnlineCount(r.Context())
	metrics.OnlineSessions.Set(float64(count))
	h.JSON(w, http.StatusOK, map[string]int64{"online": count})
}
