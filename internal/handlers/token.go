package handlers

import (
	"net/http"

	"github.com/Murkirpus/Redis-Chat/internal/api/middleware"
)

// Token issues (or re-serves) the session's anti-forgery token.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionID(r.Context())

	token, err := h.store.IssueToken(r.Context(), sessionID)
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "try again later")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"token": token})
}
