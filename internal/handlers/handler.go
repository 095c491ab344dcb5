package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/Murkirpus/Redis-Chat/internal/config"
	"github.com/Murkirpus/Redis-Chat/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store  *store.RedisStore
	cfg    *config.Config
	logger zerolog.Logger
}

// NewHandler creates a new Handler with the given store.
func NewHandler(s *store.RedisStore, cfg *config.Config, logger zerolog.Logger) *Handler {
	return &Handler{store: s, cfg: cfg, logger: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// sanitizeText trims the input and removes control characters. Length
// bounds are enforced separately against the configured limits.
func sanitizeText(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' {
			return -1
		}
		return r
	}, s)
}
