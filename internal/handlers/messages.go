package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Murkirpus/Redis-Chat/internal/api/middleware"
	"github.com/Murkirpus/Redis-Chat/internal/crypto"
	"github.com/Murkirpus/Redis-Chat/internal/metrics"
	"github.com/Murkirpus/Redis-Chat/internal/models"
	"github.com/Murkirpus/Redis-Chat/internal/store"
)

// PostMessageRequest represents the post message request.
type PostMessageRequest struct {
	Author     string `json:"author"`
	Body       string `json:"body"`
	Token      string `json:"token"`
	Visibility string `json:"visibility,omitempty"` // "private" for self-only messages
}

// PostMessageResponse represents the post message response.
type PostMessageResponse struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// MessagesResponse represents a full or delta fetch response. Latest is
// the watermark clients should carry into their next delta fetch.
type MessagesResponse struct {
	Messages []models.Message `json:"messages"`
	Latest   int64            `json:"latest"`
}

// ProbeResponse represents the cheap liveness probe response.
type ProbeResponse struct {
	Changed bool  `json:"changed"`
	Latest  int64 `json:"latest"`
}

// PostMessage handles message submission. Validation and sanitization
// happen here, before the store sees anything; admission order inside
// the store is flood, capacity, memory, soft cap.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionID(r.Context())

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ok, err := h.store.VerifyToken(r.Context(), sessionID, req.Token)
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "try again later")
		return
	}
	if !ok {
		h.Error(w, http.StatusForbidden, "invalid or expired token")
		return
	}

	author := sanitizeText(req.Author)
	body := sanitizeText(req.Body)
	if author == "" {
		author = "anonymous"
	}
	// Truncate on a rune boundary so multi-byte names stay valid UTF-8.
	if runes := []rune(author); len(runes) > 50 {
		author = string(runes[:50])
	}
	if len(body) < h.cfg.MessageMinLen || len(body) > h.cfg.MessageMaxLen {
		h.Error(w, http.StatusBadRequest, "message length out of bounds")
		return
	}

	status, err := h.store.RateLimitCheck(r.Context(), sessionID)
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "try again later")
		return
	}
	if !status.Allowed {
		metrics.MessagesRejected.WithLabelValues(string(store.ReasonRateLimit)).Inc()
		wait := int(status.Wait.Seconds())
		if wait < 1 {
			wait = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(wait))
		h.JSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":        (&store.RejectionError{Reason: store.ReasonRateLimit}).Error(),
			"wait_seconds": wait,
		})
		return
	}

	msg := models.Message{
		Author:     author,
		Body:       body,
		Visibility: models.VisibilityPublic,
		OriginHash: crypto.OriginHash(middleware.RealIP(r), h.cfg.OriginSecret, h.store.Now()),
	}
	if req.Visibility == string(models.VisibilityPrivate) {
		msg.Visibility = models.VisibilityPrivate
		msg.OwnerSession = sessionID
	}

	if err := h.store.Append(r.Context(), &msg); err != nil {
		if rej := store.AsRejection(err); rej != nil {
			metrics.MessagesRejected.WithLabelValues(string(rej.Reason)).Inc()
			status := http.StatusServiceUnavailable
			if rej.Reason == store.ReasonFlood {
				status = http.StatusForbidden
			}
			h.Error(w, status, rej.Error())
			return
		}
		if errors.Is(err, store.ErrStoreUnavailable) {
			h.Error(w, http.StatusServiceUnavailable, "try again later")
			return
		}
		h.logger.Error().Err(err).Msg("append failed")
		h.Error(w, http.StatusInternalServerError, "failed to post message")
		return
	}

	metrics.MessagesPosted.WithLabelValues(string(msg.Visibility)).Inc()
	h.store.Heartbeat(r.Context(), sessionID)

	h.JSON(w, http.StatusCreated, PostMessageResponse{ID: msg.ID, Timestamp: msg.CreatedAt})
}

// GetMessages serves both read modes: a full fetch of the most recent
// messages, or, when ?after= is present, a delta fetch of everything
// strictly newer than the caller's watermark.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionID(r.Context())

	limit := h.cfg.DisplayLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < limit {
			limit = n
		}
	}

	var msgs []models.Message
	var latest int64
	if v := r.URL.Query().Get("after"); v != "" {
		after, err := strconv.ParseInt(v, 10, 64)
		if err != nil || after < 0 {
			h.Error(w, http.StatusBadRequest, "invalid watermark")
			return
		}
		msgs = h.store.QueryAfter(r.Context(), sessionID, after, limit)
		latest = after
	} else {
		msgs = h.store.QueryRecent(r.Context(), sessionID, limit)
	}
	if len(msgs) > 0 {
		latest = msgs[len(msgs)-1].CreatedAt
	}

	h.JSON(w, http.StatusOK, MessagesResponse{Messages: msgs, Latest: latest})
}

// Probe is the boolean-only liveness check: clients compare their
// watermark against the newest stored timestamp and skip the delta
// fetch when nothing changed.
func (h *Handler) Probe(w http.ResponseWriter, r *http.Request) {
	var after int64
	if v := r.URL.Query().Get("after"); v != "" {
		after, _ = strconv.ParseInt(v, 10, 64)
	}

	latest := h.store.LatestTimestamp(r.Context())
	h.JSON(w, http.StatusOK, ProbeResponse{Changed: latest > after, Latest: latest})
}
