package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// SessionCookie is the cookie carrying the anonymous session ID.
const SessionCookie = "chat_session"

type ctxKey int

const sessionCtxKey ctxKey = iota

// Session ensures every request carries an anonymous session ID,
// minting one and setting the cookie when absent. Sessions carry no
// identity; the ID only scopes rate limits, tokens and presence.
func Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(SessionCookie); err == nil {
			if v := c.Value; v != "" && len(v) <= 64 {
				id = v
			}
		}

		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    id,
				Path:     "/",
				MaxAge:   30 * 24 * 60 * 60,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		ctx := context.WithValue(r.Context(), sessionCtxKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionID returns the session ID stored by Session, or empty.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionCtxKey).(string)
	return id
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
