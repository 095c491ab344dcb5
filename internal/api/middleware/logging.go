package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Logger returns zerolog request logging middleware. Rejections (4xx)
// log at warn and server errors at error, so abuse and degraded-store
// responses stand out without raising the global level.
func Logger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			// The session middleware runs later in the chain, so check
			// the cookie directly.
			_, cookieErr := r.Cookie(SessionCookie)
			hasSession := cookieErr == nil

			defer func() {
				evt := logger.Info()
				switch {
				case ww.Status() >= 500:
					evt = logger.Error()
				case ww.Status() >= 400:
					evt = logger.Warn()
				}
				evt.
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Bool("session", hasSession).
					Dur("latency", time.Since(start)).
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("remote", RealIP(r)).
					Msg("request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
