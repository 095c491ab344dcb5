package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Murkirpus/Redis-Chat/internal/api/middleware"
	"github.com/Murkirpus/Redis-Chat/internal/config"
	"github.com/Murkirpus/Redis-Chat/internal/handlers"
	"github.com/Murkirpus/Redis-Chat/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, cfg *config.Config, s *store.RedisStore) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Anonymous session cookie
	r.Use(middleware.Session)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(s, cfg, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/messages", h.GetMessages)
		r.Post("/messages", h.PostMessage)
		r.Get("/sync", h.Probe)
		r.Post("/heartbeat", h.Heartbeat)
		r.Get("/online", h.Online)
		r.Get("/token", h.Token)
	})

	return r
}
