// Package api exposes the operator REST surface and the telephony webhook
// endpoints that drive crawl sessions.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xdial/xdial/internal/api/middleware"
	"github.com/xdial/xdial/internal/config"
	"github.com/xdial/xdial/internal/crawl"
	"github.com/xdial/xdial/internal/database"
	"github.com/xdial/xdial/internal/store"
)

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router  *chi.Mux
	cfg     *config.Config
	store   *store.Store
	crawler *crawl.Crawler
	targets database.TargetRepository
	logger  *slog.Logger

	limiter     *middleware.IPRateLimiter
	authLimiter *middleware.IPRateLimiter
	gatherer    prometheus.Gatherer
	jwtSecret   []byte
}

// NewServer creates the HTTP handler with all routes mounted. jwtSecret is
// the resolved operator token signing key.
func NewServer(cfg *config.Config, st *store.Store, crawler *crawl.Crawler, targets database.TargetRepository, gatherer prometheus.Gatherer, jwtSecret []byte, logger *slog.Logger) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		cfg:         cfg,
		store:       st,
		crawler:     crawler,
		targets:     targets,
		logger:      logger,
		limiter:     middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig()),
		authLimiter: middleware.NewIPRateLimiter(middleware.AuthRateLimitConfig()),
		gatherer:    gatherer,
		jwtSecret:   jwtSecret,
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops the background rate-limiter cleanup.
func (s *Server) Close() {
	s.limiter.Stop()
	s.authLimiter.Stop()
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger)
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// Operator API.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.limiter.Middleware)

		r.Get("/health", s.handleHealth)
		r.With(s.authLimiter.Middleware).Post("/auth/login", s.handleLogin)

		// Authenticated operator routes.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireOperatorAuth(s.jwtSecret))

			r.Post("/recon", s.handleRecon)
			r.Post("/crawl", s.handleCrawl)

			r.Route("/sessions/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
				r.Put("/path", s.handleSetPath)
			})

			r.Route("/targets", func(r chi.Router) {
				r.Get("/", s.handleListTargets)
				r.Post("/", s.handleCreateTarget)
			})
		})
	})

	// Telephony webhooks. The provider authenticates the account, not the
	// request; these return TwiML on every path.
	r.Route("/twilio", func(r chi.Router) {
		r.Post("/entry", s.handleTwilioEntry)
		r.Post("/branch", s.handleTwilioBranch)
		r.Post("/recording", s.handleTwilioRecording)
		r.Post("/status", s.handleTwilioStatus)
	})
}
