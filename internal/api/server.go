// SPDX-License-Identifier: MIT

// Package api implements the HTTP surface of the data API: occurrence and
// analysis-type CRUD, system probes and the middleware stack.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cityops/data-api/internal/auth"
	"github.com/cityops/data-api/internal/cache"
	"github.com/cityops/data-api/internal/config"
	"github.com/cityops/data-api/internal/health"
	"github.com/cityops/data-api/internal/model"
)

// cacheTTL bounds how stale a cached GET response can be.
const cacheTTL = 30 * time.Second

// OccurrenceStore is the persistence surface the occurrence handlers need.
type OccurrenceStore interface {
	Create(ctx context.Context, occ model.Occurrence) (model.Occurrence, error)
	GetByID(ctx context.Context, id int64) (model.Occurrence, error)
	List(ctx context.Context, filter model.OccurrenceFilter) ([]model.Occurrence, error)
	Update(ctx context.Context, occ model.Occurrence) error
	Deactivate(ctx context.Context, id int64, now time.Time) error
}

// AnalysisTypeStore is the persistence surface the analysis-type handlers
// need.
type AnalysisTypeStore interface {
	Create(ctx context.Context, at model.AnalysisType) (model.AnalysisType, error)
	GetByID(ctx context.Context, id int64) (model.AnalysisType, error)
	List(ctx context.Context) ([]model.AnalysisType, error)
	Update(ctx context.Context, at model.AnalysisType) error
	Deactivate(ctx context.Context, id int64) error
}

// Deps bundles the collaborators the server needs.
type Deps struct {
	Occurrences   OccurrenceStore
	AnalysisTypes AnalysisTypeStore
	Cache         cache.Cache
	Verifier      auth.Verifier
	Health        *health.Manager
}

// Server holds handler state.
type Server struct {
	cfg      config.Config
	occ      OccurrenceStore
	atypes   AnalysisTypeStore
	cache    cache.Cache
	verifier auth.Verifier
	health   *health.Manager
	loc      *time.Location
	now      func() time.Time

	// rate limiter chain tail, swapped on config reload
	limiterMu   sync.Mutex
	limiterNext http.Handler
	limiter     atomic.Value // http.Handler
}

// NewServer wires up handler state from configuration and dependencies.
func NewServer(cfg config.Config, deps Deps) (*Server, error) {
	loc, err := cfg.DisplayLocation()
	if err != nil {
		return nil, err
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewNoOpCache()
	}
	if !cfg.Keycloak.Disabled && deps.Verifier == nil {
		return nil, fmt.Errorf("verifier is required unless auth is disabled")
	}

	return &Server{
		cfg:      cfg,
		occ:      deps.Occurrences,
		atypes:   deps.AnalysisTypes,
		cache:    deps.Cache,
		verifier: deps.Verifier,
		health:   deps.Health,
		loc:      loc,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(Recoverer)
	r.Use(RequestID)
	r.Use(CORS(s.cfg.AllowedOrigins))
	r.Use(SecurityHeaders)
	r.Use(Metrics)
	if s.cfg.Tracing.Enabled {
		r.Use(func(next http.Handler) http.Handler {
			return otelhttp.NewHandler(next, "data-api")
		})
	}
	r.Use(RequestLogger)
	r.Use(s.rateLimit)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/version", s.handleVersion)

	r.Route("/occurrence", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(requireRoles(RoleUser))

		r.Get("/", s.listOccurrences)
		r.Post("/", s.createOccurrence)
		r.Get("/{id}", s.getOccurrence)
		r.Put("/{id}", s.updateOccurrence)
		r.Delete("/{id}", s.deleteOccurrence)
	})

	r.Route("/analysis-type", func(r chi.Router) {
		r.Use(s.authenticate)

		r.With(requireRoles(RoleUser)).Get("/", s.listAnalysisTypes)
		r.With(requireRoles(RoleUser)).Get("/{id}", s.getAnalysisType)

		// catalog writes are restricted to administrators
		admin := requireRoles(RoleUser, RoleAdmin)
		r.With(admin).Post("/", s.createAnalysisType)
		r.With(admin).Put("/{id}", s.updateAnalysisType)
		r.With(admin).Delete("/{id}", s.deleteAnalysisType)
	})

	return r
}

// rateLimit wraps next in the per-IP limiter. The built chain tail is kept
// behind an atomic so ApplyConfig can swap it while requests are in flight.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	s.limiterMu.Lock()
	s.limiterNext = next
	s.limiter.Store(buildLimiter(next, s.cfg.RateLimitRequests, s.cfg.RateLimitWindow))
	s.limiterMu.Unlock()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.limiter.Load().(http.Handler).ServeHTTP(w, r)
	})
}

func buildLimiter(next http.Handler, requests int, window time.Duration) http.Handler {
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			rateLimitRejections.Inc()
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, errorResponse{
				Error:   "rate_limit_exceeded",
				Message: "too many requests",
			})
		}),
	)(next)
}

// ApplyConfig applies the runtime-safe subset of a reloaded configuration.
// The rate limiter is rebuilt with the new parameters; its per-client
// counters restart from zero.
func (s *Server) ApplyConfig(cfg config.Config) {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	if s.limiterNext == nil {
		return
	}
	s.limiter.Store(buildLimiter(s.limiterNext, cfg.RateLimitRequests, cfg.RateLimitWindow))
}
