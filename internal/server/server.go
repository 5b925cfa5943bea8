package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/metrics"
	"github.com/lazypower/recall/internal/store"
)

// RequestTimeout bounds every request, including generation retries.
const RequestTimeout = 60 * time.Second

// Options configures optional server collaborators.
type Options struct {
	Version string
	Logger  *zap.Logger
	Metrics *metrics.Collector
	Limiter *RateLimiter // nil disables rate limiting
}

// Server is the recall HTTP API server.
type Server struct {
	engine  *engine.Engine
	db      *store.DB
	limiter *RateLimiter
	metrics *metrics.Collector
	log     *zap.Logger
	router  chi.Router
	version string
	started time.Time
}

// New creates a Server answering from eng. db is used for health checks.
func New(eng *engine.Engine, db *store.DB, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		engine:  eng,
		db:      db,
		limiter: opts.Limiter,
		metrics: opts.Metrics,
		log:     log.Named("http"),
		version: opts.Version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Timeout(RequestTimeout))

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(requireOwner)
			r.Use(s.limiter.Middleware)

			r.Post("/ask", s.handleAsk)
			r.Get("/ask", s.handleAskQuery)
			r.Get("/search", s.handleSearch)
			r.Get("/cache/{namespace}/stats", s.handleCacheStats)
			r.Delete("/cache/{namespace}", s.handleCacheClear)
			r.Get("/notes/{id}/related", s.handleRelated)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.db != nil && s.db.PingContext(r.Context()) == nil
	dbPath := ""
	if s.db != nil {
		dbPath = s.db.Path
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"uptime":     time.Since(s.started).Seconds(),
		"db":         dbOK,
		"db_path":    dbPath,
		"cache":      s.engine.Cache.Enabled(),
		"generation": s.engine.Synth.LLM != nil,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
