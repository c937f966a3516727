package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/gridrank/internal/auth"
	"github.com/JakeFAU/gridrank/internal/gridrank"
	"github.com/JakeFAU/gridrank/internal/leadsearch"
	"github.com/JakeFAU/gridrank/internal/metrics"
	"github.com/JakeFAU/gridrank/internal/scan"
)

// Paths reachable without a bearer token.
var publicPaths = []string{"/healthz", "/readyz", "/metrics"}

// GridScanner runs and reads grid scans.
type GridScanner interface {
	Scan(ctx context.Context, req scan.Request) (scan.Result, error)
	Batch(ctx context.Context, req scan.BatchRequest) (scan.BatchResult, error)
	List(ctx context.Context, text string, limit int) ([]gridrank.ScanRecord, error)
	Get(ctx context.Context, id string) (gridrank.ScanRecord, error)
}

// LeadSearcher runs enriched lead searches.
type LeadSearcher interface {
	Search(ctx context.Context, req leadsearch.Request) (leadsearch.Response, error)
}

// Config controls router behavior.
type Config struct {
	// RequestTimeout bounds each request; zero means 120s.
	RequestTimeout time.Duration
}

// Deps are the handlers' collaborators. Auth and Ready are optional.
type Deps struct {
	Scans GridScanner
	Leads LeadSearcher
	// Auth enables bearer token verification on every non-public route.
	Auth *auth.Manager
	// Ready reports whether downstream dependencies are reachable.
	Ready func(ctx context.Context) error
}

// Server wires HTTP handlers to the scan and lead search services.
type Server struct {
	router chi.Router
	scans  GridScanner
	leads  LeadSearcher
	ready  func(ctx context.Context) error
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(cfg Config, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 120 * time.Second
	}
	s := &Server{
		scans:  deps.Scans,
		leads:  deps.Leads,
		ready:  deps.Ready,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))
	if deps.Auth != nil {
		r.Use(auth.Middleware(deps.Auth, publicPaths, logger))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/grid-rank", s.gridRank)
	r.Post("/grid-rank/batch", s.gridRankBatch)
	r.Get("/grid-scans", s.listScans)
	r.Get("/grid-scans/{id}", s.getScan)
	r.Get("/lead-search", s.leadSearch)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
