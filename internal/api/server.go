package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadgen-pipeline/internal/config"
	"github.com/JakeFAU/leadgen-pipeline/internal/lead"
	"github.com/JakeFAU/leadgen-pipeline/internal/metrics"
	"github.com/JakeFAU/leadgen-pipeline/internal/outreach"
)

// Runner executes one pipeline invocation.
type Runner interface {
	Run(ctx context.Context, req lead.Request) (lead.Result, error)
}

// LeadReader is the query side of the candidate sink.
type LeadReader interface {
	ListCandidates(ctx context.Context, filter lead.ListFilter) ([]lead.Candidate, error)
	UpdateStatus(ctx context.Context, id string, status lead.Status) (lead.Candidate, error)
}

// Drafter generates outreach messages.
type Drafter interface {
	Generate(ctx context.Context, c lead.Candidate, kind outreach.Kind) (outreach.Draft, error)
}

// ReadyCheck reports whether a downstream dependency is usable.
type ReadyCheck func(ctx context.Context) error

// Deps are the collaborators behind the HTTP handlers.
type Deps struct {
	Runner  Runner
	Leads   LeadReader
	Drafter Drafter
	// Ready checks run on /readyz; none means always ready.
	Ready []ReadyCheck
}

// Server wires HTTP handlers to the pipeline and sink.
type Server struct {
	router chi.Router
	deps   Deps
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{deps: deps, logger: logger.Named("api")}

	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(timeout))
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/v1", func(r chi.Router) {
			r.Route("/leads", func(r chi.Router) {
				r.Post("/generate", s.generateLeads)
				r.Get("/", s.listLeads)
				r.Patch("/{id}", s.updateLeadStatus)
			})
			r.Post("/outreach", s.generateOutreach)
		})
	})

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
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	for _, check := range s.deps.Ready {
		if err := check(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// envelope is the response shape shared by the /v1 routes.
type envelope struct {
	Success bool   `json:"success"`
	RunID   string `json:"run_id,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}
