package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadgen-pipeline/internal/ai"
	"github.com/JakeFAU/leadgen-pipeline/internal/lead"
	"github.com/JakeFAU/leadgen-pipeline/internal/outreach"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxBodyBytes     = 1 << 20
)

var errMissingBody = errors.New("request body is required")

// StatusFor maps a pipeline error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, lead.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, lead.ErrNoCandidates), errors.Is(err, lead.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ai.ErrNoCompletion):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, dst any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return errMissingBody
	}
	return err
}

func (s *Server) generateLeads(w http.ResponseWriter, r *http.Request) {
	var req lead.Request
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	result, err := s.deps.Runner.Run(r.Context(), req)
	if err != nil {
		status := StatusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("pipeline run failed",
				zap.String("request_id", RequestID(r.Context())),
				zap.Error(err),
			)
		}
		writeError(w, status, err.Error())
		return
	}
	count := result.Count
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		RunID:   result.RunID,
		Count:   &count,
		Data:    result.Data,
	})
}

func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := lead.ListFilter{
		Status: lead.Status(strings.ToLower(strings.TrimSpace(q.Get("status")))),
		City:   strings.TrimSpace(q.Get("city")),
		Limit:  defaultListLimit,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = min(limit, maxListLimit)
	}

	leads, err := s.deps.Leads.ListCandidates(r.Context(), filter)
	if err != nil {
		s.logger.Error("list candidates failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list leads")
		return
	}
	if leads == nil {
		leads = []lead.Candidate{}
	}
	count := len(leads)
	writeJSON(w, http.StatusOK, envelope{Success: true, Count: &count, Data: leads})
}

type statusRequest struct {
	Status lead.Status `json:"status"`
}

func (s *Server) updateLeadStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "status must be pending, approved, or rejected")
		return
	}
	updated, err := s.deps.Leads.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		if errors.Is(err, lead.ErrNotFound) {
			writeError(w, http.StatusNotFound, "lead not found")
			return
		}
		s.logger.Error("update status failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update lead")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: updated})
}

type outreachRequest struct {
	Lead *lead.Candidate `json:"lead"`
	Type string          `json:"type"`
}

func (s *Server) generateOutreach(w http.ResponseWriter, r *http.Request) {
	var req outreachRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Lead == nil || req.Type == "" {
		writeError(w, http.StatusBadRequest, "lead data and type are required")
		return
	}
	kind, err := outreach.ParseKind(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	draft, err := s.deps.Drafter.Generate(r.Context(), *req.Lead, kind)
	if err != nil {
		status := StatusFor(err)
		msg := err.Error()
		if status == http.StatusBadGateway {
			msg = ai.ErrNoCompletion.Error()
		}
		s.logger.Error("outreach generation failed", zap.String("kind", string(kind)), zap.Error(err))
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: draft})
}
