package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atlasbanco/prospect-engine/internal/errs"
	"github.com/atlasbanco/prospect-engine/internal/model"
	"github.com/atlasbanco/prospect-engine/internal/qualify"
	"github.com/atlasbanco/prospect-engine/internal/scoring"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.collector.Collect())
}

// handleScore computes the full score set for a candidate document without
// persisting anything. Useful for what-if scoring before a record exists.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Candidate model.Candidate  `json:"candidate"`
		Weights   *scoring.Weights `json:"weights,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errs.Validationf("decode score request: %v", err))
		return
	}

	var weights scoring.Weights
	if body.Weights != nil {
		weights = *body.Weights
	}
	set := scoring.Combine(&body.Candidate, weights, time.Now().UTC())
	s.collector.ScoreCalculated()
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	filter := model.CandidateFilter{
		Status: model.Status(r.URL.Query().Get("status")),
	}
	filter.MinScore, _ = strconv.ParseFloat(r.URL.Query().Get("min_score"), 64)
	filter.MinPriority, _ = strconv.Atoi(r.URL.Query().Get("min_priority"))
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	candidates, err := s.store.ListCandidates(r.Context(), kind, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if candidates == nil {
		candidates = []model.Candidate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": candidates})
}

func (s *Server) handleCreateCandidate(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var c model.Candidate
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, errs.Validationf("decode candidate: %v", err))
		return
	}
	if c.TaxID == "" {
		writeError(w, errs.Validationf("tax_id required"))
		return
	}
	c.Kind = kind

	if err := s.store.InsertCandidate(r.Context(), &c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &c)
}

func (s *Server) handleGetCandidate(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	c, err := s.store.GetCandidate(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var body struct {
		Action string `json:"action"`
		Reason string `json:"reason,omitempty"`
		// Weights optionally override the configured combination weights
		// for this recalculation only.
		Weights *scoring.Weights `json:"weights,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errs.Validationf("decode transition: %v", err))
		return
	}

	engine := s.engine
	if body.Weights != nil {
		engine = qualify.New(s.store, *body.Weights)
	}
	c, err := engine.Transition(r.Context(), kind, chi.URLParam(r, "id"),
		qualify.Action(body.Action), qualify.TransitionInput{Reason: body.Reason})
	if err != nil {
		writeError(w, err)
		return
	}

	s.collector.TransitionApplied(body.Action)
	if qualify.Action(body.Action) == qualify.ActionRecalculate {
		s.collector.ScoreCalculated()
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleStartEnrichment(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var body struct {
		CandidateIDs []string             `json:"candidate_ids"`
		Sources      []model.SourceConfig `json:"sources"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errs.Validationf("decode enrichment request: %v", err))
		return
	}

	job, err := s.orchestrator.Start(r.Context(), kind, body.CandidateIDs, body.Sources)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleEnrichmentStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.orchestrator.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func kindParam(r *http.Request) (model.Kind, error) {
	kind := model.Kind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		return "", errs.Validationf("unknown kind %q", kind)
	}
	return kind, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errs.IsValidation(err):
		status = http.StatusBadRequest
	case errs.IsNotFound(err):
		status = http.StatusNotFound
	case errs.IsIllegalTransition(err), errs.IsConflict(err):
		status = http.StatusConflict
	case errs.IsUpstreamSource(err):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("server: request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
