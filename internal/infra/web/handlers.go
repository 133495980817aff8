package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"freelance-apply-pipeline/internal/domain"
	"freelance-apply-pipeline/internal/domain/model"
	"freelance-apply-pipeline/internal/domain/ports/repository"
	"freelance-apply-pipeline/internal/usecase"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses. Unknown errors become a
// plain 500 so internals never leak to the client.
func writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrUnknownMode),
		errors.Is(err, domain.ErrUnknownSource),
		errors.Is(err, domain.ErrNoResults):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrTerminalStatus),
		errors.Is(err, domain.ErrTaskInFlight),
		errors.Is(err, domain.ErrNotApproved),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrJobLocked):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		status = http.StatusTooManyRequests
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// ===== auth =====

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if s.password == "" ||
		subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.password)) != 1 {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	token, err := s.auth.Mint(w)
	if err != nil {
		http.Error(w, "Failed to mint token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.auth.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// ===== pipeline =====

type triggerRequest struct {
	Source          string   `json:"source"`
	Limit           int      `json:"limit"`
	Keywords        []string `json:"keywords"`
	Location        string   `json:"location"`
	SinceDays       int      `json:"since_days"`
	BudgetMin       *float64 `json:"budget_min"`
	URLs            []string `json:"urls"`
	RunFullPipeline bool     `json:"run_full_pipeline"`
	MinScore        *int     `json:"min_score"`
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	runID, err := s.ingest.Trigger(r.Context(), usecase.TriggerParams{
		Source:          model.JobSource(req.Source),
		Limit:           req.Limit,
		Keywords:        req.Keywords,
		Location:        req.Location,
		SinceDays:       req.SinceDays,
		BudgetMin:       req.BudgetMin,
		URLs:            req.URLs,
		RunFullPipeline: req.RunFullPipeline,
		MinScore:        req.MinScore,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobIDs   []string `json:"job_ids"`
		MinScore *int     `json:"min_score"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.JobIDs) == 0 {
		http.Error(w, "job_ids is required", http.StatusBadRequest)
		return
	}
	accepted, err := s.ingest.Process(r.Context(), req.JobIDs, usecase.ProcessOptions{MinScore: req.MinScore})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": accepted})
}

func (s *Server) handleAutoProcess(w http.ResponseWriter, r *http.Request) {
	n, err := s.pipeline.ProcessBatch(r.Context(), s.batchSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"processed": n})
}

func (s *Server) handleRunList(w http.ResponseWriter, r *http.Request) {
	runs, err := s.ingest.Runs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": runs})
}

func (s *Server) handleRunGet(w http.ResponseWriter, r *http.Request) {
	run, err := s.ingest.Run(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ===== mode =====

func (s *Server) handleModeGet(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.modes.Get(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleModeSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	cfg, err := s.modes.Set(r.Context(), model.SubmissionMode(req.Mode))
	if err != nil {
		writeError(w, err)
		return
	}
	s.log.Info().Str("mode", req.Mode).Int64("version", cfg.Version).Msg("automation mode changed")
	writeJSON(w, http.StatusOK, cfg)
}

// ===== jobs =====

func (s *Server) handleJobList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	jobs, total, err := s.jobs.List(r.Context(), repository.JobFilter{
		Status: model.JobStatus(q.Get("status")),
		Search: q.Get("search"),
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Data   []*model.JobRecord `json:"data"`
		Total  int                `json:"total"`
		Limit  int                `json:"limit"`
		Offset int                `json:"offset"`
	}{jobs, total, limit, offset})
}

func (s *Server) handleJobGet(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJobBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobIDs []string `json:"job_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.JobIDs) == 0 {
		http.Error(w, "job_ids is required", http.StatusBadRequest)
		return
	}
	deleted := 0
	for _, id := range req.JobIDs {
		if err := s.jobs.Delete(r.Context(), id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			writeError(w, err)
			return
		}
		deleted++
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (s *Server) handleJobReset(w http.ResponseWriter, r *http.Request) {
	job, err := s.pipeline.ResetToNew(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobForceStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	job, err := s.jobs.ForceStatus(r.Context(), chi.URLParam(r, "id"), model.JobStatus(req.Status))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ===== approvals =====

func (s *Server) handlePendingApprovals(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.approvals.Pending(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": jobs})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	job, err := s.approvals.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	job, err := s.approvals.Reject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleEditProposal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProposalText string `json:"proposal_text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	job, err := s.approvals.EditProposal(r.Context(), chi.URLParam(r, "id"), req.ProposalText)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ===== submission =====

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	task, err := s.submitter.Submit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

// ===== tasks =====

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	all := s.tasks.Snapshot()
	if category != "" {
		filtered := all[:0]
		for _, t := range all {
			if string(t.Category) == category {
				filtered = append(filtered, t)
			}
		}
		all = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": all})
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	task := s.tasks.Get(chi.URLParam(r, "id"), model.TaskCategory(chi.URLParam(r, "category")))
	if task == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ===== stats / admin =====

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Overview(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 100
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": s.logBuf.Recent(limit)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	type probeResult struct {
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}
	results := make(map[string]probeResult, len(s.probes))
	healthy := true

	for name, probe := range s.probes {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		err := probe(ctx)
		cancel()
		if err != nil {
			healthy = false
			results[name] = probeResult{OK: false, Error: err.Error()}
			continue
		}
		results[name] = probeResult{OK: true}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"healthy": healthy, "dependencies": results})
}
