package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trustrail/grc/internal/scheduler"
)

func (s *Server) listScheduledJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.schedulerStore.ListJobs(r.Context())
	if err != nil {
		s.logger.Error("failed to list jobs", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to list jobs")
		return
	}

	respondJSONWithMeta(w, http.StatusOK, jobs, &apiMeta{Total: len(jobs)})
}

func (s *Server) createScheduledJob(w http.ResponseWriter, r *http.Request) {
	var job scheduler.Job
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}

	if job.Name == "" || job.Schedule == "" {
		respondError(w, http.StatusBadRequest, "missing_fields", "Job name and schedule are required")
		return
	}
	switch job.JobType {
	case scheduler.JobTypeDriftAnalysis, scheduler.JobTypeBaselineCapture:
	default:
		respondError(w, http.StatusBadRequest, "invalid_job_type", "Job type must be drift_analysis or baseline_capture")
		return
	}

	if err := s.scheduler.AddJob(r.Context(), &job); err != nil {
		s.logger.Error("failed to create job", "job_name", job.Name, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to create job")
		return
	}

	respondJSON(w, http.StatusCreated, job)
}

func (s *Server) getScheduledJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := s.schedulerStore.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, scheduler.ErrJobNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "Job not found")
			return
		}
		s.logger.Error("failed to load job", "job_id", jobID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to load job")
		return
	}

	respondJSON(w, http.StatusOK, job)
}

func (s *Server) updateScheduledJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	var job scheduler.Job
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}
	job.ID = jobID

	if err := s.scheduler.UpdateJob(r.Context(), &job); err != nil {
		s.logger.Error("failed to update job", "job_id", jobID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to update job")
		return
	}

	respondJSON(w, http.StatusOK, job)
}

func (s *Server) deleteScheduledJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	if err := s.scheduler.DeleteJob(r.Context(), jobID); err != nil {
		s.logger.Error("failed to delete job", "job_id", jobID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to delete job")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) runScheduledJobNow(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	if err := s.scheduler.RunJobNow(r.Context(), jobID); err != nil {
		if errors.Is(err, scheduler.ErrJobNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "Job not found")
			return
		}
		s.logger.Error("failed to run job", "job_id", jobID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to run job")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) enableScheduledJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	if err := s.scheduler.EnableJob(r.Context(), jobID); err != nil {
		if errors.Is(err, scheduler.ErrJobNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "Job not found")
			return
		}
		s.logger.Error("failed to enable job", "job_id", jobID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to enable job")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "enabled"})
}

func (s *Server) disableScheduledJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	if err := s.scheduler.DisableJob(r.Context(), jobID); err != nil {
		if errors.Is(err, scheduler.ErrJobNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "Job not found")
			return
		}
		s.logger.Error("failed to disable job", "job_id", jobID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to disable job")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}

func (s *Server) getJobExecutions(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	limit := queryInt(r, "limit", "20")
	if limit <= 0 {
		limit = 20
	}

	execs, err := s.schedulerStore.ListExecutions(r.Context(), jobID, limit)
	if err != nil {
		s.logger.Error("failed to list executions", "job_id", jobID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to list executions")
		return
	}

	respondJSONWithMeta(w, http.StatusOK, execs, &apiMeta{Total: len(execs), Limit: limit})
}
