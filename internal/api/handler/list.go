package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/patenthound/patenthound/internal/api/response"
	"github.com/patenthound/patenthound/internal/store"
	"github.com/patenthound/patenthound/pkg/models"
)

// JobReader lists jobs and fetches single jobs.
type JobReader interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.ResearchJob, error)
	ListJobs(ctx context.Context, filter store.JobFilter) ([]*models.ResearchJob, int, error)
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/analyze.
func NewListJobsHandler(st JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := parseIntParam(r, "page", 1)
		if page < 1 {
			page = 1
		}
		limit := parseIntParam(r, "limit", 20)
		if limit < 1 {
			limit = 1
		}
		if limit > 100 {
			limit = 100
		}

		filter := store.JobFilter{
			Status: r.URL.Query().Get("status"),
			Limit:  limit,
			Offset: (page - 1) * limit,
		}

		jobs, total, err := st.ListJobs(r.Context(), filter)
		if err != nil {
			slog.Error("listing jobs", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list jobs", nil)
			return
		}

		response.Collection(w, jobs, response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: page*limit < total,
		})
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/analyze/{jobID}.
func NewGetJobHandler(st JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid job id", nil)
			return
		}

		job, err := st.GetJob(r.Context(), jobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
				return
			}
			slog.Error("fetching job", "error", err, "job_id", jobID)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch job", nil)
			return
		}

		response.JSON(w, job)
	}
}
