package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/patenthound/patenthound/internal/api/response"
	"github.com/patenthound/patenthound/internal/store"
	"github.com/patenthound/patenthound/pkg/models"
)

type resultResponse struct {
	JobID        uuid.UUID               `json:"job_id"`
	PatentNumber string                  `json:"patent_number"`
	SearchType   string                  `json:"search_type"`
	Results      *models.ResearchResults `json:"results"`
	FinishedAt   string                  `json:"finished_at,omitempty"`
}

// NewResultHandler returns an http.HandlerFunc for GET /api/v1/analyze/result/{jobID}.
// Results exist only for completed jobs.
func NewResultHandler(st JobReader) http.HandlerFunc {
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
			slog.Error("fetching job result", "error", err, "job_id", jobID)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch job", nil)
			return
		}

		if job.Status != models.JobStatusCompleted {
			response.Error(w, http.StatusBadRequest, "JOB_NOT_COMPLETED",
				"Results are only available for completed jobs", map[string]string{"status": job.Status})
			return
		}

		resp := resultResponse{
			JobID:        job.ID,
			PatentNumber: job.PatentNumber,
			SearchType:   job.SearchType,
			Results:      job.ResearchResults,
		}
		if job.FinishedAt != nil {
			resp.FinishedAt = job.FinishedAt.UTC().Format(time.RFC3339)
		}

		response.JSON(w, resp)
	}
}
