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

// JobRetrier resets failed jobs back to pending.
type JobRetrier interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.ResearchJob, error)
	ResetJobForRetry(ctx context.Context, id uuid.UUID) (*models.ResearchJob, error)
}

type retryResponse struct {
	JobID      uuid.UUID `json:"job_id"`
	Status     string    `json:"status"`
	RetryCount int       `json:"retry_count"`
	Message    string    `json:"message"`
}

// NewRetryHandler returns an http.HandlerFunc for POST /api/v1/analyze/retry/{jobID}.
// Only failed jobs may be retried; the reset itself is conditional on the
// status so a concurrent transition cannot be clobbered.
func NewRetryHandler(st JobRetrier) http.HandlerFunc {
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
			slog.Error("fetching job for retry", "error", err, "job_id", jobID)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch job", nil)
			return
		}

		if job.Status != models.JobStatusFailed {
			response.Error(w, http.StatusBadRequest, "JOB_NOT_FAILED",
				"Only failed jobs can be retried", map[string]string{"status": job.Status})
			return
		}

		reset, err := st.ResetJobForRetry(r.Context(), jobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Lost a race with another transition.
				response.Error(w, http.StatusBadRequest, "JOB_NOT_FAILED",
					"Only failed jobs can be retried", nil)
				return
			}
			slog.Error("resetting job", "error", err, "job_id", jobID)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to reset job", nil)
			return
		}

		response.JSON(w, retryResponse{
			JobID:      reset.ID,
			Status:     reset.Status,
			RetryCount: reset.RetryCount,
			Message:    "Job queued for retry",
		})
	}
}
