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

// StatusSyncer reads a job, refreshing it against the research provider
// first when it is still in flight.
type StatusSyncer interface {
	SyncStatus(ctx context.Context, jobID uuid.UUID) (*models.ResearchJob, error)
}

type statusResponse struct {
	JobID        uuid.UUID `json:"job_id"`
	Status       string    `json:"status"`
	Progress     int       `json:"progress"`
	ErrorMessage *string   `json:"error_message,omitempty"`
}

// NewStatusHandler returns an http.HandlerFunc for GET /api/v1/analyze/status/{jobID}.
// The read is not passive: a researching job is reconciled against the
// provider before the status is reported.
func NewStatusHandler(syncer StatusSyncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid job id", nil)
			return
		}

		job, err := syncer.SyncStatus(r.Context(), jobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
				return
			}
			slog.Error("syncing job status", "error", err, "job_id", jobID)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch job status", nil)
			return
		}

		response.JSON(w, statusResponse{
			JobID:        job.ID,
			Status:       job.Status,
			Progress:     job.Progress,
			ErrorMessage: job.ErrorMessage,
		})
	}
}
