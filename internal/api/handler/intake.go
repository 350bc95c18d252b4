package handler

import (
	"encoding/json"
	"net/http"

	"github.com/patenthound/patenthound/internal/api/response"
	"github.com/patenthound/patenthound/internal/intake"
)

// IntakeService accepts research requests that report back by webhook.
type IntakeService interface {
	Start(req intake.Request)
}

// NewIntakeHandler returns an http.HandlerFunc for POST /research/start.
// The request is accepted immediately; the search runs in the background and
// the outcome is posted to the caller's webhook.
func NewIntakeHandler(svc IntakeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req intake.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if err := req.Validate(); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}

		svc.Start(req)

		response.Accepted(w, map[string]string{
			"status": "accepted",
			"job_id": req.JobID,
		})
	}
}
