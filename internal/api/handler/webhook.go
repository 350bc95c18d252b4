package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/patenthound/patenthound/internal/api/response"
	"github.com/patenthound/patenthound/internal/store"
	"github.com/patenthound/patenthound/internal/webhook"
)

// maxWebhookBody bounds how much of an inbound webhook we read.
const maxWebhookBody = 1 << 20

// NewProviderWebhookHandler returns an http.HandlerFunc for POST /api/v1/webhook/openai.
// The payload is authenticated with Standard Webhooks signature headers
// before any state change happens.
func NewProviderWebhookHandler(verifier *webhook.Verifier, receiver *webhook.Receiver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read body", nil)
			return
		}

		err = verifier.Verify(
			r.Header.Get("webhook-id"),
			r.Header.Get("webhook-timestamp"),
			r.Header.Get("webhook-signature"),
			payload,
		)
		if err != nil {
			slog.Warn("webhook signature rejected", "error", err)
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid webhook signature", nil)
			return
		}

		var event webhook.ProviderEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		jobID, err := receiver.HandleProviderEvent(r.Context(), &event, payload)
		switch {
		case err == nil:
		case errors.Is(err, webhook.ErrAlreadyCompleted):
			// Duplicate delivery, acknowledge without re-applying.
		case errors.Is(err, store.ErrNotFound):
			// No job for this handle. Acknowledge so the provider stops
			// retrying a delivery we can never apply.
			slog.Warn("webhook for unknown response", "response_id", event.Data.ID)
		default:
			slog.Error("applying provider webhook", "error", err, "response_id", event.Data.ID)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process webhook", nil)
			return
		}

		response.JSON(w, map[string]any{"received": true, "job_id": jobID})
	}
}

// NewResearchWebhookHandler returns an http.HandlerFunc for POST /api/v1/webhook/research,
// the internal intake-result callback. It carries no signature.
func NewResearchWebhookHandler(receiver *webhook.Receiver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cb webhook.ResearchCallback
		if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if cb.JobID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "job_id is required", nil)
			return
		}

		err := receiver.HandleResearchCallback(r.Context(), &cb)
		switch {
		case err == nil:
		case errors.Is(err, webhook.ErrAlreadyCompleted):
		case errors.Is(err, store.ErrNotFound):
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
			return
		default:
			slog.Error("applying research callback", "error", err, "job_id", cb.JobID)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process callback", nil)
			return
		}

		response.JSON(w, map[string]any{"received": true})
	}
}
