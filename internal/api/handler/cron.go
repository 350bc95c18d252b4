package handler

import (
	"log/slog"
	"net/http"

	"github.com/patenthound/patenthound/internal/api/response"
)

// NewCronHandler returns an http.HandlerFunc for POST /api/v1/cron/check-and-do.
// Each call runs one admission and reconciliation tick; the external cron
// service provides the cadence.
func NewCronHandler(ticker Ticker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := ticker.RunTick(r.Context())
		if err != nil {
			slog.Error("cron tick failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Scheduler tick failed", nil)
			return
		}

		response.JSON(w, summary)
	}
}
