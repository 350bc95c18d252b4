package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/patenthound/patenthound/internal/api/response"
	"github.com/patenthound/patenthound/internal/cache"
	"github.com/patenthound/patenthound/internal/patents"
)

const patentCacheTTL = 24 * time.Hour

// NewGetPatentHandler returns an http.HandlerFunc for GET /api/v1/patents/{patentNumber}.
// Patent metadata is immutable so cache hits are served without revalidation.
func NewGetPatentHandler(client patents.Client, ca cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patentNumber := chi.URLParam(r, "patentNumber")
		if patentNumber == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Patent number is required", nil)
			return
		}

		if info, ok, err := ca.GetPatent(r.Context(), patentNumber); err == nil && ok {
			response.JSON(w, info)
			return
		}

		info, err := client.Fetch(r.Context(), patentNumber)
		if err != nil {
			switch {
			case errors.Is(err, patents.ErrPatentNotFound):
				response.Error(w, http.StatusNotFound, "PATENT_NOT_FOUND", "Patent not found", nil)
			case errors.Is(err, patents.ErrProviderUnreachable):
				response.Error(w, http.StatusBadGateway, "PATENT_PROVIDER_UNAVAILABLE",
					"The patent provider is not available", nil)
			default:
				slog.Error("fetching patent", "error", err, "patent_number", patentNumber)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch patent", nil)
			}
			return
		}

		if err := ca.SetPatent(r.Context(), patentNumber, info, patentCacheTTL); err != nil {
			slog.Warn("caching patent failed", "error", err, "patent_number", patentNumber)
		}

		response.JSON(w, info)
	}
}
