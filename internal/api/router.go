package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/patenthound/patenthound/internal/api/middleware"
	"github.com/patenthound/patenthound/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth       *mw.Auth
	RateLimit  *mw.RateLimit
	CronSecret string

	HealthHandler http.HandlerFunc

	ScheduleHandler     http.HandlerFunc
	ScheduleListHandler http.HandlerFunc
	ListJobsHandler     http.HandlerFunc
	GetJobHandler       http.HandlerFunc
	StatusHandler       http.HandlerFunc
	RetryHandler        http.HandlerFunc
	ResultHandler       http.HandlerFunc
	GetPatentHandler    http.HandlerFunc

	CronHandler http.HandlerFunc

	ProviderWebhookHandler http.HandlerFunc
	ResearchWebhookHandler http.HandlerFunc
	IntakeHandler          http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Webhooks authenticate via signature (or are internal), not API keys
	r.Post("/api/v1/webhook/openai", orNotImplemented(deps.ProviderWebhookHandler))
	r.Post("/api/v1/webhook/research", orNotImplemented(deps.ResearchWebhookHandler))

	// Intake path used by the research pipeline
	r.Post("/research/start", orNotImplemented(deps.IntakeHandler))

	// Cron endpoints share a secret with the external scheduler
	r.Group(func(r chi.Router) {
		r.Use(mw.CronSecret(deps.CronSecret))

		r.Post("/api/v1/cron/check-and-do", orNotImplemented(deps.CronHandler))
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/patent-search/schedule", orNotImplemented(deps.ScheduleHandler))
		r.Get("/api/v1/patent-search/schedule", orNotImplemented(deps.ScheduleListHandler))

		r.Get("/api/v1/analyze", orNotImplemented(deps.ListJobsHandler))
		r.Get("/api/v1/analyze/{jobID}", orNotImplemented(deps.GetJobHandler))
		r.Get("/api/v1/analyze/status/{jobID}", orNotImplemented(deps.StatusHandler))
		r.Post("/api/v1/analyze/retry/{jobID}", orNotImplemented(deps.RetryHandler))
		r.Get("/api/v1/analyze/result/{jobID}", orNotImplemented(deps.ResultHandler))

		r.Get("/api/v1/patents/{patentNumber}", orNotImplemented(deps.GetPatentHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
