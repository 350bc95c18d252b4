package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/patenthound/patenthound/internal/api/response"
	"github.com/patenthound/patenthound/internal/scheduler"
	"github.com/patenthound/patenthound/internal/store"
	"github.com/patenthound/patenthound/pkg/models"
)

// immediatePriority is the threshold at or above which scheduling a job
// triggers an admission tick right away instead of waiting for cron.
const immediatePriority = 9

var jst = time.FixedZone("JST", 9*60*60)

// JobScheduler is the store surface the schedule handlers depend on.
type JobScheduler interface {
	CreateJob(ctx context.Context, job *models.ResearchJob) error
	FindActiveJobByPatent(ctx context.Context, patentNumber string) (*models.ResearchJob, error)
	ListJobs(ctx context.Context, filter store.JobFilter) ([]*models.ResearchJob, int, error)
	JobStatusCounts(ctx context.Context) (map[string]int, error)
}

// Ticker runs one admission and reconciliation pass.
type Ticker interface {
	RunTick(ctx context.Context) (*scheduler.TickSummary, error)
}

type scheduleResponse struct {
	JobID               uuid.UUID `json:"job_id"`
	Status              string    `json:"status"`
	Priority            int       `json:"priority"`
	EstimatedCompletion string    `json:"estimated_completion"`
	Message             string    `json:"message"`
}

// NewScheduleHandler returns an http.HandlerFunc for POST /api/v1/patent-search/schedule.
func NewScheduleHandler(st JobScheduler, ticker Ticker, defaultMaxRetries int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PatentNumber string `json:"patentNumber"`
			ClaimText    string `json:"claimText"`
			Priority     *int   `json:"priority"`
			ScheduledFor string `json:"scheduledFor"`
			SearchType   string `json:"searchType"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.PatentNumber == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "patentNumber is required", nil)
			return
		}
		if req.ClaimText == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "claimText is required", nil)
			return
		}

		priority := 5
		if req.Priority != nil {
			priority = *req.Priority
		}
		if priority < 1 || priority > 10 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "priority must be between 1 and 10", nil)
			return
		}

		searchType := req.SearchType
		if searchType == "" {
			searchType = models.SearchTypeInfringementCheck
		}
		switch searchType {
		case models.SearchTypeInfringementCheck, models.SearchTypeRevenueEstimation, models.SearchTypeComprehensive:
		default:
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "searchType is invalid", nil)
			return
		}

		var scheduledFor *time.Time
		if req.ScheduledFor != "" {
			t, err := time.Parse(time.RFC3339, req.ScheduledFor)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "scheduledFor must be a valid RFC3339 timestamp", nil)
				return
			}
			scheduledFor = &t
		}

		// One in-flight job per patent number. Races slip through; the
		// admission CAS keeps double submission from doing harm.
		existing, err := st.FindActiveJobByPatent(r.Context(), req.PatentNumber)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to check existing jobs", nil)
			return
		}
		if existing != nil {
			response.JSON(w, scheduleResponse{
				JobID:               existing.ID,
				Status:              existing.Status,
				Priority:            existing.Priority,
				EstimatedCompletion: estimatedCompletion(existing.Priority, time.Now()).Format(time.RFC3339),
				Message:             "A job for this patent is already in progress",
			})
			return
		}

		placeholder := "To be detected"
		job := &models.ResearchJob{
			ID:           uuid.New(),
			PatentNumber: req.PatentNumber,
			ClaimText:    req.ClaimText,
			CompanyName:  &placeholder,
			ProductName:  &placeholder,
			Priority:     priority,
			ScheduledFor: scheduledFor,
			SearchType:   searchType,
			Status:       models.JobStatusPending,
			MaxRetries:   defaultMaxRetries,
			CreatedAt:    time.Now().UTC(),
			UpdatedAt:    time.Now().UTC(),
		}
		if err := st.CreateJob(r.Context(), job); err != nil {
			slog.Error("creating job", "error", err, "patent_number", req.PatentNumber)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create job", nil)
			return
		}

		message := "Job scheduled"
		if priority >= immediatePriority {
			// High-priority jobs do not wait for the next cron tick.
			go func() {
				if _, err := ticker.RunTick(context.Background()); err != nil {
					slog.Error("immediate tick failed", "error", err, "job_id", job.ID)
				}
			}()
			message = "Job scheduled with immediate processing"
		}

		response.Created(w, scheduleResponse{
			JobID:               job.ID,
			Status:              "scheduled",
			Priority:            priority,
			EstimatedCompletion: estimatedCompletion(priority, time.Now()).Format(time.RFC3339),
			Message:             message,
		})
	}
}

// estimatedCompletion maps priority to the nightly batch window the job will
// run in. High-priority jobs run immediately; the rest wait for their tier's
// window in JST, plus half an hour of processing time.
func estimatedCompletion(priority int, now time.Time) time.Time {
	if priority >= immediatePriority {
		return now.Add(15 * time.Minute)
	}

	local := now.In(jst)
	var hour int
	switch {
	case priority >= 8:
		hour = 22
	case priority >= 4:
		hour = 23
	default:
		hour = 24
	}

	window := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, jst)
	if !window.After(local) {
		window = window.Add(24 * time.Hour)
	}
	return window.Add(30 * time.Minute)
}

type scheduleGroups struct {
	High   []*models.ResearchJob `json:"high"`
	Medium []*models.ResearchJob `json:"medium"`
	Low    []*models.ResearchJob `json:"low"`
}

type scheduleListResponse struct {
	Jobs  scheduleGroups `json:"jobs"`
	Stats map[string]int `json:"stats"`
	Total int            `json:"total"`
}

// NewScheduleListHandler returns an http.HandlerFunc for GET /api/v1/patent-search/schedule.
// Jobs are grouped into priority tiers: high (>=8), medium (4-7), low (<4).
func NewScheduleListHandler(st JobScheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50)
		if limit < 1 {
			limit = 1
		}
		if limit > 200 {
			limit = 200
		}

		filter := store.JobFilter{
			Status:          r.URL.Query().Get("status"),
			Limit:           limit,
			OrderByPriority: true,
		}

		jobs, total, err := st.ListJobs(r.Context(), filter)
		if err != nil {
			slog.Error("listing jobs", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list jobs", nil)
			return
		}

		groups := scheduleGroups{
			High:   []*models.ResearchJob{},
			Medium: []*models.ResearchJob{},
			Low:    []*models.ResearchJob{},
		}
		for _, job := range jobs {
			switch {
			case job.Priority >= 8:
				groups.High = append(groups.High, job)
			case job.Priority >= 4:
				groups.Medium = append(groups.Medium, job)
			default:
				groups.Low = append(groups.Low, job)
			}
		}

		stats, err := st.JobStatusCounts(r.Context())
		if err != nil {
			slog.Error("counting jobs", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to count jobs", nil)
			return
		}

		response.JSON(w, scheduleListResponse{
			Jobs:  groups,
			Stats: stats,
			Total: total,
		})
	}
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
