// Package scheduler implements the research job lifecycle: the admission
// controller that promotes pending jobs under a concurrency bound, and the
// status reconciler that polls the research provider for completion. Both run
// inside a single cron-triggered tick; there is no in-process background loop.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/patenthound/patenthound/internal/cache"
	"github.com/patenthound/patenthound/internal/research"
	"github.com/patenthound/patenthound/internal/store"
	"github.com/patenthound/patenthound/pkg/models"
)

const jobStatusTTL = 30 * time.Minute

// TickSummary reports what one check-and-do tick did.
type TickSummary struct {
	Checked        int            `json:"checked"`
	Completed      int            `json:"completed"`
	Failed         int            `json:"failed"`
	Started        int            `json:"started"`
	CurrentRunning int            `json:"currentRunning"`
	Stats          map[string]int `json:"stats"`
}

// Scheduler coordinates admission and reconciliation against the job store.
type Scheduler struct {
	store         store.Store
	cache         cache.Cache
	provider      models.ResearchProvider
	maxConcurrent int
}

// New creates a Scheduler. maxConcurrent bounds the number of jobs in
// researching status at any time.
func New(st store.Store, ca cache.Cache, provider models.ResearchProvider, maxConcurrent int) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Scheduler{
		store:         st,
		cache:         ca,
		provider:      provider,
		maxConcurrent: maxConcurrent,
	}
}

// RunTick executes one reconcile pass followed by one admission pass and
// returns a summary. A failure on one job never aborts the rest of the tick.
func (s *Scheduler) RunTick(ctx context.Context) (*TickSummary, error) {
	summary := &TickSummary{}

	// 1. Reconcile in-flight jobs against the provider.
	inFlight, err := s.store.ListResearchingJobs(ctx)
	if err != nil {
		return nil, err
	}
	summary.Checked = len(inFlight)

	for _, job := range inFlight {
		if job.ExternalResponseID == nil {
			continue
		}
		switch s.reconcile(ctx, job) {
		case models.JobStatusCompleted:
			summary.Completed++
		case models.JobStatusFailed:
			summary.Failed++
		}
	}

	// 2. Admit pending jobs into free slots.
	running, err := s.store.CountJobsByStatus(ctx, models.JobStatusResearching)
	if err != nil {
		return nil, err
	}

	slots := s.maxConcurrent - running
	if slots > 0 {
		pending, err := s.store.SelectPendingJobs(ctx, time.Now().UTC(), slots)
		if err != nil {
			return nil, err
		}
		slog.Info("admission pass",
			"slots", slots, "max", s.maxConcurrent, "running", running, "pending", len(pending))

		for _, job := range pending {
			if s.admit(ctx, job) {
				summary.Started++
			}
		}
	}

	summary.CurrentRunning = running + summary.Started

	stats, err := s.store.JobStatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	summary.Stats = stats

	return summary, nil
}

// reconcile polls one researching job and applies the resulting transition.
// Returns the job's new status, or its current one when nothing changed.
func (s *Scheduler) reconcile(ctx context.Context, job *models.ResearchJob) string {
	result, err := s.provider.Poll(ctx, *job.ExternalResponseID)
	if err != nil {
		return s.recordPollFailure(ctx, job, err)
	}

	switch result.Status {
	case models.ResearchStatusCompleted:
		if err := s.store.CompleteJob(ctx, job.ID, result.Results); err != nil {
			slog.Error("persisting completion failed", "job_id", job.ID, "error", err)
			return job.Status
		}
		_ = s.cache.SetJobStatus(ctx, job.ID, models.JobStatusCompleted, jobStatusTTL)
		slog.Info("job completed", "job_id", job.ID, "patent_number", job.PatentNumber)
		return models.JobStatusCompleted

	case models.ResearchStatusFailed, models.ResearchStatusCancelled:
		if err := s.store.FailJob(ctx, job.ID, "Research "+result.Status); err != nil {
			slog.Error("persisting failure failed", "job_id", job.ID, "error", err)
			return job.Status
		}
		_ = s.cache.SetJobStatus(ctx, job.ID, models.JobStatusFailed, jobStatusTTL)
		slog.Info("job failed", "job_id", job.ID, "provider_status", result.Status)
		return models.JobStatusFailed

	default:
		// Still queued or in progress; check again next tick.
		return job.Status
	}
}

// recordPollFailure charges one retry against the job's budget and fails it
// terminally once the budget is exhausted.
func (s *Scheduler) recordPollFailure(ctx context.Context, job *models.ResearchJob, pollErr error) string {
	slog.Error("status check failed", "job_id", job.ID, "error", pollErr)

	retries := job.RetryCount + 1
	if retries >= job.MaxRetries {
		if err := s.store.FailJob(ctx, job.ID, pollErr.Error(), store.WithRetryCount(retries)); err != nil {
			slog.Error("persisting failure failed", "job_id", job.ID, "error", err)
			return job.Status
		}
		_ = s.cache.SetJobStatus(ctx, job.ID, models.JobStatusFailed, jobStatusTTL)
		return models.JobStatusFailed
	}

	if err := s.store.IncrementRetryCount(ctx, job.ID, retries); err != nil {
		slog.Error("recording retry failed", "job_id", job.ID, "error", err)
	}
	return job.Status
}

// admit claims one pending job and submits it for background research.
// The claim is a conditional update, so a job selected by two overlapping
// ticks is submitted at most once.
func (s *Scheduler) admit(ctx context.Context, job *models.ResearchJob) bool {
	claimed, err := s.store.ClaimPendingJob(ctx, job.ID)
	if err != nil {
		slog.Error("claiming job failed", "job_id", job.ID, "error", err)
		return false
	}
	if !claimed {
		// Another tick got there first.
		return false
	}

	query := research.BuildInfringementQuery(job.PatentNumber, job.ClaimText)

	responseID, err := s.provider.Submit(ctx, models.SubmitRequest{JobID: job.ID, Query: query})
	if err != nil {
		s.recordSubmitFailure(ctx, job, err)
		return false
	}

	if err := s.store.MarkSubmitted(ctx, job.ID, responseID, query); err != nil {
		slog.Error("recording submission failed", "job_id", job.ID, "error", err)
		return false
	}
	_ = s.cache.SetJobStatus(ctx, job.ID, models.JobStatusResearching, jobStatusTTL)
	slog.Info("job started", "job_id", job.ID, "patent_number", job.PatentNumber, "response_id", responseID)
	return true
}

// recordSubmitFailure releases a claimed job back to pending for the next
// tick, or fails it terminally once its retry budget is spent.
func (s *Scheduler) recordSubmitFailure(ctx context.Context, job *models.ResearchJob, submitErr error) {
	slog.Error("submission failed", "job_id", job.ID, "error", submitErr)

	retries := job.RetryCount + 1
	if retries >= job.MaxRetries {
		if err := s.store.FailJob(ctx, job.ID, submitErr.Error(), store.WithRetryCount(retries)); err != nil {
			slog.Error("persisting failure failed", "job_id", job.ID, "error", err)
			return
		}
		_ = s.cache.SetJobStatus(ctx, job.ID, models.JobStatusFailed, jobStatusTTL)
		return
	}

	if err := s.store.ReleaseForRetry(ctx, job.ID, retries); err != nil {
		slog.Error("releasing job failed", "job_id", job.ID, "error", err)
	}
}

// SyncStatus performs one reconciliation for a single job and returns the
// refreshed row. It is the explicit form of the status endpoint's side
// effect: callers that want read-only semantics just call store.GetJob.
func (s *Scheduler) SyncStatus(ctx context.Context, jobID uuid.UUID) (*models.ResearchJob, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != models.JobStatusResearching || job.ExternalResponseID == nil {
		return job, nil
	}

	if status := s.reconcile(ctx, job); status != job.Status {
		return s.store.GetJob(ctx, jobID)
	}
	return job, nil
}
