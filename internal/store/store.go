package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/patenthound/patenthound/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.ResearchJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.ResearchJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.ResearchJob, int, error)
	FindActiveJobByPatent(ctx context.Context, patentNumber string) (*models.ResearchJob, error)
	FindJobByResponseID(ctx context.Context, responseID string) (*models.ResearchJob, error)
	CountJobsByStatus(ctx context.Context, status string) (int, error)
	JobStatusCounts(ctx context.Context) (map[string]int, error)

	// SelectPendingJobs returns up to limit pending jobs whose scheduled_for
	// is unset or due, ordered by priority descending then creation ascending.
	SelectPendingJobs(ctx context.Context, now time.Time, limit int) ([]*models.ResearchJob, error)
	ListResearchingJobs(ctx context.Context) ([]*models.ResearchJob, error)

	// ClaimPendingJob atomically moves a job from pending to researching.
	// Returns false when the job was not pending anymore, in which case the
	// caller must not submit it.
	ClaimPendingJob(ctx context.Context, id uuid.UUID) (bool, error)
	MarkSubmitted(ctx context.Context, id uuid.UUID, responseID, prompt string) error
	ReleaseForRetry(ctx context.Context, id uuid.UUID, retryCount int) error
	IncrementRetryCount(ctx context.Context, id uuid.UUID, retryCount int) error
	CompleteJob(ctx context.Context, id uuid.UUID, results *models.ResearchResults) error
	FailJob(ctx context.Context, id uuid.UUID, errMsg string, opts ...FailOption) error
	ResetJobForRetry(ctx context.Context, id uuid.UUID) (*models.ResearchJob, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// JobFilter narrows and paginates job listings.
type JobFilter struct {
	Status          string
	Limit           int
	Offset          int
	OrderByPriority bool
}

type failParams struct {
	RetryCount *int
}

type FailOption func(*failParams)

// WithRetryCount records the retry counter alongside the failure.
func WithRetryCount(n int) FailOption {
	return func(p *failParams) {
		p.RetryCount = &n
	}
}
