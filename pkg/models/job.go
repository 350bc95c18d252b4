package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending     = "pending"
	JobStatusResearching = "researching"
	JobStatusAnalyzing   = "analyzing"
	JobStatusCompleted   = "completed"
	JobStatusFailed      = "failed"
)

const (
	SearchTypeInfringementCheck = "infringement_check"
	SearchTypeRevenueEstimation = "revenue_estimation"
	SearchTypeComprehensive     = "comprehensive"
)

// DefaultMaxRetries bounds how often submission/poll failures are retried
// before a job is marked terminally failed.
const DefaultMaxRetries = 3

// ResearchJob tracks one unit of patent-infringement research through its
// lifecycle. Jobs are created pending by the schedule endpoint, promoted to
// researching by the admission controller, and finished by the status
// reconciler or the webhook receiver.
type ResearchJob struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	PatentNumber string    `db:"patent_number" json:"patent_number"`
	ClaimText    string    `db:"claim_text"    json:"claim_text"`
	CompanyName  *string   `db:"company_name"  json:"company_name,omitempty"`
	ProductName  *string   `db:"product_name"  json:"product_name,omitempty"`

	Priority     int        `db:"priority"      json:"priority"`
	ScheduledFor *time.Time `db:"scheduled_for" json:"scheduled_for,omitempty"`
	SearchType   string     `db:"search_type"   json:"search_type"`

	Status     string `db:"status"      json:"status"`
	Progress   int    `db:"progress"    json:"progress"`
	RetryCount int    `db:"retry_count" json:"retry_count"`
	MaxRetries int    `db:"max_retries" json:"max_retries"`

	// ExternalResponseID is the handle returned by the research provider.
	// Set if and only if the job has been submitted at least once.
	ExternalResponseID *string `db:"external_response_id" json:"external_response_id,omitempty"`
	InputPrompt        *string `db:"input_prompt"         json:"input_prompt,omitempty"`

	ResearchResults *ResearchResults `db:"research_results" json:"research_results,omitempty"`
	ErrorMessage    *string          `db:"error_message"    json:"error_message,omitempty"`

	CreatedAt  time.Time  `db:"created_at"  json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"  json:"updated_at"`
	QueuedAt   *time.Time `db:"queued_at"   json:"queued_at,omitempty"`
	StartedAt  *time.Time `db:"started_at"  json:"started_at,omitempty"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// InFlight reports whether the job occupies a concurrency slot or is waiting
// for one. The schedule endpoint's dedup check only considers in-flight jobs.
func (j *ResearchJob) InFlight() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusResearching
}

// Terminal reports whether the job is in an absorbing state.
func (j *ResearchJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
