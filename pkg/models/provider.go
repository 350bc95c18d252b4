package models

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Sentinel errors returned by ResearchProvider implementations. Callers
// classify provider failures with errors.Is against these.
var (
	ErrProviderUnavailable = errors.New("research provider unavailable")
	ErrSubmitRejected      = errors.New("research submission rejected")
	ErrResponseNotFound    = errors.New("research response not found")
	ErrInvalidResponse     = errors.New("research provider returned invalid response")
)

// Research provider statuses as reported by Poll. These mirror the external
// service's response lifecycle, not the job store's.
const (
	ResearchStatusQueued     = "queued"
	ResearchStatusInProgress = "in_progress"
	ResearchStatusCompleted  = "completed"
	ResearchStatusFailed     = "failed"
	ResearchStatusCancelled  = "cancelled"
)

// SubmitRequest carries one research instruction to the external service.
// JobID is forwarded as correlation metadata so webhooks can be matched back.
type SubmitRequest struct {
	JobID uuid.UUID
	Query string
}

// PollResult is the outcome of polling a previously submitted request.
// Results is non-nil only when Status is completed.
type PollResult struct {
	Status  string
	Results *ResearchResults
}

// Terminal reports whether the external service will make no further progress.
func (r *PollResult) Terminal() bool {
	switch r.Status {
	case ResearchStatusCompleted, ResearchStatusFailed, ResearchStatusCancelled:
		return true
	}
	return false
}

// ResearchProvider is the core interface all deep-research integrations must
// implement. Never call specific providers directly — always inject this
// interface.
type ResearchProvider interface {
	// Submit sends the query for background execution and returns the
	// provider's opaque response handle. It never blocks for the research
	// itself; callers persist the handle.
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	// Poll fetches the current state of a submitted request by handle.
	Poll(ctx context.Context, responseID string) (*PollResult, error)
	// Name returns the provider identifier (e.g., "openai").
	Name() string
}
