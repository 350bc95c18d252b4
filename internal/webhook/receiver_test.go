package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/patenthound/patenthound/internal/store"
	"github.com/patenthound/patenthound/pkg/models"
)

// --- mocks ---

type fakeStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*models.ResearchJob

	completions int
	failures    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: make(map[uuid.UUID]*models.ResearchJob)}
}

func (s *fakeStore) add(job *models.ResearchJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *fakeStore) get(id uuid.UUID) *models.ResearchJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

func (s *fakeStore) Ping(_ context.Context) error                             { return nil }
func (s *fakeStore) CreateJob(_ context.Context, _ *models.ResearchJob) error { return nil }

func (s *fakeStore) GetJob(_ context.Context, id uuid.UUID) (*models.ResearchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *fakeStore) ListJobs(_ context.Context, _ store.JobFilter) ([]*models.ResearchJob, int, error) {
	return nil, 0, nil
}
func (s *fakeStore) FindActiveJobByPatent(_ context.Context, _ string) (*models.ResearchJob, error) {
	return nil, store.ErrNotFound
}

func (s *fakeStore) FindJobByResponseID(_ context.Context, responseID string) (*models.ResearchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.ExternalResponseID != nil && *job.ExternalResponseID == responseID {
			copied := *job
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *fakeStore) CountJobsByStatus(_ context.Context, _ string) (int, error) { return 0, nil }
func (s *fakeStore) JobStatusCounts(_ context.Context) (map[string]int, error)  { return nil, nil }
func (s *fakeStore) SelectPendingJobs(_ context.Context, _ time.Time, _ int) ([]*models.ResearchJob, error) {
	return nil, nil
}
func (s *fakeStore) ListResearchingJobs(_ context.Context) ([]*models.ResearchJob, error) {
	return nil, nil
}
func (s *fakeStore) ClaimPendingJob(_ context.Context, _ uuid.UUID) (bool, error) {
	return false, nil
}
func (s *fakeStore) MarkSubmitted(_ context.Context, _ uuid.UUID, _, _ string) error { return nil }
func (s *fakeStore) ReleaseForRetry(_ context.Context, _ uuid.UUID, _ int) error     { return nil }
func (s *fakeStore) IncrementRetryCount(_ context.Context, _ uuid.UUID, _ int) error { return nil }

func (s *fakeStore) CompleteJob(_ context.Context, id uuid.UUID, results *models.ResearchResults) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[id]
	job.Status = models.JobStatusCompleted
	job.Progress = 100
	job.ResearchResults = results
	s.completions++
	return nil
}

func (s *fakeStore) FailJob(_ context.Context, id uuid.UUID, errMsg string, _ ...store.FailOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[id]
	job.Status = models.JobStatusFailed
	job.ErrorMessage = &errMsg
	s.failures++
	return nil
}

func (s *fakeStore) ResetJobForRetry(_ context.Context, _ uuid.UUID) (*models.ResearchJob, error) {
	return nil, store.ErrNotFound
}
func (s *fakeStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *fakeStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (s *fakeStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error    { return nil }
func (s *fakeStore) ListAPIKeys(_ context.Context) ([]*models.APIKey, error)   { return nil, nil }
func (s *fakeStore) RevokeAPIKey(_ context.Context, _ uuid.UUID) error         { return nil }

type fakeCache struct{}

func (fakeCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (fakeCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (fakeCache) Delete(_ context.Context, _ string) error                         { return nil }
func (fakeCache) Ping(_ context.Context) error                                     { return nil }
func (fakeCache) SetJobStatus(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}
func (fakeCache) GetJobStatus(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (fakeCache) SetPatent(_ context.Context, _ string, _ *models.PatentInfo, _ time.Duration) error {
	return nil
}
func (fakeCache) GetPatent(_ context.Context, _ string) (*models.PatentInfo, bool, error) {
	return nil, false, nil
}
func (fakeCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 0, nil
}

// --- helpers ---

func researchingJob(responseID string) *models.ResearchJob {
	return &models.ResearchJob{
		ID:                 uuid.New(),
		PatentNumber:       "7666636",
		ClaimText:          "1. A method.",
		Status:             models.JobStatusResearching,
		Progress:           10,
		MaxRetries:         models.DefaultMaxRetries,
		ExternalResponseID: &responseID,
	}
}

func completedEvent(responseID string) (*ProviderEvent, json.RawMessage) {
	event := &ProviderEvent{
		Type: "response.completed",
		Data: ProviderEventData{
			ID: responseID,
			Output: []EventOutput{
				{Type: "reasoning"},
				{
					Type: "message",
					Content: []EventContent{{
						Type: "output_text",
						Text: "Company A likely infringes.",
						Annotations: []EventAnnotation{
							{Type: "url_citation", Title: "Product page", URL: "https://example.com/a"},
						},
					}},
				},
			},
			Usage: &EventUsage{InputTokens: 100, OutputTokens: 400, TotalTokens: 500},
		},
	}
	raw, _ := json.Marshal(event)
	return event, raw
}

// --- provider events ---

func TestHandleProviderEvent_CompletesJob(t *testing.T) {
	st := newFakeStore()
	job := researchingJob("resp_1")
	st.add(job)
	receiver := NewReceiver(st, fakeCache{})

	event, raw := completedEvent("resp_1")
	jobID, err := receiver.HandleProviderEvent(context.Background(), event, raw)
	if err != nil {
		t.Fatalf("HandleProviderEvent: %v", err)
	}
	if jobID != job.ID {
		t.Errorf("expected job id %s, got %s", job.ID, jobID)
	}

	got := st.get(job.ID)
	if got.Status != models.JobStatusCompleted {
		t.Errorf("expected status completed, got %s", got.Status)
	}
	results := got.ResearchResults
	if results == nil {
		t.Fatal("expected research results")
	}
	if results.ReportText != "Company A likely infringes." {
		t.Errorf("unexpected report text %q", results.ReportText)
	}
	if len(results.Citations) != 1 || results.Citations[0].URL != "https://example.com/a" {
		t.Errorf("unexpected citations %+v", results.Citations)
	}
	if results.Usage == nil || results.Usage.TotalTokens != 500 {
		t.Errorf("unexpected usage %+v", results.Usage)
	}
}

func TestHandleProviderEvent_DuplicateDeliveryIsNoOp(t *testing.T) {
	st := newFakeStore()
	job := researchingJob("resp_1")
	st.add(job)
	receiver := NewReceiver(st, fakeCache{})

	event, raw := completedEvent("resp_1")
	if _, err := receiver.HandleProviderEvent(context.Background(), event, raw); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	jobID, err := receiver.HandleProviderEvent(context.Background(), event, raw)
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
	if jobID != job.ID {
		t.Errorf("expected job id %s, got %s", job.ID, jobID)
	}
	if st.completions != 1 {
		t.Errorf("expected exactly one completion, got %d", st.completions)
	}
}

func TestHandleProviderEvent_FailedEvent(t *testing.T) {
	st := newFakeStore()
	job := researchingJob("resp_1")
	st.add(job)
	receiver := NewReceiver(st, fakeCache{})

	event := &ProviderEvent{Type: "response.failed", Data: ProviderEventData{ID: "resp_1"}}
	if _, err := receiver.HandleProviderEvent(context.Background(), event, nil); err != nil {
		t.Fatalf("HandleProviderEvent: %v", err)
	}

	got := st.get(job.ID)
	if got.Status != models.JobStatusFailed {
		t.Errorf("expected status failed, got %s", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "Research failed" {
		t.Errorf("unexpected error message %v", got.ErrorMessage)
	}
}

func TestHandleProviderEvent_UnknownHandle(t *testing.T) {
	receiver := NewReceiver(newFakeStore(), fakeCache{})

	event, raw := completedEvent("resp_missing")
	if _, err := receiver.HandleProviderEvent(context.Background(), event, raw); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHandleProviderEvent_IgnoresUnknownEventType(t *testing.T) {
	st := newFakeStore()
	job := researchingJob("resp_1")
	st.add(job)
	receiver := NewReceiver(st, fakeCache{})

	event := &ProviderEvent{Type: "response.in_progress", Data: ProviderEventData{ID: "resp_1"}}
	if _, err := receiver.HandleProviderEvent(context.Background(), event, nil); err != nil {
		t.Fatalf("HandleProviderEvent: %v", err)
	}
	if st.get(job.ID).Status != models.JobStatusResearching {
		t.Error("expected job unchanged for unhandled event type")
	}
}

// --- research callbacks ---

func TestHandleResearchCallback_CompletesJob(t *testing.T) {
	st := newFakeStore()
	job := researchingJob("resp_1")
	st.add(job)
	receiver := NewReceiver(st, fakeCache{})

	cb := &ResearchCallback{
		JobID:  job.ID.String(),
		Status: "completed",
		Results: []models.SearchResult{
			{Title: "Widget Pro", URL: "https://example.com/widget", Content: "A widget.", Score: 0.92},
		},
	}
	if err := receiver.HandleResearchCallback(context.Background(), cb); err != nil {
		t.Fatalf("HandleResearchCallback: %v", err)
	}

	got := st.get(job.ID)
	if got.Status != models.JobStatusCompleted {
		t.Errorf("expected status completed, got %s", got.Status)
	}
	if got.ResearchResults == nil || got.ResearchResults.ReportText == "" {
		t.Error("expected a rendered report")
	}
	if len(got.ResearchResults.Citations) != 1 {
		t.Errorf("expected 1 citation, got %d", len(got.ResearchResults.Citations))
	}
}

func TestHandleResearchCallback_FailureIsBestEffort(t *testing.T) {
	st := newFakeStore()
	job := researchingJob("resp_1")
	st.add(job)
	receiver := NewReceiver(st, fakeCache{})

	cb := &ResearchCallback{JobID: job.ID.String(), Status: "failed", Error: "search exploded"}
	if err := receiver.HandleResearchCallback(context.Background(), cb); err != nil {
		t.Fatalf("HandleResearchCallback: %v", err)
	}

	got := st.get(job.ID)
	if got.Status != models.JobStatusFailed {
		t.Errorf("expected status failed, got %s", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "search exploded" {
		t.Errorf("unexpected error message %v", got.ErrorMessage)
	}
}

func TestHandleResearchCallback_DuplicateCompletion(t *testing.T) {
	st := newFakeStore()
	job := researchingJob("resp_1")
	job.Status = models.JobStatusCompleted
	st.add(job)
	receiver := NewReceiver(st, fakeCache{})

	cb := &ResearchCallback{JobID: job.ID.String(), Status: "completed"}
	if err := receiver.HandleResearchCallback(context.Background(), cb); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
	if st.completions != 0 {
		t.Errorf("expected no completion writes, got %d", st.completions)
	}
}

func TestHandleResearchCallback_LateFailureKeepsCompletedJob(t *testing.T) {
	st := newFakeStore()
	job := researchingJob("resp_1")
	job.Status = models.JobStatusCompleted
	st.add(job)
	receiver := NewReceiver(st, fakeCache{})

	cb := &ResearchCallback{JobID: job.ID.String(), Status: "failed", Error: "search exploded"}
	if err := receiver.HandleResearchCallback(context.Background(), cb); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}

	got := st.get(job.ID)
	if got.Status != models.JobStatusCompleted {
		t.Errorf("expected job to stay completed, got %s", got.Status)
	}
	if st.failures != 0 {
		t.Errorf("expected no failure writes, got %d", st.failures)
	}
}

func TestHandleResearchCallback_BadJobID(t *testing.T) {
	receiver := NewReceiver(newFakeStore(), fakeCache{})

	cb := &ResearchCallback{JobID: "not-a-uuid", Status: "completed"}
	if err := receiver.HandleResearchCallback(context.Background(), cb); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
