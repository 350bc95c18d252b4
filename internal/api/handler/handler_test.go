package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/patenthound/patenthound/internal/intake"
	"github.com/patenthound/patenthound/internal/scheduler"
	"github.com/patenthound/patenthound/internal/store"
	"github.com/patenthound/patenthound/pkg/models"
)

// Shared test doubles for the handler package. Each fake exposes func fields
// so individual tests can override just the calls they care about.

type fakeJobStore struct {
	createJobFunc             func(ctx context.Context, job *models.ResearchJob) error
	findActiveJobByPatentFunc func(ctx context.Context, patentNumber string) (*models.ResearchJob, error)
	listJobsFunc              func(ctx context.Context, filter store.JobFilter) ([]*models.ResearchJob, int, error)
	jobStatusCountsFunc       func(ctx context.Context) (map[string]int, error)
	getJobFunc                func(ctx context.Context, id uuid.UUID) (*models.ResearchJob, error)
	resetJobForRetryFunc      func(ctx context.Context, id uuid.UUID) (*models.ResearchJob, error)
}

func (f *fakeJobStore) CreateJob(ctx context.Context, job *models.ResearchJob) error {
	if f.createJobFunc != nil {
		return f.createJobFunc(ctx, job)
	}
	return nil
}

func (f *fakeJobStore) FindActiveJobByPatent(ctx context.Context, patentNumber string) (*models.ResearchJob, error) {
	if f.findActiveJobByPatentFunc != nil {
		return f.findActiveJobByPatentFunc(ctx, patentNumber)
	}
	return nil, store.ErrNotFound
}

func (f *fakeJobStore) ListJobs(ctx context.Context, filter store.JobFilter) ([]*models.ResearchJob, int, error) {
	if f.listJobsFunc != nil {
		return f.listJobsFunc(ctx, filter)
	}
	return nil, 0, nil
}

func (f *fakeJobStore) JobStatusCounts(ctx context.Context) (map[string]int, error) {
	if f.jobStatusCountsFunc != nil {
		return f.jobStatusCountsFunc(ctx)
	}
	return map[string]int{}, nil
}

func (f *fakeJobStore) GetJob(ctx context.Context, id uuid.UUID) (*models.ResearchJob, error) {
	if f.getJobFunc != nil {
		return f.getJobFunc(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (f *fakeJobStore) ResetJobForRetry(ctx context.Context, id uuid.UUID) (*models.ResearchJob, error) {
	if f.resetJobForRetryFunc != nil {
		return f.resetJobForRetryFunc(ctx, id)
	}
	return nil, store.ErrNotFound
}

type fakeTicker struct {
	ticks   chan struct{}
	summary *scheduler.TickSummary
	err     error
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{
		ticks:   make(chan struct{}, 8),
		summary: &scheduler.TickSummary{},
	}
}

func (f *fakeTicker) RunTick(_ context.Context) (*scheduler.TickSummary, error) {
	f.ticks <- struct{}{}
	if f.err != nil {
		return nil, f.err
	}
	return f.summary, nil
}

type fakeSyncer struct {
	syncFunc func(ctx context.Context, jobID uuid.UUID) (*models.ResearchJob, error)
}

func (f *fakeSyncer) SyncStatus(ctx context.Context, jobID uuid.UUID) (*models.ResearchJob, error) {
	return f.syncFunc(ctx, jobID)
}

type fakeKeyStore struct {
	createFunc func(ctx context.Context, key *models.APIKey) error
	listFunc   func(ctx context.Context) ([]*models.APIKey, error)
	revokeFunc func(ctx context.Context, id uuid.UUID) error
}

func (f *fakeKeyStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	if f.createFunc != nil {
		return f.createFunc(ctx, key)
	}
	return nil
}

func (f *fakeKeyStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	if f.listFunc != nil {
		return f.listFunc(ctx)
	}
	return nil, nil
}

func (f *fakeKeyStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	if f.revokeFunc != nil {
		return f.revokeFunc(ctx, id)
	}
	return nil
}

type fakeIntakeService struct {
	started []intake.Request
}

func (f *fakeIntakeService) Start(req intake.Request) {
	f.started = append(f.started, req)
}

type fakePatentClient struct {
	fetchFunc func(ctx context.Context, patentNumber string) (*models.PatentInfo, error)
}

func (f *fakePatentClient) Fetch(ctx context.Context, patentNumber string) (*models.PatentInfo, error) {
	return f.fetchFunc(ctx, patentNumber)
}

func (f *fakePatentClient) Name() string { return "fake" }

type fakeCache struct {
	patents map[string]*models.PatentInfo
}

func newFakeCache() *fakeCache {
	return &fakeCache{patents: make(map[string]*models.PatentInfo)}
}

func (c *fakeCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *fakeCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *fakeCache) Delete(_ context.Context, _ string) error                         { return nil }
func (c *fakeCache) Ping(_ context.Context) error                                     { return nil }

func (c *fakeCache) SetJobStatus(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}

func (c *fakeCache) GetJobStatus(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}

func (c *fakeCache) SetPatent(_ context.Context, patentNumber string, info *models.PatentInfo, _ time.Duration) error {
	c.patents[patentNumber] = info
	return nil
}

func (c *fakeCache) GetPatent(_ context.Context, patentNumber string) (*models.PatentInfo, bool, error) {
	info, ok := c.patents[patentNumber]
	return info, ok, nil
}

func (c *fakeCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

// serve mounts the handler on a chi router so URL parameters resolve, then
// executes one request against it.
func serve(h http.HandlerFunc, method, pattern, target string, body io.Reader) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, body))
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
	if body.Data == nil {
		t.Fatalf("response has no data envelope: %q", w.Body.String())
	}
	return body.Data
}

func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error response %q: %v", w.Body.String(), err)
	}
	return body.Error.Code
}
