package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/patenthound/patenthound/internal/store"
	"github.com/patenthound/patenthound/internal/webhook"
	"github.com/patenthound/patenthound/pkg/models"
)

var webhookSecret = "whsec_" + base64.StdEncoding.EncodeToString([]byte("webhook-test-key"))

// webhookStore is a minimal in-memory Store for the webhook handler tests.
type webhookStore struct {
	jobs        map[uuid.UUID]*models.ResearchJob
	completions int
	failures    int
}

func newWebhookStore() *webhookStore {
	return &webhookStore{jobs: make(map[uuid.UUID]*models.ResearchJob)}
}

func (s *webhookStore) addResearchingJob(responseID string) *models.ResearchJob {
	job := &models.ResearchJob{
		ID:                 uuid.New(),
		PatentNumber:       "7666636",
		ClaimText:          "A method for...",
		Status:             models.JobStatusResearching,
		ExternalResponseID: &responseID,
	}
	s.jobs[job.ID] = job
	return job
}

func (s *webhookStore) Ping(_ context.Context) error { return nil }

func (s *webhookStore) CreateJob(_ context.Context, job *models.ResearchJob) error {
	s.jobs[job.ID] = job
	return nil
}

func (s *webhookStore) GetJob(_ context.Context, id uuid.UUID) (*models.ResearchJob, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return job, nil
}

func (s *webhookStore) ListJobs(_ context.Context, _ store.JobFilter) ([]*models.ResearchJob, int, error) {
	return nil, 0, nil
}

func (s *webhookStore) FindActiveJobByPatent(_ context.Context, _ string) (*models.ResearchJob, error) {
	return nil, store.ErrNotFound
}

func (s *webhookStore) FindJobByResponseID(_ context.Context, responseID string) (*models.ResearchJob, error) {
	for _, job := range s.jobs {
		if job.ExternalResponseID != nil && *job.ExternalResponseID == responseID {
			return job, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *webhookStore) CountJobsByStatus(_ context.Context, _ string) (int, error) { return 0, nil }
func (s *webhookStore) JobStatusCounts(_ context.Context) (map[string]int, error)  { return nil, nil }

func (s *webhookStore) SelectPendingJobs(_ context.Context, _ time.Time, _ int) ([]*models.ResearchJob, error) {
	return nil, nil
}

func (s *webhookStore) ListResearchingJobs(_ context.Context) ([]*models.ResearchJob, error) {
	return nil, nil
}

func (s *webhookStore) ClaimPendingJob(_ context.Context, _ uuid.UUID) (bool, error) {
	return false, nil
}

func (s *webhookStore) MarkSubmitted(_ context.Context, _ uuid.UUID, _, _ string) error { return nil }
func (s *webhookStore) ReleaseForRetry(_ context.Context, _ uuid.UUID, _ int) error     { return nil }
func (s *webhookStore) IncrementRetryCount(_ context.Context, _ uuid.UUID, _ int) error { return nil }

func (s *webhookStore) CompleteJob(_ context.Context, id uuid.UUID, results *models.ResearchResults) error {
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	job.Status = models.JobStatusCompleted
	job.ResearchResults = results
	s.completions++
	return nil
}

func (s *webhookStore) FailJob(_ context.Context, id uuid.UUID, errMsg string, _ ...store.FailOption) error {
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	job.Status = models.JobStatusFailed
	job.ErrorMessage = &errMsg
	s.failures++
	return nil
}

func (s *webhookStore) ResetJobForRetry(_ context.Context, _ uuid.UUID) (*models.ResearchJob, error) {
	return nil, store.ErrNotFound
}

func (s *webhookStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, nil
}

func (s *webhookStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (s *webhookStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error    { return nil }
func (s *webhookStore) ListAPIKeys(_ context.Context) ([]*models.APIKey, error)   { return nil, nil }
func (s *webhookStore) RevokeAPIKey(_ context.Context, _ uuid.UUID) error         { return nil }

// signPayload produces valid Standard Webhooks headers for the test secret.
func signPayload(msgID string, payload []byte) http.Header {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	mac := hmac.New(sha256.New, []byte("webhook-test-key"))
	fmt.Fprintf(mac, "%s.%s.", msgID, timestamp)
	mac.Write(payload)
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	h := http.Header{}
	h.Set("webhook-id", msgID)
	h.Set("webhook-timestamp", timestamp)
	h.Set("webhook-signature", "v1,"+sig)
	return h
}

func newProviderWebhookHandler(t *testing.T, st *webhookStore) http.HandlerFunc {
	t.Helper()
	verifier, err := webhook.NewVerifier(webhookSecret)
	if err != nil {
		t.Fatalf("creating verifier: %v", err)
	}
	return NewProviderWebhookHandler(verifier, webhook.NewReceiver(st, newFakeCache()))
}

func serveSigned(h http.HandlerFunc, payload []byte, headers http.Header) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/webhook/openai", bytes.NewReader(payload))
	for k, vals := range headers {
		for _, v := range vals {
			req.Header.Set(k, v)
		}
	}
	h.ServeHTTP(w, req)
	return w
}

func TestProviderWebhookHandler_CompletesJob(t *testing.T) {
	st := newWebhookStore()
	job := st.addResearchingJob("resp_abc")
	h := newProviderWebhookHandler(t, st)

	payload := []byte(`{"type":"response.completed","data":{"id":"resp_abc","output":[{"type":"message","content":[{"type":"output_text","text":"Final report.","annotations":[]}]}]}}`)

	w := serveSigned(h, payload, signPayload("msg_1", payload))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	data := decodeData(t, w)
	if data["received"] != true {
		t.Errorf("expected received true, got %v", data["received"])
	}
	if data["job_id"] != job.ID.String() {
		t.Errorf("expected job id %s, got %v", job.ID, data["job_id"])
	}
	if job.Status != models.JobStatusCompleted {
		t.Errorf("expected completed, got %s", job.Status)
	}
	if job.ResearchResults == nil || job.ResearchResults.ReportText != "Final report." {
		t.Errorf("unexpected results: %+v", job.ResearchResults)
	}
}

func TestProviderWebhookHandler_RejectsBadSignature(t *testing.T) {
	st := newWebhookStore()
	st.addResearchingJob("resp_abc")
	h := newProviderWebhookHandler(t, st)

	payload := []byte(`{"type":"response.completed","data":{"id":"resp_abc"}}`)
	headers := signPayload("msg_1", payload)
	headers.Set("webhook-signature", "v1,Zm9yZ2VkIHNpZ25hdHVyZQ==")

	w := serveSigned(h, payload, headers)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if code := decodeErrorCode(t, w); code != "UNAUTHORIZED" {
		t.Errorf("expected UNAUTHORIZED, got %s", code)
	}
	if st.completions != 0 {
		t.Errorf("expected no completions, got %d", st.completions)
	}
}

func TestProviderWebhookHandler_RejectsMissingHeaders(t *testing.T) {
	st := newWebhookStore()
	h := newProviderWebhookHandler(t, st)

	payload := []byte(`{"type":"response.completed","data":{"id":"resp_abc"}}`)
	w := serveSigned(h, payload, http.Header{})

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestProviderWebhookHandler_AcknowledgesDuplicate(t *testing.T) {
	st := newWebhookStore()
	job := st.addResearchingJob("resp_abc")
	job.Status = models.JobStatusCompleted
	h := newProviderWebhookHandler(t, st)

	payload := []byte(`{"type":"response.completed","data":{"id":"resp_abc","output":[]}}`)
	w := serveSigned(h, payload, signPayload("msg_2", payload))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicate, got %d", w.Code)
	}
	if st.completions != 0 {
		t.Errorf("expected no re-completion, got %d", st.completions)
	}
}

func TestProviderWebhookHandler_AcknowledgesUnknownResponse(t *testing.T) {
	st := newWebhookStore()
	h := newProviderWebhookHandler(t, st)

	payload := []byte(`{"type":"response.completed","data":{"id":"resp_gone","output":[]}}`)
	w := serveSigned(h, payload, signPayload("msg_3", payload))

	// Acknowledged so the provider stops retrying.
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestResearchWebhookHandler_CompletesJob(t *testing.T) {
	st := newWebhookStore()
	job := st.addResearchingJob("resp_abc")
	h := NewResearchWebhookHandler(webhook.NewReceiver(st, newFakeCache()))

	body := fmt.Sprintf(`{"job_id":%q,"status":"completed","results":[{"title":"Acme teardown","url":"https://example.com","content":"Uses the claimed coupling.","score":0.9}]}`, job.ID)
	w := serve(h, "POST", "/webhook/research", "/webhook/research", strings.NewReader(body))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if job.Status != models.JobStatusCompleted {
		t.Errorf("expected completed, got %s", job.Status)
	}
	if len(job.ResearchResults.Citations) != 1 {
		t.Errorf("expected 1 citation, got %d", len(job.ResearchResults.Citations))
	}
}

func TestResearchWebhookHandler_UnknownJob(t *testing.T) {
	st := newWebhookStore()
	h := NewResearchWebhookHandler(webhook.NewReceiver(st, newFakeCache()))

	body := fmt.Sprintf(`{"job_id":%q,"status":"completed"}`, uuid.NewString())
	w := serve(h, "POST", "/webhook/research", "/webhook/research", strings.NewReader(body))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if code := decodeErrorCode(t, w); code != "JOB_NOT_FOUND" {
		t.Errorf("expected JOB_NOT_FOUND, got %s", code)
	}
}

func TestResearchWebhookHandler_RequiresJobID(t *testing.T) {
	st := newWebhookStore()
	h := NewResearchWebhookHandler(webhook.NewReceiver(st, newFakeCache()))

	w := serve(h, "POST", "/webhook/research", "/webhook/research", strings.NewReader(`{"status":"completed"}`))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
