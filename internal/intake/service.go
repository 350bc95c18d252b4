// Package intake runs externally requested research searches and reports
// their outcome to a caller-provided webhook.
package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/patenthound/patenthound/pkg/models"
)

const (
	defaultMaxResults = 5
	searchTimeout     = 2 * time.Minute
	webhookTimeout    = 30 * time.Second
)

// Request is an intake research request.
type Request struct {
	JobID      string `json:"job_id"`
	WebhookURL string `json:"webhook_url"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

// Validate checks the request has everything the background run needs.
func (r Request) Validate() error {
	if r.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if r.WebhookURL == "" {
		return fmt.Errorf("webhook_url is required")
	}
	if r.Query == "" {
		return fmt.Errorf("query is required")
	}
	return nil
}

type callbackBody struct {
	JobID   string                `json:"job_id"`
	Status  string                `json:"status"`
	Results []models.SearchResult `json:"results,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// Service accepts intake requests and runs them in the background.
type Service struct {
	search SearchClient
	client *http.Client
}

func NewService(search SearchClient) *Service {
	return &Service{
		search: search,
		client: &http.Client{Timeout: webhookTimeout},
	}
}

// Start accepts the request and launches the search in a goroutine. The
// caller learns the outcome only through the webhook.
func (s *Service) Start(req Request) {
	go s.run(req)
}

// run performs the search and delivers the result webhook.
// It recovers from panics so a bad request never takes the server down.
func (s *Service) run(req Request) {
	ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in intake run", "error", r, "job_id", req.JobID)
			s.deliver(ctx, req.WebhookURL, callbackBody{
				JobID:  req.JobID,
				Status: "failed",
				Error:  fmt.Sprintf("panic: %v", r),
			})
		}
	}()

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	results, err := s.search.Search(ctx, req.Query, maxResults)
	if err != nil {
		slog.Error("intake search failed", "error", err, "job_id", req.JobID)
		s.deliver(ctx, req.WebhookURL, callbackBody{
			JobID:  req.JobID,
			Status: "failed",
			Error:  err.Error(),
		})
		return
	}

	slog.Info("intake search completed", "job_id", req.JobID, "results", len(results))
	s.deliver(ctx, req.WebhookURL, callbackBody{
		JobID:   req.JobID,
		Status:  "completed",
		Results: results,
	})
}

// deliver posts the callback. Delivery is best-effort: failures are logged
// and not retried.
func (s *Service) deliver(ctx context.Context, webhookURL string, body callbackBody) {
	payload, err := json.Marshal(body)
	if err != nil {
		slog.Error("encoding intake callback", "error", err, "job_id", body.JobID)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		slog.Error("building intake callback request", "error", err, "job_id", body.JobID)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Error("delivering intake callback", "error", err, "job_id", body.JobID)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Error("intake callback rejected", "status", resp.StatusCode, "job_id", body.JobID)
	}
}
