package mock

import (
	"context"
	"fmt"

	"github.com/patenthound/patenthound/pkg/models"
)

// MockProvider satisfies models.ResearchProvider for testing and local runs.
type MockProvider struct {
	Name_      string
	SubmitFunc func(ctx context.Context, req models.SubmitRequest) (string, error)
	PollFunc   func(ctx context.Context, responseID string) (*models.PollResult, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Submit(ctx context.Context, req models.SubmitRequest) (string, error) {
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, req)
	}
	return "", nil
}

func (m *MockProvider) Poll(ctx context.Context, responseID string) (*models.PollResult, error) {
	if m.PollFunc != nil {
		return m.PollFunc(ctx, responseID)
	}
	return &models.PollResult{Status: models.ResearchStatusInProgress}, nil
}

// NewProvider returns a MockProvider with sensible default responses:
// every submission is accepted and completes on the first poll.
func NewProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		SubmitFunc: func(_ context.Context, req models.SubmitRequest) (string, error) {
			return "mockresp_" + req.JobID.String(), nil
		},
		PollFunc: func(_ context.Context, responseID string) (*models.PollResult, error) {
			return &models.PollResult{
				Status: models.ResearchStatusCompleted,
				Results: &models.ResearchResults{
					ReportText: fmt.Sprintf("Mock infringement report for %s", responseID),
					Citations: []models.Citation{
						{Type: "url_citation", Title: "Example product page", URL: "https://example.com/product"},
					},
				},
			}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider whose calls always return the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		SubmitFunc: func(_ context.Context, _ models.SubmitRequest) (string, error) {
			return "", err
		},
		PollFunc: func(_ context.Context, _ string) (*models.PollResult, error) {
			return nil, err
		},
	}
}

// NewStalledProvider returns a MockProvider that accepts submissions but
// never reports progress, mimicking a long-running background research.
func NewStalledProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-stalled",
		SubmitFunc: func(_ context.Context, req models.SubmitRequest) (string, error) {
			return "mockresp_" + req.JobID.String(), nil
		},
		PollFunc: func(_ context.Context, _ string) (*models.PollResult, error) {
			return &models.PollResult{Status: models.ResearchStatusInProgress}, nil
		},
	}
}

// Compile-time check that MockProvider implements ResearchProvider.
var _ models.ResearchProvider = (*MockProvider)(nil)
