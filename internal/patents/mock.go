package patents

import (
	"context"

	"github.com/patenthound/patenthound/pkg/models"
)

// MockClient is a configurable mock for testing and local development.
type MockClient struct {
	Name_     string
	FetchFunc func(ctx context.Context, patentNumber string) (*models.PatentInfo, error)
}

// NewMockClient returns a mock that fabricates plausible patent metadata.
func NewMockClient() *MockClient {
	return &MockClient{
		Name_: "mock",
		FetchFunc: func(_ context.Context, patentNumber string) (*models.PatentInfo, error) {
			return &models.PatentInfo{
				PatentNumber:    patentNumber,
				Title:           "Method and apparatus for mock patent " + patentNumber,
				Abstract:        "A mock abstract for testing purposes.",
				Assignee:        "Mock Industries Inc.",
				PublicationDate: "2020-01-01",
				Claims: []string{
					"1. A method comprising receiving a request and returning a mock response.",
				},
			}, nil
		},
	}
}

func (m *MockClient) Name() string {
	if m.Name_ != "" {
		return m.Name_
	}
	return "mock"
}

func (m *MockClient) Fetch(ctx context.Context, patentNumber string) (*models.PatentInfo, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, patentNumber)
	}
	return nil, ErrPatentNotFound
}

var _ Client = (*MockClient)(nil)
