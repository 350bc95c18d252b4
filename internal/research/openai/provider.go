// Package openai implements models.ResearchProvider against the OpenAI
// Responses API in background mode.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/patenthound/patenthound/internal/config"
	"github.com/patenthound/patenthound/pkg/models"
)

// Provider implements models.ResearchProvider using the OpenAI Responses API.
type Provider struct {
	cfg    config.OpenAIConfig
	client *http.Client
}

func NewProvider(cfg config.OpenAIConfig) *Provider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *Provider) Name() string { return "openai" }

type submitBody struct {
	Model      string            `json:"model"`
	Input      []inputMessage    `json:"input"`
	Reasoning  reasoningOpts     `json:"reasoning"`
	Tools      []tool            `json:"tools"`
	Background bool              `json:"background"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type inputMessage struct {
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

type reasoningOpts struct {
	Summary string `json:"summary"`
}

type tool struct {
	Type string `json:"type"`
}

// responseBody is the subset of the Responses API payload this service reads.
type responseBody struct {
	ID     string         `json:"id"`
	Status string         `json:"status"`
	Output []outputItem   `json:"output"`
	Usage  *responseUsage `json:"usage"`
	Error  *apiError      `json:"error"`
}

type outputItem struct {
	Type    string        `json:"type"`
	Content []contentItem `json:"content"`
}

type contentItem struct {
	Type        string       `json:"type"`
	Text        string       `json:"text"`
	Annotations []annotation `json:"annotations"`
}

type annotation struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

type responseUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type apiError struct {
	Message string `json:"message"`
}

// Submit starts a background deep-research run and returns its response ID.
func (p *Provider) Submit(ctx context.Context, req models.SubmitRequest) (string, error) {
	body := submitBody{
		Model: p.cfg.Model,
		Input: []inputMessage{
			{Type: "message", Role: "user", Content: req.Query},
		},
		Reasoning:  reasoningOpts{Summary: "auto"},
		Tools:      []tool{{Type: "web_search_preview"}},
		Background: true,
		Metadata:   map[string]string{"job_id": req.JobID.String()},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/responses", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", models.ErrSubmitRejected, resp.StatusCode)
	}

	var parsed responseBody
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if parsed.ID == "" {
		return "", models.ErrInvalidResponse
	}
	return parsed.ID, nil
}

// Poll retrieves a background response by ID and, when it has completed,
// extracts the final report and citations.
func (p *Provider) Poll(ctx context.Context, responseID string) (*models.PollResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.cfg.BaseURL+"/responses/"+responseID, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, models.ErrResponseNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", models.ErrInvalidResponse, resp.StatusCode)
	}

	raw, parsed, err := decodeResponse(resp.Body)
	if err != nil {
		return nil, err
	}

	result := &models.PollResult{Status: parsed.Status}
	if parsed.Status == models.ResearchStatusCompleted {
		result.Results = extractResults(raw, parsed)
	}
	return result, nil
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

func decodeResponse(r io.Reader) (json.RawMessage, *responseBody, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, nil, fmt.Errorf("decoding response: %w", err)
	}
	var parsed responseBody
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, nil, fmt.Errorf("decoding response: %w", err)
	}
	return raw, &parsed, nil
}

// extractResults locates the last message-type output and pulls its text and
// URL citations into the typed result payload.
func extractResults(raw json.RawMessage, parsed *responseBody) *models.ResearchResults {
	results := &models.ResearchResults{
		Citations:   []models.Citation{},
		RawResponse: raw,
	}
	if parsed.Usage != nil {
		results.Usage = &models.ResearchUsage{
			InputTokens:  parsed.Usage.InputTokens,
			OutputTokens: parsed.Usage.OutputTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
		}
	}

	for i := len(parsed.Output) - 1; i >= 0; i-- {
		if parsed.Output[i].Type != "message" {
			continue
		}
		for _, c := range parsed.Output[i].Content {
			if c.Type != "output_text" && c.Type != "text" {
				continue
			}
			results.ReportText = c.Text
			for _, a := range c.Annotations {
				results.Citations = append(results.Citations, models.Citation{
					Type:  a.Type,
					Title: a.Title,
					URL:   a.URL,
				})
			}
			return results
		}
	}
	return results
}

// classifyError maps transport errors to the unavailability sentinel so
// callers can treat timeouts and connection refusals as one retryable class.
func classifyError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: timeout: %v", models.ErrProviderUnavailable, err)
	}
	return fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
}

var _ models.ResearchProvider = (*Provider)(nil)
