package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/patenthound/patenthound/internal/cache"
	"github.com/patenthound/patenthound/internal/store"
	"github.com/patenthound/patenthound/pkg/models"
)

const jobStatusTTL = 30 * time.Minute

// ErrAlreadyCompleted signals a duplicate delivery for a finished job; the
// receiver treats it as a no-op, handlers acknowledge it with 200.
var ErrAlreadyCompleted = errors.New("job already completed")

// ProviderEvent is the provider webhook envelope this service understands.
type ProviderEvent struct {
	Type string            `json:"type"`
	Data ProviderEventData `json:"data"`
}

type ProviderEventData struct {
	ID     string        `json:"id"`
	Output []EventOutput `json:"output"`
	Usage  *EventUsage   `json:"usage"`
}

type EventOutput struct {
	Type    string         `json:"type"`
	Content []EventContent `json:"content"`
}

type EventContent struct {
	Type        string            `json:"type"`
	Text        string            `json:"text"`
	Annotations []EventAnnotation `json:"annotations"`
}

type EventAnnotation struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

type EventUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ResearchCallback is the internal intake callback payload.
type ResearchCallback struct {
	JobID   string                `json:"job_id"`
	Status  string                `json:"status"`
	Results []models.SearchResult `json:"results,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// Receiver applies webhook-delivered completions to the job store. It and
// the reconciler are independent paths to the same transitions; both must be
// idempotent against a job that already finished.
type Receiver struct {
	store store.Store
	cache cache.Cache
}

func NewReceiver(st store.Store, ca cache.Cache) *Receiver {
	return &Receiver{store: st, cache: ca}
}

// HandleProviderEvent matches a provider completion event to its job by
// response handle and applies the completed transition.
func (r *Receiver) HandleProviderEvent(ctx context.Context, event *ProviderEvent, rawData json.RawMessage) (uuid.UUID, error) {
	job, err := r.store.FindJobByResponseID(ctx, event.Data.ID)
	if err != nil {
		return uuid.Nil, err
	}

	if job.Status == models.JobStatusCompleted {
		slog.Warn("duplicate webhook for completed job", "job_id", job.ID, "response_id", event.Data.ID)
		return job.ID, ErrAlreadyCompleted
	}

	switch event.Type {
	case "response.completed":
		results := extractEventResults(event, rawData)
		if err := r.store.CompleteJob(ctx, job.ID, results); err != nil {
			return job.ID, err
		}
		_ = r.cache.SetJobStatus(ctx, job.ID, models.JobStatusCompleted, jobStatusTTL)
		slog.Info("webhook completed job", "job_id", job.ID,
			"report_length", len(results.ReportText), "citations", len(results.Citations))
		return job.ID, nil

	case "response.failed", "response.cancelled":
		if err := r.store.FailJob(ctx, job.ID, "Research failed"); err != nil {
			return job.ID, err
		}
		_ = r.cache.SetJobStatus(ctx, job.ID, models.JobStatusFailed, jobStatusTTL)
		slog.Info("webhook failed job", "job_id", job.ID, "event_type", event.Type)
		return job.ID, nil

	default:
		slog.Info("ignoring webhook event", "event_type", event.Type)
		return job.ID, nil
	}
}

// HandleResearchCallback applies an intake-path completion keyed by job id.
func (r *Receiver) HandleResearchCallback(ctx context.Context, cb *ResearchCallback) error {
	jobID, err := uuid.Parse(cb.JobID)
	if err != nil {
		return store.ErrNotFound
	}

	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	// Completed is absorbing. A late failure callback must not undo it.
	if job.Status == models.JobStatusCompleted {
		return ErrAlreadyCompleted
	}

	if cb.Status == "failed" {
		msg := cb.Error
		if msg == "" {
			msg = "Research failed"
		}
		// Best effort: a failure we cannot persist is logged, not escalated.
		if err := r.store.FailJob(ctx, job.ID, msg); err != nil {
			slog.Error("persisting callback failure failed", "job_id", job.ID, "error", err)
		}
		_ = r.cache.SetJobStatus(ctx, job.ID, models.JobStatusFailed, jobStatusTTL)
		return nil
	}

	results := &models.ResearchResults{
		ReportText: renderSearchReport(cb.Results),
		Citations:  make([]models.Citation, 0, len(cb.Results)),
	}
	for _, res := range cb.Results {
		results.Citations = append(results.Citations, models.Citation{
			Type:  "url_citation",
			Title: res.Title,
			URL:   res.URL,
		})
	}

	if err := r.store.CompleteJob(ctx, job.ID, results); err != nil {
		return err
	}
	_ = r.cache.SetJobStatus(ctx, job.ID, models.JobStatusCompleted, jobStatusTTL)
	return nil
}

// extractEventResults pulls the final report out of the last message-type
// output, mirroring what the reconciler extracts from a poll.
func extractEventResults(event *ProviderEvent, rawData json.RawMessage) *models.ResearchResults {
	results := &models.ResearchResults{
		Citations:   []models.Citation{},
		RawResponse: rawData,
	}
	if event.Data.Usage != nil {
		results.Usage = &models.ResearchUsage{
			InputTokens:  event.Data.Usage.InputTokens,
			OutputTokens: event.Data.Usage.OutputTokens,
			TotalTokens:  event.Data.Usage.TotalTokens,
		}
	}

	output := event.Data.Output
	for i := len(output) - 1; i >= 0; i-- {
		if output[i].Type != "message" {
			continue
		}
		for _, c := range output[i].Content {
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

func renderSearchReport(results []models.SearchResult) string {
	if len(results) == 0 {
		return ""
	}
	report := ""
	for _, r := range results {
		report += "## " + r.Title + "\n" + r.Content + "\n\n"
	}
	return report
}
