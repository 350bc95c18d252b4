package models

import "encoding/json"

// Citation is a URL reference extracted from a research report's annotations.
type Citation struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ResearchUsage holds token accounting reported by the research provider.
type ResearchUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ResearchResults is the structured result payload persisted for a completed
// job: the final report text, its citations, the raw provider response for
// traceability, and usage metrics when the provider reports them.
type ResearchResults struct {
	ReportText  string          `json:"reportText"`
	Citations   []Citation      `json:"citations"`
	RawResponse json.RawMessage `json:"rawResponse,omitempty"`
	Usage       *ResearchUsage  `json:"usage,omitempty"`
}

// SearchResult is one hit from a web-search research pass (intake path).
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}
