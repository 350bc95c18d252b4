package models

// PatentInfo is metadata for a single patent as returned by a patent provider.
// Claims[0] is claim 1, the primary basis for infringement checks.
type PatentInfo struct {
	PatentNumber    string   `json:"patent_number"`
	Title           string   `json:"title"`
	Abstract        string   `json:"abstract,omitempty"`
	Inventors       []string `json:"inventors,omitempty"`
	Assignee        string   `json:"assignee,omitempty"`
	FilingDate      string   `json:"filing_date,omitempty"`
	PublicationDate string   `json:"publication_date,omitempty"`
	Claims          []string `json:"claims,omitempty"`
	Classifications []string `json:"classifications,omitempty"`
}
