package patents

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/patenthound/patenthound/internal/config"
)

func newTestHTTPClient(t *testing.T, baseURL string) *HTTPClient {
	t.Helper()
	return NewHTTPClient(baseURL, "test-key", 5*time.Second)
}

func TestFetch_ReturnsMetadataAndClaims(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Api-Key"); got != "test-key" {
			t.Errorf("unexpected api key header: %s", got)
		}
		if got := r.URL.Query().Get("q"); got != `{"patent_id":"7666636"}` {
			t.Errorf("unexpected query: %s", got)
		}

		switch r.URL.Path {
		case "/patent/":
			w.Write([]byte(`{"patents":[{
				"patent_id":"7666636",
				"patent_title":"Widget coupling",
				"patent_abstract":"A coupling for widgets.",
				"patent_date":"2010-02-23",
				"assignees":[{"assignee_organization":"Acme Corp"}],
				"inventors":[{"inventor_name_first":"Ada","inventor_name_last":"Lovelace"}]
			}],"count":1}`))
		case "/g_claim/":
			w.Write([]byte(`{"g_claims":[
				{"claim_sequence":1,"claim_text":"1. A coupling comprising..."},
				{"claim_sequence":2,"claim_text":"2. The coupling of claim 1..."}
			]}`))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	c := newTestHTTPClient(t, ts.URL)
	info, err := c.Fetch(context.Background(), "7666636")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if info.Title != "Widget coupling" {
		t.Errorf("unexpected title: %s", info.Title)
	}
	if info.Assignee != "Acme Corp" {
		t.Errorf("unexpected assignee: %s", info.Assignee)
	}
	if len(info.Inventors) != 1 || info.Inventors[0] != "Ada Lovelace" {
		t.Errorf("unexpected inventors: %v", info.Inventors)
	}
	if len(info.Claims) != 2 {
		t.Errorf("expected 2 claims, got %d", len(info.Claims))
	}
}

func TestFetch_ClaimsAreBestEffort(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/patent/":
			w.Write([]byte(`{"patents":[{"patent_id":"7666636","patent_title":"Widget coupling"}],"count":1}`))
		case "/g_claim/":
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer ts.Close()

	c := newTestHTTPClient(t, ts.URL)
	info, err := c.Fetch(context.Background(), "7666636")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Title != "Widget coupling" {
		t.Errorf("unexpected title: %s", info.Title)
	}
	if len(info.Claims) != 0 {
		t.Errorf("expected no claims, got %v", info.Claims)
	}
}

func TestFetch_EmptyResultIsNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"patents":[],"count":0}`))
	}))
	defer ts.Close()

	c := newTestHTTPClient(t, ts.URL)
	_, err := c.Fetch(context.Background(), "0000000")
	if !errors.Is(err, ErrPatentNotFound) {
		t.Fatalf("expected ErrPatentNotFound, got %v", err)
	}
}

func TestFetch_ProviderError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := newTestHTTPClient(t, ts.URL)
	_, err := c.Fetch(context.Background(), "7666636")
	if !errors.Is(err, ErrProviderError) {
		t.Fatalf("expected ErrProviderError, got %v", err)
	}
}

func TestFetch_ProviderUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	c := newTestHTTPClient(t, ts.URL)
	_, err := c.Fetch(context.Background(), "7666636")
	if !errors.Is(err, ErrProviderUnreachable) {
		t.Fatalf("expected ErrProviderUnreachable, got %v", err)
	}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(config.PatentsConfig{Provider: "mock"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Name() != "mock" {
		t.Errorf("expected mock, got %s", c.Name())
	}

	c, err = NewClient(config.PatentsConfig{Provider: "patentsview", BaseURL: "https://search.patentsview.org/api/v1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Name() != "patentsview" {
		t.Errorf("expected patentsview, got %s", c.Name())
	}

	if _, err := NewClient(config.PatentsConfig{Provider: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
