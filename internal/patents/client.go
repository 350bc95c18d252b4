// Package patents fetches patent metadata from a patent search API.
package patents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/patenthound/patenthound/internal/config"
	"github.com/patenthound/patenthound/pkg/models"
)

// Sentinel errors for patent client failures.
var (
	ErrPatentNotFound      = errors.New("patent not found")
	ErrProviderUnreachable = errors.New("patent provider unreachable")
	ErrProviderError       = errors.New("patent provider error")
)

// Client is the interface for fetching patent metadata.
type Client interface {
	Fetch(ctx context.Context, patentNumber string) (*models.PatentInfo, error)
	Name() string
}

// NewClient constructs the configured patent client. Called once at startup.
func NewClient(cfg config.PatentsConfig) (Client, error) {
	switch cfg.Provider {
	case "patentsview":
		return NewHTTPClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown patent provider %q: must be one of patentsview, mock", cfg.Provider)
	}
}

// HTTPClient implements Client against the PatentsView search API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Name() string { return "patentsview" }

type patentsViewResponse struct {
	Patents []struct {
		PatentID       string `json:"patent_id"`
		PatentTitle    string `json:"patent_title"`
		PatentAbstract string `json:"patent_abstract"`
		PatentDate     string `json:"patent_date"`
		Assignees      []struct {
			AssigneeOrganization string `json:"assignee_organization"`
		} `json:"assignees"`
		Inventors []struct {
			InventorNameFirst string `json:"inventor_name_first"`
			InventorNameLast  string `json:"inventor_name_last"`
		} `json:"inventors"`
	} `json:"patents"`
	Count int `json:"count"`
}

type claimsResponse struct {
	Claims []struct {
		ClaimSequence int    `json:"claim_sequence"`
		ClaimText     string `json:"claim_text"`
	} `json:"g_claims"`
}

// Fetch retrieves patent metadata and its claims.
func (c *HTTPClient) Fetch(ctx context.Context, patentNumber string) (*models.PatentInfo, error) {
	q := fmt.Sprintf(`{"patent_id":%q}`, patentNumber)
	fields := `["patent_id","patent_title","patent_abstract","patent_date","assignees.assignee_organization","inventors.inventor_name_first","inventors.inventor_name_last"]`

	var parsed patentsViewResponse
	if err := c.get(ctx, "/patent/", q, fields, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Patents) == 0 {
		return nil, ErrPatentNotFound
	}

	p := parsed.Patents[0]
	info := &models.PatentInfo{
		PatentNumber:    p.PatentID,
		Title:           p.PatentTitle,
		Abstract:        p.PatentAbstract,
		PublicationDate: p.PatentDate,
	}
	if len(p.Assignees) > 0 {
		info.Assignee = p.Assignees[0].AssigneeOrganization
	}
	for _, inv := range p.Inventors {
		info.Inventors = append(info.Inventors, inv.InventorNameFirst+" "+inv.InventorNameLast)
	}

	var claims claimsResponse
	claimFields := `["claim_sequence","claim_text"]`
	if err := c.get(ctx, "/g_claim/", q, claimFields, &claims); err == nil {
		for _, cl := range claims.Claims {
			info.Claims = append(info.Claims, cl.ClaimText)
		}
	}
	// Claims are best-effort: the metadata alone is still useful.

	return info, nil
}

func (c *HTTPClient) get(ctx context.Context, path, query, fields string, out any) error {
	params := url.Values{
		"q": {query},
		"f": {fields},
	}
	u := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrPatentNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrProviderError, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func classifyError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: timeout: %v", ErrProviderUnreachable, err)
	}
	return fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
}

var _ Client = (*HTTPClient)(nil)
