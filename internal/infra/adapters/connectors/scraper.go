package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"freelance-apply-pipeline/internal/domain"
	"freelance-apply-pipeline/internal/domain/model"
	"freelance-apply-pipeline/internal/domain/ports/adapter"
)

var _ adapter.Connector = (*ScraperConnector)(nil)

// ScraperConnector pulls candidate postings from the marketplace scraper
// service. The service runs the actual search and returns normalized
// posting payloads.
type ScraperConnector struct {
	base   string
	client *http.Client
}

func NewScraperConnector(base string, timeout time.Duration) *ScraperConnector {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ScraperConnector{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (s *ScraperConnector) Source() model.JobSource { return model.SourceScraper }

type scrapedJob struct {
	JobID           string   `json:"job_id"`
	Title           string   `json:"title"`
	URL             string   `json:"url"`
	Description     string   `json:"description"`
	BudgetType      string   `json:"budget_type"`
	BudgetMin       *float64 `json:"budget_min"`
	BudgetMax       *float64 `json:"budget_max"`
	ClientCountry   string   `json:"client_country"`
	ClientSpent     *float64 `json:"client_spent"`
	ClientHires     *int     `json:"client_hires"`
	PaymentVerified bool     `json:"payment_verified"`
}

func (s *ScraperConnector) Fetch(ctx context.Context, p adapter.FetchParams) ([]*model.JobRecord, error) {
	payload := map[string]any{
		"limit": p.Limit,
	}
	if len(p.Keywords) > 0 {
		payload["keywords"] = p.Keywords
	}
	if p.Location != "" {
		payload["location"] = p.Location
	}
	if p.SinceDays > 0 {
		payload["since_days"] = p.SinceDays
	}
	if p.BudgetMin != nil {
		payload["budget_min"] = *p.BudgetMin
	}

	var out struct {
		Jobs []scrapedJob `json:"jobs"`
	}
	if err := postJSON(ctx, s.client, s.base+"/api/v1/scrape", payload, &out); err != nil {
		return nil, err
	}
	if len(out.Jobs) == 0 {
		return nil, domain.ErrNoResults
	}

	records := make([]*model.JobRecord, 0, len(out.Jobs))
	for _, j := range out.Jobs {
		records = append(records, &model.JobRecord{
			JobID:           j.JobID,
			Title:           j.Title,
			URL:             j.URL,
			Description:     j.Description,
			BudgetType:      j.BudgetType,
			BudgetMin:       j.BudgetMin,
			BudgetMax:       j.BudgetMax,
			ClientCountry:   j.ClientCountry,
			ClientSpent:     j.ClientSpent,
			ClientHires:     j.ClientHires,
			PaymentVerified: j.PaymentVerified,
		})
	}
	return records, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, payload, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(client, req, out)
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return doJSON(client, req, out)
}

func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: http %d", req.URL.Path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
