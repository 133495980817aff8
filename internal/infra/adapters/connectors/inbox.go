package connectors

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"freelance-apply-pipeline/internal/domain"
	"freelance-apply-pipeline/internal/domain/model"
	"freelance-apply-pipeline/internal/domain/ports/adapter"
)

var _ adapter.Connector = (*InboxConnector)(nil)

// InboxConnector pulls postings parsed out of job-alert emails by the inbox
// monitor service. Alert emails carry less detail than a scraped posting;
// the extraction stage fills the gaps later.
type InboxConnector struct {
	base   string
	client *http.Client
}

func NewInboxConnector(base string, timeout time.Duration) *InboxConnector {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &InboxConnector{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (i *InboxConnector) Source() model.JobSource { return model.SourceInbox }

func (i *InboxConnector) Fetch(ctx context.Context, p adapter.FetchParams) ([]*model.JobRecord, error) {
	url := i.base + "/api/v1/jobs"
	if p.Limit > 0 {
		url = fmt.Sprintf("%s?limit=%d", url, p.Limit)
	}

	var out struct {
		Jobs []struct {
			JobID       string `json:"job_id"`
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"jobs"`
	}
	if err := getJSON(ctx, i.client, url, &out); err != nil {
		return nil, err
	}
	if len(out.Jobs) == 0 {
		return nil, domain.ErrNoResults
	}

	records := make([]*model.JobRecord, 0, len(out.Jobs))
	for _, j := range out.Jobs {
		records = append(records, &model.JobRecord{
			JobID:       j.JobID,
			Title:       j.Title,
			URL:         j.URL,
			Description: j.Description,
		})
	}
	return records, nil
}
