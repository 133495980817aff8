package connectors

import (
	"context"
	"strings"

	"freelance-apply-pipeline/internal/domain"
	"freelance-apply-pipeline/internal/domain/model"
	"freelance-apply-pipeline/internal/domain/ports/adapter"
)

var _ adapter.Connector = (*ManualConnector)(nil)

// ManualConnector admits postings from an operator-supplied URL list. No
// upstream call happens here; the extraction stage fetches the details.
type ManualConnector struct{}

func NewManualConnector() *ManualConnector {
	return &ManualConnector{}
}

func (m *ManualConnector) Source() model.JobSource { return model.SourceManual }

func (m *ManualConnector) Fetch(ctx context.Context, p adapter.FetchParams) ([]*model.JobRecord, error) {
	records := make([]*model.JobRecord, 0, len(p.URLs))
	for _, u := range p.URLs {
		id := JobIDFromURL(u)
		if id == "" {
			continue
		}
		records = append(records, &model.JobRecord{
			JobID: id,
			URL:   u,
		})
	}
	if len(records) == 0 {
		return nil, domain.ErrNoResults
	}
	return records, nil
}

// JobIDFromURL pulls the tilde-prefixed posting id out of a marketplace URL,
// e.g. /jobs/~01abc123 or /nx/proposals/job/~01abc123/apply/.
func JobIDFromURL(u string) string {
	for _, seg := range strings.Split(u, "/") {
		if q := strings.IndexAny(seg, "?#"); q >= 0 {
			seg = seg[:q]
		}
		if strings.HasPrefix(seg, "~") && len(seg) > 1 {
			return seg
		}
	}
	return ""
}
