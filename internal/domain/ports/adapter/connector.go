package adapter

import (
	"context"

	"freelance-apply-pipeline/internal/domain/model"
)

// FetchParams are the knobs an ingestion trigger passes down to a
// connector. Connectors ignore the fields they cannot honor.
type FetchParams struct {
	Limit     int
	Keywords  []string
	Location  string
	SinceDays int
	BudgetMin *float64
	// URLs admits an explicit list for the manual source.
	URLs []string
}

// Connector pulls candidate postings from one upstream source. Connectors
// are external collaborators: they produce raw candidates and never touch
// the record store or the dedup store.
type Connector interface {
	Source() model.JobSource
	Fetch(ctx context.Context, p FetchParams) ([]*model.JobRecord, error)
}
