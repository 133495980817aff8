package telegram

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"freelance-apply-pipeline/internal/domain/model"
	"freelance-apply-pipeline/internal/domain/ports/adapter"
)

var _ adapter.ApprovalChannel = (*NoopApprovalChannel)(nil)

// NoopApprovalChannel logs approval requests instead of posting them. Used
// in dev mode; decisions then come in through the HTTP control plane.
type NoopApprovalChannel struct {
	log zerolog.Logger
}

func NewNoopApprovalChannel(log zerolog.Logger) *NoopApprovalChannel {
	return &NoopApprovalChannel{log: log}
}

func (n *NoopApprovalChannel) RequestApproval(ctx context.Context, job *model.JobRecord) (string, error) {
	ref := fmt.Sprintf("noop-%s", job.JobID)
	n.log.Info().
		Str("job_id", job.JobID).
		Str("title", job.Title).
		Str("ref", ref).
		Msg("approval requested (noop channel)")
	return ref, nil
}
