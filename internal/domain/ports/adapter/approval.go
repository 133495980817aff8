package adapter

import (
	"context"

	"freelance-apply-pipeline/internal/domain/model"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionEdit    Decision = "edit"
	DecisionReject  Decision = "reject"
)

// ApprovalChannel posts a job summary to the human-facing channel and
// returns an opaque reference used to correlate the decision that comes
// back. The transport (Telegram, Slack, web UI) is an infra concern.
type ApprovalChannel interface {
	RequestApproval(ctx context.Context, job *model.JobRecord) (approvalRef string, err error)
}

// DecisionHandler is what the channel transport calls when a human acts.
// Implemented by the approval use case.
type DecisionHandler interface {
	OnDecision(ctx context.Context, approvalRef string, decision Decision, editedText string) error
}
