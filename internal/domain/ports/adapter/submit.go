package adapter

import (
	"context"

	"freelance-apply-pipeline/internal/domain/model"
)

// SubmitResult is the terminal payload of a driven submission.
type SubmitResult struct {
	ConfirmationID string
	Boosted        bool
	Detail         string
}

// SubmitDriver drives the externally-visible application submission
// (browser automation behind an HTTP service, or similar). It reports
// progress through the Reporter and must respect ctx cancellation: the
// caller enforces the hard wall-clock timeout.
type SubmitDriver interface {
	Submit(ctx context.Context, job *model.JobRecord, progress Reporter) (*SubmitResult, error)
}
