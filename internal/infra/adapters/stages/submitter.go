package stages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"freelance-apply-pipeline/internal/domain/model"
	"freelance-apply-pipeline/internal/domain/ports/adapter"
)

var _ adapter.SubmitDriver = (*SubmitterClient)(nil)

// SubmitterClient drives the browser-automation submitter service. The
// service runs the actual apply flow (fill proposal, set price, toggle
// boost, click submit) and exposes the run as a pollable resource; we
// relay its log lines as progress and map the terminal state back.
type SubmitterClient struct {
	serviceClient
	pollInterval time.Duration
}

func NewSubmitterClient(base string, timeout, pollInterval time.Duration) *SubmitterClient {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &SubmitterClient{
		serviceClient: newServiceClient(base, timeout),
		pollInterval:  pollInterval,
	}
}

const submitStage = "submission"

type submissionState struct {
	State          string   `json:"state"` // queued | running | succeeded | failed
	Log            []string `json:"log"`
	ConfirmationID string   `json:"confirmation_id"`
	Boosted        bool     `json:"boosted"`
	Detail         string   `json:"detail"`
	Error          string   `json:"error"`
}

func (s *SubmitterClient) Submit(ctx context.Context, job *model.JobRecord, progress adapter.Reporter) (*adapter.SubmitResult, error) {
	payload := map[string]any{
		"job_id":        job.JobID,
		"job_url":       job.URL,
		"proposal_text": job.ProposalText,
		"cover_letter":  job.CoverLetter,
	}
	if job.BoostDecision != nil {
		payload["boost"] = *job.BoostDecision
	}
	if job.PricingProposed != nil {
		payload["price"] = *job.PricingProposed
	}

	var started struct {
		SubmissionID string `json:"submission_id"`
	}
	if err := s.postJSON(ctx, "/api/v1/submissions", payload, &started); err != nil {
		return nil, err
	}
	if started.SubmissionID == "" {
		return nil, errors.New("submitter returned no submission id")
	}
	progress.Progress(submitStage, "submission accepted: "+started.SubmissionID)

	return s.poll(ctx, started.SubmissionID, progress)
}

func (s *SubmitterClient) poll(ctx context.Context, id string, progress adapter.Reporter) (*adapter.SubmitResult, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	reported := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		var st submissionState
		if err := s.getJSON(ctx, "/api/v1/submissions/"+id, &st); err != nil {
			// One failed poll is not a failed submission; the next tick
			// retries. Transport errors persist until ctx expires.
			continue
		}
		for ; reported < len(st.Log); reported++ {
			progress.Progress(submitStage, st.Log[reported])
		}

		switch st.State {
		case "succeeded":
			return &adapter.SubmitResult{
				ConfirmationID: st.ConfirmationID,
				Boosted:        st.Boosted,
				Detail:         st.Detail,
			}, nil
		case "failed":
			if st.Error == "" {
				st.Error = "submitter reported failure"
			}
			return nil, fmt.Errorf("submission %s: %s", id, st.Error)
		}
	}
}
