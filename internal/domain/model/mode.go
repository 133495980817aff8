package model

import "time"

// SubmissionMode controls how far the pipeline advances a job without a
// human in the loop.
//
//	manual:    approval and submission both require explicit calls
//	semi_auto: approval happens automatically once assets are ready,
//	           submission still requires an explicit call
//	automatic: both approval and submission happen unattended
type SubmissionMode string

const (
	ModeManual    SubmissionMode = "manual"
	ModeSemiAuto  SubmissionMode = "semi_auto"
	ModeAutomatic SubmissionMode = "automatic"
)

func (m SubmissionMode) Valid() bool {
	switch m {
	case ModeManual, ModeSemiAuto, ModeAutomatic:
		return true
	}
	return false
}

// AutoApprove reports whether pending_approval -> approved happens without
// an external call under this mode.
func (m SubmissionMode) AutoApprove() bool {
	return m == ModeSemiAuto || m == ModeAutomatic
}

// AutoSubmit reports whether approved -> submitting happens without an
// external call under this mode.
func (m SubmissionMode) AutoSubmit() bool {
	return m == ModeAutomatic
}

// ModeConfig is the process-wide automation setting. Version increments on
// every change so readers can tell a stale snapshot from the current one;
// the orchestrator re-reads it at each decision point and never caches it
// per job.
type ModeConfig struct {
	Mode      SubmissionMode `json:"mode"`
	Version   int64          `json:"version"`
	UpdatedAt time.Time      `json:"updated_at"`
}
