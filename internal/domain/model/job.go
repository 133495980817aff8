package model

import (
	"fmt"
	"time"
)

type JobSource string

const (
	SourceScraper JobSource = "scraper"
	SourceInbox   JobSource = "inbox"
	SourceManual  JobSource = "manual"
)

type JobStatus string

const (
	StatusNew              JobStatus = "new"
	StatusScoring          JobStatus = "scoring"
	StatusExtracting       JobStatus = "extracting"
	StatusGenerating       JobStatus = "generating"
	StatusPendingApproval  JobStatus = "pending_approval"
	StatusApproved         JobStatus = "approved"
	StatusRejected         JobStatus = "rejected"
	StatusSubmitting       JobStatus = "submitting"
	StatusSubmitted        JobStatus = "submitted"
	StatusSubmissionFailed JobStatus = "submission_failed"
	StatusFilteredOut      JobStatus = "filtered_out"
	StatusError            JobStatus = "error"
)

// AllStatuses is the stable status vocabulary exposed to UIs and
// automation. Order matters for display; do not reorder casually.
var AllStatuses = []JobStatus{
	StatusNew, StatusScoring, StatusExtracting, StatusGenerating,
	StatusPendingApproval, StatusApproved, StatusRejected,
	StatusSubmitting, StatusSubmitted, StatusSubmissionFailed,
	StatusFilteredOut, StatusError,
}

func (s JobStatus) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no further automatic transition occurs from s.
// An administrative override may still move a terminal job.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusFilteredOut, StatusRejected, StatusSubmitted, StatusError:
		return true
	}
	return false
}

// transitions is the directed graph of legal status moves. Every
// orchestrator-driven change must follow an edge here; the only bypass is
// the audited administrative override.
var transitions = map[JobStatus][]JobStatus{
	StatusNew:              {StatusScoring},
	StatusScoring:          {StatusFilteredOut, StatusExtracting, StatusError},
	StatusExtracting:       {StatusGenerating, StatusError},
	StatusGenerating:       {StatusPendingApproval, StatusError},
	StatusPendingApproval:  {StatusApproved, StatusRejected},
	StatusApproved:         {StatusSubmitting},
	StatusSubmitting:       {StatusSubmitted, StatusSubmissionFailed},
	StatusSubmissionFailed: {StatusSubmitting},
}

func (s JobStatus) CanTransition(to JobStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type Attachment struct {
	Filename      string `json:"filename"`
	URL           string `json:"url"`
	ExtractedText string `json:"extracted_text,omitempty"`
}

// JobRecord is one row per candidate posting, the single source of truth
// for where a job sits in the pipeline. Stage executors never write it
// directly; the orchestrator commits their proposed updates.
type JobRecord struct {
	JobID  string
	Source JobSource
	Status JobStatus

	Title       string
	URL         string
	Description string

	Attachments       []Attachment
	AttachmentContent string

	BudgetType string // "fixed" | "hourly" | "unknown"
	BudgetMin  *float64
	BudgetMax  *float64

	ClientCountry   string
	ClientSpent     *float64
	ClientHires     *int
	PaymentVerified bool

	FitScore     *int
	FitReasoning string

	ProposalDocURL string
	ProposalText   string
	VideoURL       string
	PDFURL         string
	CoverLetter    string

	BoostDecision   *bool
	BoostReasoning  string
	PricingProposed *float64

	// ApprovalRef correlates a posted approval request with the decision
	// that comes back from the external channel.
	ApprovalRef string

	// ScoreBypass is set by the administrative reset-to-new override so the
	// next scoring pass admits the job regardless of threshold.
	ScoreBypass bool

	ApprovedAt  *time.Time
	SubmittedAt *time.Time

	ErrorLog []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AppendError records a non-fatal problem without interrupting the job.
func (j *JobRecord) AppendError(stage string, err error) {
	if err == nil {
		return
	}
	j.ErrorLog = append(j.ErrorLog, fmt.Sprintf("%s: %v", stage, err))
}

// ProposedPrice picks the bid amount from the extracted budget range:
// midpoint when both ends are known, otherwise whichever end exists.
func (j *JobRecord) ProposedPrice() *float64 {
	switch {
	case j.BudgetMin != nil && j.BudgetMax != nil:
		v := (*j.BudgetMin + *j.BudgetMax) / 2
		return &v
	case j.BudgetMin != nil:
		v := *j.BudgetMin
		return &v
	case j.BudgetMax != nil:
		v := *j.BudgetMax
		return &v
	}
	return nil
}
