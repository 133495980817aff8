package model

import "time"

// ProcessedID is one append-only row per (job, source) pair ever ingested.
// Rows are never updated or deleted; deleting a JobRecord leaves its
// ProcessedID behind so the job is never re-ingested.
type ProcessedID struct {
	JobID       string
	Source      JobSource
	FirstSeenAt time.Time
}
