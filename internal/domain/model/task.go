package model

import "time"

type TaskCategory string

const (
	TaskCategorySubmission TaskCategory = "submission"
	TaskCategoryGeneration TaskCategory = "generation"
)

type TaskState string

const (
	TaskPending    TaskState = "pending"
	TaskInProgress TaskState = "in_progress"
	TaskCompleted  TaskState = "completed"
	TaskFailed     TaskState = "failed"
)

func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// TaskStatus is the live view of one long-running background operation,
// owned by the Active-Task Registry. The log is append-only and never
// reordered; pollers read snapshots while the owning goroutine writes.
type TaskStatus struct {
	JobID     string         `json:"job_id"`
	Category  TaskCategory   `json:"category"`
	State     TaskState      `json:"state"`
	Stage     string         `json:"stage"`
	StartedAt time.Time      `json:"started_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Log       []string       `json:"log"`
	Error     string         `json:"error,omitempty"`
	Result    map[string]any `json:"result,omitempty"`
}
