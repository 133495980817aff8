package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidTransition  = errors.New("illegal status transition")
	ErrTerminalStatus     = errors.New("job is in a terminal status")
	ErrTaskInFlight       = errors.New("task already in flight for this job")
	ErrJobLocked          = errors.New("job is locked by another worker")
	ErrUnknownMode        = errors.New("unknown submission mode")
	ErrUnknownSource      = errors.New("unknown ingestion source")
	ErrNoResults          = errors.New("ingestion returned no results")
	ErrNotApproved        = errors.New("job must be approved before submission")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid executor context")
)

// StageClass classifies a stage executor failure for the retry policy.
type StageClass int

const (
	// ClassTransient errors (rate limits, timeouts) are retried with
	// backoff before escalating.
	ClassTransient StageClass = iota
	// ClassPartial errors (one attachment unparseable) are noted in the
	// job's error log and processing continues.
	ClassPartial
	// ClassFatal errors (auth failure, malformed response) move the job to
	// the error status immediately, no retry.
	ClassFatal
)

func (c StageClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPartial:
		return "partial"
	default:
		return "fatal"
	}
}

// StageError wraps a stage executor failure with its severity class so the
// orchestrator can decide between retry, note-and-continue, and hard stop.
type StageError struct {
	Stage string
	Class StageClass
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %s error: %v", e.Stage, e.Class, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func Transient(stage string, err error) *StageError {
	return &StageError{Stage: stage, Class: ClassTransient, Err: err}
}

func Partial(stage string, err error) *StageError {
	return &StageError{Stage: stage, Class: ClassPartial, Err: err}
}

func Fatal(stage string, err error) *StageError {
	return &StageError{Stage: stage, Class: ClassFatal, Err: err}
}

// ClassOf extracts the severity of err. Unclassified errors are treated as
// fatal so a bug in an executor can never retry forever.
func ClassOf(err error) StageClass {
	var se *StageError
	if errors.As(err, &se) {
		return se.Class
	}
	return ClassFatal
}
