package autoalloc

import (
	"context"
	"fmt"
	"strings"
)

// Backend is the contract every external batch scheduler integration must satisfy.
// Implementations must be safe for concurrent use: queues are reconciled in parallel.
type Backend interface {
	// Submit submits one allocation for the queue and returns the external job id.
	// Failures of the external submit command are reported as *SubmissionError.
	Submit(ctx context.Context, request SubmitRequest) (string, error)
	// Query returns the current state of the given jobs.
	// Jobs the scheduler knows nothing about are absent from the result.
	Query(ctx context.Context, jobIDs []string) (map[string]JobState, error)
	// Delete cancels the given jobs. It is best effort.
	Delete(ctx context.Context, jobIDs []string) error
}

type SubmitRequest struct {
	Queue *Queue
	// Index of the allocation within its queue
	Index uint64
	// Working directory reserved for this allocation; it already exists
	WorkDir string
}

type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusExited  JobStatus = "exited"
)

// JobState is the generic view of an external job, as translated by a backend.
type JobState struct {
	Status JobStatus
	// RawStatus is the backend-native status code (Q, R, F, PENDING, ...)
	RawStatus  string
	QueueTime  string
	StartTime  string
	ModifyTime string
	// ExitCode is only set once the job has exited
	ExitCode *int
}

// SubmissionError is returned by Backend.Submit when the external submit command failed.
type SubmissionError struct {
	Program  string
	ExitCode int
	Stderr   string
	Stdout   string
}

func (e *SubmissionError) Error() string {
	return strings.TrimRight(fmt.Sprintf(
		"%s execution failed\nCaused by:\nExit code: %d\nStderr: %s\nStdout: %s",
		e.Program,
		e.ExitCode,
		strings.TrimSpace(e.Stderr),
		strings.TrimSpace(e.Stdout),
	), " \n")
}
