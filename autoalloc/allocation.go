package autoalloc

import (
	"fmt"
	"time"
)

type AllocationStatus string

const (
	AllocationStatusQueued   AllocationStatus = "Queued"
	AllocationStatusRunning  AllocationStatus = "Running"
	AllocationStatusFinished AllocationStatus = "Finished"
	AllocationStatusFailed   AllocationStatus = "Failed"
)

// IsTerminal reports whether the status can never change again.
func (s AllocationStatus) IsTerminal() bool {
	return s == AllocationStatusFinished || s == AllocationStatusFailed
}

// Allocation is one external job submitted on behalf of a queue.
// Allocations stored in the Store must not be modified in place; use Clone.
type Allocation struct {
	QueueID QueueID
	Index   uint64
	JobID   string
	Status  AllocationStatus
	Workers int
	WorkDir string

	// Timestamps as reported by the backend, kept verbatim
	QueueTime  string
	StartTime  string
	ModifyTime string
	ExitCode   *int

	SubmittedAt time.Time
	UpdatedAt   time.Time
}

func (a *Allocation) FQN() string {
	return fmt.Sprintf("%d/%d", a.QueueID, a.Index)
}

func (a *Allocation) Clone() *Allocation {
	if a == nil {
		return nil
	}
	clone := *a
	if a.ExitCode != nil {
		exitCode := *a.ExitCode
		clone.ExitCode = &exitCode
	}
	return &clone
}
