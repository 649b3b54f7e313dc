package autoalloc

import "time"

// Kinds of entries in a queue event log
const (
	EventKindQueued           = "Allocation queued"
	EventKindSubmissionFailed = "Allocation submission failed"
	EventKindStarted          = "Allocation started"
	EventKindFinished         = "Allocation finished"
	EventKindFailed           = "Allocation failed"
)

// EventRecord is one entry of a queue event log.
type EventRecord struct {
	QueueID QueueID
	Seq     uint64
	Time    time.Time
	Kind    string
	Message string
}

type Event interface{}

// Queues

type EventQueueCreated struct {
	Queue QueueID
}

type EventQueueRemoved struct {
	Queue QueueID
	// Job ids whose deletion was requested
	Deleted []string
}

// Allocations

type EventAllocationQueued struct {
	Queue QueueID
	Index uint64
	JobID string
}

type EventAllocationSubmissionFailed struct {
	Queue  QueueID
	Reason string
}

type EventAllocationStarted struct {
	Queue QueueID
	Index uint64
	JobID string
}

type EventAllocationFinished struct {
	Queue QueueID
	Index uint64
	JobID string
}

type EventAllocationFailed struct {
	Queue    QueueID
	Index    uint64
	JobID    string
	ExitCode *int
}
