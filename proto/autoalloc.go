// Package proto holds the messages and the gRPC service of the autoalloc management API.
// Messages travel encoded as JSON (see codec.go).
package proto

import (
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

type PingRequest struct{}

type PingResponse struct {
	Version string        `json:"version"`
	Commit  string        `json:"commit"`
	Status  *ServerStatus `json:"status,omitempty"`
}

type ServerStatus struct {
	// Name of the running manager, also the root of its work directories
	Name      string                 `json:"name"`
	StartedAt *timestamppb.Timestamp `json:"started_at"`
	Backends  []string               `json:"backends"`
	Queues    uint32                 `json:"queues"`
	// Nil when the server assumes there is always pending work
	PendingTasks *uint32 `json:"pending_tasks,omitempty"`

	// Allocation lifecycle counters since the server started
	AllocationsQueued   uint64 `json:"allocations_queued"`
	AllocationsStarted  uint64 `json:"allocations_started"`
	AllocationsFinished uint64 `json:"allocations_finished"`
	AllocationsFailed   uint64 `json:"allocations_failed"`
	SubmissionFailures  uint64 `json:"submission_failures"`
}

type QueueDescriptor struct {
	Backend         string               `json:"backend"`
	Name            string               `json:"name,omitempty"`
	Backlog         uint32               `json:"backlog"`
	WorkersPerAlloc uint32               `json:"workers_per_alloc"`
	TimeLimit       *durationpb.Duration `json:"time_limit"`
	AdditionalArgs  []string             `json:"additional_args,omitempty"`
}

type AddQueueRequest struct {
	Queue *QueueDescriptor `json:"queue"`
}

type AddQueueResponse struct {
	ID uint64 `json:"id"`
}

type ListQueuesRequest struct{}

type Queue struct {
	ID         uint64                 `json:"id"`
	Descriptor *QueueDescriptor       `json:"descriptor"`
	CreatedAt  *timestamppb.Timestamp `json:"created_at"`
	// Number of queued and running allocations
	ActiveAllocations uint32 `json:"active_allocations"`
}

type ListQueuesResponse struct {
	Queues []*Queue `json:"queues"`
}

type GetAllocationsRequest struct {
	QueueID uint64 `json:"queue_id"`
}

type Allocation struct {
	Index   uint64 `json:"index"`
	JobID   string `json:"job_id"`
	State   string `json:"state"`
	Workers uint32 `json:"workers"`
	// Timestamps as reported by the batch scheduler
	QueuedAt   string `json:"queued_at,omitempty"`
	StartedAt  string `json:"started_at,omitempty"`
	FinishedAt string `json:"finished_at,omitempty"`
	ExitCode   *int32 `json:"exit_code,omitempty"`
	WorkDir    string `json:"work_dir"`

	SubmittedAt *timestamppb.Timestamp `json:"submitted_at"`
}

type GetAllocationsResponse struct {
	Allocations []*Allocation `json:"allocations"`
}

type GetEventsRequest struct {
	QueueID uint64 `json:"queue_id"`
}

type Event struct {
	Time    *timestamppb.Timestamp `json:"time"`
	Kind    string                 `json:"kind"`
	Message string                 `json:"message"`
}

type GetEventsResponse struct {
	Events []*Event `json:"events"`
}

type RemoveQueueRequest struct {
	ID    uint64 `json:"id"`
	Force bool   `json:"force"`
}

type RemoveQueueResponse struct{}

type SetWorkloadRequest struct {
	PendingTasks uint32 `json:"pending_tasks"`
}

type SetWorkloadResponse struct{}

type StopServerRequest struct{}

type StopServerResponse struct{}
