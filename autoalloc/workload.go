package autoalloc

import "sync/atomic"

// Workload reports how much work is waiting for workers. Allocations are only
// submitted while it reports pending tasks.
type Workload interface {
	PendingTasks() int
}

// AlwaysPending is a Workload that always reports demand.
type AlwaysPending struct{}

func (AlwaysPending) PendingTasks() int {
	return 1
}

// PendingTasksGauge is a Workload whose value is pushed by the task runtime.
type PendingTasksGauge struct {
	pending atomic.Int64
}

func (g *PendingTasksGauge) Set(pending int) {
	g.pending.Store(int64(max(0, pending)))
}

func (g *PendingTasksGauge) PendingTasks() int {
	return int(g.pending.Load())
}
