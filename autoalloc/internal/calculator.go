package internal

// AllocationsToSubmit returns how many allocations a queue should submit on this tick.
// Any pending work justifies filling the queue up to its backlog of non-terminal allocations.
func AllocationsToSubmit(backlog, activeAllocations, pendingTasks int) int {
	if pendingTasks < 1 {
		return 0
	}
	return max(0, backlog-activeAllocations)
}
