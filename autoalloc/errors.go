package autoalloc

import "errors"

var (
	ErrQueueNotFound              = errors.New("allocation queue not found")
	ErrQueueHasRunningAllocations = errors.New("Allocation queue has running jobs, so it will not be removed. Use `--force` if you want to remove the queue anyway")
	ErrUnknownBackend             = errors.New("unknown backend")
	ErrShutdown                   = errors.New("manager is shutting down")
)
