package main

import (
	"sync"

	"github.com/gammadia/hqalloc/autoalloc"
	"github.com/gammadia/hqalloc/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// serverStatus is the in-memory summary rebuilt from the manager event stream.
// listenEvents writes it, Ping reads it.
var serverStatus *proto.ServerStatus
var serverStatusMutex sync.RWMutex

func init() {
	resetServerStatus()
}

func resetServerStatus() {
	serverStatusMutex.Lock()
	defer serverStatusMutex.Unlock()

	serverStatus = &proto.ServerStatus{StartedAt: timestamppb.Now()}
}

// listenEvents consumes the manager events until the channel is closed or the process exits.
func listenEvents(c <-chan autoalloc.Event) {
	for event := range c {
		serverStatusMutex.Lock()

		switch event.(type) {
		case autoalloc.EventQueueCreated:
			serverStatus.Queues++
		case autoalloc.EventQueueRemoved:
			serverStatus.Queues--

		case autoalloc.EventAllocationQueued:
			serverStatus.AllocationsQueued++
		case autoalloc.EventAllocationSubmissionFailed:
			serverStatus.SubmissionFailures++
		case autoalloc.EventAllocationStarted:
			serverStatus.AllocationsStarted++
		case autoalloc.EventAllocationFinished:
			serverStatus.AllocationsFinished++
		case autoalloc.EventAllocationFailed:
			serverStatus.AllocationsFailed++
		}

		serverStatusMutex.Unlock()
	}
}

// currentServerStatus returns a copy of the server status.
func currentServerStatus() *proto.ServerStatus {
	serverStatusMutex.RLock()
	defer serverStatusMutex.RUnlock()

	status := *serverStatus
	return &status
}
