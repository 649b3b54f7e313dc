package autoalloc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock backend ---

type mockBackend struct {
	// Optional hook replacing the default submission
	submitFunc func(ctx context.Context, request SubmitRequest) (string, error)

	mu        sync.Mutex
	nextJob   int
	submitted []SubmitRequest
	states    map[string]JobState
	deleted   []string
	queries   int
	queryErr  error
	deleteErr error
}

func newMockBackend() *mockBackend {
	return &mockBackend{states: make(map[string]JobState)}
}

func (b *mockBackend) Submit(ctx context.Context, request SubmitRequest) (string, error) {
	if b.submitFunc != nil {
		jobID, err := b.submitFunc(ctx, request)
		if err != nil {
			return "", err
		}
		b.mu.Lock()
		b.submitted = append(b.submitted, request)
		b.states[jobID] = JobState{Status: JobStatusQueued, RawStatus: "Q"}
		b.mu.Unlock()
		return jobID, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextJob++
	jobID := fmt.Sprintf("%d.pbs", b.nextJob)
	b.submitted = append(b.submitted, request)
	b.states[jobID] = JobState{Status: JobStatusQueued, RawStatus: "Q"}
	return jobID, nil
}

func (b *mockBackend) Query(_ context.Context, jobIDs []string) (map[string]JobState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.queries++
	if b.queryErr != nil {
		return nil, b.queryErr
	}
	result := make(map[string]JobState)
	for _, jobID := range jobIDs {
		if state, ok := b.states[jobID]; ok {
			result[jobID] = state
		}
	}
	return result, nil
}

func (b *mockBackend) Delete(_ context.Context, jobIDs []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.deleted = append(b.deleted, jobIDs...)
	return b.deleteErr
}

func (b *mockBackend) setState(jobID string, state JobState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states[jobID] = state
}

func (b *mockBackend) getSubmitted() []SubmitRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]SubmitRequest(nil), b.submitted...)
}

func (b *mockBackend) getDeleted() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.deleted...)
}

// --- Helpers ---

func newTestConfig(t *testing.T) Config {
	return Config{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})),
		Interval:       10 * time.Millisecond,
		BackendTimeout: 5 * time.Second,
		WorkDir:        t.TempDir(),
	}
}

func newTestManager(t *testing.T, backend Backend, workload Workload) *Manager {
	t.Helper()
	manager, err := New(map[string]Backend{"pbs": backend}, workload, newTestConfig(t))
	require.NoError(t, err)
	return manager
}

func newTestDescriptor(backlog int) QueueDescriptor {
	return QueueDescriptor{
		Backend:         "pbs",
		Name:            "test",
		Backlog:         backlog,
		WorkersPerAlloc: 1,
		TimeLimit:       3 * time.Minute,
	}
}

// reconcileOnce runs a single pass on a queue, like a tick would.
func reconcileOnce(t *testing.T, m *Manager, id QueueID) {
	t.Helper()
	m.mutex.Lock()
	state := m.queues[id]
	m.mutex.Unlock()
	require.NotNil(t, state)

	queue, err := m.store.Queue(id)
	require.NoError(t, err)

	state.mutex.Lock()
	defer state.mutex.Unlock()
	m.reconcile(queue, state)
}

func allocationStatuses(t *testing.T, m *Manager, id QueueID) []AllocationStatus {
	t.Helper()
	allocations, err := m.Allocations(id)
	require.NoError(t, err)
	return lo.Map(allocations, func(a *Allocation, _ int) AllocationStatus { return a.Status })
}

func eventKinds(t *testing.T, m *Manager, id QueueID) []string {
	t.Helper()
	events, err := m.Events(id)
	require.NoError(t, err)
	return lo.Map(events, func(e *EventRecord, _ int) string { return e.Kind })
}

func exited(code int) JobState {
	return JobState{Status: JobStatusExited, RawStatus: "F", ExitCode: lo.ToPtr(code)}
}

func waitForEvent[T Event](t *testing.T, events <-chan Event) T {
	t.Helper()
	for {
		select {
		case ev := <-events:
			if typed, ok := ev.(T); ok {
				return typed
			}
		case <-time.After(5 * time.Second):
			var zero T
			t.Fatalf("timed out waiting for event %T", zero)
			return zero
		}
	}
}

// --- Queue lifecycle ---

func TestCreateQueueAssignsMonotonicIDs(t *testing.T) {
	m := newTestManager(t, newMockBackend(), AlwaysPending{})

	first, err := m.CreateQueue(newTestDescriptor(1))
	require.NoError(t, err)
	second, err := m.CreateQueue(newTestDescriptor(1))
	require.NoError(t, err)

	assert.Equal(t, QueueID(1), first.ID)
	assert.Equal(t, QueueID(2), second.ID)
	assert.Equal(t, "hq-alloc-2", second.JobName())

	queues, err := m.Queues()
	require.NoError(t, err)
	assert.Equal(t, []QueueID{1, 2}, lo.Map(queues, func(q *Queue, _ int) QueueID { return q.ID }))
}

func TestCreateQueueRejectsInvalidDescriptors(t *testing.T) {
	m := newTestManager(t, newMockBackend(), AlwaysPending{})

	descriptor := newTestDescriptor(1)
	descriptor.Backend = "slurm"
	_, err := m.CreateQueue(descriptor)
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = m.CreateQueue(newTestDescriptor(0))
	assert.EqualError(t, err, "backlog must be greater than 0")

	queues, err := m.Queues()
	require.NoError(t, err)
	assert.Empty(t, queues)

	// Ids are not consumed by rejected queues
	queue, err := m.CreateQueue(newTestDescriptor(1))
	require.NoError(t, err)
	assert.Equal(t, QueueID(1), queue.ID)
}

func TestRemoveUnknownQueue(t *testing.T) {
	m := newTestManager(t, newMockBackend(), AlwaysPending{})

	err := m.RemoveQueue(context.Background(), 42, true)
	assert.ErrorIs(t, err, ErrQueueNotFound)

	_, err = m.Allocations(42)
	assert.ErrorIs(t, err, ErrQueueNotFound)
	_, err = m.Events(42)
	assert.ErrorIs(t, err, ErrQueueNotFound)
}

func TestRemoveQueueWithRunningAllocationsRequiresForce(t *testing.T) {
	backend := newMockBackend()
	m := newTestManager(t, backend, AlwaysPending{})

	queue, err := m.CreateQueue(newTestDescriptor(2))
	require.NoError(t, err)
	reconcileOnce(t, m, queue.ID)

	backend.setState("1.pbs", JobState{Status: JobStatusRunning, RawStatus: "R", StartTime: "Mon Jan 1 10:00:00 2024"})
	reconcileOnce(t, m, queue.ID)
	require.Equal(t, []AllocationStatus{AllocationStatusRunning, AllocationStatusQueued}, allocationStatuses(t, m, queue.ID))

	err = m.RemoveQueue(context.Background(), queue.ID, false)
	assert.ErrorIs(t, err, ErrQueueHasRunningAllocations)
	assert.EqualError(t, err, "Allocation queue has running jobs, so it will not be removed. Use `--force` if you want to remove the queue anyway")

	// Nothing changed
	assert.Empty(t, backend.getDeleted())
	assert.Equal(t, []AllocationStatus{AllocationStatusRunning, AllocationStatusQueued}, allocationStatuses(t, m, queue.ID))

	require.NoError(t, m.RemoveQueue(context.Background(), queue.ID, true))
	assert.ElementsMatch(t, []string{"1.pbs", "2.pbs"}, backend.getDeleted())

	queues, err := m.Queues()
	require.NoError(t, err)
	assert.Empty(t, queues)
	_, err = m.Events(queue.ID)
	assert.ErrorIs(t, err, ErrQueueNotFound)
}

func TestRemoveQueueWithOnlyQueuedAllocations(t *testing.T) {
	backend := newMockBackend()
	m := newTestManager(t, backend, AlwaysPending{})

	events, unsub := m.Subscribe()
	defer unsub()

	queue, err := m.CreateQueue(newTestDescriptor(2))
	require.NoError(t, err)
	reconcileOnce(t, m, queue.ID)

	require.NoError(t, m.RemoveQueue(context.Background(), queue.ID, false))
	assert.ElementsMatch(t, []string{"1.pbs", "2.pbs"}, backend.getDeleted())

	removed := waitForEvent[EventQueueRemoved](t, events)
	assert.Equal(t, queue.ID, removed.Queue)
	assert.ElementsMatch(t, []string{"1.pbs", "2.pbs"}, removed.Deleted)
}

func TestForcedRemovalSkipsTerminalAllocations(t *testing.T) {
	backend := newMockBackend()
	workload := &PendingTasksGauge{}
	workload.Set(1)
	m := newTestManager(t, backend, workload)

	queue, err := m.CreateQueue(newTestDescriptor(3))
	require.NoError(t, err)
	reconcileOnce(t, m, queue.ID)

	workload.Set(0)
	backend.setState("1.pbs", exited(0))
	backend.setState("2.pbs", exited(1))
	backend.setState("3.pbs", JobState{Status: JobStatusRunning, RawStatus: "R"})
	reconcileOnce(t, m, queue.ID)

	require.NoError(t, m.RemoveQueue(context.Background(), queue.ID, true))
	assert.Equal(t, []string{"3.pbs"}, backend.getDeleted())
}

func TestForcedRemovalIgnoresDeletionFailures(t *testing.T) {
	backend := newMockBackend()
	backend.deleteErr = fmt.Errorf("qdel: connection refused")
	m := newTestManager(t, backend, AlwaysPending{})

	queue, err := m.CreateQueue(newTestDescriptor(1))
	require.NoError(t, err)
	reconcileOnce(t, m, queue.ID)

	require.NoError(t, m.RemoveQueue(context.Background(), queue.ID, true))
	assert.Equal(t, []string{"1.pbs"}, backend.getDeleted())

	queues, err := m.Queues()
	require.NoError(t, err)
	assert.Empty(t, queues)
}

// --- Reconciliation ---

func TestSubmissionFailureRecordsSingleEvent(t *testing.T) {
	backend := newMockBackend()
	backend.submitFunc = func(context.Context, SubmitRequest) (string, error) {
		return "", &SubmissionError{Program: "qsub", ExitCode: 1, Stderr: "failure"}
	}
	m := newTestManager(t, backend, AlwaysPending{})

	queue, err := m.CreateQueue(newTestDescriptor(2))
	require.NoError(t, err)
	reconcileOnce(t, m, queue.ID)

	events, err := m.Events(queue.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventKindSubmissionFailed, events[0].Kind)
	assert.Equal(t, "qsub execution failed\nCaused by:\nExit code: 1\nStderr: failure\nStdout:", events[0].Message)
	assert.Empty(t, allocationStatuses(t, m, queue.ID))

	// Retried on the next tick
	reconcileOnce(t, m, queue.ID)
	assert.Equal(t, []string{EventKindSubmissionFailed, EventKindSubmissionFailed}, eventKinds(t, m, queue.ID))
	assert.Empty(t, allocationStatuses(t, m, queue.ID))
}

func TestSubmissionRecoversAfterFailure(t *testing.T) {
	backend := newMockBackend()
	var mu sync.Mutex
	failing := true
	backend.submitFunc = func(context.Context, SubmitRequest) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if failing {
			return "", &SubmissionError{Program: "qsub", ExitCode: 1, Stderr: "failure"}
		}
		return "100.pbs", nil
	}
	m := newTestManager(t, backend, AlwaysPending{})

	queue, err := m.CreateQueue(newTestDescriptor(1))
	require.NoError(t, err)
	reconcileOnce(t, m, queue.ID)

	mu.Lock()
	failing = false
	mu.Unlock()
	reconcileOnce(t, m, queue.ID)

	events, err := m.Events(queue.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventKindQueued, events[1].Kind)
	assert.Equal(t, "100.pbs", events[1].Message)

	allocations, err := m.Allocations(queue.ID)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	// Failed submissions still consume an index
	assert.Equal(t, uint64(2), allocations[0].Index)
	assert.Equal(t, "100.pbs", allocations[0].JobID)
}

func TestSubmitRequestCarriesQueueAndWorkDir(t *testing.T) {
	backend := newMockBackend()
	m := newTestManager(t, backend, AlwaysPending{})

	queue, err := m.CreateQueue(newTestDescriptor(1))
	require.NoError(t, err)
	reconcileOnce(t, m, queue.ID)

	submitted := backend.getSubmitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, queue.ID, submitted[0].Queue.ID)
	assert.Equal(t, uint64(1), submitted[0].Index)
	assert.DirExists(t, submitted[0].WorkDir)
	assert.Equal(t, m.allocationWorkDir(queue, 1), submitted[0].WorkDir)
}

func TestNoSubmissionWithoutPendingWork(t *testing.T) {
	backend := newMockBackend()
	m := newTestManager(t, backend, &PendingTasksGauge{})

	queue, err := m.CreateQueue(newTestDescriptor(2))
	require.NoError(t, err)
	reconcileOnce(t, m, queue.ID)

	assert.Empty(t, backend.getSubmitted())
	assert.Empty(t, eventKinds(t, m, queue.ID))
}

func TestBacklogIsNeverExceeded(t *testing.T) {
	backend := newMockBackend()
	m := newTestManager(t, backend, AlwaysPending{})

	queue, err := m.CreateQueue(newTestDescriptor(2))
	require.NoError(t, err)

	for range 5 {
		reconcileOnce(t, m, queue.ID)
	}
	assert.Len(t, backend.getSubmitted(), 2)

	backend.setState("1.pbs", JobState{Status: JobStatusRunning, RawStatus: "R"})
	reconcileOnce(t, m, queue.ID)
	assert.Len(t, backend.getSubmitted(), 2, "running allocations count against the backlog")

	backend.setState("1.pbs", exited(0))
	reconcileOnce(t, m, queue.ID)
	assert.Len(t, backend.getSubmitted(), 3)
	assert.Equal(t,
		[]AllocationStatus{AllocationStatusFinished, AllocationStatusQueued, AllocationStatusQueued},
		allocationStatuses(t, m, queue.ID),
	)
}

func TestAllocationLifecycleEvents(t *testing.T) {
	backend := newMockBackend()
	workload := &PendingTasksGauge{}
	workload.Set(1)
	m := newTestManager(t, backend, workload)

	queue, err := m.CreateQueue(newTestDescriptor(2))
	require.NoError(t, err)
	reconcileOnce(t, m, queue.ID)
	workload.Set(0)

	backend.setState("1.pbs", JobState{Status: JobStatusRunning, RawStatus: "R", QueueTime: "q1", StartTime: "s1"})
	reconcileOnce(t, m, queue.ID)

	backend.setState("1.pbs", JobState{Status: JobStatusExited, RawStatus: "F", StartTime: "s1", ModifyTime: "m1", ExitCode: lo.ToPtr(0)})
	backend.setState("2.pbs", exited(137))
	reconcileOnce(t, m, queue.ID)

	events, err := m.Events(queue.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{
		EventKindQueued,
		EventKindQueued,
		EventKindStarted,
		EventKindFinished,
		EventKindFailed,
	}, lo.Map(events, func(e *EventRecord, _ int) string { return e.Kind }))
	assert.Equal(t, "2.pbs (exit code 137)", events[4].Message)

	allocations, err := m.Allocations(queue.ID)
	require.NoError(t, err)
	require.Len(t, allocations, 2)
	assert.Equal(t, "q1", allocations[0].QueueTime)
	assert.Equal(t, "s1", allocations[0].StartTime)
	assert.Equal(t, "m1", allocations[0].ModifyTime)
	assert.Equal(t, 0, *allocations[0].ExitCode)
	assert.Equal(t, AllocationStatusFailed, allocations[1].Status)
	assert.Equal(t, 137, *allocations[1].ExitCode)
}

func TestRepeatedReportsProduceNoEvents(t *testing.T) {
	backend := newMockBackend()
	workload := &PendingTasksGauge{}
	workload.Set(1)
	m := newTestManager(t, backend, workload)

	queue, err := m.CreateQueue(newTestDescriptor(1))
	require.NoError(t, err)
	reconcileOnce(t, m, queue.ID)
	workload.Set(0)

	backend.setState("1.pbs", JobState{Status: JobStatusRunning, RawStatus: "R"})
	for range 3 {
		reconcileOnce(t, m, queue.ID)
	}
	// Backwards report
	backend.setState("1.pbs", JobState{Status: JobStatusQueued, RawStatus: "Q"})
	reconcileOnce(t, m, queue.ID)

	assert.Equal(t, []string{EventKindQueued, EventKindStarted}, eventKinds(t, m, queue.ID))
	assert.Equal(t, []AllocationStatus{AllocationStatusRunning}, allocationStatuses(t, m, queue.ID))
}

func TestQueryFailureKeepsLastKnownState(t *testing.T) {
	backend := newMockBackend()
	workload := &PendingTasksGauge{}
	workload.Set(1)
	m := newTestManager(t, backend, workload)

	queue, err := m.CreateQueue(newTestDescriptor(1))
	require.NoError(t, err)
	reconcileOnce(t, m, queue.ID)
	workload.Set(0)

	backend.mu.Lock()
	backend.queryErr = fmt.Errorf("qstat: timeout")
	backend.states["1.pbs"] = exited(1)
	backend.mu.Unlock()
	reconcileOnce(t, m, queue.ID)

	assert.Equal(t, []AllocationStatus{AllocationStatusQueued}, allocationStatuses(t, m, queue.ID))
	assert.Equal(t, []string{EventKindQueued}, eventKinds(t, m, queue.ID))
}

func TestUnknownJobsKeepLastKnownState(t *testing.T) {
	backend := newMockBackend()
	workload := &PendingTasksGauge{}
	workload.Set(1)
	m := newTestManager(t, backend, workload)

	queue, err := m.CreateQueue(newTestDescriptor(1))
	require.NoError(t, err)
	reconcileOnce(t, m, queue.ID)
	workload.Set(0)

	backend.mu.Lock()
	delete(backend.states, "1.pbs")
	backend.mu.Unlock()
	reconcileOnce(t, m, queue.ID)

	assert.Equal(t, []AllocationStatus{AllocationStatusQueued}, allocationStatuses(t, m, queue.ID))
}

func TestNextAllocation(t *testing.T) {
	queued := &Allocation{JobID: "1.pbs", Status: AllocationStatusQueued, QueueTime: "q0"}
	running := &Allocation{JobID: "1.pbs", Status: AllocationStatusRunning, QueueTime: "q0", StartTime: "s0"}

	tests := []struct {
		name     string
		current  *Allocation
		state    JobState
		expected AllocationStatus
		changed  bool
	}{
		{"queued stays queued", queued, JobState{Status: JobStatusQueued}, AllocationStatusQueued, false},
		{"queued timestamps refresh", queued, JobState{Status: JobStatusQueued, ModifyTime: "m1"}, AllocationStatusQueued, true},
		{"queued starts", queued, JobState{Status: JobStatusRunning}, AllocationStatusRunning, true},
		{"queued finishes directly", queued, exited(0), AllocationStatusFinished, true},
		{"running fails", running, exited(2), AllocationStatusFailed, true},
		{"exit without code fails", running, JobState{Status: JobStatusExited}, AllocationStatusFailed, true},
		{"running does not go back", running, JobState{Status: JobStatusQueued, QueueTime: "q9"}, AllocationStatusRunning, false},
		{"running unchanged", running, JobState{Status: JobStatusRunning}, AllocationStatusRunning, false},
		{"unknown status ignored", queued, JobState{Status: "bogus"}, AllocationStatusQueued, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			next, changed := nextAllocation(test.current, test.state)
			assert.Equal(t, test.expected, next.Status)
			assert.Equal(t, test.changed, changed)
		})
	}

	// The current allocation is never modified
	assert.Equal(t, AllocationStatusQueued, queued.Status)
	assert.Equal(t, "q0", running.QueueTime)
}

// --- Driver ---

func TestFinishedAllocationsStayFinished(t *testing.T) {
	backend := newMockBackend()
	workload := &PendingTasksGauge{}
	workload.Set(1)
	m := newTestManager(t, backend, workload)

	events, unsub := m.Subscribe()
	defer unsub()

	go m.Run()
	defer func() {
		m.Shutdown()
		m.Wait()
	}()

	queue, err := m.CreateQueue(newTestDescriptor(2))
	require.NoError(t, err)

	first := waitForEvent[EventAllocationQueued](t, events)
	second := waitForEvent[EventAllocationQueued](t, events)
	workload.Set(0)

	backend.setState(first.JobID, JobState{Status: JobStatusRunning, RawStatus: "R"})
	backend.setState(second.JobID, JobState{Status: JobStatusRunning, RawStatus: "R"})
	waitForEvent[EventAllocationStarted](t, events)
	waitForEvent[EventAllocationStarted](t, events)

	backend.setState(first.JobID, exited(0))
	backend.setState(second.JobID, exited(0))
	waitForEvent[EventAllocationFinished](t, events)
	waitForEvent[EventAllocationFinished](t, events)

	// A stale report must not resurrect the allocation
	backend.setState(first.JobID, JobState{Status: JobStatusRunning, RawStatus: "R"})
	time.Sleep(10 * m.config.Interval)

	assert.Equal(t, []AllocationStatus{AllocationStatusFinished, AllocationStatusFinished}, allocationStatuses(t, m, queue.ID))
	assert.Len(t, backend.getSubmitted(), 2)
}

func TestSlowQueueDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	slow := newMockBackend()
	slow.submitFunc = func(ctx context.Context, _ SubmitRequest) (string, error) {
		started <- struct{}{}
		select {
		case <-release:
			return "slow.1", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	fast := newMockBackend()

	m, err := New(map[string]Backend{"pbs": slow, "slurm": fast}, AlwaysPending{}, newTestConfig(t))
	require.NoError(t, err)

	events, unsub := m.Subscribe()
	defer unsub()

	go m.Run()
	defer func() {
		m.Shutdown()
		m.Wait()
	}()

	_, err = m.CreateQueue(newTestDescriptor(1))
	require.NoError(t, err)
	<-started

	descriptor := newTestDescriptor(1)
	descriptor.Backend = "slurm"
	fastQueue, err := m.CreateQueue(descriptor)
	require.NoError(t, err)

	queued := waitForEvent[EventAllocationQueued](t, events)
	assert.Equal(t, fastQueue.ID, queued.Queue)

	close(release)
}

func TestRemoveQueueAwaitsInFlightPass(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	backend := newMockBackend()
	backend.submitFunc = func(context.Context, SubmitRequest) (string, error) {
		started <- struct{}{}
		<-release
		return "7.pbs", nil
	}
	m := newTestManager(t, backend, AlwaysPending{})

	go m.Run()
	defer func() {
		m.Shutdown()
		m.Wait()
	}()

	queue, err := m.CreateQueue(newTestDescriptor(1))
	require.NoError(t, err)
	<-started

	removed := make(chan error, 1)
	go func() {
		removed <- m.RemoveQueue(context.Background(), queue.ID, true)
	}()

	select {
	case <-removed:
		t.Fatal("RemoveQueue() returned while a submission was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-removed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RemoveQueue() did not return")
	}

	// The allocation submitted by the in-flight pass is cancelled too
	assert.Equal(t, []string{"7.pbs"}, backend.getDeleted())
}

func TestShutdownDeletesEveryActiveAllocation(t *testing.T) {
	backend := newMockBackend()
	workload := &PendingTasksGauge{}
	workload.Set(1)
	m := newTestManager(t, backend, workload)

	first, err := m.CreateQueue(newTestDescriptor(2))
	require.NoError(t, err)
	second, err := m.CreateQueue(newTestDescriptor(1))
	require.NoError(t, err)
	reconcileOnce(t, m, first.ID)
	reconcileOnce(t, m, second.ID)
	workload.Set(0)

	backend.setState("1.pbs", exited(0))
	backend.setState("2.pbs", JobState{Status: JobStatusRunning, RawStatus: "R"})
	reconcileOnce(t, m, first.ID)

	go m.Run()
	m.Shutdown()
	m.Wait()

	deleted := backend.getDeleted()
	assert.ElementsMatch(t, []string{"2.pbs", "3.pbs"}, deleted)

	queues, err := m.Queues()
	require.NoError(t, err)
	assert.Empty(t, queues)

	_, err = m.CreateQueue(newTestDescriptor(1))
	assert.ErrorIs(t, err, ErrShutdown)
	assert.ErrorIs(t, m.RemoveQueue(context.Background(), first.ID, true), ErrShutdown)
}

func TestShutdownIsIdempotent(t *testing.T) {
	m := newTestManager(t, newMockBackend(), AlwaysPending{})

	go m.Run()
	m.Shutdown()
	m.Shutdown()

	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return after Shutdown()")
	}
}
