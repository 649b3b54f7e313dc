package autoalloc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gammadia/hqalloc/autoalloc/internal"
	"github.com/samber/lo"
)

// reconcile performs one pass over a queue: refresh the status of its tracked
// allocations, then submit new ones up to its backlog. The queue lock must be held.
func (m *Manager) reconcile(queue *Queue, state *queueState) {
	log := m.log.With("queue", queue.ID)
	backend := m.backends[queue.Backend]

	m.refreshAllocations(log, queue, backend)
	m.submitAllocations(log, queue, state, backend)
}

func (m *Manager) refreshAllocations(log *slog.Logger, queue *Queue, backend Backend) {
	allocations, err := m.store.Allocations(queue.ID)
	if err != nil {
		log.Error("Failed to list allocations", "error", err)
		return
	}

	jobIDs := lo.FilterMap(allocations, func(a *Allocation, _ int) (string, bool) {
		return a.JobID, !a.Status.IsTerminal()
	})
	if len(jobIDs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.config.BackendTimeout)
	states, err := backend.Query(ctx, jobIDs)
	cancel()
	if err != nil {
		backendQueryFailuresTotal.WithLabelValues(queue.Backend).Inc()
		log.Warn("Failed to query allocations, keeping their last known state", "jobs", jobIDs, "error", err)
		return
	}

	var events []Event
	err = m.store.Update(func(tx *Tx) error {
		events = nil
		now := time.Now()

		for _, tracked := range allocations {
			if tracked.Status.IsTerminal() {
				continue
			}
			jobState, ok := states[tracked.JobID]
			if !ok {
				log.Debug("No information about allocation", "allocation", tracked.Index, "job", tracked.JobID)
				continue
			}

			current, err := tx.Allocation(queue.ID, tracked.Index)
			if err != nil {
				return err
			}
			// Terminal allocations never change again
			if current == nil || current.Status.IsTerminal() {
				continue
			}

			next, changed := nextAllocation(current, jobState)
			if !changed {
				continue
			}
			next.UpdatedAt = now
			if err := tx.UpdateAllocation(next); err != nil {
				return err
			}

			if next.Status == current.Status {
				continue
			}

			kind, message, event := transitionEvent(next)
			if _, err := tx.AppendEvent(queue.ID, kind, message); err != nil {
				return err
			}
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		log.Error("Failed to record allocation states", "error", err)
		return
	}

	for _, event := range events {
		switch event := event.(type) {
		case EventAllocationStarted:
			allocationTransitionsTotal.WithLabelValues(string(AllocationStatusRunning)).Inc()
			log.Info("Allocation started", "allocation", event.Index, "job", event.JobID)
		case EventAllocationFinished:
			allocationTransitionsTotal.WithLabelValues(string(AllocationStatusFinished)).Inc()
			log.Info("Allocation finished", "allocation", event.Index, "job", event.JobID)
		case EventAllocationFailed:
			allocationTransitionsTotal.WithLabelValues(string(AllocationStatusFailed)).Inc()
			log.Warn("Allocation failed", "allocation", event.Index, "job", event.JobID, "exitCode", lo.FromPtr(event.ExitCode))
		}
	}
	m.broadcast(events...)
}

// nextAllocation applies a backend report to a non-terminal allocation. It returns a
// modified copy and whether anything changed.
func nextAllocation(current *Allocation, state JobState) (*Allocation, bool) {
	next := current.Clone()

	switch state.Status {
	case JobStatusQueued:
		// Backwards reports (Running -> Queued) are ignored
		if current.Status != AllocationStatusQueued {
			return current, false
		}
	case JobStatusRunning:
		next.Status = AllocationStatusRunning
	case JobStatusExited:
		next.Status = lo.Ternary(lo.FromPtr(state.ExitCode) == 0 && state.ExitCode != nil, AllocationStatusFinished, AllocationStatusFailed)
		if state.ExitCode != nil {
			next.ExitCode = lo.ToPtr(*state.ExitCode)
		}
	default:
		return current, false
	}

	refresh(&next.QueueTime, state.QueueTime)
	refresh(&next.StartTime, state.StartTime)
	refresh(&next.ModifyTime, state.ModifyTime)

	changed := next.Status != current.Status ||
		next.QueueTime != current.QueueTime ||
		next.StartTime != current.StartTime ||
		next.ModifyTime != current.ModifyTime ||
		(next.ExitCode == nil) != (current.ExitCode == nil) ||
		lo.FromPtr(next.ExitCode) != lo.FromPtr(current.ExitCode)

	return next, changed
}

// refresh overwrites a timestamp only when the backend reported one.
func refresh(field *string, reported string) {
	if reported != "" {
		*field = reported
	}
}

func transitionEvent(allocation *Allocation) (kind string, message string, event Event) {
	switch allocation.Status {
	case AllocationStatusRunning:
		return EventKindStarted, allocation.JobID, EventAllocationStarted{
			Queue: allocation.QueueID,
			Index: allocation.Index,
			JobID: allocation.JobID,
		}
	case AllocationStatusFinished:
		return EventKindFinished, allocation.JobID, EventAllocationFinished{
			Queue: allocation.QueueID,
			Index: allocation.Index,
			JobID: allocation.JobID,
		}
	default:
		exitCode := lo.TernaryF(allocation.ExitCode != nil,
			func() string { return fmt.Sprint(*allocation.ExitCode) },
			func() string { return "unknown" },
		)
		return EventKindFailed, fmt.Sprintf("%s (exit code %s)", allocation.JobID, exitCode), EventAllocationFailed{
			Queue:    allocation.QueueID,
			Index:    allocation.Index,
			JobID:    allocation.JobID,
			ExitCode: allocation.ExitCode,
		}
	}
}

func (m *Manager) submitAllocations(log *slog.Logger, queue *Queue, state *queueState, backend Backend) {
	allocations, err := m.store.Allocations(queue.ID)
	if err != nil {
		log.Error("Failed to list allocations", "error", err)
		return
	}
	active := lo.CountBy(allocations, func(a *Allocation) bool { return !a.Status.IsTerminal() })

	toSubmit := internal.AllocationsToSubmit(queue.Backlog, active, m.workload.PendingTasks())
	for range toSubmit {
		if !m.submitAllocation(log, queue, state, backend) {
			// The remaining slots are retried on the next tick
			break
		}
	}
}

func (m *Manager) submitAllocation(log *slog.Logger, queue *Queue, state *queueState, backend Backend) bool {
	index := state.nextIndex
	state.nextIndex++

	workDir := m.allocationWorkDir(queue, index)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		log.Error("Failed to create allocation directory", "allocation", index, "error", err)
		m.recordSubmissionFailure(log, queue, fmt.Errorf("failed to create allocation directory: %w", err))
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.config.BackendTimeout)
	jobID, err := backend.Submit(ctx, SubmitRequest{
		Queue:   queue,
		Index:   index,
		WorkDir: workDir,
	})
	cancel()
	submissionsTotal.WithLabelValues(queue.Backend, resultLabel(err)).Inc()

	if err != nil {
		var submissionErr *SubmissionError
		if errors.As(err, &submissionErr) {
			log.Warn("Allocation submission failed", "allocation", index, "exitCode", submissionErr.ExitCode, "stderr", submissionErr.Stderr)
		} else {
			log.Warn("Allocation submission failed", "allocation", index, "error", err)
		}
		m.recordSubmissionFailure(log, queue, err)
		return false
	}

	now := time.Now()
	allocation := &Allocation{
		QueueID:     queue.ID,
		Index:       index,
		JobID:       jobID,
		Status:      AllocationStatusQueued,
		Workers:     queue.WorkersPerAlloc,
		WorkDir:     workDir,
		SubmittedAt: now,
		UpdatedAt:   now,
	}

	if err := m.store.Update(func(tx *Tx) error {
		if err := tx.InsertAllocation(allocation); err != nil {
			return err
		}
		_, err := tx.AppendEvent(queue.ID, EventKindQueued, jobID)
		return err
	}); err != nil {
		log.Error("Failed to record allocation, deleting it", "allocation", index, "job", jobID, "error", err)

		ctx, cancel := context.WithTimeout(context.Background(), m.config.BackendTimeout)
		defer cancel()
		if err := backend.Delete(ctx, []string{jobID}); err != nil {
			log.Warn("Failed to delete unrecorded allocation", "job", jobID, "error", err)
		}
		return false
	}

	allocationTransitionsTotal.WithLabelValues(string(AllocationStatusQueued)).Inc()
	log.Info("Allocation queued", "allocation", index, "job", jobID)
	m.broadcast(EventAllocationQueued{Queue: queue.ID, Index: index, JobID: jobID})
	return true
}

func (m *Manager) recordSubmissionFailure(log *slog.Logger, queue *Queue, err error) {
	if updateErr := m.store.Update(func(tx *Tx) error {
		_, err := tx.AppendEvent(queue.ID, EventKindSubmissionFailed, err.Error())
		return err
	}); updateErr != nil {
		log.Error("Failed to record submission failure", "error", updateErr)
		return
	}
	m.broadcast(EventAllocationSubmissionFailed{Queue: queue.ID, Reason: err.Error()})
}
