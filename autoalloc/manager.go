package autoalloc

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/gammadia/hqalloc/namegen"
	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
)

// Manager keeps every allocation queue supplied with allocations.
//
// A single driver goroutine (Run) ticks all queues. Each tick reconciles every queue
// concurrently, but never runs two passes of the same queue at once: a queue's pass,
// its removal and its shutdown cancellation all hold the queue's lock.
type Manager struct {
	name     namegen.ID
	backends map[string]Backend
	workload Workload
	config   Config
	log      *slog.Logger
	store    *Store

	mutex       sync.Mutex // guards queues, nextQueueID and shutdown
	queues      map[QueueID]*queueState
	nextQueueID QueueID
	shutdown    bool

	tickRequests chan any
	stop         chan any
	stopOnce     sync.Once
	done         chan any
	passes       sync.WaitGroup

	subscribers      map[chan Event]struct{}
	subscribersMutex sync.RWMutex
}

type queueState struct {
	// Held while the queue is being reconciled or removed
	mutex     sync.Mutex
	removed   bool
	nextIndex uint64
}

func New(backends map[string]Backend, workload Workload, config Config) (*Manager, error) {
	store, err := NewStore()
	if err != nil {
		return nil, err
	}

	name := namegen.Get()
	logger := lo.Ternary(config.Logger != nil, config.Logger, slog.Default())

	return &Manager{
		name:     name,
		backends: backends,
		workload: workload,
		config:   config,
		log:      logger.With("manager", name),
		store:    store,

		queues:      make(map[QueueID]*queueState),
		nextQueueID: 0,

		tickRequests: make(chan any, 1),
		stop:         make(chan any),
		done:         make(chan any),

		subscribers: make(map[chan Event]struct{}),
	}, nil
}

func (m *Manager) Name() namegen.ID {
	return m.name
}

// Backends returns the names of the registered backends.
func (m *Manager) Backends() []string {
	names := lo.Keys(m.backends)
	slices.Sort(names)
	return names
}

// Run drives the reconciliation ticks until Shutdown is called, then cancels the
// allocations of every queue before returning.
func (m *Manager) Run() {
	m.log.Info("Manager is running", "interval", m.config.Interval, "backends", m.Backends())

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.tick()

		case <-m.tickRequests:
			m.tick()

		case <-m.stop:
			m.log.Info("Manager is stopping")
			m.cancelAll()
			m.passes.Wait()
			close(m.done)
			return
		}
	}
}

// Shutdown stops the manager. Allocations of every queue are cancelled before Wait returns.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() {
		m.mutex.Lock()
		m.shutdown = true
		m.mutex.Unlock()

		close(m.stop)
	})
}

// Wait blocks until the manager has stopped and every cancellation has been issued.
// It must not be called before Run.
func (m *Manager) Wait() {
	<-m.done
}

// CreateQueue validates the descriptor and registers a new queue with the next id.
func (m *Manager) CreateQueue(descriptor QueueDescriptor) (*Queue, error) {
	if err := descriptor.Validate(); err != nil {
		return nil, err
	}
	if _, ok := m.backends[descriptor.Backend]; !ok {
		return nil, fmt.Errorf("%w '%s'", ErrUnknownBackend, descriptor.Backend)
	}

	m.mutex.Lock()
	if m.shutdown {
		m.mutex.Unlock()
		return nil, ErrShutdown
	}

	queue := &Queue{
		QueueDescriptor: descriptor,
		ID:              m.nextQueueID + 1,
		CreatedAt:       time.Now(),
	}
	queue.AdditionalArgs = slices.Clone(descriptor.AdditionalArgs)

	if err := m.store.Update(func(tx *Tx) error {
		return tx.InsertQueue(queue)
	}); err != nil {
		m.mutex.Unlock()
		return nil, err
	}
	m.nextQueueID = queue.ID
	m.queues[queue.ID] = &queueState{nextIndex: 1}
	m.mutex.Unlock()

	queuesGauge.Inc()
	m.log.Info("Allocation queue created", "queue", queue.ID, "backend", queue.Backend, "name", queue.Name)
	m.broadcast(EventQueueCreated{Queue: queue.ID})
	m.RequestTick()

	return queue, nil
}

// RemoveQueue removes a queue with its allocations and events. Unless force is set, a queue
// with running allocations is left untouched. Queued and running allocations are cancelled
// on a best effort basis: failures to delete them are logged but do not prevent the removal.
func (m *Manager) RemoveQueue(ctx context.Context, id QueueID, force bool) error {
	m.mutex.Lock()
	if m.shutdown {
		m.mutex.Unlock()
		return ErrShutdown
	}
	state, ok := m.queues[id]
	m.mutex.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrQueueNotFound, id)
	}

	// Wait for an in-flight reconciliation pass
	state.mutex.Lock()
	defer state.mutex.Unlock()

	if state.removed {
		return fmt.Errorf("%w: %d", ErrQueueNotFound, id)
	}

	queue, err := m.store.Queue(id)
	if err != nil {
		return err
	}
	if queue == nil {
		return fmt.Errorf("%w: %d", ErrQueueNotFound, id)
	}

	if !force {
		allocations, err := m.store.Allocations(id)
		if err != nil {
			return err
		}
		if lo.SomeBy(allocations, func(a *Allocation) bool { return a.Status == AllocationStatusRunning }) {
			return ErrQueueHasRunningAllocations
		}
	}

	_, err = m.removeLocked(context.WithoutCancel(ctx), queue, state)
	return err
}

// Queues returns every registered queue, ordered by id.
func (m *Manager) Queues() ([]*Queue, error) {
	return m.store.Queues()
}

// Allocations returns the allocations of a queue, ordered by their index.
func (m *Manager) Allocations(id QueueID) ([]*Allocation, error) {
	if err := m.checkQueue(id); err != nil {
		return nil, err
	}
	return m.store.Allocations(id)
}

// Events returns the event log of a queue, oldest first.
func (m *Manager) Events(id QueueID) ([]*EventRecord, error) {
	if err := m.checkQueue(id); err != nil {
		return nil, err
	}
	return m.store.Events(id)
}

// Subscribe returns a channel receiving every event broadcast by the manager.
// Slow subscribers miss events rather than blocking the manager.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	m.subscribersMutex.Lock()
	defer m.subscribersMutex.Unlock()

	channel := make(chan Event, 1024)
	m.subscribers[channel] = struct{}{}

	return channel, func() {
		m.subscribersMutex.Lock()
		defer m.subscribersMutex.Unlock()

		delete(m.subscribers, channel)
	}
}

func (m *Manager) checkQueue(id QueueID) error {
	queue, err := m.store.Queue(id)
	if err != nil {
		return err
	}
	if queue == nil {
		return fmt.Errorf("%w: %d", ErrQueueNotFound, id)
	}
	return nil
}

func (m *Manager) broadcast(events ...Event) {
	m.subscribersMutex.RLock()
	defer m.subscribersMutex.RUnlock()

	for _, event := range events {
		for channel := range m.subscribers {
			select {
			case channel <- event:
			default:
				m.log.Debug("Subscriber queue full, dropping event", "event", fmt.Sprintf("%T", event))
			}
		}
	}
}

// RequestTick requests a tick to be performed as soon as possible
// If a tick is already scheduled, this function does nothing
// This function is safe to call from multiple goroutines
func (m *Manager) RequestTick() {
	select {
	case m.tickRequests <- nil:
	default:
	}
}

// tick starts a reconciliation pass for every queue that has none in flight.
func (m *Manager) tick() {
	queues, err := m.store.Queues()
	if err != nil {
		m.log.Error("Failed to list queues", "error", err)
		return
	}

	for _, queue := range queues {
		m.mutex.Lock()
		state, ok := m.queues[queue.ID]
		m.mutex.Unlock()
		if !ok {
			continue
		}

		if !state.mutex.TryLock() {
			m.log.Debug("Reconciliation still in progress, skipping tick", "queue", queue.ID)
			continue
		}

		m.passes.Add(1)
		go func() {
			defer m.passes.Done()
			defer state.mutex.Unlock()

			if state.removed {
				return
			}
			m.reconcile(queue, state)
		}()
	}
}

// cancelAll performs the forced removal of every queue.
func (m *Manager) cancelAll() {
	m.mutex.Lock()
	ids := lo.Keys(m.queues)
	m.mutex.Unlock()
	slices.Sort(ids)

	var result *multierror.Error
	for _, id := range ids {
		m.mutex.Lock()
		state := m.queues[id]
		m.mutex.Unlock()
		if state == nil {
			continue
		}

		func() {
			state.mutex.Lock()
			defer state.mutex.Unlock()

			if state.removed {
				return
			}
			queue, err := m.store.Queue(id)
			if err != nil || queue == nil {
				result = multierror.Append(result, fmt.Errorf("queue %d: %w", id, lo.Ternary(err != nil, err, ErrQueueNotFound)))
				return
			}

			deleteErr, err := m.removeLocked(context.Background(), queue, state)
			if deleteErr != nil {
				result = multierror.Append(result, fmt.Errorf("queue %d: %w", id, deleteErr))
			}
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("queue %d: %w", id, err))
			}
		}()
	}

	if err := result.ErrorOrNil(); err != nil {
		m.log.Warn("Some allocations could not be cancelled on shutdown", "error", err)
	} else {
		m.log.Info("All allocations cancelled", "queues", len(ids))
	}
}

// removeLocked cancels the non-terminal allocations of a queue and drops the queue from the
// store. The queue lock must be held. The deletion error is informative only: the queue is
// removed regardless.
func (m *Manager) removeLocked(ctx context.Context, queue *Queue, state *queueState) (deleteErr error, err error) {
	log := m.log.With("queue", queue.ID)

	allocations, err := m.store.Allocations(queue.ID)
	if err != nil {
		return nil, err
	}
	jobIDs := lo.FilterMap(allocations, func(a *Allocation, _ int) (string, bool) {
		return a.JobID, !a.Status.IsTerminal()
	})

	if len(jobIDs) > 0 {
		backend := m.backends[queue.Backend]

		deleteCtx, cancel := context.WithTimeout(ctx, m.config.BackendTimeout)
		deleteErr = backend.Delete(deleteCtx, jobIDs)
		cancel()

		deletionsTotal.WithLabelValues(queue.Backend, resultLabel(deleteErr)).Add(float64(len(jobIDs)))
		if deleteErr != nil {
			log.Warn("Failed to delete allocations", "jobs", jobIDs, "error", deleteErr)
		} else {
			log.Info("Allocations deleted", "jobs", jobIDs)
		}
	}

	if err := m.store.Update(func(tx *Tx) error {
		return tx.RemoveQueue(queue)
	}); err != nil {
		return deleteErr, err
	}

	state.removed = true
	m.mutex.Lock()
	delete(m.queues, queue.ID)
	m.mutex.Unlock()

	queuesGauge.Dec()
	log.Info("Allocation queue removed")
	m.broadcast(EventQueueRemoved{Queue: queue.ID, Deleted: jobIDs})

	return deleteErr, nil
}

func (m *Manager) allocationWorkDir(queue *Queue, index uint64) string {
	return filepath.Join(m.config.WorkDir, m.name.String(), queue.ID.String(), fmt.Sprint(index))
}
