package autoalloc

import (
	"cmp"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-memdb"
)

const (
	queuesTable      = "queues"
	allocationsTable = "allocations"
	eventsTable      = "events"

	idIndex    = "id"    // primary key of every table
	queueIndex = "queue" // allocations and events of a given queue
	jobIndex   = "job"   // allocations by external job id
)

// Store is the in-memory index of queues, their allocations and their event logs.
// It is built on go-memdb: readers work on immutable snapshots and never block the
// single writer, and a queue together with everything it owns is removed in one transaction.
// Objects returned by the Store must not be modified.
type Store struct {
	db *memdb.MemDB

	eventSeq atomic.Uint64
}

func storeSchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			queuesTable: {
				Name: queuesTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.UintFieldIndex{Field: "ID"},
					},
				},
			},
			allocationsTable: {
				Name: allocationsTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:   idIndex,
						Unique: true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.UintFieldIndex{Field: "QueueID"},
								&memdb.UintFieldIndex{Field: "Index"},
							},
						},
					},
					queueIndex: {
						Name:    queueIndex,
						Indexer: &memdb.UintFieldIndex{Field: "QueueID"},
					},
					jobIndex: {
						Name:    jobIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "JobID"},
					},
				},
			},
			eventsTable: {
				Name: eventsTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.UintFieldIndex{Field: "Seq"},
					},
					queueIndex: {
						Name:    queueIndex,
						Indexer: &memdb.UintFieldIndex{Field: "QueueID"},
					},
				},
			},
		},
	}
}

func NewStore() (*Store, error) {
	db, err := memdb.NewMemDB(storeSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	return &Store{db: db}, nil
}

// Update runs fn in a write transaction, committing it if fn returns nil.
// Only one write transaction runs at any given time.
func (s *Store) Update(fn func(tx *Tx) error) error {
	txn := s.db.Txn(true)
	defer txn.Abort() // no-op once committed

	if err := fn(&Tx{txn: txn, store: s}); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) Queue(id QueueID) (*Queue, error) {
	return getQueue(s.db.Txn(false), id)
}

// Queues returns every queue, ordered by id.
func (s *Store) Queues() ([]*Queue, error) {
	iter, err := s.db.Txn(false).Get(queuesTable, idIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to list queues: %w", err)
	}

	var queues []*Queue
	for obj := iter.Next(); obj != nil; obj = iter.Next() {
		queues = append(queues, obj.(*Queue))
	}
	slices.SortFunc(queues, func(a, b *Queue) int { return cmp.Compare(a.ID, b.ID) })
	return queues, nil
}

// Allocations returns the allocations of a queue, ordered by their index.
func (s *Store) Allocations(queueID QueueID) ([]*Allocation, error) {
	return getAllocations(s.db.Txn(false), queueID)
}

func (s *Store) AllocationByJobID(jobID string) (*Allocation, error) {
	obj, err := s.db.Txn(false).First(allocationsTable, jobIndex, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get allocation '%s': %w", jobID, err)
	}
	if obj == nil {
		return nil, nil
	}
	return obj.(*Allocation), nil
}

// Events returns the event log of a queue, in the order the events were appended.
func (s *Store) Events(queueID QueueID) ([]*EventRecord, error) {
	iter, err := s.db.Txn(false).Get(eventsTable, queueIndex, queueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events of queue %d: %w", queueID, err)
	}

	var events []*EventRecord
	for obj := iter.Next(); obj != nil; obj = iter.Next() {
		events = append(events, obj.(*EventRecord))
	}
	slices.SortFunc(events, func(a, b *EventRecord) int { return cmp.Compare(a.Seq, b.Seq) })
	return events, nil
}

// Tx is a write transaction on the Store.
type Tx struct {
	txn   *memdb.Txn
	store *Store
}

func (tx *Tx) Queue(id QueueID) (*Queue, error) {
	return getQueue(tx.txn, id)
}

func (tx *Tx) Allocations(queueID QueueID) ([]*Allocation, error) {
	return getAllocations(tx.txn, queueID)
}

func (tx *Tx) Allocation(queueID QueueID, index uint64) (*Allocation, error) {
	obj, err := tx.txn.First(allocationsTable, idIndex, queueID, index)
	if err != nil {
		return nil, fmt.Errorf("failed to get allocation %d/%d: %w", queueID, index, err)
	}
	if obj == nil {
		return nil, nil
	}
	return obj.(*Allocation), nil
}

func (tx *Tx) InsertQueue(queue *Queue) error {
	if err := tx.txn.Insert(queuesTable, queue); err != nil {
		return fmt.Errorf("failed to insert queue %d: %w", queue.ID, err)
	}
	return nil
}

// InsertAllocation stores a new allocation. External job ids are unique across all queues.
func (tx *Tx) InsertAllocation(allocation *Allocation) error {
	existing, err := tx.txn.First(allocationsTable, jobIndex, allocation.JobID)
	if err != nil {
		return fmt.Errorf("failed to look up job '%s': %w", allocation.JobID, err)
	}
	if existing != nil {
		return fmt.Errorf("job '%s' is already tracked by allocation %s", allocation.JobID, existing.(*Allocation).FQN())
	}
	if err := tx.txn.Insert(allocationsTable, allocation); err != nil {
		return fmt.Errorf("failed to insert allocation %s: %w", allocation.FQN(), err)
	}
	return nil
}

// UpdateAllocation replaces a stored allocation with a modified copy.
func (tx *Tx) UpdateAllocation(allocation *Allocation) error {
	if err := tx.txn.Insert(allocationsTable, allocation); err != nil {
		return fmt.Errorf("failed to update allocation %s: %w", allocation.FQN(), err)
	}
	return nil
}

func (tx *Tx) AppendEvent(queueID QueueID, kind, message string) (*EventRecord, error) {
	event := &EventRecord{
		QueueID: queueID,
		Seq:     tx.store.eventSeq.Add(1),
		Time:    time.Now(),
		Kind:    kind,
		Message: message,
	}
	if err := tx.txn.Insert(eventsTable, event); err != nil {
		return nil, fmt.Errorf("failed to append event to queue %d: %w", queueID, err)
	}
	return event, nil
}

// RemoveQueue deletes the queue with its allocations and its event log.
func (tx *Tx) RemoveQueue(queue *Queue) error {
	if _, err := tx.txn.DeleteAll(allocationsTable, queueIndex, queue.ID); err != nil {
		return fmt.Errorf("failed to delete allocations of queue %d: %w", queue.ID, err)
	}
	if _, err := tx.txn.DeleteAll(eventsTable, queueIndex, queue.ID); err != nil {
		return fmt.Errorf("failed to delete events of queue %d: %w", queue.ID, err)
	}
	if err := tx.txn.Delete(queuesTable, queue); err != nil {
		return fmt.Errorf("failed to delete queue %d: %w", queue.ID, err)
	}
	return nil
}

func getQueue(txn *memdb.Txn, id QueueID) (*Queue, error) {
	obj, err := txn.First(queuesTable, idIndex, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue %d: %w", id, err)
	}
	if obj == nil {
		return nil, nil
	}
	return obj.(*Queue), nil
}

func getAllocations(txn *memdb.Txn, queueID QueueID) ([]*Allocation, error) {
	iter, err := txn.Get(allocationsTable, queueIndex, queueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list allocations of queue %d: %w", queueID, err)
	}

	var allocations []*Allocation
	for obj := iter.Next(); obj != nil; obj = iter.Next() {
		allocations = append(allocations, obj.(*Allocation))
	}
	// memdb orders keys by their varint encoding, which is not numeric order
	slices.SortFunc(allocations, func(a, b *Allocation) int { return cmp.Compare(a.Index, b.Index) })
	return allocations, nil
}
