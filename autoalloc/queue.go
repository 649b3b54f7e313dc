package autoalloc

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

type QueueID uint64

func (id QueueID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// QueueDescriptor is what a user declares when adding an allocation queue.
type QueueDescriptor struct {
	Backend         string
	Name            string
	Backlog         int
	WorkersPerAlloc int
	TimeLimit       time.Duration
	AdditionalArgs  []string
}

// Queue is an allocation queue registered in the manager. It is never modified once stored.
type Queue struct {
	QueueDescriptor

	ID        QueueID
	CreatedAt time.Time
}

// JobName is the deterministic name given to every external job submitted for this queue.
func (q *Queue) JobName() string {
	return fmt.Sprintf("hq-alloc-%d", q.ID)
}

var queueNameRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]*$`)

func (d QueueDescriptor) Validate() error {
	if d.Backend == "" {
		return fmt.Errorf("backend is required")
	}
	if !queueNameRegex.MatchString(d.Name) {
		return fmt.Errorf("name must only contain letters, digits, '_', '.' and '-'")
	}
	if d.Backlog < 1 {
		return fmt.Errorf("backlog must be greater than 0")
	}
	if d.WorkersPerAlloc < 1 {
		return fmt.Errorf("workers-per-alloc must be greater than 0")
	}
	if d.TimeLimit <= 0 {
		return fmt.Errorf("time-limit must be greater than 0")
	}
	return nil
}
