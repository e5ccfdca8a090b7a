package worker

import (
	"fmt"
	"time"

	"sheetsync/internal/models"
)

// ledger holds every operation ever enqueued (entries, insertion order) and
// the FIFO of those still Pending (queue). It is not safe for concurrent use;
// the engine guards it with its mutex.
type ledger struct {
	entries []*models.Operation
	index   map[models.OperationID]*models.Operation
	queue   []*models.Operation
}

func newLedger() *ledger {
	return &ledger{
		entries: make([]*models.Operation, 0, 64),
		index:   make(map[models.OperationID]*models.Operation),
		queue:   make([]*models.Operation, 0, 64),
	}
}

// add appends a Pending operation to both the ledger and the queue.
func (l *ledger) add(op *models.Operation) {
	l.entries = append(l.entries, op)
	l.index[op.ID] = op
	l.queue = append(l.queue, op)
}

func (l *ledger) get(id models.OperationID) (*models.Operation, bool) {
	op, ok := l.index[id]
	return op, ok
}

// popFront removes the head of the queue. The caller moves it to Processing.
func (l *ledger) popFront() *models.Operation {
	if len(l.queue) == 0 {
		return nil
	}
	op := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return op
}

// removeQueued takes id out of the queue; false if it is not queued.
func (l *ledger) removeQueued(id models.OperationID) (*models.Operation, bool) {
	for i, op := range l.queue {
		if op.ID != id {
			continue
		}
		copy(l.queue[i:], l.queue[i+1:])
		l.queue[len(l.queue)-1] = nil
		l.queue = l.queue[:len(l.queue)-1]
		return op, true
	}
	return nil, false
}

func (l *ledger) queueLen() int {
	return len(l.queue)
}

func (l *ledger) byStatus(status models.OperationStatus) []models.Operation {
	out := make([]models.Operation, 0)
	for _, op := range l.entries {
		if op.Status == status {
			out = append(out, op.Clone())
		}
	}
	return out
}

func (l *ledger) all() []models.Operation {
	out := make([]models.Operation, len(l.entries))
	for i, op := range l.entries {
		out[i] = op.Clone()
	}
	return out
}

// clearCompleted drops Completed entries and returns copies of them.
func (l *ledger) clearCompleted() []models.Operation {
	var removed []models.Operation
	kept := l.entries[:0]
	for _, op := range l.entries {
		if op.Status == models.StatusCompleted {
			removed = append(removed, op.Clone())
			delete(l.index, op.ID)
			continue
		}
		kept = append(kept, op)
	}
	for i := len(kept); i < len(l.entries); i++ {
		l.entries[i] = nil
	}
	l.entries = kept
	return removed
}

// transition applies a forward status step and stamps timestamps.
func transition(op *models.Operation, next models.OperationStatus, opErr *models.OperationError, at time.Time) error {
	if !op.Status.CanTransition(next) {
		return fmt.Errorf("operation %s: illegal transition %s -> %s", op.ID, op.Status, next)
	}
	op.Status = next
	switch next {
	case models.StatusProcessing:
		op.StartedAt = &at
	case models.StatusCompleted, models.StatusFailed:
		op.FinishedAt = &at
		op.Error = opErr
	}
	return nil
}
