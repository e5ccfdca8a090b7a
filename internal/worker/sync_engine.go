package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"sheetsync/internal/domain"
	"sheetsync/internal/events"
	"sheetsync/internal/metrics"
	"sheetsync/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Engine queues read/write/append operations against a RemoteStore, drains
// them strictly in FIFO order one at a time, optionally on a timer, and
// reconciles pairs of ranges on demand.
type Engine struct {
	store     domain.RemoteStore
	publisher domain.EventPublisher
	logger    zerolog.Logger
	clock     Clock
	newID     func() models.OperationID

	mu        sync.Mutex
	ledger    *ledger
	config    models.SyncConfig
	lastDrain *time.Time

	// active is the drain re-entrancy guard.
	active atomic.Bool

	schedMu  sync.Mutex
	schedule *scheduledTask

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// Option customises an Engine at construction time.
type Option func(*Engine)

// WithClock replaces the wall clock used for timestamps and the scheduler.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithIDGenerator replaces the uuid-based operation id source.
func WithIDGenerator(fn func() models.OperationID) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewEngine builds an engine around store. publisher and logger may be nil.
func NewEngine(store domain.RemoteStore, publisher domain.EventPublisher, logger *zerolog.Logger, opts ...Option) *Engine {
	base := zerolog.Nop()
	if logger != nil {
		base = *logger
	}
	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		store:      store,
		publisher:  publisher,
		logger:     base.With().Str("component", "sync_engine").Logger(),
		clock:      realClock{},
		newID:      func() models.OperationID { return models.OperationID(uuid.NewString()) },
		ledger:     newLedger(),
		config:     models.DefaultSyncConfig(),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EnqueueRead queues a read of rangeA1.
func (e *Engine) EnqueueRead(storeID, rangeA1 string) models.OperationID {
	return e.enqueue(models.KindRead, storeID, rangeA1, nil)
}

// EnqueueWrite queues an overwrite of rangeA1 with values.
func (e *Engine) EnqueueWrite(storeID, rangeA1 string, values models.Matrix) models.OperationID {
	return e.enqueue(models.KindWrite, storeID, rangeA1, values)
}

// EnqueueAppend queues an append of values after the table found at rangeA1.
func (e *Engine) EnqueueAppend(storeID, rangeA1 string, values models.Matrix) models.OperationID {
	return e.enqueue(models.KindAppend, storeID, rangeA1, values)
}

// enqueue never fails; argument validation is the caller's job.
func (e *Engine) enqueue(kind models.OperationKind, storeID, rangeA1 string, values models.Matrix) models.OperationID {
	op := &models.Operation{
		ID:          e.newID(),
		Kind:        kind,
		StoreID:     storeID,
		Range:       rangeA1,
		SubmittedAt: e.clock.Now(),
		Status:      models.StatusPending,
	}
	if kind != models.KindRead {
		op.Payload = values.Clone()
	}

	e.mu.Lock()
	e.ledger.add(op)
	depth := e.ledger.queueLen()
	payload := events.NewOperationEventPayload(op)
	e.mu.Unlock()

	metrics.SetQueueDepth(depth)
	e.logger.Debug().
		Str("operation_id", string(op.ID)).
		Str("kind", string(kind)).
		Str("store_id", storeID).
		Str("range", rangeA1).
		Msg("operation enqueued")
	e.publish(events.EventOperationEnqueued, payload)
	return op.ID
}

// Drain processes queued operations until the queue is empty. It is a no-op
// when another drain is running or nothing is queued. Individual failures are
// recorded on the operation and never returned.
func (e *Engine) Drain(ctx context.Context) {
	if !e.active.CompareAndSwap(false, true) {
		e.logger.Debug().Msg("drain already in progress, skipping")
		return
	}
	defer e.active.Store(false)

	start := e.clock.Now()
	processed, failed := 0, 0
	for {
		if err := ctx.Err(); err != nil {
			e.logger.Warn().Err(err).Int("processed", processed).Msg("drain interrupted, remaining operations stay pending")
			return
		}

		op, ok := e.dequeue()
		if !ok {
			break
		}
		processed++

		result, opErr := e.execute(ctx, op)
		if opErr != nil {
			failed++
		}
		e.finish(op, result, opErr)
	}

	if processed == 0 {
		return
	}

	finished := e.clock.Now()
	e.mu.Lock()
	e.lastDrain = &finished
	e.mu.Unlock()

	dur := finished.Sub(start)
	metrics.ObserveDrain(dur)
	metrics.SetQueueDepth(0)
	e.logger.Info().
		Int("processed", processed).
		Int("failed", failed).
		Dur("duration", dur).
		Msg("drain pass completed")
	e.publish(events.EventDrainCompleted, events.DrainPayload{
		Processed: processed,
		Failed:    failed,
		Duration:  dur,
		Finished:  finished,
	})
}

// IsActive reports whether a drain pass is running.
func (e *Engine) IsActive() bool {
	return e.active.Load()
}

// dequeue pops the queue head and marks it Processing. The returned value is
// a private copy for the remote call.
func (e *Engine) dequeue() (models.Operation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for {
		op := e.ledger.popFront()
		if op == nil {
			return models.Operation{}, false
		}
		if err := transition(op, models.StatusProcessing, nil, e.clock.Now()); err != nil {
			// Only Pending operations are queued; skip anything else.
			e.logger.Error().Err(err).Msg("dropping non-pending queue entry")
			continue
		}
		return op.Clone(), true
	}
}

// execute dispatches by kind. A panic inside the store is recorded as a failure.
func (e *Engine) execute(ctx context.Context, op models.Operation) (result interface{}, opErr *models.OperationError) {
	err := safeCall(func() error {
		var err error
		switch op.Kind {
		case models.KindRead:
			result, err = e.store.ReadRange(ctx, op.StoreID, op.Range)
		case models.KindWrite:
			result, err = e.store.WriteRange(ctx, op.StoreID, op.Range, op.Payload)
		case models.KindAppend:
			result, err = e.store.AppendRange(ctx, op.StoreID, op.Range, op.Payload)
		default:
			err = fmt.Errorf("unknown operation kind: %s", op.Kind)
		}
		return err
	})
	if err == nil {
		return result, nil
	}

	code := models.CodeRemoteOperationError
	if errors.Is(err, models.ErrNotAuthenticated) {
		code = models.CodeNotAuthenticated
	}
	return nil, models.NewOperationError(code, err, "%s %s on %s failed", op.Kind, op.Range, op.StoreID)
}

// finish moves a Processing operation to its terminal status.
func (e *Engine) finish(op models.Operation, result interface{}, opErr *models.OperationError) {
	next := models.StatusCompleted
	if opErr != nil {
		next = models.StatusFailed
	}

	e.mu.Lock()
	entry, ok := e.ledger.get(op.ID)
	if !ok {
		e.mu.Unlock()
		e.logger.Error().Str("operation_id", string(op.ID)).Msg("processed operation missing from ledger")
		return
	}
	if err := transition(entry, next, opErr, e.clock.Now()); err != nil {
		e.mu.Unlock()
		e.logger.Error().Err(err).Msg("status update rejected")
		return
	}
	payload := events.NewOperationEventPayload(entry)
	e.mu.Unlock()

	metrics.ObserveOperation(string(op.Kind), string(next))
	if opErr != nil {
		e.logger.Warn().
			Str("operation_id", string(op.ID)).
			Str("code", string(opErr.Code)).
			Err(opErr.Cause).
			Msg("operation failed")
		e.publish(events.EventOperationFailed, payload)
		return
	}

	ev := e.logger.Debug().Str("operation_id", string(op.ID)).Str("kind", string(op.Kind))
	if summary, ok := result.(*models.WriteSummary); ok && summary != nil {
		ev = ev.Str("updated_range", summary.UpdatedRange).Int64("updated_cells", summary.UpdatedCells)
	}
	ev.Msg("operation completed")
	e.publish(events.EventOperationCompleted, payload)
}

// Cancel removes a still-queued operation and marks it Failed with
// OperationCancelled. It returns false for anything not in the queue.
func (e *Engine) Cancel(id models.OperationID) bool {
	e.mu.Lock()
	op, ok := e.ledger.removeQueued(id)
	if !ok {
		e.mu.Unlock()
		return false
	}
	cancelErr := models.NewOperationError(models.CodeOperationCancelled, nil, "operation %s cancelled before processing", id)
	if err := transition(op, models.StatusFailed, cancelErr, e.clock.Now()); err != nil {
		e.mu.Unlock()
		e.logger.Error().Err(err).Msg("cancel rejected")
		return false
	}
	payload := events.NewOperationEventPayload(op)
	depth := e.ledger.queueLen()
	kind := op.Kind
	e.mu.Unlock()

	metrics.SetQueueDepth(depth)
	metrics.ObserveOperation(string(kind), string(models.StatusFailed))
	e.logger.Info().Str("operation_id", string(id)).Msg("operation cancelled")
	e.publish(events.EventOperationCancelled, payload)
	return true
}

// Resubmit queues a fresh copy of a Failed operation under a new id. The
// failed entry is left untouched.
func (e *Engine) Resubmit(id models.OperationID) (models.OperationID, bool) {
	e.mu.Lock()
	op, ok := e.ledger.get(id)
	if !ok || op.Status != models.StatusFailed {
		e.mu.Unlock()
		return "", false
	}
	kind, storeID, rangeA1, payload := op.Kind, op.StoreID, op.Range, op.Payload.Clone()
	e.mu.Unlock()

	newID := e.enqueue(kind, storeID, rangeA1, payload)
	e.logger.Info().Str("operation_id", string(id)).Str("resubmitted_as", string(newID)).Msg("operation resubmitted")
	return newID, true
}

// ClearCompleted drops Completed entries from the ledger and returns how
// many were removed. Pending, Processing and Failed entries stay.
func (e *Engine) ClearCompleted() int {
	e.mu.Lock()
	removed := e.ledger.clearCompleted()
	e.mu.Unlock()

	if len(removed) == 0 {
		return 0
	}
	e.logger.Info().Int("removed", len(removed)).Msg("completed operations cleared")
	e.publish(events.EventOperationsCleared, events.OperationsClearedPayload{Operations: removed})
	return len(removed)
}

// Snapshot returns a deep copy of the engine state. It never mutates the engine.
func (e *Engine) Snapshot() models.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := models.EngineState{
		IsActive:    e.active.Load(),
		Config:      e.config,
		QueueLength: e.ledger.queueLen(),
		Ledger:      e.ledger.all(),
		TakenAt:     e.clock.Now(),
	}
	if e.lastDrain != nil {
		t := *e.lastDrain
		state.LastSuccessfulDrainAt = &t
	}
	return state
}

// ByStatus lists ledger entries with the given status in insertion order.
func (e *Engine) ByStatus(status models.OperationStatus) []models.Operation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.byStatus(status)
}

// Get returns a copy of one ledger entry.
func (e *Engine) Get(id models.OperationID) (models.Operation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	op, ok := e.ledger.get(id)
	if !ok {
		return models.Operation{}, false
	}
	return op.Clone(), true
}

// Close stops the scheduler timer. Queued operations are left as they are.
func (e *Engine) Close() {
	e.schedMu.Lock()
	e.disarm()
	e.schedMu.Unlock()
	e.baseCancel()
}

func (e *Engine) publish(eventType string, payload interface{}) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishJSON(eventType, payload); err != nil {
		e.logger.Warn().Err(err).Str("event", eventType).Msg("publish event")
	}
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("remote store panic: %v", r)
		}
	}()
	return fn()
}
