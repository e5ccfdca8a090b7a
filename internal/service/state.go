package service

import (
	"context"
	"time"

	"sheetsync/internal/domain"
	"sheetsync/internal/events"
	"sheetsync/internal/models"

	"github.com/rs/zerolog"
)

const mirrorSaveTimeout = 5 * time.Second

// StateSource is anything that can produce an engine snapshot.
type StateSource interface {
	Snapshot() models.EngineState
}

// StateMirror copies engine snapshots into a SnapshotStore. Events only mark
// the mirror dirty; saves happen on the Run goroutine, so a burst of events
// collapses into a single write.
type StateMirror struct {
	source StateSource
	store  domain.SnapshotStore
	logger *zerolog.Logger
	dirty  chan struct{}
}

func NewStateMirror(source StateSource, store domain.SnapshotStore, logger *zerolog.Logger) *StateMirror {
	return &StateMirror{
		source: source,
		store:  store,
		logger: logger,
		dirty:  make(chan struct{}, 1),
	}
}

// mirroredEvents change something visible in a snapshot.
var mirroredEvents = []string{
	events.EventOperationEnqueued,
	events.EventOperationCompleted,
	events.EventOperationFailed,
	events.EventOperationCancelled,
	events.EventOperationsCleared,
	events.EventDrainCompleted,
}

// Subscribe marks the mirror dirty on every state-changing event.
func (m *StateMirror) Subscribe(bus *events.EventBus) {
	for _, typ := range mirroredEvents {
		bus.Subscribe(typ, func(*events.Event) error {
			m.MarkDirty()
			return nil
		})
	}
}

// MarkDirty schedules a save. It never blocks.
func (m *StateMirror) MarkDirty() {
	select {
	case m.dirty <- struct{}{}:
	default:
	}
}

// Run saves a snapshot whenever the mirror is dirty, until ctx is done. A
// final save is attempted on the way out.
func (m *StateMirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			saveCtx, cancel := context.WithTimeout(context.Background(), mirrorSaveTimeout)
			if err := m.Sync(saveCtx); err != nil {
				m.logger.Warn().Err(err).Msg("final snapshot save failed")
			}
			cancel()
			return
		case <-m.dirty:
			saveCtx, cancel := context.WithTimeout(ctx, mirrorSaveTimeout)
			if err := m.Sync(saveCtx); err != nil {
				m.logger.Warn().Err(err).Msg("snapshot save failed")
			}
			cancel()
		}
	}
}

// Sync saves the current snapshot immediately.
func (m *StateMirror) Sync(ctx context.Context) error {
	state := m.source.Snapshot()
	return m.store.SaveSnapshot(ctx, &state)
}
