package repository

import (
	"context"
	"sync/atomic"
	"time"

	"sheetsync/internal/domain"
	"sheetsync/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverSnapshotStore writes to primary until it fails, then to fallback.
// Primary is retried once per recoveryInterval.
type FailoverSnapshotStore struct {
	primary   domain.SnapshotStore
	fallback  domain.SnapshotStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverSnapshotStore(primary, fallback domain.SnapshotStore, logger *zerolog.Logger) *FailoverSnapshotStore {
	return &FailoverSnapshotStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *FailoverSnapshotStore) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary snapshot store failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverSnapshotStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return r.now().Sub(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverSnapshotStore) SaveSnapshot(ctx context.Context, state *models.EngineState) error {
	if r.usePrimary() {
		err := r.primary.SaveSnapshot(ctx, state)
		if err == nil {
			if r.isDown.Swap(false) {
				r.logger.Info().Msg("Primary snapshot store recovered")
			}
			// Keep fallback current.
			if ferr := r.fallback.SaveSnapshot(ctx, state); ferr != nil {
				r.logger.Warn().Err(ferr).Msg("Fallback snapshot store save failed")
			}
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SaveSnapshot(ctx, state)
}

func (r *FailoverSnapshotStore) LoadSnapshot(ctx context.Context) (*models.EngineState, error) {
	if r.usePrimary() {
		state, err := r.primary.LoadSnapshot(ctx)
		if err == nil {
			r.isDown.Store(false)
			return state, nil
		}
		r.markDown(err)
	}
	return r.fallback.LoadSnapshot(ctx)
}

// Degraded reports whether calls are currently served by the fallback.
func (r *FailoverSnapshotStore) Degraded() bool {
	return r.isDown.Load()
}
