package repository

import (
	"context"
	"sync"

	"sheetsync/internal/models"
)

// MemorySnapshotStore keeps the latest snapshot in process. It backs the
// failover store when Redis is unavailable.
type MemorySnapshotStore struct {
	mu    sync.RWMutex
	state *models.EngineState
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{}
}

func (r *MemorySnapshotStore) SaveSnapshot(ctx context.Context, state *models.EngineState) error {
	cp := state.Clone()
	r.mu.Lock()
	r.state = &cp
	r.mu.Unlock()
	return nil
}

func (r *MemorySnapshotStore) LoadSnapshot(ctx context.Context) (*models.EngineState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state == nil {
		return nil, nil
	}
	cp := r.state.Clone()
	return &cp, nil
}
