package repository

import (
	"context"
	"testing"

	"sheetsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySnapshotStore(t *testing.T) {
	repo := NewMemorySnapshotStore()
	ctx := context.Background()

	got, err := repo.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	state := sampleState()
	require.NoError(t, repo.SaveSnapshot(ctx, state))

	// Mutating the saved value must not leak into the store.
	state.Ledger[0].Payload[0][0] = "changed"
	state.QueueLength = 99

	got, err = repo.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Ledger[0].Payload[0][0])
	assert.Equal(t, 1, got.QueueLength)

	got.Ledger[1].Status = models.StatusCompleted
	again, _ := repo.LoadSnapshot(ctx)
	assert.Equal(t, models.StatusFailed, again.Ledger[1].Status)
}
