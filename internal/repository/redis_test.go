package repository

import (
	"context"
	"testing"
	"time"

	"sheetsync/internal/config"
	"sheetsync/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisSnapshotStore(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer Close(client)
	require.NoError(t, Ping(context.Background(), client))

	repo := NewRedisSnapshotStore(client, "", 10*time.Minute)
	ctx := context.Background()

	t.Run("LoadEmpty", func(t *testing.T) {
		got, err := repo.LoadSnapshot(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("SaveAndLoad", func(t *testing.T) {
		state := sampleState()
		require.NoError(t, repo.SaveSnapshot(ctx, state))
		assert.True(t, s.Exists(models.DefaultSnapshotKey))
		assert.Equal(t, 10*time.Minute, s.TTL(models.DefaultSnapshotKey))

		got, err := repo.LoadSnapshot(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, state.QueueLength, got.QueueLength)
		assert.True(t, state.LastSuccessfulDrainAt.Equal(*got.LastSuccessfulDrainAt))
		require.Len(t, got.Ledger, 2)
		assert.Equal(t, models.OperationID("op-1"), got.Ledger[0].ID)
		assert.Equal(t, models.Matrix{{"a", "b"}}, got.Ledger[0].Payload)
		assert.Equal(t, models.CodeNotAuthenticated, got.Ledger[1].Error.Code)
		assert.Equal(t, 1, got.CountByStatus()[models.StatusFailed])
	})

	t.Run("Expires", func(t *testing.T) {
		require.NoError(t, repo.SaveSnapshot(ctx, sampleState()))
		s.FastForward(11 * time.Minute)
		got, err := repo.LoadSnapshot(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("CorruptValue", func(t *testing.T) {
		require.NoError(t, s.Set(models.DefaultSnapshotKey, "{not json"))
		_, err := repo.LoadSnapshot(ctx)
		assert.Error(t, err)
	})

	t.Run("ServerDown", func(t *testing.T) {
		down := NewRedisSnapshotStore(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "k", 0)
		assert.Error(t, down.SaveSnapshot(ctx, sampleState()))
		_, err := down.LoadSnapshot(ctx)
		assert.Error(t, err)
	})

	t.Run("NilClient", func(t *testing.T) {
		repo := NewRedisSnapshotStore(nil, "k", 0)
		assert.Error(t, repo.SaveSnapshot(ctx, sampleState()))
		_, err := repo.LoadSnapshot(ctx)
		assert.Error(t, err)
	})
}
