package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sheetsync/internal/config"
	"sheetsync/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisSnapshotStore mirrors the latest engine snapshot under a single key so
// that out-of-process tools can read it.
type RedisSnapshotStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisSnapshotStore(client *redis.Client, key string, ttl time.Duration) *RedisSnapshotStore {
	if key == "" {
		key = models.DefaultSnapshotKey
	}
	return &RedisSnapshotStore{
		client: client,
		key:    key,
		ttl:    ttl,
	}
}

// SaveSnapshot overwrites the mirrored snapshot and refreshes its TTL.
func (r *RedisSnapshotStore) SaveSnapshot(ctx context.Context, state *models.EngineState) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := r.client.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot in redis: %w", err)
	}
	return nil
}

// LoadSnapshot returns the mirrored snapshot, or nil if none is stored.
func (r *RedisSnapshotStore) LoadSnapshot(ctx context.Context) (*models.EngineState, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot from redis: %w", err)
	}

	var state models.EngineState
	if err := json.Unmarshal(val, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &state, nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
