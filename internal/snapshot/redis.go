package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"quizbattle/internal/models"
	"quizbattle/pkg/cache"
)

const redisKey = "quizbattle:rooms:snapshot"

// RedisStore keeps the snapshot as one JSON blob under a fixed key.
type RedisStore struct {
	client *cache.RedisClient
}

func NewRedisStore(client *cache.RedisClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Load(ctx context.Context) (*models.Snapshot, error) {
	raw, err := s.client.Get(ctx, redisKey)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: reading from redis: %w", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("snapshot: parsing redis snapshot: %w", err)
	}
	return &snap, nil
}

func (s *RedisStore) Save(ctx context.Context, snap *models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot: encoding: %w", err)
	}
	if err := s.client.Set(ctx, redisKey, string(data), 0); err != nil {
		return fmt.Errorf("snapshot: writing to redis: %w", err)
	}
	return nil
}
