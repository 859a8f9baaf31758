package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the model under one key so several consoles share it.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a store using key and key+":version".
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = "classattend:model"
	}
	return &RedisStore{client: client, key: key}
}

// Load fetches the current model.
func (s *RedisStore) Load(ctx context.Context) (*Model, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.key, err)
	}
	return &m, nil
}

// Version reads the version counter. It runs ahead of the stored model while a
// save is in flight; Holder reloads again on its next call.
func (s *RedisStore) Version(ctx context.Context) (int64, error) {
	v, err := s.client.Get(ctx, s.key+":version").Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get %s:version: %w", s.key, err)
	}
	return v, nil
}

// Save assigns the next version and replaces the stored model.
func (s *RedisStore) Save(ctx context.Context, blob []byte, samples int) (*Model, error) {
	version, err := s.client.Incr(ctx, s.key+":version").Result()
	if err != nil {
		return nil, fmt.Errorf("redis incr: %w", err)
	}
	m := &Model{Version: version, Blob: blob, TrainedAt: time.Now().UTC(), Samples: samples}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return nil, fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return m, nil
}
