package runstate

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"RecipeCollector/internal/domain"
	"RecipeCollector/internal/ports"
)

const defaultKey = "recipe-collector:run-state"

// RedisStore keeps the run state under a single key.
type RedisStore struct {
	client *redis.Client
	key    string
}

var _ ports.RunStateStore = (*RedisStore)(nil)

// NewRedisStore uses key, or a default key when empty.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = defaultKey
	}
	return &RedisStore{client: client, key: key}
}

// Load returns nil without error when the key is absent.
func (s *RedisStore) Load(ctx context.Context) (*domain.RunState, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run state: %w", err)
	}
	return decode(raw)
}

// Save overwrites the key in a single SET.
func (s *RedisStore) Save(ctx context.Context, state domain.RunState) error {
	raw, err := encode(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("set run state: %w", err)
	}
	return nil
}
