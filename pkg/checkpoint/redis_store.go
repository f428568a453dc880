package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is where the last indexed block height is kept. Networks other
// than mainnet append "_<network>".
const DefaultKey = "log_indexer:last_block"

// Key returns the checkpoint key for a network stream suffix.
func Key(suffix string) string {
	if suffix == "" {
		return DefaultKey
	}
	return DefaultKey + "_" + suffix
}

// RedisStore persists the height of the last fully published block.
type RedisStore struct {
	client redis.Cmdable
	key    string
}

// NewRedisStore creates a checkpoint store under key.
func NewRedisStore(client redis.Cmdable, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

// LastHeight returns the stored height, and false if none was saved yet.
func (s *RedisStore) LastHeight(ctx context.Context) (uint64, bool, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read checkpoint %s: %w", s.key, err)
	}

	height, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("checkpoint %s holds %q: %w", s.key, val, err)
	}
	return height, true, nil
}

// SaveHeight records height as the last published block.
func (s *RedisStore) SaveHeight(ctx context.Context, height uint64) error {
	if err := s.client.Set(ctx, s.key, strconv.FormatUint(height, 10), 0).Err(); err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", s.key, err)
	}
	return nil
}
