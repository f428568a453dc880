package checkpoint_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3ekko/ekko-log-indexer/pkg/checkpoint"
	"github.com/web3ekko/ekko-log-indexer/pkg/indexer"
)

var _ indexer.Checkpoint = (*checkpoint.RedisStore)(nil)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestKey(t *testing.T) {
	assert.Equal(t, "log_indexer:last_block", checkpoint.Key(""))
	assert.Equal(t, "log_indexer:last_block_testnet", checkpoint.Key("testnet"))
}

func TestRedisStore_RoundTrip(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := checkpoint.NewRedisStore(client, checkpoint.Key("testnet"))
	ctx := context.Background()

	_, ok, err := store.LastHeight(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "no checkpoint before the first save")

	require.NoError(t, store.SaveHeight(ctx, 124105250))
	require.NoError(t, store.SaveHeight(ctx, 124105251))

	height, ok, err := store.LastHeight(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(124105251), height)

	stored, err := mr.Get("log_indexer:last_block_testnet")
	require.NoError(t, err)
	assert.Equal(t, "124105251", stored)
}

func TestRedisStore_CorruptValue(t *testing.T) {
	mr, client := setupTestRedis(t)
	require.NoError(t, mr.Set(checkpoint.DefaultKey, "not-a-height"))

	_, _, err := checkpoint.NewRedisStore(client, checkpoint.DefaultKey).LastHeight(context.Background())
	assert.Error(t, err)
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := checkpoint.NewRedisStore(client, checkpoint.DefaultKey)
	mr.Close()

	_, _, err := store.LastHeight(context.Background())
	assert.Error(t, err)
	assert.Error(t, store.SaveHeight(context.Background(), 1))
}
