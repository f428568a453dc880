package eventstream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// EventField is the stream entry field that holds the JSON encoded event.
const EventField = "event"

// RedisClient is the subset of redis.Cmdable the stream writer uses.
// *redis.Client and redismock clients satisfy it.
type RedisClient interface {
	TxPipeline() redis.Pipeliner
	XTrimMaxLen(ctx context.Context, key string, maxLen int64) *redis.IntCmd
	XRevRangeN(ctx context.Context, stream, start, stop string, count int64) *redis.XMessageSliceCmd
}

// RedisWriter writes event entries to Redis streams. Entry IDs are
// "<blockHeight>-*" so the millisecond part of every ID is the block height.
type RedisWriter struct {
	client RedisClient
}

// NewRedisWriter creates a writer on top of client.
func NewRedisWriter(client RedisClient) *RedisWriter {
	return &RedisWriter{client: client}
}

// Append adds entries to stream in a single MULTI/EXEC, so either the whole
// block lands or none of it does.
func (w *RedisWriter) Append(ctx context.Context, stream string, blockHeight uint64, entries [][]byte) error {
	if len(entries) == 0 {
		return nil
	}

	id := fmt.Sprintf("%d-*", blockHeight)
	pipe := w.client.TxPipeline()
	for _, entry := range entries {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			ID:     id,
			Values: map[string]interface{}{EventField: string(entry)},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append %d entries to stream %s: %w", len(entries), stream, err)
	}
	return nil
}

// Trim caps stream at maxLen entries, evicting the oldest.
func (w *RedisWriter) Trim(ctx context.Context, stream string, maxLen int64) error {
	if err := w.client.XTrimMaxLen(ctx, stream, maxLen).Err(); err != nil {
		return fmt.Errorf("failed to trim stream %s to %d: %w", stream, maxLen, err)
	}
	return nil
}

// LastSequence returns the block height of the newest entry in stream, and
// false if the stream is empty or missing.
func (w *RedisWriter) LastSequence(ctx context.Context, stream string) (uint64, bool, error) {
	msgs, err := w.client.XRevRangeN(ctx, stream, "+", "-", 1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read last entry of stream %s: %w", stream, err)
	}
	if len(msgs) == 0 {
		return 0, false, nil
	}

	height, err := sequenceOf(msgs[0].ID)
	if err != nil {
		return 0, false, fmt.Errorf("stream %s: %w", stream, err)
	}
	return height, true, nil
}

// sequenceOf extracts the block height from an entry ID "<height>-<seq>".
func sequenceOf(id string) (uint64, error) {
	ms, _, ok := strings.Cut(id, "-")
	if !ok {
		return 0, fmt.Errorf("malformed stream entry id %q", id)
	}
	height, err := strconv.ParseUint(ms, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed stream entry id %q: %w", id, err)
	}
	return height, nil
}
