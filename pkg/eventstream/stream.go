package eventstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/web3ekko/ekko-log-indexer/internal/metrics"
)

// Writer is the stream storage the publisher appends to.
type Writer interface {
	// Append adds entries to stream, tagged with blockHeight as their
	// sequencing key. Entries of one call land atomically.
	Append(ctx context.Context, stream string, blockHeight uint64, entries [][]byte) error
	// Trim evicts the oldest entries until stream has at most maxLen.
	Trim(ctx context.Context, stream string, maxLen int64) error
	// LastSequence returns the sequencing key of the newest entry.
	LastSequence(ctx context.Context, stream string) (uint64, bool, error)
}

// EventStream buffers the events of the current block for one stream.
type EventStream[T any] struct {
	name   string
	writer Writer
	logger *zap.Logger
	buffer []T

	lastLoaded bool
	hasLast    bool
	lastHeight uint64
}

// NewEventStream creates a stream buffer writing to the named stream.
func NewEventStream[T any](writer Writer, name string, logger *zap.Logger) *EventStream[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventStream[T]{
		name:   name,
		writer: writer,
		logger: logger.With(zap.String("stream", name)),
	}
}

// Name returns the stream name.
func (s *EventStream[T]) Name() string {
	return s.name
}

// AddEvent buffers an event until the next flush.
func (s *EventStream[T]) AddEvent(event T) {
	s.buffer = append(s.buffer, event)
}

// Len returns the number of buffered events.
func (s *EventStream[T]) Len() int {
	return len(s.buffer)
}

// FlushEvents appends the buffered events for blockHeight and trims the
// stream to maxStreamSize. The trim runs even when nothing was buffered.
// The buffer is kept on error.
//
// A block at or below the newest height already in the stream was published
// by an earlier run; its entries are not appended again.
func (s *EventStream[T]) FlushEvents(ctx context.Context, blockHeight uint64, maxStreamSize int64) error {
	start := time.Now()
	defer func() {
		metrics.FlushDuration.WithLabelValues(s.name).Observe(time.Since(start).Seconds())
	}()

	if err := s.flush(ctx, blockHeight, maxStreamSize); err != nil {
		metrics.FlushErrors.WithLabelValues(s.name).Inc()
		return err
	}

	clear(s.buffer)
	s.buffer = s.buffer[:0]
	return nil
}

func (s *EventStream[T]) flush(ctx context.Context, blockHeight uint64, maxStreamSize int64) error {
	if len(s.buffer) > 0 {
		if err := s.loadLastHeight(ctx); err != nil {
			return err
		}

		if s.hasLast && blockHeight <= s.lastHeight {
			s.logger.Warn("Block already present in stream, not appending again",
				zap.Uint64("block_height", blockHeight),
				zap.Uint64("stream_height", s.lastHeight),
				zap.Int("events", len(s.buffer)),
			)
		} else {
			entries := make([][]byte, 0, len(s.buffer))
			for i := range s.buffer {
				data, err := json.Marshal(&s.buffer[i])
				if err != nil {
					return fmt.Errorf("failed to marshal event for stream %s: %w", s.name, err)
				}
				entries = append(entries, data)
			}

			if err := s.writer.Append(ctx, s.name, blockHeight, entries); err != nil {
				return err
			}
			s.hasLast = true
			s.lastHeight = blockHeight
			metrics.EntriesAppended.WithLabelValues(s.name).Add(float64(len(entries)))
			s.logger.Debug("Appended block events",
				zap.Uint64("block_height", blockHeight),
				zap.Int("events", len(entries)),
			)
		}
	}

	return s.writer.Trim(ctx, s.name, maxStreamSize)
}

func (s *EventStream[T]) loadLastHeight(ctx context.Context) error {
	if s.lastLoaded {
		return nil
	}
	height, ok, err := s.writer.LastSequence(ctx, s.name)
	if err != nil {
		return err
	}
	s.lastLoaded = true
	s.hasLast = ok
	s.lastHeight = height
	return nil
}
