package eventstream

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/web3ekko/ekko-log-indexer/pkg/events"
)

// DefaultMaxStreamSize is the number of entries each stream keeps.
const DefaultMaxStreamSize = 10_000

// PublisherConfig names the streams and bounds their size.
type PublisherConfig struct {
	MaxStreamSize int64
	// StreamSuffix separates networks, e.g. "testnet" gives "log_text_testnet".
	StreamSuffix string
}

// Publisher buffers a block's events and flushes them to the text and
// standard event streams at the end of the block.
type Publisher struct {
	textStream     *EventStream[events.TextLogEvent]
	standardStream *EventStream[events.StandardEventLog]
	maxStreamSize  int64
	logger         *zap.Logger
}

// NewPublisher creates a Publisher writing through writer.
func NewPublisher(writer Writer, cfg PublisherConfig, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxSize := cfg.MaxStreamSize
	if maxSize <= 0 {
		maxSize = DefaultMaxStreamSize
	}

	return &Publisher{
		textStream: NewEventStream[events.TextLogEvent](
			writer, events.StreamName(events.TextLogEventID, cfg.StreamSuffix), logger),
		standardStream: NewEventStream[events.StandardEventLog](
			writer, events.StreamName(events.StandardEventLogID, cfg.StreamSuffix), logger),
		maxStreamSize: maxSize,
		logger:        logger,
	}
}

// StreamNames returns the text and standard stream names.
func (p *Publisher) StreamNames() (text, standard string) {
	return p.textStream.Name(), p.standardStream.Name()
}

// HandleText buffers event for the text stream.
func (p *Publisher) HandleText(_ context.Context, event events.TextLogEvent) error {
	p.textStream.AddEvent(event)
	return nil
}

// HandleStandardEvent buffers event for the standard event stream.
func (p *Publisher) HandleStandardEvent(_ context.Context, event events.StandardEventLog) error {
	p.standardStream.AddEvent(event)
	return nil
}

// Flush writes the block's buffered events to both streams, text first.
func (p *Publisher) Flush(ctx context.Context, blockHeight uint64) error {
	textCount, standardCount := p.textStream.Len(), p.standardStream.Len()

	if err := p.textStream.FlushEvents(ctx, blockHeight, p.maxStreamSize); err != nil {
		return fmt.Errorf("failed to flush text stream: %w", err)
	}
	if err := p.standardStream.FlushEvents(ctx, blockHeight, p.maxStreamSize); err != nil {
		return fmt.Errorf("failed to flush standard event stream: %w", err)
	}

	p.logger.Debug("Flushed block",
		zap.Uint64("block_height", blockHeight),
		zap.Int("text_events", textCount),
		zap.Int("standard_events", standardCount),
	)
	return nil
}
