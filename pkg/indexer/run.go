package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/reugn/go-streams"
	"go.uber.org/zap"

	"github.com/web3ekko/ekko-log-indexer/pkg/near"
)

// ErrRangeNotCovered is returned when a bounded run's feed starts above the
// first block of the range.
var ErrRangeNotCovered = errors.New("block feed does not cover the start of the range")

// BlockRange is an inclusive range of block heights to replay.
type BlockRange struct {
	Start uint64
	End   uint64
}

// Checkpoint persists the last fully flushed block height so an unbounded
// run can continue where the previous one stopped.
type Checkpoint interface {
	LastHeight(ctx context.Context) (height uint64, ok bool, err error)
	SaveHeight(ctx context.Context, height uint64) error
}

// Delivery is a feed item that must be acknowledged once its block has been
// flushed.
type Delivery interface {
	StreamerMessage() *near.StreamerMessage
	Ack() error
}

// RunOptions controls where Run starts and stops.
type RunOptions struct {
	// Range bounds the run. When nil the run continues until the feed closes
	// or the context is cancelled, resuming after the checkpoint if set.
	Range *BlockRange
	// Checkpoint is consulted and advanced only for unbounded runs.
	Checkpoint Checkpoint
}

// Run consumes blocks from feed in order until the range is exhausted, the
// feed closes, or ctx is cancelled. Feed items are *near.StreamerMessage,
// Delivery or error values; an error item ends the run. Any processing or
// flush error is returned and ends the run.
func (li *LogIndexer) Run(ctx context.Context, feed streams.Outlet, opts RunOptions) error {
	start, err := li.startHeight(ctx, opts)
	if err != nil {
		return err
	}
	li.logger.Info("Log indexer starting", zap.Uint64("start_height", start), zap.Bool("bounded", opts.Range != nil))

	in := feed.Out()
	first := true
	for {
		select {
		case <-ctx.Done():
			li.logger.Info("Log indexer context done, stopping")
			return ctx.Err()
		case item, ok := <-in:
			if !ok {
				last, _ := li.LastHeight()
				if opts.Range != nil && last < opts.Range.End {
					li.logger.Warn("Block feed closed before end of range",
						zap.Uint64("last_height", last),
						zap.Uint64("range_end", opts.Range.End),
					)
				}
				return nil
			}

			msg, ack, err := unwrapFeedItem(item)
			if err != nil {
				return err
			}
			height := msg.Block.Header.Height

			if opts.Range != nil && first && height > opts.Range.Start {
				return fmt.Errorf("%w: first block %d, range starts at %d", ErrRangeNotCovered, height, opts.Range.Start)
			}
			first = false

			if opts.Range != nil && height < opts.Range.Start {
				// Not acked: the block was never processed.
				li.logger.Debug("Skipping block before range", zap.Uint64("height", height))
				continue
			}
			if opts.Range != nil && height > opts.Range.End {
				li.logger.Info("Reached end of block range", zap.Uint64("range_end", opts.Range.End))
				return nil
			}
			if last, started := li.LastHeight(); height < start || (started && height <= last) {
				li.logger.Debug("Skipping already processed block", zap.Uint64("height", height))
				if err := ack(); err != nil {
					return fmt.Errorf("failed to ack skipped block %d: %w", height, err)
				}
				continue
			}

			if err := li.ProcessBlock(ctx, msg); err != nil {
				return err
			}
			if opts.Range == nil && opts.Checkpoint != nil {
				if err := opts.Checkpoint.SaveHeight(ctx, height); err != nil {
					return fmt.Errorf("failed to save checkpoint at block %d: %w", height, err)
				}
			}
			if err := ack(); err != nil {
				return fmt.Errorf("failed to ack block %d: %w", height, err)
			}

			if opts.Range != nil && height >= opts.Range.End {
				li.logger.Info("Reached end of block range", zap.Uint64("range_end", opts.Range.End))
				return nil
			}
		}
	}
}

func (li *LogIndexer) startHeight(ctx context.Context, opts RunOptions) (uint64, error) {
	if opts.Range != nil {
		if opts.Range.Start > opts.Range.End {
			return 0, fmt.Errorf("invalid block range %d..%d", opts.Range.Start, opts.Range.End)
		}
		return opts.Range.Start, nil
	}
	if opts.Checkpoint == nil {
		return 0, nil
	}

	last, ok, err := opts.Checkpoint.LastHeight(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if !ok {
		return 0, nil
	}
	li.lastHeight = last
	li.started = true
	li.logger.Info("Continuing from checkpoint", zap.Uint64("last_height", last))
	return last + 1, nil
}

func unwrapFeedItem(item any) (*near.StreamerMessage, func() error, error) {
	noAck := func() error { return nil }
	switch v := item.(type) {
	case *near.StreamerMessage:
		if v == nil {
			return nil, nil, fmt.Errorf("nil block in feed")
		}
		return v, noAck, nil
	case Delivery:
		msg := v.StreamerMessage()
		if msg == nil {
			return nil, nil, fmt.Errorf("nil block in feed delivery")
		}
		return msg, v.Ack, nil
	case error:
		return nil, nil, fmt.Errorf("block feed failed: %w", v)
	default:
		return nil, nil, fmt.Errorf("unexpected feed item %T", item)
	}
}
