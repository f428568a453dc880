package indexer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/web3ekko/ekko-log-indexer/internal/metrics"
	"github.com/web3ekko/ekko-log-indexer/pkg/events"
	"github.com/web3ekko/ekko-log-indexer/pkg/near"
)

var (
	// ErrMissingTransaction is returned when a receipt cannot be attributed to
	// a transaction.
	ErrMissingTransaction = errors.New("receipt has no transaction hash")
	// ErrOutOfOrder is returned when a block does not advance the height.
	ErrOutOfOrder = errors.New("block height did not advance")
)

// LogEventHandler receives the events extracted from a block and publishes
// them. Flush is called exactly once per block after every receipt of the
// block has been handled, including blocks that produced no events.
type LogEventHandler interface {
	HandleText(ctx context.Context, event events.TextLogEvent) error
	HandleStandardEvent(ctx context.Context, event events.StandardEventLog) error
	Flush(ctx context.Context, blockHeight uint64) error
}

// IsSuccessful reports whether a receipt is eligible for log extraction. Only
// the receipt's own outcome is considered.
func IsSuccessful(reo *near.ReceiptExecutionOutcome) bool {
	return reo.ExecutionOutcome.Outcome.Status.IsSuccess()
}

// LogIndexer turns receipt logs into events and hands them to a handler.
// It is not safe for concurrent use; blocks must be processed in order.
type LogIndexer struct {
	handler    LogEventHandler
	logger     *zap.Logger
	lastHeight uint64
	started    bool
}

// NewLogIndexer creates a LogIndexer publishing to handler.
func NewLogIndexer(handler LogEventHandler, logger *zap.Logger) *LogIndexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogIndexer{
		handler: handler,
		logger:  logger,
	}
}

// LastHeight returns the height of the last processed block and whether any
// block has been processed.
func (li *LogIndexer) LastHeight() (uint64, bool) {
	return li.lastHeight, li.started
}

// OnReceipt extracts events from one receipt. Failed receipts are skipped.
func (li *LogIndexer) OnReceipt(ctx context.Context, reo *near.ReceiptExecutionOutcome, header *near.BlockHeader) error {
	if !IsSuccessful(reo) {
		metrics.ReceiptsSkipped.Inc()
		li.logger.Debug("Skipping unsuccessful receipt",
			zap.Stringer("receipt_id", reo.Receipt.ReceiptID),
			zap.Stringer("status", reo.ExecutionOutcome.Outcome.Status.Kind),
		)
		return nil
	}

	logs := reo.ExecutionOutcome.Outcome.Logs
	if len(logs) == 0 {
		return nil
	}
	if reo.TxHash == nil {
		return fmt.Errorf("%w: receipt %s in block %d", ErrMissingTransaction, reo.Receipt.ReceiptID, header.Height)
	}

	env := events.Envelope{
		BlockHeight:           header.Height,
		BlockTimestampNanosec: header.TimestampNanosec,
		TransactionID:         *reo.TxHash,
		ReceiptID:             reo.Receipt.ReceiptID,
		AccountID:             reo.Receipt.ReceiverID,
		PredecessorID:         reo.Receipt.PredecessorID,
	}

	for _, line := range logs {
		if err := li.handler.HandleText(ctx, events.TextLogEvent{Envelope: env, LogText: line}); err != nil {
			return fmt.Errorf("failed to handle text event for receipt %s: %w", env.ReceiptID, err)
		}
		metrics.EventsTotal.WithLabelValues(events.TextLogEventID).Inc()

		data, ok := events.ParseEventLog(line)
		if !ok {
			continue
		}
		if err := li.handler.HandleStandardEvent(ctx, events.NewStandardEventLog(env, data)); err != nil {
			return fmt.Errorf("failed to handle standard event for receipt %s: %w", env.ReceiptID, err)
		}
		metrics.EventsTotal.WithLabelValues(events.StandardEventLogID).Inc()
	}
	return nil
}

// ProcessBlock handles every receipt of the block in shard order and then
// flushes the handler once for the block height.
func (li *LogIndexer) ProcessBlock(ctx context.Context, msg *near.StreamerMessage) error {
	header := &msg.Block.Header
	if li.started && header.Height <= li.lastHeight {
		return fmt.Errorf("%w: got %d after %d", ErrOutOfOrder, header.Height, li.lastHeight)
	}

	for si := range msg.Shards {
		outcomes := msg.Shards[si].ReceiptExecutionOutcomes
		for ri := range outcomes {
			if err := li.OnReceipt(ctx, &outcomes[ri], header); err != nil {
				return fmt.Errorf("block %d: %w", header.Height, err)
			}
		}
	}

	if err := li.handler.Flush(ctx, header.Height); err != nil {
		return fmt.Errorf("failed to flush block %d: %w", header.Height, err)
	}

	li.lastHeight = header.Height
	li.started = true
	metrics.BlocksProcessed.Inc()
	metrics.LastBlockHeight.Set(float64(header.Height))
	return nil
}
