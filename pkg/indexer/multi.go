package indexer

import (
	"context"

	"github.com/web3ekko/ekko-log-indexer/pkg/events"
)

// MultiHandler fans every event out to several handlers in order. The first
// error stops the fan-out and is returned.
type MultiHandler []LogEventHandler

// HandleText passes event to every handler.
func (m MultiHandler) HandleText(ctx context.Context, event events.TextLogEvent) error {
	for _, h := range m {
		if err := h.HandleText(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// HandleStandardEvent passes event to every handler.
func (m MultiHandler) HandleStandardEvent(ctx context.Context, event events.StandardEventLog) error {
	for _, h := range m {
		if err := h.HandleStandardEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes every handler for blockHeight.
func (m MultiHandler) Flush(ctx context.Context, blockHeight uint64) error {
	for _, h := range m {
		if err := h.Flush(ctx, blockHeight); err != nil {
			return err
		}
	}
	return nil
}
