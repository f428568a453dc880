package indexer

import (
	"context"

	"github.com/web3ekko/ekko-log-indexer/pkg/events"
	"github.com/web3ekko/ekko-log-indexer/pkg/near"
)

// CollectedBlock is what a Collector received for one flushed block.
type CollectedBlock struct {
	Height   uint64
	Text     []events.TextLogEvent
	Standard []events.StandardEventLog
}

// Collector is an in-memory LogEventHandler. Events are grouped per flushed
// block and per emitting account.
type Collector struct {
	Blocks       []CollectedBlock
	TextLogs     map[near.AccountID][]events.TextLogEvent
	StandardLogs map[near.AccountID][]events.StandardEventLog

	pendingText     []events.TextLogEvent
	pendingStandard []events.StandardEventLog
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		TextLogs:     make(map[near.AccountID][]events.TextLogEvent),
		StandardLogs: make(map[near.AccountID][]events.StandardEventLog),
	}
}

// HandleText records a text event for the pending block and its account.
func (c *Collector) HandleText(_ context.Context, event events.TextLogEvent) error {
	c.pendingText = append(c.pendingText, event)
	c.TextLogs[event.AccountID] = append(c.TextLogs[event.AccountID], event)
	return nil
}

// HandleStandardEvent records a standard event for the pending block and its
// account.
func (c *Collector) HandleStandardEvent(_ context.Context, event events.StandardEventLog) error {
	c.pendingStandard = append(c.pendingStandard, event)
	c.StandardLogs[event.AccountID] = append(c.StandardLogs[event.AccountID], event)
	return nil
}

// Flush closes the pending block as a CollectedBlock.
func (c *Collector) Flush(_ context.Context, blockHeight uint64) error {
	c.Blocks = append(c.Blocks, CollectedBlock{
		Height:   blockHeight,
		Text:     c.pendingText,
		Standard: c.pendingStandard,
	})
	c.pendingText = nil
	c.pendingStandard = nil
	return nil
}
