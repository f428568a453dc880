package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/web3ekko/ekko-log-indexer/pkg/events"
)

const jsonLinesContentType = "application/x-ndjson"

// Uploader stores a single object. *MinioStorage implements it.
type Uploader interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
}

// Archive keeps a durable copy of every block's events in object storage, one
// JSON-lines object per block and stream kind. Unlike the Redis streams it is
// never trimmed.
type Archive struct {
	uploader Uploader
	network  string
	logger   *zap.Logger

	text     []events.TextLogEvent
	standard []events.StandardEventLog
}

// NewArchive creates an archive handler for network.
func NewArchive(uploader Uploader, network string, logger *zap.Logger) *Archive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archive{uploader: uploader, network: network, logger: logger}
}

// BlockObjectName returns "<kind>/<network>/<height/1000>/<height>.jsonl".
func BlockObjectName(kind, network string, blockHeight uint64) string {
	return fmt.Sprintf("%s/%s/%d/%d.jsonl", kind, network, blockHeight/1000, blockHeight)
}

// HandleText buffers event for the block object.
func (a *Archive) HandleText(_ context.Context, event events.TextLogEvent) error {
	a.text = append(a.text, event)
	return nil
}

// HandleStandardEvent buffers event for the block object.
func (a *Archive) HandleStandardEvent(_ context.Context, event events.StandardEventLog) error {
	a.standard = append(a.standard, event)
	return nil
}

// Flush uploads the block's buffered events. Kinds with no events produce no
// object. Buffers are kept on error.
func (a *Archive) Flush(ctx context.Context, blockHeight uint64) error {
	if err := writeBlock(ctx, a, events.TextLogEventID, blockHeight, a.text); err != nil {
		return err
	}
	if err := writeBlock(ctx, a, events.StandardEventLogID, blockHeight, a.standard); err != nil {
		return err
	}

	a.text = a.text[:0]
	a.standard = a.standard[:0]
	return nil
}

func writeBlock[T any](ctx context.Context, a *Archive, kind string, blockHeight uint64, items []T) error {
	if len(items) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range items {
		if err := enc.Encode(&items[i]); err != nil {
			return fmt.Errorf("failed to encode %s event: %w", kind, err)
		}
	}

	name := BlockObjectName(kind, a.network, blockHeight)
	if err := a.uploader.Upload(ctx, name, bytes.NewReader(buf.Bytes()), int64(buf.Len()), jsonLinesContentType); err != nil {
		return fmt.Errorf("failed to archive block %d: %w", blockHeight, err)
	}

	a.logger.Debug("Archived block events",
		zap.String("object", name),
		zap.Int("events", len(items)),
	)
	return nil
}
