package indexer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3ekko/ekko-log-indexer/internal/metrics"
	"github.com/web3ekko/ekko-log-indexer/pkg/events"
	"github.com/web3ekko/ekko-log-indexer/pkg/indexer"
	"github.com/web3ekko/ekko-log-indexer/pkg/near"
)

const nftMintLog = `EVENT_JSON:{"standard":"nep171","version":"1.2.0","event":"nft_mint","data":[{"owner_id":"x.near","token_ids":["x.near"],"memo":""}]}`

var (
	txHash      = near.MustParseCryptoHash("9yN1e3Gq2Hbxsx3L7sCzRWnhZyvEs4ktDG1Gxi9ggE5m")
	receiptHash = near.MustParseCryptoHash("3fXmfP2X7xcuSJrW3vFjgPGkJZbDCZKfyB8GWfJZDqLR")
)

func success() near.ExecutionStatus {
	return near.ExecutionStatus{Kind: near.StatusSuccessValue}
}

func failure() near.ExecutionStatus {
	return near.ExecutionStatus{Kind: near.StatusFailure}
}

func newReceipt(receiver, predecessor near.AccountID, status near.ExecutionStatus, logs ...string) near.ReceiptExecutionOutcome {
	tx := txHash
	return near.ReceiptExecutionOutcome{
		ExecutionOutcome: near.ExecutionOutcomeWithID{
			ID: receiptHash,
			Outcome: near.ExecutionOutcome{
				Logs:       logs,
				ExecutorID: receiver,
				Status:     status,
			},
		},
		Receipt: near.Receipt{
			ReceiptID:     receiptHash,
			PredecessorID: predecessor,
			ReceiverID:    receiver,
		},
		TxHash: &tx,
	}
}

func newBlock(height uint64, receipts ...near.ReceiptExecutionOutcome) *near.StreamerMessage {
	return &near.StreamerMessage{
		Block: near.BlockView{
			Header: near.BlockHeader{
				Height:           height,
				TimestampNanosec: 1_722_000_000_000_000_000 + height,
			},
		},
		Shards: []near.Shard{{ShardID: 0, ReceiptExecutionOutcomes: receipts}},
	}
}

func TestProcessBlock_TextOnly(t *testing.T) {
	collector := indexer.NewCollector()
	li := indexer.NewLogIndexer(collector, nil)

	block := newBlock(124105250, newReceipt("a.near", "b.near", success(), "Transfer 5 from a.near to b.near"))
	require.NoError(t, li.ProcessBlock(context.Background(), block))

	require.Len(t, collector.TextLogs["a.near"], 1)
	event := collector.TextLogs["a.near"][0]
	assert.Equal(t, "Transfer 5 from a.near to b.near", event.LogText)
	assert.Equal(t, uint64(124105250), event.BlockHeight)
	assert.Equal(t, block.Block.Header.TimestampNanosec, event.BlockTimestampNanosec)
	assert.Equal(t, txHash, event.TransactionID)
	assert.Equal(t, receiptHash, event.ReceiptID)
	assert.Equal(t, near.AccountID("a.near"), event.AccountID)
	assert.Equal(t, near.AccountID("b.near"), event.PredecessorID)
	assert.Empty(t, collector.StandardLogs)
}

func TestProcessBlock_StandardEvent(t *testing.T) {
	collector := indexer.NewCollector()
	li := indexer.NewLogIndexer(collector, nil)

	block := newBlock(124099141, newReceipt("sbt.honeybot.near", "honeybot.near", success(), nftMintLog))
	require.NoError(t, li.ProcessBlock(context.Background(), block))

	texts := collector.TextLogs["sbt.honeybot.near"]
	require.Len(t, texts, 1)
	assert.Equal(t, nftMintLog, texts[0].LogText)

	standard := collector.StandardLogs["sbt.honeybot.near"]
	require.Len(t, standard, 1)
	assert.Equal(t, "nep171", standard[0].EventStandard)
	assert.Equal(t, "1.2.0", standard[0].EventVersion)
	assert.Equal(t, "nft_mint", standard[0].EventEvent)
	assert.JSONEq(t, `[{"owner_id":"x.near","token_ids":["x.near"],"memo":""}]`, string(standard[0].EventData))
	assert.Equal(t, texts[0].Envelope, standard[0].Envelope)
}

func TestProcessBlock_FailedReceipt(t *testing.T) {
	collector := indexer.NewCollector()
	li := indexer.NewLogIndexer(collector, nil)

	skipped := testutil.ToFloat64(metrics.ReceiptsSkipped)

	block := newBlock(10,
		newReceipt("a.near", "b.near", failure(), "Transfer 5 from a.near to b.near", nftMintLog),
		newReceipt("c.near", "b.near", near.ExecutionStatus{Kind: near.StatusUnknown}, "pending"),
	)
	require.NoError(t, li.ProcessBlock(context.Background(), block))

	assert.Equal(t, skipped+2, testutil.ToFloat64(metrics.ReceiptsSkipped))
	assert.Equal(t, float64(10), testutil.ToFloat64(metrics.LastBlockHeight))

	assert.Empty(t, collector.TextLogs)
	assert.Empty(t, collector.StandardLogs)
	require.Len(t, collector.Blocks, 1, "block is still flushed once")
	assert.Empty(t, collector.Blocks[0].Text)
	assert.Empty(t, collector.Blocks[0].Standard)
}

func TestProcessBlock_PreservesLogOrder(t *testing.T) {
	collector := indexer.NewCollector()
	li := indexer.NewLogIndexer(collector, nil)

	logs := []string{"first", nftMintLog, "third", "EVENT_JSON:not json", "fifth"}
	receiptSuccess := newReceipt("a.near", "b.near", near.ExecutionStatus{Kind: near.StatusSuccessReceiptID}, logs...)
	block := newBlock(11, receiptSuccess, newReceipt("z.near", "a.near", success(), "sixth"))
	require.NoError(t, li.ProcessBlock(context.Background(), block))

	require.Len(t, collector.Blocks, 1)
	got := make([]string, 0, len(collector.Blocks[0].Text))
	for _, e := range collector.Blocks[0].Text {
		got = append(got, e.LogText)
	}
	assert.Equal(t, append(logs, "sixth"), got)
	require.Len(t, collector.Blocks[0].Standard, 1)
	assert.Equal(t, collector.Blocks[0].Text[1].Envelope, collector.Blocks[0].Standard[0].Envelope)
}

func TestProcessBlock_FlushesOncePerBlock(t *testing.T) {
	collector := indexer.NewCollector()
	li := indexer.NewLogIndexer(collector, nil)
	ctx := context.Background()

	require.NoError(t, li.ProcessBlock(ctx, newBlock(100, newReceipt("a.near", "b.near", success(), "h100"))))
	require.NoError(t, li.ProcessBlock(ctx, newBlock(101)))
	require.NoError(t, li.ProcessBlock(ctx, newBlock(102, newReceipt("a.near", "b.near", success(), "h102", nftMintLog))))

	require.Len(t, collector.Blocks, 3)
	for i, want := range []uint64{100, 101, 102} {
		assert.Equal(t, want, collector.Blocks[i].Height)
		for _, e := range collector.Blocks[i].Text {
			assert.Equal(t, want, e.BlockHeight, "flush only carries events of its own block")
		}
	}
	assert.Len(t, collector.Blocks[0].Text, 1)
	assert.Empty(t, collector.Blocks[1].Text)
	assert.Len(t, collector.Blocks[2].Text, 2)
	assert.Len(t, collector.Blocks[2].Standard, 1)

	last, ok := li.LastHeight()
	assert.True(t, ok)
	assert.Equal(t, uint64(102), last)
}

func TestProcessBlock_OutOfOrder(t *testing.T) {
	li := indexer.NewLogIndexer(indexer.NewCollector(), nil)
	ctx := context.Background()

	require.NoError(t, li.ProcessBlock(ctx, newBlock(5)))
	assert.ErrorIs(t, li.ProcessBlock(ctx, newBlock(5)), indexer.ErrOutOfOrder)
	assert.ErrorIs(t, li.ProcessBlock(ctx, newBlock(4)), indexer.ErrOutOfOrder)
}

func TestProcessBlock_MissingTransaction(t *testing.T) {
	collector := indexer.NewCollector()
	li := indexer.NewLogIndexer(collector, nil)

	receipt := newReceipt("a.near", "b.near", success(), "orphan log")
	receipt.TxHash = nil

	err := li.ProcessBlock(context.Background(), newBlock(7, receipt))
	assert.ErrorIs(t, err, indexer.ErrMissingTransaction)
	assert.Empty(t, collector.Blocks, "a failed block is never flushed")
}

type failingHandler struct {
	*indexer.Collector
	flushErr error
	textErr  error
}

func (f *failingHandler) HandleText(ctx context.Context, event events.TextLogEvent) error {
	if f.textErr != nil {
		return f.textErr
	}
	return f.Collector.HandleText(ctx, event)
}

func (f *failingHandler) Flush(ctx context.Context, height uint64) error {
	if f.flushErr != nil {
		return f.flushErr
	}
	return f.Collector.Flush(ctx, height)
}

func TestProcessBlock_HandlerErrors(t *testing.T) {
	t.Run("flush error is returned", func(t *testing.T) {
		boom := errors.New("stream unavailable")
		li := indexer.NewLogIndexer(&failingHandler{Collector: indexer.NewCollector(), flushErr: boom}, nil)

		err := li.ProcessBlock(context.Background(), newBlock(1, newReceipt("a.near", "b.near", success(), "x")))
		assert.ErrorIs(t, err, boom)
		_, started := li.LastHeight()
		assert.False(t, started)
	})

	t.Run("handle error is returned", func(t *testing.T) {
		boom := errors.New("buffer full")
		li := indexer.NewLogIndexer(&failingHandler{Collector: indexer.NewCollector(), textErr: boom}, nil)

		err := li.ProcessBlock(context.Background(), newBlock(1, newReceipt("a.near", "b.near", success(), "x")))
		assert.ErrorIs(t, err, boom)
	})
}

func TestMultiHandler(t *testing.T) {
	first, second := indexer.NewCollector(), indexer.NewCollector()
	li := indexer.NewLogIndexer(indexer.MultiHandler{first, second}, nil)

	require.NoError(t, li.ProcessBlock(context.Background(), newBlock(3, newReceipt("a.near", "b.near", success(), nftMintLog))))

	for _, c := range []*indexer.Collector{first, second} {
		require.Len(t, c.Blocks, 1)
		assert.Len(t, c.Blocks[0].Text, 1)
		assert.Len(t, c.Blocks[0].Standard, 1)
	}
}

func TestMultiHandler_StopsOnError(t *testing.T) {
	boom := errors.New("archive down")
	first := &failingHandler{Collector: indexer.NewCollector(), flushErr: boom}
	second := indexer.NewCollector()

	err := indexer.MultiHandler{first, second}.Flush(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, second.Blocks)
}
