package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Block processing metrics
	BlocksProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "log_indexer_blocks_processed_total",
			Help: "Total number of blocks fully processed and flushed",
		},
	)

	LastBlockHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "log_indexer_last_block_height",
			Help: "Height of the last flushed block",
		},
	)

	ReceiptsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "log_indexer_receipts_skipped_total",
			Help: "Receipts ignored because their execution did not succeed",
		},
	)

	// Event metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "log_indexer_events_total",
			Help: "Total number of events produced",
		},
		[]string{"kind"},
	)

	// Stream metrics
	FlushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "log_indexer_flush_duration_seconds",
			Help:    "Duration of a stream flush in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stream"},
	)

	FlushErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "log_indexer_flush_errors_total",
			Help: "Total number of failed stream flushes",
		},
		[]string{"stream"},
	)

	EntriesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "log_indexer_stream_entries_appended_total",
			Help: "Total number of entries appended to a stream",
		},
		[]string{"stream"},
	)
)
