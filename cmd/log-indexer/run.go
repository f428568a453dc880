package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/web3ekko/ekko-log-indexer/internal/config"
	"github.com/web3ekko/ekko-log-indexer/internal/logger"
	"github.com/web3ekko/ekko-log-indexer/pkg/checkpoint"
	"github.com/web3ekko/ekko-log-indexer/pkg/eventstream"
	"github.com/web3ekko/ekko-log-indexer/pkg/indexer"
	"github.com/web3ekko/ekko-log-indexer/pkg/persistence"
	"github.com/web3ekko/ekko-log-indexer/pkg/source"
)

var runCmd = &cobra.Command{
	Use:   "run [start end]",
	Short: "Follow the block feed, or replay an inclusive block range",
	Example: `  log-indexer run
  log-indexer run 124_099_140 124_099_141`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("expected no arguments or <start> <end>, got %d", len(args))
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(args)
		if err != nil {
			return err
		}

		l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer l.Sync() //nolint:errcheck

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = runIndexer(ctx, cfg, l)
		if errors.Is(err, context.Canceled) {
			l.Sugar().Infow("Shutdown signal received, stopped")
			return nil
		}
		return err
	},
}

func init() {
	runCmd.Flags().String("redis-url", "", "Redis URL the event streams are written to")
	runCmd.Flags().Bool("testnet", false, "index testnet and suffix every stream with _testnet")
	runCmd.Flags().Int64("max-stream-size", 0, "entries kept per stream")
	runCmd.Flags().String("nats-url", "", "NATS server carrying the block feed")
	runCmd.Flags().String("consumer-name", "", "durable JetStream consumer name")
	runCmd.Flags().String("metrics-addr", "", "address to serve /metrics on, e.g. :9090")

	runCmd.Flags().VisitAll(bindFlag)
}

// loadConfig layers environment, config file, then flags and LOG_INDEXER_*
// variables.
func loadConfig(args []string) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	if viper.IsSet("redis_url") {
		cfg.RedisURL = viper.GetString("redis_url")
	}
	if viper.IsSet("testnet") {
		cfg.Testnet = viper.GetBool("testnet")
	}
	if viper.IsSet("max_stream_size") {
		cfg.MaxStreamSize = viper.GetInt64("max_stream_size")
	}
	if viper.IsSet("nats_url") {
		cfg.NatsURL = viper.GetString("nats_url")
	}
	if viper.IsSet("consumer_name") {
		cfg.ConsumerName = viper.GetString("consumer_name")
	}
	if viper.IsSet("metrics_addr") {
		cfg.MetricsAddr = viper.GetString("metrics_addr")
	}
	if viper.IsSet("debug") {
		cfg.Debug = viper.GetBool("debug")
	}

	if len(args) == 2 {
		r, err := config.ParseBlockRange(args[0], args[1])
		if err != nil {
			return nil, err
		}
		cfg.BlockRange = r
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runIndexer(ctx context.Context, cfg *config.Config, l *zap.Logger) error {
	network, err := cfg.Network()
	if err != nil {
		return err
	}
	l = l.With(zap.String("network", network.Name))

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid redis url: %w", err)
	}
	rc := redis.NewClient(redisOpts)
	defer rc.Close()
	if err := rc.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	publisher := eventstream.NewPublisher(eventstream.NewRedisWriter(rc), eventstream.PublisherConfig{
		MaxStreamSize: cfg.MaxStreamSize,
		StreamSuffix:  network.StreamSuffix,
	}, l)
	textStream, standardStream := publisher.StreamNames()
	handlers := indexer.MultiHandler{publisher}

	if cfg.Archive.Enabled() {
		storage, err := persistence.NewMinioStorage(ctx, persistence.MinioConfig{
			Endpoint:   cfg.Archive.Endpoint,
			AccessKey:  cfg.Archive.AccessKey,
			SecretKey:  cfg.Archive.SecretKey,
			UseSSL:     cfg.Archive.UseSSL,
			BucketName: cfg.Archive.Bucket,
			BasePath:   cfg.Archive.BasePath,
		})
		if err != nil {
			return err
		}
		handlers = append(handlers, persistence.NewArchive(storage, network.Name, l))
		l.Sugar().Infow("Archiving block events", "bucket", cfg.Archive.Bucket)
	}

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, l)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	src, err := source.NewNATSSource(source.NATSConfig{
		URL:          cfg.NatsURL,
		Stream:       network.NatsStream,
		Subject:      network.NatsSubject,
		ConsumerName: cfg.ConsumerName,
		Replay:       cfg.BlockRange != nil,
	}, l)
	if err != nil {
		return err
	}
	defer src.Close()
	if err := src.Start(ctx); err != nil {
		return err
	}

	opts := indexer.RunOptions{
		Checkpoint: checkpoint.NewRedisStore(rc, checkpoint.Key(network.StreamSuffix)),
	}
	if cfg.BlockRange != nil {
		opts.Range = &indexer.BlockRange{Start: cfg.BlockRange.Start, End: cfg.BlockRange.End}
	}

	l.Sugar().Infow("Starting log indexer",
		"text_stream", textStream,
		"standard_stream", standardStream,
		"max_stream_size", cfg.MaxStreamSize,
		"subject", network.NatsSubject,
	)

	return indexer.NewLogIndexer(handlers, l).Run(ctx, src, opts)
}

func serveMetrics(addr string, l *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
