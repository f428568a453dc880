package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/reugn/go-streams"
	"github.com/reugn/go-streams/flow"
	"go.uber.org/zap"

	"github.com/web3ekko/ekko-log-indexer/pkg/near"
)

const (
	defaultFetchBatch   = 16
	defaultFetchWait    = 2 * time.Second
	inactiveConsumerTTL = 10 * time.Minute
)

// NATSConfig describes the JetStream stream carrying encoded StreamerMessages.
type NATSConfig struct {
	URL     string
	Stream  string
	Subject string
	// ConsumerName is the durable consumer. Empty gives a generated name.
	ConsumerName string
	// Replay reads the stream from its first message with a throwaway
	// consumer that is deleted on Close. ConsumerName is ignored, so a replay
	// never moves the live consumer.
	Replay     bool
	FetchBatch int
	FetchWait  time.Duration
}

func (cfg NATSConfig) withDefaults() NATSConfig {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	switch {
	case cfg.Replay:
		cfg.ConsumerName = "log-indexer-replay-" + uuid.NewString()
	case cfg.ConsumerName == "":
		cfg.ConsumerName = "log-indexer-" + uuid.NewString()
	}
	if cfg.FetchBatch <= 0 {
		cfg.FetchBatch = defaultFetchBatch
	}
	if cfg.FetchWait <= 0 {
		cfg.FetchWait = defaultFetchWait
	}
	return cfg
}

// NATSSource emits blocks published on a JetStream subject. Every item on Out
// is either a Delivery that must be acked after its block was flushed, or an
// error after which the channel is closed.
type NATSSource struct {
	cfg    NATSConfig
	conn   *nats.Conn
	js     nats.JetStreamContext
	sub    *nats.Subscription
	outCh  chan any
	logger *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ streams.Source = (*NATSSource)(nil)

// NewNATSSource connects to NATS and makes sure the stream exists.
func NewNATSSource(cfg NATSConfig, logger *zap.Logger) (*NATSSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	conn, err := nats.Connect(cfg.URL, nats.RetryOnFailedConnect(true), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err := js.StreamInfo(cfg.Stream); err != nil {
		logger.Info("Creating block stream",
			zap.String("stream", cfg.Stream),
			zap.String("subject", cfg.Subject),
		)
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     cfg.Stream,
			Subjects: []string{cfg.Subject},
			Storage:  nats.FileStorage,
			MaxAge:   24 * time.Hour,
			Replicas: 1,
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create stream %s: %w", cfg.Stream, err)
		}
	}

	return &NATSSource{
		cfg:    cfg,
		conn:   conn,
		js:     js,
		outCh:  make(chan any),
		logger: logger.With(zap.String("consumer", cfg.ConsumerName)),
	}, nil
}

// Out implements streams.Outlet.
func (s *NATSSource) Out() <-chan any {
	return s.outCh
}

// Via implements streams.Source.
func (s *NATSSource) Via(operator streams.Flow) streams.Flow {
	flow.DoStream(s, operator)
	return operator
}

// Start binds the durable pull consumer and begins emitting blocks. The
// source stops when ctx is cancelled or Close is called.
func (s *NATSSource) Start(ctx context.Context) error {
	opts := []nats.SubOpt{
		nats.BindStream(s.cfg.Stream),
		nats.AckExplicit(),
		nats.InactiveThreshold(inactiveConsumerTTL),
	}
	if s.cfg.Replay {
		// Blocks outside the range stay unacked, so they must not count
		// against the pending limit.
		opts = append(opts, nats.DeliverAll(), nats.MaxAckPending(-1))
	}

	sub, err := s.js.PullSubscribe(s.cfg.Subject, s.cfg.ConsumerName, opts...)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.cfg.Subject, err)
	}
	s.sub = sub

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.outCh)
		s.fetchLoop(ctx)
	}()

	s.logger.Info("Subscribed to block feed",
		zap.String("stream", s.cfg.Stream),
		zap.String("subject", s.cfg.Subject),
	)
	return nil
}

func (s *NATSSource) fetchLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		msgs, err := s.sub.Fetch(s.cfg.FetchBatch, nats.MaxWait(s.cfg.FetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return
			}
			s.send(ctx, fmt.Errorf("failed to fetch blocks: %w", err))
			return
		}

		for _, msg := range msgs {
			if !s.emit(ctx, msg) {
				return
			}
		}
	}
}

// emit decodes msg and forwards it. It reports whether the loop should go on.
func (s *NATSSource) emit(ctx context.Context, msg *nats.Msg) bool {
	block, err := near.DecodeStreamerMessage(msg.Data)
	if err != nil {
		s.logger.Error("Undecodable block message", zap.String("subject", msg.Subject), zap.Error(err))
		s.send(ctx, fmt.Errorf("failed to decode message on %s: %w", msg.Subject, err))
		return false
	}
	return s.send(ctx, &delivery{block: block, msg: msg})
}

func (s *NATSSource) send(ctx context.Context, item any) bool {
	select {
	case s.outCh <- item:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close stops fetching and closes the connection. The durable consumer is
// kept on the server so the next run resumes from it; a replay consumer is
// deleted.
func (s *NATSSource) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cfg.Replay && s.sub != nil {
		if err := s.js.DeleteConsumer(s.cfg.Stream, s.cfg.ConsumerName); err != nil {
			s.logger.Warn("Failed to delete replay consumer", zap.Error(err))
		}
	}
	if s.conn != nil {
		s.conn.Close()
	}
	s.wg.Wait()
	return nil
}

type delivery struct {
	block *near.StreamerMessage
	msg   *nats.Msg
}

func (d *delivery) StreamerMessage() *near.StreamerMessage {
	return d.block
}

func (d *delivery) Ack() error {
	return d.msg.AckSync()
}
