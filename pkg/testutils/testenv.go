package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Env holds the shared containers used by integration tests.
type Env struct {
	Redis   *redis.Client
	NatsURL string
	Nats    *nats.Conn
	JS      nats.JetStreamContext
}

var (
	once    sync.Once
	env     *Env
	initErr error

	globalCleanup func()
)

// GetTestEnvironment returns shared Redis and NATS instances. Redis is
// flushed on every call.
func GetTestEnvironment(ctx context.Context) (*Env, error) {
	once.Do(func() {
		env, initErr = setupGlobalTestEnvironment(ctx)
	})
	if initErr != nil {
		return nil, fmt.Errorf("failed to initialize test environment: %w", initErr)
	}

	if err := env.Redis.FlushAll(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to flush Redis: %w", err)
	}
	return env, nil
}

// CleanupTestEnvironment should be called from TestMain after all tests.
func CleanupTestEnvironment() {
	if globalCleanup != nil {
		globalCleanup()
	}
}

func setupGlobalTestEnvironment(ctx context.Context) (*Env, error) {
	redisC, err := tcRedis.Run(ctx, "redis:7")
	if err != nil {
		return nil, fmt.Errorf("failed to start Redis: %w", err)
	}

	redisURL, err := redisC.ConnectionString(ctx)
	if err != nil {
		_ = redisC.Terminate(ctx)
		return nil, err
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		_ = redisC.Terminate(ctx)
		return nil, err
	}
	rc := redis.NewClient(opts)
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = redisC.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	natsC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			ExposedPorts: []string{"4222/tcp"},
			Cmd:          []string{"-js", "-sd", "/data/jetstream"},
			Tmpfs:        map[string]string{"/data/jetstream": "rw"},
			WaitingFor:   wait.ForLog("Listening for client connections").WithStartupTimeout(10 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		_ = redisC.Terminate(ctx)
		return nil, fmt.Errorf("failed to start NATS: %w", err)
	}

	natsHost, err := natsC.Host(ctx)
	if err != nil {
		return nil, err
	}
	natsPort, err := natsC.MappedPort(ctx, "4222/tcp")
	if err != nil {
		return nil, err
	}
	natsURL := fmt.Sprintf("nats://%s:%s", natsHost, natsPort.Port())

	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, err
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	globalCleanup = func() {
		ctx := context.Background()
		nc.Close()
		_ = rc.Close()
		_ = natsC.Terminate(ctx)
		_ = redisC.Terminate(ctx)
	}

	return &Env{Redis: rc, NatsURL: natsURL, Nats: nc, JS: js}, nil
}
