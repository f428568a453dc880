package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultMaxStreamSize = 10_000

// ArchiveConfig configures the optional object storage copy of every block.
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
	BasePath  string `yaml:"base_path"`
}

// Enabled reports whether an archive endpoint was configured.
func (a ArchiveConfig) Enabled() bool {
	return a.Endpoint != ""
}

// BlockRange is an inclusive replay range.
type BlockRange struct {
	Start uint64 `yaml:"start"`
	End   uint64 `yaml:"end"`
}

// Config holds the application configuration.
type Config struct {
	RedisURL      string        `yaml:"redis_url"`
	Testnet       bool          `yaml:"testnet"`
	MaxStreamSize int64         `yaml:"max_stream_size"`
	NatsURL       string        `yaml:"nats_url"`
	NatsStream    string        `yaml:"nats_stream"`
	NatsSubject   string        `yaml:"nats_subject"`
	ConsumerName  string        `yaml:"consumer_name"`
	MetricsAddr   string        `yaml:"metrics_addr"`
	Debug         bool          `yaml:"debug"`
	Archive       ArchiveConfig `yaml:"archive"`
	BlockRange    *BlockRange   `yaml:"block_range,omitempty"`
}

// NetworkName returns "testnet" or "mainnet".
func (c *Config) NetworkName() string {
	if c.Testnet {
		return Testnet
	}
	return Mainnet
}

// Network resolves the network entry and applies the configured NATS
// overrides.
func (c *Config) Network() (*NetworkConfig, error) {
	network, err := GetDefaultNetworkRegistry().GetNetwork(c.NetworkName())
	if err != nil {
		return nil, err
	}
	if c.NatsStream != "" {
		network.NatsStream = c.NatsStream
	}
	if c.NatsSubject != "" {
		network.NatsSubject = c.NatsSubject
	}
	return network, nil
}

// Validate checks the settings needed to start indexing.
func (c *Config) Validate() error {
	var errs []error
	if c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}
	if c.MaxStreamSize <= 0 {
		errs = append(errs, fmt.Errorf("max stream size must be positive, got %d", c.MaxStreamSize))
	}
	if c.BlockRange != nil && c.BlockRange.Start > c.BlockRange.End {
		errs = append(errs, fmt.Errorf("invalid block range: start %d is after end %d", c.BlockRange.Start, c.BlockRange.End))
	}
	if c.Archive.Enabled() && c.Archive.Bucket == "" {
		errs = append(errs, errors.New("archive bucket is required when an archive endpoint is set"))
	}
	return errors.Join(errs...)
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	maxSize, err := getEnvAsInt64("MAX_STREAM_SIZE", DefaultMaxStreamSize)
	if err != nil {
		return nil, err
	}

	_, testnet := os.LookupEnv("TESTNET")

	return &Config{
		RedisURL:      os.Getenv("REDIS_URL"),
		Testnet:       testnet,
		MaxStreamSize: maxSize,
		NatsURL:       getEnvWithDefault("NATS_URL", "nats://localhost:4222"),
		NatsStream:    os.Getenv("NATS_STREAM"),
		NatsSubject:   os.Getenv("NATS_SUBJECT"),
		ConsumerName:  os.Getenv("CONSUMER_NAME"),
		MetricsAddr:   os.Getenv("METRICS_ADDR"),
		Debug:         getEnvAsBool("DEBUG"),
		Archive: ArchiveConfig{
			Endpoint:  os.Getenv("ARCHIVE_ENDPOINT"),
			AccessKey: os.Getenv("ARCHIVE_ACCESS_KEY"),
			SecretKey: os.Getenv("ARCHIVE_SECRET_KEY"),
			UseSSL:    getEnvAsBool("ARCHIVE_USE_SSL"),
			Bucket:    getEnvWithDefault("ARCHIVE_BUCKET", "near-logs"),
			BasePath:  os.Getenv("ARCHIVE_BASE_PATH"),
		},
	}, nil
}

// Load reads a YAML config file on top of the environment. A missing file
// leaves the environment configuration as is.
func Load(path string) (*Config, error) {
	cfg, err := LoadFromEnv()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ParseBlockHeight parses a height that may use "_", ",", "." or spaces as
// digit group separators, e.g. "124_099_140".
func ParseBlockHeight(s string) (uint64, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '_', ',', '.', ' ':
			return -1
		}
		return r
	}, s)
	if cleaned == "" {
		return 0, fmt.Errorf("invalid block height %q", s)
	}
	height, err := strconv.ParseUint(cleaned, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid block height %q: %w", s, err)
	}
	return height, nil
}

// ParseBlockRange parses an inclusive start and end height.
func ParseBlockRange(start, end string) (*BlockRange, error) {
	s, err := ParseBlockHeight(start)
	if err != nil {
		return nil, err
	}
	e, err := ParseBlockHeight(end)
	if err != nil {
		return nil, err
	}
	if s > e {
		return nil, fmt.Errorf("invalid block range: start %d is after end %d", s, e)
	}
	return &BlockRange{Start: s, End: e}, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return i, nil
}

func getEnvAsBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}
