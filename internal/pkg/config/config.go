package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	PostgresURL string `env:"POSTGRES_URL,required"`

	// Upstream event API.
	UpstreamBaseURL string        `env:"UPSTREAM_BASE_URL,required"`
	UpstreamAPIKey  string        `env:"UPSTREAM_API_KEY,required"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"15s"`
	UpstreamRPS     float64       `env:"UPSTREAM_RPS" envDefault:"10"`

	// Poll loop.
	PollInterval  time.Duration `env:"POLL_INTERVAL" envDefault:"10s"`
	PollBatchSize int           `env:"POLL_BATCH_SIZE" envDefault:"100"`
	// Comma-separated event types; empty polls every type.
	PollEventTypes []string      `env:"POLL_EVENT_TYPES" envSeparator:","`
	FinalizedOnly  bool          `env:"POLL_FINALIZED_ONLY" envDefault:"false"`
	RetryInterval  time.Duration `env:"RETRY_INTERVAL" envDefault:"1m"`
	MaxRetries     int           `env:"MAX_RETRIES" envDefault:"5"`

	// Optional Redis dedup cache; empty disables it.
	RedisAddr string        `env:"REDIS_ADDR"`
	DedupTTL  time.Duration `env:"DEDUP_TTL" envDefault:"1h"`

	// Optional Kafka fan-out; empty disables it.
	KafkaBrokers     []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopicPrefix string   `env:"KAFKA_TOPIC_PREFIX" envDefault:"name-token.events"`

	// HTTP surface. An empty APIKey disables request authentication.
	ServerAddr string `env:"SERVER_ADDR" envDefault:":8080"`
	APIKey     string `env:"API_KEY"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
