package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime settings for the service and CLI.
type Config struct {
	Env  string `env:"ENV" envDefault:"development"`
	Port string `env:"PORT" envDefault:"8083"`

	GRPCPort string `env:"GRPC_PORT" envDefault:"8086"`

	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"DB_DSN" envDefault:"chat.db"`

	// FeedDriver selects the live-change primitive: memory, postgres, amqp or redis.
	FeedDriver   string `env:"FEED_DRIVER" envDefault:"memory"`
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"chat.messages"`
	RedisURL     string `env:"REDIS_URL"`

	AuditExchange   string `env:"AUDIT_EXCHANGE" envDefault:"chat.audit"`
	AuditRoutingKey string `env:"AUDIT_ROUTING_KEY" envDefault:"audit.chat-sync"`

	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8083"`
	BlobMaxBytes  int64  `env:"BLOB_MAX_BYTES" envDefault:"10485760"`

	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-secret"`

	RemoteConfigTTL   time.Duration `env:"REMOTE_CONFIG_TTL" envDefault:"1h"`
	WatchPollInterval time.Duration `env:"WATCH_POLL_INTERVAL" envDefault:"5s"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads a .env file when present and parses the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c Config) validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.FeedDriver {
	case "memory", "postgres", "amqp", "redis":
	default:
		return fmt.Errorf("unsupported FEED_DRIVER %q", c.FeedDriver)
	}
	if c.FeedDriver == "postgres" && c.DBDriver != "postgres" {
		return fmt.Errorf("FEED_DRIVER=postgres requires DB_DRIVER=postgres")
	}
	if c.FeedDriver == "amqp" && c.AMQPURL == "" {
		return fmt.Errorf("FEED_DRIVER=amqp requires AMQP_URL")
	}
	if c.FeedDriver == "redis" && c.RedisURL == "" {
		return fmt.Errorf("FEED_DRIVER=redis requires REDIS_URL")
	}
	if c.BlobMaxBytes <= 0 {
		return fmt.Errorf("BLOB_MAX_BYTES must be positive")
	}
	return nil
}
