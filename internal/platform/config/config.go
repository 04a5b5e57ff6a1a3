package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	AppURL    string `env:"APP_URL" default:"http://localhost:7070"`
	Port      string `env:"PORT" default:"7070"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" default:"10s"`
	ClientTimeout     time.Duration `env:"CLIENT_TIMEOUT" default:"30s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" default:"5s"`
	MaxMessageSize    int64         `env:"MAX_MESSAGE_SIZE" default:"65536"`
	MailboxSize       int           `env:"MAILBOX_SIZE" default:"64"`

	// Empty BridgeURL runs a single standalone instance.
	BridgeURL       string `env:"BRIDGE_URL"`
	BridgeChannel   string `env:"BRIDGE_CHANNEL" default:"events"`
	MirrorQueueSize int    `env:"MIRROR_QUEUE_SIZE" default:"256"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"100"`
	ConnectionRatePerIP     float64 `env:"CONNECTION_RATE_PER_IP" default:"10"`
	ConnectionBurst         int     `env:"CONNECTION_BURST" default:"20"`
	ProducerRateLimit       float64 `env:"PRODUCER_RATE_LIMIT" default:"50"`
	ProducerBurst           int     `env:"PRODUCER_BURST" default:"100"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// BridgeEnabled reports whether a bus URL is configured.
func (c *Config) BridgeEnabled() bool {
	return c.BridgeURL != ""
}

// BridgeScheme returns the bus URL scheme ("redis", "rediss" or "nats").
func (c *Config) BridgeScheme() string {
	u, err := url.Parse(c.BridgeURL)
	if err != nil {
		return ""
	}
	return u.Scheme
}

func validate(cfg *Config) error {
	if cfg.HeartbeatInterval <= 0 {
		return errors.New("HEARTBEAT_INTERVAL must be positive")
	}
	if cfg.ClientTimeout < 2*cfg.HeartbeatInterval {
		return fmt.Errorf("CLIENT_TIMEOUT (%v) must be at least twice HEARTBEAT_INTERVAL (%v)", cfg.ClientTimeout, cfg.HeartbeatInterval)
	}
	if cfg.WriteTimeout <= 0 {
		return errors.New("WRITE_TIMEOUT must be positive")
	}

	positive := []struct {
		name  string
		value int64
	}{
		{"MAX_MESSAGE_SIZE", cfg.MaxMessageSize},
		{"MAILBOX_SIZE", int64(cfg.MailboxSize)},
		{"MIRROR_QUEUE_SIZE", int64(cfg.MirrorQueueSize)},
		{"MAX_WEBSOCKET_CONNECTIONS", int64(cfg.MaxWebSocketConnections)},
		{"MAX_CONNECTIONS_PER_IP", int64(cfg.MaxConnectionsPerIP)},
		{"CONNECTION_BURST", int64(cfg.ConnectionBurst)},
		{"PRODUCER_BURST", int64(cfg.ProducerBurst)},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive", p.name)
		}
	}
	if cfg.ConnectionRatePerIP <= 0 || cfg.ProducerRateLimit <= 0 {
		return errors.New("CONNECTION_RATE_PER_IP and PRODUCER_RATE_LIMIT must be positive")
	}

	if cfg.BridgeEnabled() {
		switch cfg.BridgeScheme() {
		case "redis", "rediss", "nats":
		default:
			return fmt.Errorf("BRIDGE_URL must use redis://, rediss:// or nats://, got %q", cfg.BridgeURL)
		}
		if cfg.BridgeChannel == "" {
			return errors.New("BRIDGE_CHANNEL is required when BRIDGE_URL is set")
		}
	}

	return nil
}
