// Package config loads and validates service configuration from the
// environment (with optional .env support for local development).
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"

	"github.com/wisdom-muso/laso/internal/domain"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	// Ingest validation
	MaxFutureSkew time.Duration `env:"MAX_FUTURE_SKEW" default:"2m"`

	// Alert creation threshold: readings at or above this category raise an alert.
	AlertThreshold string `env:"ALERT_THRESHOLD" default:"ELEVATED"`

	// Subscriber limits
	MaxWebSocketConnections int `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int `env:"MAX_CONNECTIONS_PER_IP" default:"32"`
	SubscriberQueueSize     int `env:"SUBSCRIBER_QUEUE_SIZE" default:"16"`

	// Keep-alive
	PingInterval time.Duration `env:"PING_INTERVAL" default:"30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" default:"5m"`
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

func validate(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if _, err := domain.ParseCategory(cfg.AlertThreshold); err != nil {
		return fmt.Errorf("ALERT_THRESHOLD: %w", err)
	}
	if cfg.SubscriberQueueSize < 1 {
		return fmt.Errorf("SUBSCRIBER_QUEUE_SIZE must be at least 1")
	}
	if cfg.MaxFutureSkew < 0 {
		return fmt.Errorf("MAX_FUTURE_SKEW must not be negative")
	}
	if cfg.IdleTimeout <= cfg.PingInterval {
		return fmt.Errorf("IDLE_TIMEOUT must be longer than PING_INTERVAL")
	}
	return nil
}

// AlertThresholdCategory returns the parsed alert threshold. Load has already
// validated it.
func (c *Config) AlertThresholdCategory() domain.Category {
	category, _ := domain.ParseCategory(c.AlertThreshold)
	return category
}
