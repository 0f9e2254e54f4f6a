package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port            int
	NatsURL         string
	NatsToken       string
	DatabaseURL     string
	RedisURL        string
	LogLevel        string
	AnthropicAPIKey string
	AnthropicModel  string
	SlackBotToken   string
	SlackChannel    string
	APIToken        string

	OracleWindow          time.Duration
	OracleTimeout         time.Duration
	ApplyTimeout          time.Duration
	GatewayTimeout        time.Duration
	MaxGenerationAttempts int
	EventWorkers          int
}

func Load() Config {
	return Config{
		Port:            envInt("MONIKER_PORT", 8760),
		NatsURL:         envStr("NATS_URL", "nats://hermes:4222"),
		NatsToken:       envStr("NATS_TOKEN", ""),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		RedisURL:        envStr("REDIS_URL", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("MONIKER_MODEL", "claude-sonnet-4-20250514"),
		SlackBotToken:   envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:    envStr("SLACK_ALERT_CHANNEL", ""),
		APIToken:        envStr("MONIKER_API_TOKEN", ""),

		OracleWindow:          envDuration("ORACLE_WINDOW", 5*time.Second),
		OracleTimeout:         envDuration("ORACLE_TIMEOUT", 2*time.Second),
		ApplyTimeout:          envDuration("APPLY_TIMEOUT", 5*time.Second),
		GatewayTimeout:        envDuration("GATEWAY_TIMEOUT", 3*time.Second),
		MaxGenerationAttempts: envInt("MAX_GENERATION_ATTEMPTS", 64),
		EventWorkers:          envInt("EVENT_WORKERS", 64),
	}
}

// Validate reports settings the service cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, errors.New("MONIKER_PORT must be a valid port"))
	}
	if c.MaxGenerationAttempts <= 0 {
		errs = append(errs, errors.New("MAX_GENERATION_ATTEMPTS must be positive"))
	}
	if c.EventWorkers <= 0 {
		errs = append(errs, errors.New("EVENT_WORKERS must be positive"))
	}
	return errors.Join(errs...)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
