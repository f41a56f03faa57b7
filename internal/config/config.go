// Package config loads server settings from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every tunable of the chat server.
type Config struct {
	Host string `env:"PARLEY_HOST" envDefault:"127.0.0.1"`
	Port int    `env:"PARLEY_PORT" envDefault:"8000"`

	// APIAddr is the ops HTTP listener. Empty disables it. env.Parse
	// falls back to an envDefault even for a set-but-empty variable,
	// so the default is applied in Load only while the variable is
	// unset.
	APIAddr string `env:"PARLEY_API_ADDR"`

	MaxChatMessages int           `env:"PARLEY_MAX_CHAT_MESSAGES" envDefault:"100"`
	MessageTTL      time.Duration `env:"PARLEY_MESSAGE_TTL" envDefault:"10s"`
	TimeOfBan       time.Duration `env:"PARLEY_TIME_OF_BAN" envDefault:"120s"`
	UserDatabase    string        `env:"PARLEY_USER_DATABASE" envDefault:"users_database.json"`

	HistorySweepInterval time.Duration `env:"PARLEY_HISTORY_SWEEP_INTERVAL" envDefault:"10s"`
	BanSweepInterval     time.Duration `env:"PARLEY_BAN_SWEEP_INTERVAL" envDefault:"30s"`

	LogLevel  string `env:"PARLEY_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"PARLEY_LOG_FORMAT" envDefault:"text"`

	BotEnabled  bool          `env:"PARLEY_BOT" envDefault:"false"`
	BotName     string        `env:"PARLEY_BOT_NAME" envDefault:"parleybot"`
	BotInterval time.Duration `env:"PARLEY_BOT_INTERVAL" envDefault:"15s"`
}

// defaultAPIAddr is bound when PARLEY_API_ADDR is unset. An
// explicitly empty value disables the ops listener instead.
const defaultAPIAddr = "127.0.0.1:8001"

// Load reads .env when present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if _, set := os.LookupEnv("PARLEY_API_ADDR"); !set {
		cfg.APIAddr = defaultAPIAddr
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Addr is the chat listener's host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.MaxChatMessages < 1 {
		return fmt.Errorf("max chat messages must be positive, got %d", c.MaxChatMessages)
	}
	if c.MessageTTL <= 0 {
		return fmt.Errorf("message ttl must be positive, got %s", c.MessageTTL)
	}
	if c.TimeOfBan <= 0 {
		return fmt.Errorf("ban duration must be positive, got %s", c.TimeOfBan)
	}
	if c.HistorySweepInterval <= 0 || c.BanSweepInterval <= 0 {
		return fmt.Errorf("sweep intervals must be positive")
	}
	if c.UserDatabase == "" {
		return fmt.Errorf("user database path is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if c.BotEnabled {
		if c.BotName == "" {
			return fmt.Errorf("bot name is required when the bot is enabled")
		}
		if c.BotInterval <= 0 {
			return fmt.Errorf("bot interval must be positive, got %s", c.BotInterval)
		}
	}
	return nil
}

// SlogLevel maps the configured level onto slog.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
