package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Addr(); got != "127.0.0.1:8000" {
		t.Errorf("Addr() = %q, want 127.0.0.1:8000", got)
	}
	if cfg.APIAddr != "127.0.0.1:8001" {
		t.Errorf("APIAddr = %q", cfg.APIAddr)
	}
	if cfg.MaxChatMessages != 100 {
		t.Errorf("MaxChatMessages = %d, want 100", cfg.MaxChatMessages)
	}
	if cfg.MessageTTL != 10*time.Second {
		t.Errorf("MessageTTL = %s, want 10s", cfg.MessageTTL)
	}
	if cfg.TimeOfBan != 2*time.Minute {
		t.Errorf("TimeOfBan = %s, want 2m", cfg.TimeOfBan)
	}
	if cfg.BotEnabled {
		t.Error("bot should be disabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PARLEY_HOST", "0.0.0.0")
	t.Setenv("PARLEY_PORT", "9100")
	t.Setenv("PARLEY_MESSAGE_TTL", "1m30s")
	t.Setenv("PARLEY_API_ADDR", "")
	t.Setenv("PARLEY_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Addr(); got != "0.0.0.0:9100" {
		t.Errorf("Addr() = %q", got)
	}
	if cfg.MessageTTL != 90*time.Second {
		t.Errorf("MessageTTL = %s, want 1m30s", cfg.MessageTTL)
	}
	if cfg.APIAddr != "" {
		t.Errorf("APIAddr = %q, want empty (disabled)", cfg.APIAddr)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel = %v, want debug", cfg.SlogLevel())
	}
}

func TestAPIAddrEmptyDisablesOpsAPI(t *testing.T) {
	// Unset takes the default.
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIAddr != "127.0.0.1:8001" {
		t.Errorf("unset: APIAddr = %q, want default", cfg.APIAddr)
	}

	// Set but empty means off, not the default.
	t.Setenv("PARLEY_API_ADDR", "")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIAddr != "" {
		t.Errorf("set empty: APIAddr = %q, want empty (disabled)", cfg.APIAddr)
	}

	// A real address passes through untouched.
	t.Setenv("PARLEY_API_ADDR", "0.0.0.0:9700")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIAddr != "0.0.0.0:9700" {
		t.Errorf("set: APIAddr = %q, want 0.0.0.0:9700", cfg.APIAddr)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() Config {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero port", func(c *Config) { c.Port = 0 }, "out of range"},
		{"empty host", func(c *Config) { c.Host = "" }, "host is required"},
		{"zero history cap", func(c *Config) { c.MaxChatMessages = 0 }, "must be positive"},
		{"negative ttl", func(c *Config) { c.MessageTTL = -time.Second }, "must be positive"},
		{"zero ban", func(c *Config) { c.TimeOfBan = 0 }, "must be positive"},
		{"empty database", func(c *Config) { c.UserDatabase = "" }, "path is required"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "unknown log level"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "unknown log format"},
		{"bot without name", func(c *Config) { c.BotEnabled = true; c.BotName = "" }, "bot name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate accepted a bad config")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
