// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Remote.BaseURL = "https://store.example.com"
	return cfg
}

func TestValidateDefaultsWithBaseURL(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate() on defaults = %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing base url", func(c *Config) { c.Remote.BaseURL = "" }},
		{"bad base url scheme", func(c *Config) { c.Remote.BaseURL = "ftp://x" }},
		{"missing database path", func(c *Config) { c.Database.Path = "" }},
		{"zero workers", func(c *Config) { c.Sync.Workers = 0 }},
		{"zero soft cap", func(c *Config) { c.Sync.SoftCap = 0 }},
		{"sub-second tick", func(c *Config) { c.Scheduler.TickInterval = 100 * time.Millisecond }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"telegram without token", func(c *Config) {
			c.Alerts.Telegram.Enabled = true
			c.Alerts.Telegram.ChatID = "123"
		}},
		{"telegram without chat id", func(c *Config) {
			c.Alerts.Telegram.Enabled = true
			c.Alerts.Telegram.BotToken = "tok"
		}},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() accepted invalid config")
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"REMOTE_BASE_URL", "remote.base_url"},
		{"FIREBASE_URL", "remote.base_url"}, // Legacy alias
		{"DUCKDB_PATH", "database.path"},
		{"SYNC_WORKERS", "sync.workers"},
		{"TELEGRAM_BOT_TOKEN", "alerts.telegram.bot_token"},
		{"HTTP_PORT", "server.port"},
		{"LOG_LEVEL", "logging.level"},
		{"PATH", ""}, // Unmapped vars are skipped
		{"HOME", ""},
	}

	for _, tt := range tests {
		if got := envTransformFunc(tt.env); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("REMOTE_BASE_URL", "https://env.example.com")
	t.Setenv("SYNC_WORKERS", "8")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CONFIG_PATH", "/nonexistent/config.yaml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Remote.BaseURL != "https://env.example.com" {
		t.Errorf("BaseURL = %q", cfg.Remote.BaseURL)
	}
	if cfg.Sync.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Sync.Workers)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
	// Untouched settings keep their defaults.
	if cfg.Server.Port != 8380 {
		t.Errorf("Port = %d, want default 8380", cfg.Server.Port)
	}
}

func TestServerAddr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 9000}
	if got := s.Addr(); got != "127.0.0.1:9000" {
		t.Errorf("Addr() = %q", got)
	}
}
