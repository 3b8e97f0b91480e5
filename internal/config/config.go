// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

// Package config defines the engine's configuration structure and loads it
// from layered sources: built-in defaults, an optional YAML file and
// environment variables, with environment taking precedence.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration for the sync engine.
type Config struct {
	Remote    RemoteConfig    `koanf:"remote"`
	Database  DatabaseConfig  `koanf:"database"`
	Sync      SyncConfig      `koanf:"sync"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Alerts    AlertsConfig    `koanf:"alerts"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// RemoteConfig configures the remote telemetry store client.
type RemoteConfig struct {
	// BaseURL is the root of the store's REST surface.
	BaseURL string `koanf:"base_url"`
	// AuthToken is sent as the auth query parameter when non-empty.
	AuthToken string `koanf:"auth_token"`
	// Timeout bounds a single read request.
	Timeout time.Duration `koanf:"timeout"`
	// RetryDelay is the pause before the single transient-read retry.
	RetryDelay time.Duration `koanf:"retry_delay"`
	// ReadsPerSecond caps the client-side read rate. Zero disables.
	ReadsPerSecond float64 `koanf:"reads_per_second"`
}

// DatabaseConfig configures the embedded DuckDB store.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
}

// SyncConfig configures reconciliation behavior.
type SyncConfig struct {
	// Workers bounds the per-run device worker pool.
	Workers int `koanf:"workers"`
	// SoftCap limits records written per category during a soft sync.
	// Hard syncs are uncapped.
	SoftCap int `koanf:"soft_cap"`
	// DeviceTimeout bounds the reconciliation of a single device.
	DeviceTimeout time.Duration `koanf:"device_timeout"`
	// StaleAfter is the age of the newest successful sync log beyond which
	// a device counts as stale.
	StaleAfter time.Duration `koanf:"stale_after"`
	// LogRetention is how long sync logs and job run history are kept.
	LogRetention time.Duration `koanf:"log_retention"`
}

// SchedulerConfig configures the persisted job scheduler.
type SchedulerConfig struct {
	// TickInterval is how often job due-times are evaluated.
	TickInterval time.Duration `koanf:"tick_interval"`
	// SeedDefaults installs the standard job set on first start.
	SeedDefaults bool `koanf:"seed_defaults"`
}

// AlertsConfig configures outbound operational alerts.
type AlertsConfig struct {
	Telegram TelegramConfig `koanf:"telegram"`
	// ThrottlePath is the directory for the persistent throttle store.
	// Empty selects the in-memory store.
	ThrottlePath string `koanf:"throttle_path"`
	// OfflineAfter is how long without telemetry before a device counts as
	// offline for alerting.
	OfflineAfter time.Duration `koanf:"offline_after"`
	// LowBatteryThreshold is the percentage at or below which a low battery
	// alert fires.
	LowBatteryThreshold int `koanf:"low_battery_threshold"`
}

// TelegramConfig configures the Telegram alert channel.
type TelegramConfig struct {
	Enabled  bool          `koanf:"enabled"`
	BotToken string        `koanf:"bot_token"`
	ChatID   string        `koanf:"chat_id"`
	Timeout  time.Duration `koanf:"timeout"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Addr returns the host:port string the HTTP server binds to.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	u, err := url.Parse(c.Remote.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("remote.base_url %q is not a valid http(s) URL", c.Remote.BaseURL)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Sync.Workers < 1 {
		return fmt.Errorf("sync.workers must be at least 1, got %d", c.Sync.Workers)
	}
	if c.Sync.SoftCap < 1 {
		return fmt.Errorf("sync.soft_cap must be at least 1, got %d", c.Sync.SoftCap)
	}
	if c.Scheduler.TickInterval < time.Second {
		return fmt.Errorf("scheduler.tick_interval must be at least 1s, got %s", c.Scheduler.TickInterval)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	if c.Alerts.Telegram.Enabled {
		if c.Alerts.Telegram.BotToken == "" {
			return fmt.Errorf("alerts.telegram.bot_token is required when telegram alerts are enabled")
		}
		if c.Alerts.Telegram.ChatID == "" {
			return fmt.Errorf("alerts.telegram.chat_id is required when telegram alerts are enabled")
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console", "":
	default:
		return fmt.Errorf("logging.format %q must be json or console", c.Logging.Format)
	}

	return nil
}
