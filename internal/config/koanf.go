// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in priority order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/fleetsync/config.yaml",
	"/etc/fleetsync/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the built-in defaults, applied before file and
// environment layers.
func defaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			BaseURL:        "",
			AuthToken:      "",
			Timeout:        15 * time.Second,
			RetryDelay:     500 * time.Millisecond,
			ReadsPerSecond: 0, // Uncapped
		},
		Database: DatabaseConfig{
			Path:      "/data/fleetsync.duckdb",
			MaxMemory: "512MB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Sync: SyncConfig{
			Workers:       4,
			SoftCap:       100,
			DeviceTimeout: 2 * time.Minute,
			StaleAfter:    30 * time.Minute,
			LogRetention:  14 * 24 * time.Hour,
		},
		Scheduler: SchedulerConfig{
			TickInterval: 15 * time.Second,
			SeedDefaults: true,
		},
		Alerts: AlertsConfig{
			Telegram: TelegramConfig{
				Enabled: false,
				Timeout: 10 * time.Second,
			},
			ThrottlePath:        "", // In-memory throttle store
			OfflineAfter:        10 * time.Minute,
			LowBatteryThreshold: 20,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8380,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first config file that exists, or empty.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables return empty and are skipped, so arbitrary environment
// noise never pollutes the configuration.
//
// Examples:
//   - REMOTE_BASE_URL  -> remote.base_url
//   - DUCKDB_PATH      -> database.path
//   - SYNC_WORKERS     -> sync.workers
//   - HTTP_PORT        -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Remote store mappings
		"remote_base_url":         "remote.base_url",
		"remote_auth_token":       "remote.auth_token",
		"remote_timeout":          "remote.timeout",
		"remote_retry_delay":      "remote.retry_delay",
		"remote_reads_per_second": "remote.reads_per_second",
		// Legacy names from the first deployment generation
		"firebase_url":  "remote.base_url",
		"firebase_auth": "remote.auth_token",

		// Database mappings
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Sync mappings
		"sync_workers":        "sync.workers",
		"sync_soft_cap":       "sync.soft_cap",
		"sync_device_timeout": "sync.device_timeout",
		"sync_stale_after":    "sync.stale_after",
		"sync_log_retention":  "sync.log_retention",

		// Scheduler mappings
		"scheduler_tick_interval": "scheduler.tick_interval",
		"scheduler_seed_defaults": "scheduler.seed_defaults",

		// Alert mappings
		"telegram_enabled":      "alerts.telegram.enabled",
		"telegram_bot_token":    "alerts.telegram.bot_token",
		"telegram_chat_id":      "alerts.telegram.chat_id",
		"telegram_timeout":      "alerts.telegram.timeout",
		"alert_throttle_path":   "alerts.throttle_path",
		"alert_offline_after":   "alerts.offline_after",
		"alert_low_battery_pct": "alerts.low_battery_threshold",

		// Server mappings
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
