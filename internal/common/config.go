// Package common provides shared utilities for syncplay
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for syncplay
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Queue       QueueConfig   `toml:"queue"`
	Quota       QuotaConfig   `toml:"quota"`
	Reaper      ReaperConfig  `toml:"reaper"`
	Logging     LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds the SurrealDB connection used by the Job Store,
// Quota Ledger, Task Queue, and Token Store.
type StorageConfig struct {
	Address   string `toml:"address"`   // ws(s):// RPC endpoint
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// QueueConfig holds task queue / scheduler polling settings.
type QueueConfig struct {
	BrokerURL     string `toml:"broker_url"` // falls back to Storage.Address when empty
	PollInterval  string `toml:"poll_interval"`
	VisibilityTTL string `toml:"visibility_ttl"` // how long a dequeued-but-unacked message stays invisible
	WorkerCount   int    `toml:"worker_count"`
}

// GetPollInterval parses and returns the broker poll interval.
func (c *QueueConfig) GetPollInterval() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// GetVisibilityTTL parses and returns the in-flight visibility timeout.
func (c *QueueConfig) GetVisibilityTTL() time.Duration {
	d, err := time.ParseDuration(c.VisibilityTTL)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// QuotaConfig holds the shared per-day quota's settings (§4.A, §4.G).
// ReferenceTimezone sets the ledger's day and Limit is what
// GET /api/youtube_quota_usage reports. Admission does not read this
// struct: internal/intake applies its own QuotaLimit, QuotaBuffer and
// per-song cost constants, so Buffer and the CostPerSong fields are
// not read anywhere.
type QuotaConfig struct {
	Limit             int    `toml:"limit"`                  // QUOTA_LIMIT
	Buffer            int    `toml:"buffer"`                 // QUOTA_BUFFER
	CostPerSongSPToYT int    `toml:"cost_per_song_sp_to_yt"` // 1 list + 50 insert
	CostPerSongYTToSP int    `toml:"cost_per_song_yt_to_sp"`
	ReferenceTimezone string `toml:"reference_timezone"` // provider's billing-day timezone
}

// Ceiling returns the reservable ceiling (Limit - Buffer).
func (c *QuotaConfig) Ceiling() int {
	return c.Limit - c.Buffer
}

// Location parses ReferenceTimezone, falling back to UTC.
func (c *QuotaConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.ReferenceTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ReaperConfig holds the periodic sweep cutoffs (§4.I, §9 open question).
type ReaperConfig struct {
	Schedule   string `toml:"schedule"`    // cron expression, default every 15 minutes
	StaleAfter string `toml:"stale_after"` // duration string, default "1h"
	GCAfter    string `toml:"gc_after"`    // duration string, default "5m"
}

// GetStaleAfter parses and returns the stale-job cutoff.
func (c *ReaperConfig) GetStaleAfter() time.Duration {
	d, err := time.ParseDuration(c.StaleAfter)
	if err != nil {
		return time.Hour
	}
	return d
}

// GetGCAfter parses and returns the terminal-job retention cutoff.
func (c *ReaperConfig) GetGCAfter() time.Duration {
	d, err := time.ParseDuration(c.GCAfter)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Address:   "ws://127.0.0.1:8000/rpc",
			Namespace: "syncplay",
			Database:  "syncplay",
			Username:  "root",
			Password:  "root",
		},
		Queue: QueueConfig{
			PollInterval:  "500ms",
			VisibilityTTL: "5m",
			WorkerCount:   4,
		},
		Quota: QuotaConfig{
			Limit:             10000,
			Buffer:            500,
			CostPerSongSPToYT: 51,
			CostPerSongYTToSP: 1,
			ReferenceTimezone: "America/New_York",
		},
		Reaper: ReaperConfig{
			Schedule:   "*/15 * * * *",
			StaleAfter: "1h",
			GCAfter:    "5m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// DATABASE_URL and REDIS_URL are the names called out in the external
// interface table; the rest use the SYNCPLAY_ prefix.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SYNCPLAY_ENV"); env != "" {
		config.Environment = env
	}
	if host := os.Getenv("SYNCPLAY_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SYNCPLAY_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if level := os.Getenv("SYNCPLAY_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		config.Storage.Address = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		config.Queue.BrokerURL = v
	}

	if v := os.Getenv("SYNCPLAY_QUOTA_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Quota.Limit = n
		}
	}
	if v := os.Getenv("SYNCPLAY_QUOTA_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Quota.Buffer = n
		}
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// BrokerAddress returns the queue broker's connection string, falling back
// to the storage address when no dedicated broker URL is configured (the
// Task Queue persists onto the same SurrealDB instance as the Job Store).
func (c *Config) BrokerAddress() string {
	if c.Queue.BrokerURL != "" {
		return c.Queue.BrokerURL
	}
	return c.Storage.Address
}
