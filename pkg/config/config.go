// Package config loads and validates the council.yaml configuration file.
package config

import (
	"fmt"
	"time"

	"github.com/councilkit/council/pkg/models"
)

// Config is the complete runtime configuration.
type Config struct {
	Server    ServerConfig                         `yaml:"server"`
	Database  DatabaseConfig                       `yaml:"database"`
	Providers map[models.ProviderID]ProviderConfig `yaml:"providers"`
	Deadlines DeadlinesConfig                      `yaml:"deadlines"`
	Retention RetentionConfig                      `yaml:"retention"`
	Runs      RunsConfig                           `yaml:"runs"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL settings. Disabled means sessions live
// in memory only.
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ProviderConfig holds per-provider pacing limits.
type ProviderConfig struct {
	RateLimit models.RateLimit `yaml:",inline"`
}

// DeadlinesConfig holds the default run budgets in milliseconds. Per-run
// overrides take precedence.
type DeadlinesConfig struct {
	OverallMS int64 `yaml:"overall_ms"`
	Phase1MS  int64 `yaml:"phase1_ms"`
	Phase2MS  int64 `yaml:"phase2_ms"`
	Phase3MS  int64 `yaml:"phase3_ms"`
}

// RetentionConfig holds session garbage collection settings. Durations are
// Go duration strings ("24h", "10m").
type RetentionConfig struct {
	SessionTTL    string `yaml:"session_ttl"`
	SweepInterval string `yaml:"sweep_interval"`
}

// RunsConfig holds run-level limits.
type RunsConfig struct {
	MaxConcurrent int64 `yaml:"max_concurrent"`
	TokenBudget   int   `yaml:"token_budget"`
}

// Defaults returns the built-in configuration applied under any loaded
// file.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "council",
			Database: "council",
			SSLMode:  "disable",
		},
		Providers: map[models.ProviderID]ProviderConfig{},
		Deadlines: DeadlinesConfig{
			OverallMS: 180_000,
			Phase1MS:  60_000,
			Phase2MS:  30_000,
			Phase3MS:  60_000,
		},
		Retention: RetentionConfig{
			SessionTTL:    "24h",
			SweepInterval: "10m",
		},
		Runs: RunsConfig{
			MaxConcurrent: 16,
			TokenBudget:   250,
		},
	}
}

// TTL parses the session retention TTL.
func (c *RetentionConfig) TTL() (time.Duration, error) {
	return time.ParseDuration(c.SessionTTL)
}

// SweepEvery parses the sweep interval.
func (c *RetentionConfig) SweepEvery() (time.Duration, error) {
	return time.ParseDuration(c.SweepInterval)
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr must not be empty")
	}
	if c.Database.Enabled {
		if c.Database.Host == "" || c.Database.Database == "" {
			return fmt.Errorf("database.host and database.database are required when the database is enabled")
		}
	}
	for id, p := range c.Providers {
		if p.RateLimit.RPS < 0 || p.RateLimit.Burst < 0 || p.RateLimit.Concurrency < 0 {
			return fmt.Errorf("providers.%s: rate limits must not be negative", id)
		}
	}
	if c.Runs.MaxConcurrent <= 0 {
		return fmt.Errorf("runs.max_concurrent must be positive")
	}
	if _, err := time.ParseDuration(c.Retention.SessionTTL); err != nil {
		return fmt.Errorf("retention.session_ttl: %w", err)
	}
	if _, err := time.ParseDuration(c.Retention.SweepInterval); err != nil {
		return fmt.Errorf("retention.sweep_interval: %w", err)
	}
	return nil
}

// RateLimits extracts the provider pacer limits.
func (c *Config) RateLimits() map[models.ProviderID]models.RateLimit {
	limits := make(map[models.ProviderID]models.RateLimit, len(c.Providers))
	for id, p := range c.Providers {
		limits[id] = p.RateLimit
	}
	return limits
}

// OverallTimeout returns the configured overall run budget.
func (c *Config) OverallTimeout() time.Duration {
	return time.Duration(c.Deadlines.OverallMS) * time.Millisecond
}
