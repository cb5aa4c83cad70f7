// Package config loads the strata configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before
// parsing, so secrets never have to live in the file itself.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level strata configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Schema    SchemaConfig    `yaml:"schema"`
	Migration MigrationConfig `yaml:"migration"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig selects the target database and its connection pool.
type DatabaseConfig struct {
	Driver          string `yaml:"driver"`
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
}

// SchemaConfig locates the desired schema document.
type SchemaConfig struct {
	Path string `yaml:"path"`
}

// MigrationConfig controls how plans are applied. A zero LockKey falls back
// to the built-in advisory lock key.
type MigrationConfig struct {
	LockKey          int64  `yaml:"lock_key"`
	LockTimeout      string `yaml:"lock_timeout"`
	AllowDestructive bool   `yaml:"allow_destructive"`
}

// AuthConfig controls session token verification.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	JWTExpiry string `yaml:"jwt_expiry"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: "30m",
		},
		Schema: SchemaConfig{Path: "schema.yaml"},
		Migration: MigrationConfig{
			LockTimeout: "30s",
		},
		Auth: AuthConfig{
			JWTExpiry: "24h",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads and parses a YAML configuration file on top of the defaults.
// Environment variables referenced as ${VAR_NAME} are expanded before
// parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.validateDurations(); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// validateDurations fails load on malformed duration strings so they do not
// surface later as silent fallbacks.
func (c *Config) validateDurations() error {
	fields := map[string]string{
		"database.conn_max_lifetime": c.Database.ConnMaxLifetime,
		"migration.lock_timeout":     c.Migration.LockTimeout,
		"auth.jwt_expiry":            c.Auth.JWTExpiry,
	}
	for key, val := range fields {
		if val == "" {
			continue
		}
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("%s: %q is not a duration (use Go format: 30s, 15m, 1h)", key, val)
		}
	}
	return nil
}

func duration(val string, fallback time.Duration) time.Duration {
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}

// ConnLifetime returns the parsed pool connection lifetime.
func (d DatabaseConfig) ConnLifetime() time.Duration {
	return duration(d.ConnMaxLifetime, 30*time.Minute)
}

// Timeout returns the parsed advisory lock timeout.
func (m MigrationConfig) Timeout() time.Duration {
	return duration(m.LockTimeout, 30*time.Second)
}

// Expiry returns the parsed session token lifetime.
func (a AuthConfig) Expiry() time.Duration {
	return duration(a.JWTExpiry, 24*time.Hour)
}
