package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strata.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "database:\n  dsn: postgres://localhost/app\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.DSN != "postgres://localhost/app" {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver default = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.Database.MaxOpenConns != 10 || cfg.Database.MaxIdleConns != 5 {
		t.Errorf("pool defaults = %d/%d", cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	}
	if cfg.Schema.Path != "schema.yaml" {
		t.Errorf("schema path default = %q", cfg.Schema.Path)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
}

func TestLoad_FullFile(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: mysql
  dsn: app:secret@tcp(localhost:3306)/app
  max_open_conns: 20
  conn_max_lifetime: 5m
schema:
  path: db/schema.yaml
migration:
  lock_key: 42
  lock_timeout: 10s
  allow_destructive: true
auth:
  jwt_secret: hunter2
  jwt_expiry: 1h
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Driver != "mysql" || cfg.Database.MaxOpenConns != 20 {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Schema.Path != "db/schema.yaml" {
		t.Errorf("schema path = %q", cfg.Schema.Path)
	}
	if cfg.Migration.LockKey != 42 || !cfg.Migration.AllowDestructive {
		t.Errorf("migration = %+v", cfg.Migration)
	}
	if got := cfg.Migration.Timeout(); got != 10*time.Second {
		t.Errorf("lock timeout = %v", got)
	}
	if got := cfg.Auth.Expiry(); got != time.Hour {
		t.Errorf("jwt expiry = %v", got)
	}
	if got := cfg.Database.ConnLifetime(); got != 5*time.Minute {
		t.Errorf("conn lifetime = %v", got)
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("STRATA_TEST_DSN", "postgres://prod/app")
	path := writeConfig(t, "database:\n  dsn: ${STRATA_TEST_DSN}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.DSN != "postgres://prod/app" {
		t.Errorf("dsn = %q, want expanded value", cfg.Database.DSN)
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, "migration:\n  lock_timeout: soon\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected malformed duration to fail")
	}
	if !strings.Contains(err.Error(), "migration.lock_timeout") {
		t.Errorf("error should name the key: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected missing file to fail")
	}
}

func TestDurationFallbacks(t *testing.T) {
	cfg := Default()
	if got := cfg.Migration.Timeout(); got != 30*time.Second {
		t.Errorf("default lock timeout = %v", got)
	}
	if got := cfg.Auth.Expiry(); got != 24*time.Hour {
		t.Errorf("default jwt expiry = %v", got)
	}
	if got := (DatabaseConfig{}).ConnLifetime(); got != 30*time.Minute {
		t.Errorf("zero-value conn lifetime = %v", got)
	}
}
