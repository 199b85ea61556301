package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: sqlite
  dsn: "file::memory:"
auth:
  jwt_secret: secret
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Env != "local" {
		t.Errorf("Env = %q", cfg.Env)
	}
	if cfg.HTTPServer.Address != "localhost:8080" {
		t.Errorf("Address = %q", cfg.HTTPServer.Address)
	}
	if !cfg.Tracking.RejectStaleUpdates {
		t.Error("RejectStaleUpdates should default to true")
	}
	if cfg.Tracking.LockWait != 2*time.Second {
		t.Errorf("LockWait = %s", cfg.Tracking.LockWait)
	}
	if cfg.Tracking.IdleTimeout != 2*time.Hour {
		t.Errorf("IdleTimeout = %s", cfg.Tracking.IdleTimeout)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: sqlite
  dsn: "file::memory:"
auth:
  jwt_secret: secret
`)
	t.Setenv("SERVICE_TIMEZONE", "Asia/Colombo")
	t.Setenv("TRACKING_REJECT_STALE", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		t.Fatal(err)
	}
	if loc.String() != "Asia/Colombo" {
		t.Errorf("Location = %s", loc)
	}
	if cfg.Tracking.RejectStaleUpdates {
		t.Error("env override not applied")
	}
}

func TestLoadRejectsUnknownTimezone(t *testing.T) {
	path := writeConfig(t, `
timezone: Mars/Olympus
storage:
  dsn: x
auth:
  jwt_secret: secret
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}
