package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Queue.DispatchInterval != 2*time.Second {
		t.Errorf("DispatchInterval = %v, want 2s", cfg.Queue.DispatchInterval)
	}
	if cfg.Queue.MaxBackoff != 5*time.Minute {
		t.Errorf("MaxBackoff = %v, want 5m", cfg.Queue.MaxBackoff)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  port: 9090
database:
  driver: postgres
  dsn: postgres://spool@localhost/spool?sslmode=disable
queue:
  max_attempts: 5
  backoff_base: 500ms
  max_backoff: 1m
webhooks:
  - name: ops
    url: http://hooks.local/print
    events: [job_failed]
logging:
  level: debug
  format: text
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Driver = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.Queue.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.Queue.MaxAttempts)
	}
	if cfg.Queue.BackoffBase != 500*time.Millisecond {
		t.Errorf("BackoffBase = %v, want 500ms", cfg.Queue.BackoffBase)
	}
	// Unset keys keep their defaults.
	if cfg.Queue.DispatchInterval != 2*time.Second {
		t.Errorf("DispatchInterval = %v, want default 2s", cfg.Queue.DispatchInterval)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].Events[0] != "job_failed" {
		t.Errorf("Webhooks = %+v", cfg.Webhooks)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SPOOL_PORT", "7070")
	t.Setenv("SPOOL_MAX_ATTEMPTS", "7")
	t.Setenv("SPOOL_LOG_LEVEL", "warn")

	cfg := LoadFromEnv()
	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Queue.MaxAttempts != 7 {
		t.Errorf("MaxAttempts = %d, want 7", cfg.Queue.MaxAttempts)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Level = %q, want warn", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }},
		{"relative device prefix", func(c *Config) { c.Printers.DevicePrefixes = []string{"dev/usb"} }},
		{"zero dispatch interval", func(c *Config) { c.Queue.DispatchInterval = 0 }},
		{"zero max attempts", func(c *Config) { c.Queue.MaxAttempts = 0 }},
		{"negative max backoff", func(c *Config) { c.Queue.MaxBackoff = -time.Second }},
		{"webhook without url", func(c *Config) { c.Webhooks = []WebhookTarget{{Name: "x"}} }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
