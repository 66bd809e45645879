package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Backends = []BackendConfig{
		{ID: 1, Name: "mythtv", URL: "http://127.0.0.1:6544", Priority: 1, Enabled: true},
	}
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.HTTP.Address != "127.0.0.1" || cfg.HTTP.Port != "8080" {
		t.Errorf("HTTP defaults = %s:%s, want 127.0.0.1:8080", cfg.HTTP.Address, cfg.HTTP.Port)
	}
	if cfg.Storage.Path == "" {
		t.Error("expected a default storage path")
	}
	if cfg.Storage.CacheDir == "" {
		t.Error("expected a default lineup cache directory")
	}
	if cfg.Sync.Interval != 5*time.Minute {
		t.Errorf("Sync.Interval = %v, want 5m", cfg.Sync.Interval)
	}
	if !cfg.Numbering.SyncGroups {
		t.Error("expected group sync to default to enabled")
	}
	if cfg.Numbering.BackendNumbers || cfg.Numbering.StartFromOne {
		t.Error("expected numbering overrides to default to disabled")
	}
	if cfg.Resilience.LogLevel != "INFO" {
		t.Errorf("LogLevel = %s, want INFO", cfg.Resilience.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		if err := validConfig().Validate(); err != nil {
			t.Fatalf("Validate() error: %v", err)
		}
	})

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing HTTP address",
			mutate:  func(c *Config) { c.HTTP.Address = "" },
			wantErr: "HTTP address is required",
		},
		{
			name:    "missing storage path",
			mutate:  func(c *Config) { c.Storage.Path = "" },
			wantErr: "Storage path is required",
		},
		{
			name:    "non-positive sync interval",
			mutate:  func(c *Config) { c.Sync.Interval = 0 },
			wantErr: "Sync interval must be positive",
		},
		{
			name:    "no backends",
			mutate:  func(c *Config) { c.Backends = nil },
			wantErr: "At least one backend is required",
		},
		{
			name: "duplicate backend id",
			mutate: func(c *Config) {
				c.Backends = append(c.Backends, BackendConfig{ID: 1, Name: "dup", URL: "http://dup"})
			},
			wantErr: "duplicate id 1",
		},
		{
			name: "backend without URL",
			mutate: func(c *Config) {
				c.Backends = []BackendConfig{{ID: 1, Name: "mythtv"}}
			},
			wantErr: "URL is required",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Resilience.LogLevel = "LOUD" },
			wantErr: "LogLevel must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Run("parses yaml over defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `
http:
  address: 0.0.0.0
  port: "9090"
storage:
  path: /var/lib/pvr/groups.db
sync:
  interval: 1m
numbering:
  sync_groups: false
  backend_numbers: true
backends:
  - id: 1
    name: mythtv
    url: http://127.0.0.1:6544
    priority: 2
    enabled: true
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}

		cfg, err := LoadFromFile(path)
		if err != nil {
			t.Fatalf("LoadFromFile() error: %v", err)
		}

		if cfg.HTTP.Address != "0.0.0.0" || cfg.HTTP.Port != "9090" {
			t.Errorf("HTTP = %s:%s, want 0.0.0.0:9090", cfg.HTTP.Address, cfg.HTTP.Port)
		}
		if cfg.Storage.Path != "/var/lib/pvr/groups.db" {
			t.Errorf("Storage.Path = %s", cfg.Storage.Path)
		}
		if cfg.Sync.Interval != time.Minute {
			t.Errorf("Sync.Interval = %v, want 1m", cfg.Sync.Interval)
		}
		if cfg.Numbering.SyncGroups {
			t.Error("expected sync_groups false from the file")
		}
		if !cfg.Numbering.BackendNumbers {
			t.Error("expected backend_numbers true from the file")
		}
		if len(cfg.Backends) != 1 || cfg.Backends[0].Name != "mythtv" {
			t.Errorf("Backends = %+v", cfg.Backends)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Fatal("expected an error for a missing file")
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("http: ["), 0644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}
		if _, err := LoadFromFile(path); err == nil {
			t.Fatal("expected a parse error")
		}
	})
}

func TestEnvOverrides(t *testing.T) {
	t.Run("applies overrides", func(t *testing.T) {
		t.Setenv("HTTP_PORT", "7070")
		t.Setenv("STORAGE_PATH", "/tmp/pvr.db")
		t.Setenv("CACHE_DIR", "/tmp/pvr-cache")
		t.Setenv("SYNC_INTERVAL", "30s")
		t.Setenv("START_FROM_ONE", "true")
		t.Setenv("SYNC_GROUPS", "false")
		t.Setenv("LOG_LEVEL", "debug")

		cfg := validConfig()
		if err := applyEnvOverrides(cfg); err != nil {
			t.Fatalf("applyEnvOverrides() error: %v", err)
		}

		if cfg.HTTP.Port != "7070" {
			t.Errorf("HTTP.Port = %s, want 7070", cfg.HTTP.Port)
		}
		if cfg.Storage.Path != "/tmp/pvr.db" {
			t.Errorf("Storage.Path = %s, want /tmp/pvr.db", cfg.Storage.Path)
		}
		if cfg.Storage.CacheDir != "/tmp/pvr-cache" {
			t.Errorf("Storage.CacheDir = %s, want /tmp/pvr-cache", cfg.Storage.CacheDir)
		}
		if cfg.Sync.Interval != 30*time.Second {
			t.Errorf("Sync.Interval = %v, want 30s", cfg.Sync.Interval)
		}
		if !cfg.Numbering.StartFromOne || cfg.Numbering.SyncGroups {
			t.Errorf("Numbering = %+v, want start-from-one on and sync off", cfg.Numbering)
		}
		if cfg.Resilience.LogLevel != "DEBUG" {
			t.Errorf("LogLevel = %s, want DEBUG", cfg.Resilience.LogLevel)
		}
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		t.Setenv("SYNC_INTERVAL", "soon")
		if err := applyEnvOverrides(validConfig()); err == nil {
			t.Error("expected an error for an invalid SYNC_INTERVAL")
		}
	})

	t.Run("rejects invalid booleans", func(t *testing.T) {
		t.Setenv("BACKEND_ORDER", "maybe")
		if err := applyEnvOverrides(validConfig()); err == nil {
			t.Error("expected an error for an invalid BACKEND_ORDER")
		}
	})
}

func TestResilienceLoadFromEnv(t *testing.T) {
	t.Run("defaults without env", func(t *testing.T) {
		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("LoadFromEnv() error: %v", err)
		}
		if cfg.CBFailureThreshold != 5 || cfg.CBTimeout != 30*time.Second || cfg.CBHalfOpenRequests != 1 {
			t.Errorf("defaults = %+v", cfg)
		}
	})

	t.Run("parses overrides", func(t *testing.T) {
		t.Setenv("CB_FAILURE_THRESHOLD", "3")
		t.Setenv("CB_TIMEOUT", "10s")

		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("LoadFromEnv() error: %v", err)
		}
		if cfg.CBFailureThreshold != 3 || cfg.CBTimeout != 10*time.Second {
			t.Errorf("overrides = %+v", cfg)
		}
	})

	t.Run("collects errors", func(t *testing.T) {
		t.Setenv("CB_FAILURE_THRESHOLD", "-1")
		t.Setenv("CB_TIMEOUT", "fast")

		_, err := LoadFromEnv()
		if err == nil {
			t.Fatal("expected an error")
		}
		if !strings.Contains(err.Error(), "CB_FAILURE_THRESHOLD") || !strings.Contains(err.Error(), "CB_TIMEOUT") {
			t.Errorf("error = %v, want both variables mentioned", err)
		}
	})
}
