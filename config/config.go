package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BackendConfig describes a single PVR backend.
type BackendConfig struct {
	ID       int    `yaml:"id"`
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Priority int    `yaml:"priority"`
	Enabled  bool   `yaml:"enabled"`
}

// NumberingConfig holds the channel numbering policy switches.
type NumberingConfig struct {
	// SyncGroups keeps user group membership in sync with the backends.
	SyncGroups bool `yaml:"sync_groups"`
	// BackendOrder sorts channels by backend priority and backend number
	// instead of the local group numbers.
	BackendOrder bool `yaml:"backend_order"`
	// BackendNumbers addresses channels by the numbers the backend
	// reports. Only effective with a single enabled backend unless
	// BackendNumbersAlways is also set.
	BackendNumbers       bool `yaml:"backend_numbers"`
	BackendNumbersAlways bool `yaml:"backend_numbers_always"`
	// StartFromOne numbers every user group sequentially from 1.
	StartFromOne bool `yaml:"start_from_one"`
}

// Config holds the complete application configuration
type Config struct {
	// HTTP server settings
	HTTP struct {
		Address string `yaml:"address"`
		Port    string `yaml:"port"`
	} `yaml:"http"`

	// Storage settings
	Storage struct {
		Path string `yaml:"path"`
		// CacheDir holds cached backend lineups. Empty disables caching.
		CacheDir string `yaml:"cache_dir"`
	} `yaml:"storage"`

	// Sync settings
	Sync struct {
		Interval time.Duration `yaml:"interval"`
	} `yaml:"sync"`

	// Numbering policy
	Numbering NumberingConfig `yaml:"numbering"`

	// Backend sources
	Backends []BackendConfig `yaml:"backends"`

	// Resilience settings (embedded)
	Resilience ResilienceConfig `yaml:"resilience"`
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	var errors []string

	// Validate HTTP settings
	if c.HTTP.Address == "" {
		errors = append(errors, "HTTP address is required")
	}
	if c.HTTP.Port == "" {
		errors = append(errors, "HTTP port is required")
	}

	// Validate storage settings
	if c.Storage.Path == "" {
		errors = append(errors, "Storage path is required")
	}

	// Validate sync settings
	if c.Sync.Interval <= 0 {
		errors = append(errors, "Sync interval must be positive")
	}

	// Validate backends
	if len(c.Backends) == 0 {
		errors = append(errors, "At least one backend is required")
	}
	seen := make(map[int]bool, len(c.Backends))
	for i, b := range c.Backends {
		if b.ID <= 0 {
			errors = append(errors, fmt.Sprintf("Backend %d: id must be positive", i))
		} else if seen[b.ID] {
			errors = append(errors, fmt.Sprintf("Backend %d: duplicate id %d", i, b.ID))
		}
		seen[b.ID] = true
		if b.Name == "" {
			errors = append(errors, fmt.Sprintf("Backend %d: name is required", i))
		}
		if b.URL == "" {
			errors = append(errors, fmt.Sprintf("Backend %d (%s): URL is required", i, b.Name))
		}
	}

	// Validate resilience config
	if err := c.Resilience.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("Resilience config: %v", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// Default returns a Config with sensible default values
func Default() *Config {
	cfg := &Config{}

	// HTTP defaults
	cfg.HTTP.Address = "127.0.0.1"
	cfg.HTTP.Port = "8080"

	// Storage defaults
	cfg.Storage.Path = "pvr-manager.db"
	cfg.Storage.CacheDir = "cache"

	// Sync defaults
	cfg.Sync.Interval = 5 * time.Minute

	// Numbering defaults: keep groups in sync, local numbering
	cfg.Numbering.SyncGroups = true

	// Resilience defaults
	cfg.Resilience = *DefaultResilienceConfig()

	return cfg
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Load loads configuration from a file (if provided) and applies environment variable overrides
func Load() (*Config, error) {
	// Get config file path from environment variable
	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.yaml"
	}

	var cfg *Config

	// Try to load from file if it exists
	if _, err := os.Stat(configPath); err == nil {
		cfg, err = LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		// File doesn't exist, use defaults
		cfg = Default()
	}

	// Apply environment variable overrides
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) error {
	// HTTP settings
	if val := os.Getenv("HTTP_ADDRESS"); val != "" {
		cfg.HTTP.Address = val
	}
	if val := os.Getenv("HTTP_PORT"); val != "" {
		cfg.HTTP.Port = val
	}

	// Storage settings
	if val := os.Getenv("STORAGE_PATH"); val != "" {
		cfg.Storage.Path = val
	}
	if val := os.Getenv("CACHE_DIR"); val != "" {
		cfg.Storage.CacheDir = val
	}

	// Sync settings
	if val := os.Getenv("SYNC_INTERVAL"); val != "" {
		duration, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid SYNC_INTERVAL format (expected duration like '1h', '30m'): %w", err)
		}
		if duration <= 0 {
			return fmt.Errorf("SYNC_INTERVAL must be positive, got: %s", val)
		}
		cfg.Sync.Interval = duration
	}

	// Numbering policy
	for env, target := range map[string]*bool{
		"SYNC_GROUPS":            &cfg.Numbering.SyncGroups,
		"BACKEND_ORDER":          &cfg.Numbering.BackendOrder,
		"BACKEND_NUMBERS":        &cfg.Numbering.BackendNumbers,
		"BACKEND_NUMBERS_ALWAYS": &cfg.Numbering.BackendNumbersAlways,
		"START_FROM_ONE":         &cfg.Numbering.StartFromOne,
	} {
		val := os.Getenv(env)
		if val == "" {
			continue
		}
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid %s (expected a boolean): %w", env, err)
		}
		*target = parsed
	}

	// Resilience settings (use existing LoadFromEnv logic)
	resCfg, err := LoadFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load resilience config: %w", err)
	}
	cfg.Resilience = *resCfg

	return nil
}

// Print outputs the configuration to stdout
func (c *Config) Print() {
	fmt.Printf("httpAddress: %v\n", c.HTTP.Address)
	fmt.Printf("httpPort: %v\n", c.HTTP.Port)
	fmt.Printf("storagePath: %v\n", c.Storage.Path)
	fmt.Printf("cacheDir: %v\n", c.Storage.CacheDir)
	fmt.Printf("syncInterval: %v\n", c.Sync.Interval)
	fmt.Printf("syncGroups: %v\n", c.Numbering.SyncGroups)
	fmt.Printf("backendOrder: %v\n", c.Numbering.BackendOrder)
	fmt.Printf("backendNumbers: %v\n", c.Numbering.BackendNumbers)
	fmt.Printf("backendNumbersAlways: %v\n", c.Numbering.BackendNumbersAlways)
	fmt.Printf("startFromOne: %v\n", c.Numbering.StartFromOne)
	fmt.Printf("backends: %d\n", len(c.Backends))
	for _, b := range c.Backends {
		fmt.Printf("  - %d %s: %s (priority %d, enabled %v)\n", b.ID, b.Name, b.URL, b.Priority, b.Enabled)
	}
	fmt.Printf("logLevel: %v\n", c.Resilience.LogLevel)
}
