// Package config loads and persists dogtracker client configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all dogtracker client configuration
type Config struct {
	// API base URL all gateway calls are relative to. A deployment-time
	// proxy is expected to forward the default relative path to the API.
	APIBase string `json:"apiBase"`

	// Directory holding the local database (cache, outbox, plans)
	DataDir string `json:"dataDir"`

	LogLevel string `json:"logLevel"`

	// Network probe settings
	Probe ProbeConfig `json:"probe"`
}

// ProbeConfig controls the health probe and outbox replay timing
type ProbeConfig struct {
	IntervalSeconds      int `json:"intervalSeconds"`
	TimeoutSeconds       int `json:"timeoutSeconds"`
	ReplayTimeoutSeconds int `json:"replayTimeoutSeconds"`
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		APIBase:  "/api",
		DataDir:  "./data",
		LogLevel: "info",
		Probe: ProbeConfig{
			IntervalSeconds:      10,
			TimeoutSeconds:       5,
			ReplayTimeoutSeconds: 10,
		},
	}
}

// Load reads config from a JSON file. A missing file is not an error;
// defaults (plus environment overrides) are returned instead.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv()

	if cfg.Probe.IntervalSeconds <= 0 {
		cfg.Probe.IntervalSeconds = 10
	}
	if cfg.Probe.TimeoutSeconds <= 0 {
		cfg.Probe.TimeoutSeconds = 5
	}
	if cfg.Probe.ReplayTimeoutSeconds <= 0 {
		cfg.Probe.ReplayTimeoutSeconds = 10
	}

	// Ensure data directory exists
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	return cfg, nil
}

// applyEnv overlays DOGTRACKER_* environment variables, loading a .env
// file first when one is present.
func (c *Config) applyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("DOGTRACKER_API_BASE"); v != "" {
		c.APIBase = v
	}
	if v := os.Getenv("DOGTRACKER_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("DOGTRACKER_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DOGTRACKER_PROBE_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Probe.IntervalSeconds = n
		}
	}
}

// Save writes config to a JSON file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0640)
}

// DBPath returns the path of the local database file
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "dogtracker.db")
}
