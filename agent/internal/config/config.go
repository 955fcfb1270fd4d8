// Package config loads and persists the agent's JSON configuration. The
// file is read-write: the agent stamps last_check back into it after every
// completed cycle.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	ServerURL     string `json:"server_url"`
	SecretKey     string `json:"secret_key"`
	CheckInterval int    `json:"check_interval"`
	DownloadDir   string `json:"download_dir"`
	AutoUpdate    bool   `json:"auto_update"`
	LastCheck     string `json:"last_check,omitempty"`

	path string
}

// Default returns the stock configuration written on first run. The secret
// key is intentionally empty; the agent refuses to start until it is set.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		ServerURL:     "http://localhost:8443",
		SecretKey:     "",
		CheckInterval: 3600,
		DownloadDir:   filepath.Join(home, "downloads"),
		AutoUpdate:    true,
	}
}

// DefaultPath is where the agent looks when no --config flag is given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".fleetgate-agent", "config.json")
}

// Load reads the config file at path, creating it with defaults when it
// does not exist yet.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			cfg.path = path
			if err := cfg.Save(); err != nil {
				return nil, fmt.Errorf("write default config: %w", err)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	cfg.path = path
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the config back to its source path.
func (c *Config) Save() error {
	if c.path == "" {
		c.path = DefaultPath()
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.path, data, 0o600)
}

// Path reports where the config was loaded from.
func (c *Config) Path() string {
	return c.path
}

// TouchLastCheck stamps the current time and persists the config.
func (c *Config) TouchLastCheck() error {
	c.LastCheck = time.Now().UTC().Format(time.RFC3339)
	return c.Save()
}

// Validate rejects configs the agent cannot run with.
func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("secret_key is not set in %s", c.path)
	}
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is not set in %s", c.path)
	}
	if c.CheckInterval < 1 {
		return fmt.Errorf("check_interval must be at least 1 second")
	}
	return nil
}
