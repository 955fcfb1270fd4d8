package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8443", cfg.ServerURL)
	assert.Equal(t, 3600, cfg.CheckInterval)
	assert.True(t, cfg.AutoUpdate)
	assert.Empty(t, cfg.SecretKey)

	// The default file must now exist on disk.
	_, err = os.Stat(path)
	require.NoError(t, err)

	// A fresh default config is not runnable until a key is set.
	assert.Error(t, cfg.Validate())
}

func TestLoadExistingConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server_url": "https://gate.example.com",
		"secret_key": "abc123",
		"check_interval": 600,
		"download_dir": "/opt/payloads",
		"auto_update": false
	}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://gate.example.com", cfg.ServerURL)
	assert.Equal(t, "abc123", cfg.SecretKey)
	assert.Equal(t, 600, cfg.CheckInterval)
	assert.Equal(t, "/opt/payloads", cfg.DownloadDir)
	assert.False(t, cfg.AutoUpdate)
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsMalformedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestTouchLastCheckPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, cfg.TouchLastCheck())

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.NotEmpty(t, reloaded.LastCheck)

	stamp, err := time.Parse(time.RFC3339, reloaded.LastCheck)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), stamp, time.Minute)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.SecretKey = "k"
	assert.NoError(t, cfg.Validate())

	cfg.CheckInterval = 0
	assert.Error(t, cfg.Validate())

	cfg.CheckInterval = 60
	cfg.ServerURL = ""
	assert.Error(t, cfg.Validate())
}
