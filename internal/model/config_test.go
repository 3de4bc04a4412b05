package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.PollInterval())
	assert.Equal(t, 20, cfg.Sync.PageSize)
	assert.Equal(t, 5, cfg.Breaker.MaxFailures)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigReadsFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte(`
api:
  base_url: https://crm.example.com/api
  user_id: u-1
sync:
  poll_interval_sec: 10
  page_size: 50
`), 0o600)
	require.NoError(t, err)

	t.Setenv("CRMNOTIFY_SYNC_PAGE_SIZE", "5")
	t.Setenv("CRMNOTIFY_API_TOKEN", "secret")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://crm.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, "u-1", cfg.API.UserID)
	assert.Equal(t, 10*time.Second, cfg.PollInterval())
	assert.Equal(t, 5, cfg.Sync.PageSize)
	assert.Equal(t, "secret", cfg.API.Token)
}

func TestSaveConfigRoundTripDropsToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultAppConfig()
	cfg.API.BaseURL = "http://backend/api"
	cfg.API.Token = "do-not-write"

	require.NoError(t, SaveConfig(path, cfg))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "do-not-write")

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://backend/api", loaded.API.BaseURL)
}
