package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("FINNHUB_API_KEY", "")
	t.Setenv("FOLIOWATCH_FINNHUB_TOKEN", "")
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "", cfg.Finnhub.Token)
	assert.Equal(t, "wss://ws.finnhub.io", cfg.Finnhub.WSURL)
	assert.Equal(t, 0, cfg.Stream.ReconnectLimit)
	assert.Equal(t, 5*time.Second, cfg.Stream.ReconnectDelay)
	assert.Equal(t, time.Minute, cfg.Stream.MaxReconnectDelay)
	assert.Equal(t, "file", cfg.Alerts.Store)
	assert.Equal(t, defaultDir(), cfg.Alerts.Dir)
	assert.Equal(t, filepath.Join(defaultDir(), "holdings.yaml"), cfg.Portfolio.File)
	assert.True(t, cfg.Alerts.Notify)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileEnvAndDotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "foliowatch.yaml"), []byte(`
finnhub:
  token: from-file
stream:
  reconnect_limit: 3
  reconnect_delay: 2s
alerts:
  store: redis
server:
  addr: ":9000"
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FOLIOWATCH_SERVER_ADDR=:9100\n"), 0o600))
	t.Setenv("FOLIOWATCH_STREAM_RECONNECT_LIMIT", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	t.Cleanup(func() { os.Unsetenv("FOLIOWATCH_SERVER_ADDR") })

	assert.Equal(t, "from-file", cfg.Finnhub.Token)
	assert.Equal(t, 7, cfg.Stream.ReconnectLimit)
	assert.Equal(t, 2*time.Second, cfg.Stream.ReconnectDelay)
	assert.Equal(t, "redis", cfg.Alerts.Store)
	assert.Equal(t, ":9100", cfg.Server.Addr)
}

func TestLoadFinnhubAPIKey(t *testing.T) {
	isolate(t)
	t.Setenv("FINNHUB_API_KEY", "secret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Finnhub.Token)
}

func TestLoadExplicitFile(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("alerts:\n  store: carrier-pigeon\n"), 0o600))
	_, err = Load(path)
	assert.ErrorContains(t, err, "alerts.store")
}
