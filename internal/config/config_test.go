package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "skitimer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
gateway:
  allowed_origin: https://timing.example.org
  rate_limit:
    requests: 20
    window: 30s
  auth:
    enabled: false
station:
  device_name: Finish
  flush_delay: 250ms
`), 0o600))

	t.Setenv("SKITIMER_CONFIG_PATH", path)
	t.Setenv("SKITIMER_RATE_LIMIT", "40")
	t.Setenv("SKITIMER_SYNC_TIMEOUT", "5s")

	cfg, err := load(filepath.Join(dir, "none.env"))
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "https://timing.example.org", cfg.Gateway.AllowedOrigin)
	require.Equal(t, 40, cfg.Gateway.RateLimit.Requests)
	require.Equal(t, 30*time.Second, cfg.Gateway.RateLimit.Window)
	require.False(t, cfg.Gateway.Auth.Enabled)
	require.Equal(t, "Finish", cfg.Station.DeviceName)
	require.Equal(t, 250*time.Millisecond, cfg.Station.FlushDelay)
	require.Equal(t, 5*time.Second, cfg.Station.SyncTimeout)
	require.Equal(t, "info", cfg.Log.Level, "untouched defaults survive")
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("SKITIMER_DEVICE_ID=start-hut\nSKITIMER_LOG_LEVEL=debug\n"), 0o600))

	// godotenv never overrides variables that are already set.
	t.Setenv("SKITIMER_LOG_LEVEL", "warn")
	t.Setenv("SKITIMER_DEVICE_ID", "")
	os.Unsetenv("SKITIMER_DEVICE_ID")

	cfg, err := load(dotenv)
	require.NoError(t, err)
	require.Equal(t, "start-hut", cfg.Station.DeviceID)
	require.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"SKITIMER_SERVER_PORT":  "eighty",
		"SKITIMER_AUTH_ENABLED": "maybe",
		"SKITIMER_FLUSH_DELAY":  "soon",
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, value)
			_, err := load(filepath.Join(t.TempDir(), "none.env"))
			require.ErrorContains(t, err, name)
		})
	}
}

func TestLoad_BadFile(t *testing.T) {
	t.Setenv("SKITIMER_CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := load(filepath.Join(t.TempDir(), "none.env"))
	require.ErrorContains(t, err, "read config file")
}
