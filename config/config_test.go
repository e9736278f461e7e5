package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "remote:\n  base_url: https://api.example.com\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.Remote.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 30*time.Second, cfg.Sync.AlertInterval)
	assert.Equal(t, 15*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, "sqlite", cfg.Cache.Driver)
	assert.Equal(t, "memory", cfg.KeyStore.Driver)
	assert.Equal(t, DefaultLatitude, cfg.Location.DefaultLat)
	assert.Equal(t, DefaultLongitude, cfg.Location.DefaultLng)
	assert.Equal(t, 5, cfg.Reminders.MorningStartHour)
	assert.Equal(t, 20, cfg.Reminders.EveningEndHour)
	assert.Equal(t, 1, cfg.WebPush.Workers)
	assert.NotNil(t, cfg.Location.Zone)
}

func TestLoad_KeepsExplicitValues(t *testing.T) {
	path := writeConfig(t, `
sync:
  interval_seconds: 10
  alert_interval_seconds: 20
location:
  default_lat: 21.4225
  default_lng: 39.8262
  timezone: UTC
reminders:
  morning_start_hour: 4
  morning_end_hour: 8
keystore:
  driver: redis
  redis_address: localhost:6379
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 20*time.Second, cfg.Sync.AlertInterval)
	assert.Equal(t, 21.4225, cfg.Location.DefaultLat)
	assert.Equal(t, time.UTC, cfg.Location.Zone)
	assert.Equal(t, 4, cfg.Reminders.MorningStartHour)
	assert.Equal(t, 8, cfg.Reminders.MorningEndHour)
	assert.Equal(t, 16, cfg.Reminders.EveningStartHour)
	assert.Equal(t, "redis", cfg.KeyStore.Driver)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
