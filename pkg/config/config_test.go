package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sfts-dev/sfts/internal/bytesize"
	"github.com/sfts-dev/sfts/pkg/store"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 100*bytesize.MiB, cfg.Server.MaxBodySize)
	assert.Equal(t, store.DatabaseTypeSQLite, cfg.Database.Type)
	assert.Equal(t, time.Hour, cfg.Sweep.Interval)
	assert.Equal(t, time.Hour, cfg.Sweep.MaxAge)
	assert.NotEmpty(t, cfg.Staging.Path)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: json
server:
  port: 9000
  max_body_size: 50MiB
  read_timeout: 5m
staging:
  path: /var/lib/sfts/staging
sweep:
  interval: 30m
  max_age: 2h
database:
  type: sqlite
  sqlite:
    path: /var/lib/sfts/transfers.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level, "level should be normalized to uppercase")
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 50*bytesize.MiB, cfg.Server.MaxBodySize)
	assert.Equal(t, 5*time.Minute, cfg.Server.ReadTimeout)
	assert.Equal(t, "/var/lib/sfts/staging", cfg.Staging.Path)
	assert.Equal(t, 30*time.Minute, cfg.Sweep.Interval)
	assert.Equal(t, 2*time.Hour, cfg.Sweep.MaxAge)
	assert.Equal(t, "/var/lib/sfts/transfers.db", cfg.Database.SQLite.Path)
}

func TestLoadAppliesMissingDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Server.ReadTimeout)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, time.Hour, cfg.Sweep.MaxAge)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("SFTS_SERVER_PORT", "9100")

	path := writeConfig(t, `
server:
  port: 9000
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad level", "logging:\n  level: loud\n"},
		{"bad format", "logging:\n  format: xml\n"},
		{"bad port", "server:\n  port: 99999\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
		})
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Port = 9000
	cfg.Staging.Path = "/tmp/sfts-staging"

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveConfig(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, loaded.Server.Port)
	assert.Equal(t, "/tmp/sfts-staging", loaded.Staging.Path)
}

func TestLoadSenderSettingsDefaults(t *testing.T) {
	settings, err := LoadSenderSettings()
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8080", settings.Server)
	assert.Equal(t, 30*time.Second, settings.Timeout)
	assert.Equal(t, 256*bytesize.KiB, settings.ChunkSize)
	assert.Equal(t, 10, settings.MaxRetries)
}

func TestLoadSenderSettingsFromEnv(t *testing.T) {
	t.Setenv("SFTS_SERVER", "http://coordinator:9000")
	t.Setenv("SFTS_CHUNK_SIZE", "1MiB")
	t.Setenv("SFTS_MAX_RETRIES", "3")
	t.Setenv("SFTS_TIMEOUT", "2m")

	settings, err := LoadSenderSettings()
	require.NoError(t, err)

	assert.Equal(t, "http://coordinator:9000", settings.Server)
	assert.Equal(t, 1*bytesize.MiB, settings.ChunkSize)
	assert.Equal(t, 3, settings.MaxRetries)
	assert.Equal(t, 2*time.Minute, settings.Timeout)
}
