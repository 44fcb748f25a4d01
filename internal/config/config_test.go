package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gamevault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_open_files: 8
database_driver: postgres
database_url: postgres://localhost/games
retry_base_delay: 250ms
log_level: debug
`), 0o644))

	t.Setenv("GAMEVAULT_MAX_OPEN_FILES", " 12 ")
	t.Setenv("GAMEVAULT_ACQUIRE_TIMEOUT", "3s")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 12, cfg.MaxOpenFiles)
	require.Equal(t, "postgres", cfg.DatabaseDriver)
	require.Equal(t, "postgres://localhost/games", cfg.DatabaseURL)
	require.Equal(t, 250*time.Millisecond, cfg.RetryBaseDelay)
	require.Equal(t, 3*time.Second, cfg.AcquireTimeout)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 50, cfg.DBSubBatchSize)
}

func TestLoad_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoad_UnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_open_filez: 3\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("GAMEVAULT_MAX_RETRIES", "lots")
	_, err := Load("")
	require.ErrorContains(t, err, "GAMEVAULT_MAX_RETRIES")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"driver", func(c *Config) { c.DatabaseDriver = "mysql" }, "database_driver must be one of [postgres sqlite]"},
		{"url", func(c *Config) { c.DatabaseURL = "" }, "database_url is required"},
		{"files", func(c *Config) { c.MaxOpenFiles = 0 }, "max_open_files must be at least 1"},
		{"sub batch", func(c *Config) { c.DBSubBatchSize = 10_000 }, "db_sub_batch_size must be at most 5000"},
		{"level", func(c *Config) { c.LogLevel = "loud" }, "log_level must be one of"},
		{"catalog", func(c *Config) { c.CatalogURL = "not a url" }, "catalog_url must be a URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestDerivedConfigs(t *testing.T) {
	cfg := Default()
	cfg.MaxRetries = 3
	cfg.AcquireTimeout = time.Second

	p := cfg.RetryPolicy()
	require.Equal(t, 3, p.MaxRetries)
	require.Equal(t, 100*time.Millisecond, p.BaseDelay)

	g := cfg.GovernorConfig()
	require.Equal(t, 4, g.MaxOpenFiles)
	require.Equal(t, time.Second, g.AcquireTimeout)
}
