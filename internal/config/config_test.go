package config

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()

	cfg := New()
	cfg.Server = ServerConfig{
		Enabled: true,
		URL:     "https://api.example.com",
		Timeout: 30 * time.Second,
	}
	cfg.Sync = SyncConfig{
		BatchSize:      50,
		MaxAttempts:    3,
		RetryBaseDelay: 2 * time.Second,
		BatchDelay:     500 * time.Millisecond,
	}
	cfg.Database = DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		JournalMode:  "WAL",
		BusyTimeout:  5000,
		ForeignKeys:  true,
		ConnMaxLife:  5 * time.Minute,
		QueryTimeout: 30 * time.Second,
	}
	cfg.Logging = LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "stderr",
	}
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.Sync.BatchSize = 0 },
			wantErr: "batch size",
		},
		{
			name:    "negative batch delay",
			mutate:  func(c *Config) { c.Sync.BatchDelay = -time.Second },
			wantErr: "batch delay",
		},
		{
			name:    "zero max attempts",
			mutate:  func(c *Config) { c.Sync.MaxAttempts = 0 },
			wantErr: "max attempts",
		},
		{
			name:    "empty server URL",
			mutate:  func(c *Config) { c.Server.URL = "" },
			wantErr: "URL cannot be empty",
		},
		{
			name:    "empty database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database path",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "yaml" },
			wantErr: "invalid log format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("STRIDESYNC_DIR", t.TempDir())

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Sync.BatchSize)
	assert.Equal(t, 3, cfg.Sync.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Sync.RetryBaseDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.BatchDelay)
	assert.Equal(t, 30*time.Second, cfg.Server.Timeout)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, "WAL", cfg.Database.JournalMode)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("STRIDESYNC_DIR", t.TempDir())
	t.Setenv("STRIDESYNC_SYNC_BATCH_SIZE", "25")
	t.Setenv("STRIDESYNC_SYNC_RETRY_BASE_DELAY", "5s")
	t.Setenv("STRIDESYNC_SERVER_URL", "https://staging.strideworks.io")
	t.Setenv("STRIDESYNC_SERVER_ENABLED", "false")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Sync.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Sync.RetryBaseDelay)
	assert.Equal(t, "https://staging.strideworks.io", cfg.Server.URL)
	assert.False(t, cfg.Server.Enabled)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"garbage", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLogLevel(tt.input), "level %q", tt.input)
	}
}
