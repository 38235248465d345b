package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/strideworks/stridesync/internal/loggy"
)

const (
	// DefaultDirName is the default directory name for stridesync files
	DefaultDirName = ".stridesync"
	// DefaultDBName is the default database file name
	DefaultDBName = "stridesync.db"
	// DefaultEnvFileName is the default env file name
	DefaultEnvFileName = ".env"
)

// LoadFromEnv loads configuration from environment variables, optionally
// reading a .env file from the stridesync directory first.
func LoadFromEnv() (*Config, error) {
	// Determine the stridesync directory
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to determine config directory: %w", err)
	}

	// Load .env file if it exists; environment variables take precedence
	envFile := filepath.Join(configDir, DefaultEnvFileName)
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			loggy.Warn("failed to load env file", "path", envFile, "error", err)
		}
	}

	cfg := New()
	cfg.configDir = configDir

	cfg.Server = loadServerConfig()
	cfg.Sync = loadSyncConfig()
	cfg.Database = loadDatabaseConfig(configDir)
	cfg.Logging = loadLoggingConfig()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// GetConfigDir returns the directory where stridesync stores its files
func (c *Config) GetConfigDir() string {
	return c.configDir
}

func getConfigDir() (string, error) {
	if dir := os.Getenv("STRIDESYNC_DIR"); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}

	dir := filepath.Join(home, DefaultDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	return dir, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Enabled:    getEnvBool("STRIDESYNC_SERVER_ENABLED", true),
		URL:        getEnvString("STRIDESYNC_SERVER_URL", "https://api.strideworks.io"),
		Token:      getEnvString("STRIDESYNC_SERVER_TOKEN", ""),
		Timeout:    getEnvDuration("STRIDESYNC_SERVER_TIMEOUT", 30*time.Second),
		DeviceName: getEnvString("STRIDESYNC_DEVICE_NAME", ""),
	}
}

func loadSyncConfig() SyncConfig {
	return SyncConfig{
		BatchSize:      getEnvInt("STRIDESYNC_SYNC_BATCH_SIZE", 50),
		MaxAttempts:    getEnvInt("STRIDESYNC_SYNC_MAX_ATTEMPTS", 3),
		RetryBaseDelay: getEnvDuration("STRIDESYNC_SYNC_RETRY_BASE_DELAY", 2*time.Second),
		BatchDelay:     getEnvDuration("STRIDESYNC_SYNC_BATCH_DELAY", 500*time.Millisecond),
	}
}

func loadDatabaseConfig(configDir string) DatabaseConfig {
	return DatabaseConfig{
		Path:            getEnvString("STRIDESYNC_DB_PATH", filepath.Join(configDir, DefaultDBName)),
		JournalMode:     getEnvString("STRIDESYNC_DB_JOURNAL_MODE", "WAL"),
		SynchronousMode: getEnvString("STRIDESYNC_DB_SYNCHRONOUS", "NORMAL"),
		BusyTimeout:     getEnvInt("STRIDESYNC_DB_BUSY_TIMEOUT", 5000),
		ForeignKeys:     getEnvBool("STRIDESYNC_DB_FOREIGN_KEYS", true),
		ConnMaxLife:     getEnvDuration("STRIDESYNC_DB_CONN_MAX_LIFE", 5*time.Minute),
		QueryTimeout:    getEnvDuration("STRIDESYNC_DB_QUERY_TIMEOUT", 30*time.Second),
	}
}

func loadLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:      getEnvString("STRIDESYNC_LOG_LEVEL", "info"),
		Format:     getEnvString("STRIDESYNC_LOG_FORMAT", "text"),
		Output:     getEnvString("STRIDESYNC_LOG_OUTPUT", "stderr"),
		AddSource:  getEnvBool("STRIDESYNC_LOG_ADD_SOURCE", false),
		TimeFormat: getEnvString("STRIDESYNC_LOG_TIME_FORMAT", ""),
	}
}
