// Package app provides the application initialization and lifecycle management
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/strideworks/stridesync/internal/activity"
	"github.com/strideworks/stridesync/internal/config"
	"github.com/strideworks/stridesync/internal/database"
	"github.com/strideworks/stridesync/internal/loggy"
	"github.com/strideworks/stridesync/internal/sync"
)

// App represents the application instance with its dependencies
type App struct {
	Config     *config.Config
	Settings   *config.SettingsService
	Activities *activity.Repository
	SyncClient *sync.Client
	Sync       *sync.Service
}

// New initializes a new application instance with all its dependencies
func New() (*App, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := initLogger(cfg); err != nil {
		return nil, err
	}

	loggy.Info("Application initializing",
		"version", os.Getenv("VERSION"),
		"log_level", cfg.Logging.Level,
	)

	if err := database.InitDB(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := database.RunMigrations(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	db, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	app, err := initServices(cfg, db)
	if err != nil {
		return nil, err
	}

	loggy.Info("Application initialized successfully")
	return app, nil
}

// initLogger initializes the logging system
func initLogger(cfg *config.Config) error {
	err := loggy.Init(loggy.Config{
		Level:      config.ParseLogLevel(cfg.Logging.Level),
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// initServices initializes all application services
func initServices(cfg *config.Config, db *sql.DB) (*App, error) {
	logger := loggy.GetGlobalLogger()

	settingsRepo := config.NewSQLSettingsRepository(db, logger)
	settingsService := config.NewSettingsService(settingsRepo, logger)

	activityRepo := activity.NewRepository(db, logger)

	// The persisted token and URL override the environment defaults so
	// "account link" survives restarts without editing the env file
	token, url := resolveServerConfig(cfg, settingsRepo)

	client := sync.NewClient(url, token, cfg.Server.Timeout, logger)
	client.SetTokenRefreshHandler(func(ctx context.Context, refreshed string) error {
		return settingsService.SetString(ctx, config.KeyServerToken, refreshed)
	})

	ledger := sync.NewLedger(settingsRepo, logger)
	uploader := sync.NewUploader(client, cfg.Sync.MaxAttempts, cfg.Sync.RetryBaseDelay, logger)
	runRepo := sync.NewRunRepository(db, logger)

	syncService := sync.NewService(
		activityRepo,
		ledger,
		uploader,
		client,
		runRepo,
		settingsService,
		cfg.Sync,
		logger,
	)

	return &App{
		Config:     cfg,
		Settings:   settingsService,
		Activities: activityRepo,
		SyncClient: client,
		Sync:       syncService,
	}, nil
}

// resolveServerConfig returns the token and URL to use, preferring
// values persisted by "account link" over the environment defaults
func resolveServerConfig(cfg *config.Config, repo config.SettingsRepository) (string, string) {
	ctx := context.Background()

	token := cfg.Server.Token
	if stored, err := repo.GetValue(ctx, config.KeyServerToken); err == nil && stored != "" {
		token = stored
	} else if err != nil && !errors.Is(err, config.ErrSettingNotFound) {
		loggy.Warn("failed to read stored server token", "error", err)
	}

	url := cfg.Server.URL
	if stored, err := repo.GetValue(ctx, config.KeyServerURL); err == nil && stored != "" {
		url = stored
	} else if err != nil && !errors.Is(err, config.ErrSettingNotFound) {
		loggy.Warn("failed to read stored server URL", "error", err)
	}

	return token, url
}

// Shutdown gracefully shuts down the application
func (app *App) Shutdown() error {
	loggy.Info("Shutting down application")

	if err := database.CloseDB(); err != nil {
		loggy.Error("Error closing database connection", "error", err)
	}

	return nil
}

// FromContext retrieves the App instance from the CLI context
func FromContext(c *cli.Context) (*App, error) {
	if c.App.Metadata == nil {
		return nil, fmt.Errorf("app metadata not found in context")
	}

	app, ok := c.App.Metadata["app"].(*App)
	if !ok {
		return nil, fmt.Errorf("app instance not found in context")
	}

	return app, nil
}
