// Package app provides the application initialization and lifecycle management
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/bastionhq/bastionctl/internal/config"
	"github.com/bastionhq/bastionctl/internal/database"
	"github.com/bastionhq/bastionctl/internal/hub"
	"github.com/bastionhq/bastionctl/internal/loggy"
	"github.com/bastionhq/bastionctl/internal/profile"
)

// App represents the console instance with its dependencies
type App struct {
	Config   *config.Config
	Profiles *profile.Service
	Hub      *hub.Client
}

// New initializes a new application instance with all its dependencies
func New() (*App, error) {
	// Initialize configuration
	cfg, err := initConfig()
	if err != nil {
		return nil, err
	}

	// Initialize logger
	if err := initLogger(cfg); err != nil {
		return nil, err
	}

	loggy.Info("Console initializing",
		"log_level", cfg.Logging.Level,
		"database", cfg.Database.Path,
	)

	// Initialize database
	if err := database.InitDB(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// The schema is embedded; applying it at startup keeps first runs and
	// upgrades from failing with a missing or stale table.
	applied, err := database.RunMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if applied {
		loggy.Info("Database schema updated")
	}

	// Get database connection
	db, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	// Initialize all services
	app, err := initServices(cfg, db)
	if err != nil {
		return nil, err
	}

	loggy.Info("Console initialized successfully")
	return app, nil
}

// initConfig loads and sets up the application configuration
func initConfig() (*config.Config, error) {
	// Load configuration with default paths, not in initialization mode
	cfg, err := config.LoadFromEnv("", "", false)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Set the global configuration
	config.Set(cfg)
	return cfg, nil
}

// initLogger initializes the logging system
func initLogger(cfg *config.Config) error {
	err := loggy.Init(loggy.Config{
		Level:     loggy.ParseLevel(cfg.Logging.Level),
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.AddSource,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// initServices initializes all application services
func initServices(cfg *config.Config, db *sql.DB) (*App, error) {
	logger := loggy.Default()
	ctx := context.Background()

	profileService := profile.NewService(db, cfg, logger)

	// The active profile overrides the configured hub URL; the profile
	// service doubles as the session token provider, consulted per request.
	hubCfg := cfg.Hub
	baseURL, err := profileService.HubBaseURL(ctx)
	if err != nil {
		loggy.Warn("Failed to resolve the hub URL from the active profile, using configuration", "error", err)
	} else {
		hubCfg.BaseURL = baseURL
	}

	hubClient := hub.NewClient(hubCfg, profileService, logger)

	return &App{
		Config:   cfg,
		Profiles: profileService,
		Hub:      hubClient,
	}, nil
}

// Shutdown gracefully shuts down the application
func (app *App) Shutdown() error {
	loggy.Info("Shutting down console")

	// Close database connection
	if err := database.CloseDB(); err != nil {
		loggy.Error("Error closing database connection", "error", err)
	}

	return loggy.Close()
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
