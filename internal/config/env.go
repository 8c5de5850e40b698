package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// LoadFromEnv loads configuration from environment variables
// Parameters:
// - configDir: Directory containing config files (or empty for default)
// - configFilePath: Path to .env file (or empty for default)
// - isInitializing: Set during explicit initialization (e.g., from the init
//   command); validation is skipped because the .env may not exist yet
func LoadFromEnv(configDir string, configFilePath string, isInitializing bool) (*Config, error) {
	// Load empty configuration
	cfg := New()

	// If configDir is empty, use the default
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".bastionctl")

		// Create directory if it doesn't exist
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	cfg.configDir = configDir

	// Default database path is in the config directory
	cfg.Database.Path = filepath.Join(configDir, "bastionctl.db")

	// Default log path is in the config directory
	defaultLogPath := filepath.Join(configDir, "bastionctl.log")

	// Use provided config file path or default
	if configFilePath == "" {
		configFilePath = filepath.Join(configDir, ".env")
	}

	// Check if ENV_FILE_PATH is set to load from a custom .env file
	envFilePath := getEnvString("ENV_FILE_PATH", "")
	if envFilePath != "" {
		// User specified a custom env file path
		err := godotenv.Load(envFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load env file from %s: %w", envFilePath, err)
		}
	} else {
		// Try to load from config directory first
		err := godotenv.Load(configFilePath)
		if err != nil {
			// Then try current directory as fallback
			_ = godotenv.Load() // Ignore errors if file doesn't exist
		}
	}

	// Hub Configuration
	cfg.Hub = HubConfig{
		BaseURL:           getEnvString("BASTION_HUB_URL", "http://localhost:8400"),
		Token:             getEnvString("BASTION_HUB_TOKEN", ""),
		Timeout:           getEnvDuration("BASTION_HUB_TIMEOUT", 30*time.Second),
		MaxRetries:        getEnvInt("BASTION_HUB_MAX_RETRIES", 3),
		RequestsPerMinute: getEnvInt("BASTION_HUB_REQUESTS_PER_MINUTE", 120),
		BurstLimit:        getEnvInt("BASTION_HUB_BURST_LIMIT", 10),
	}

	// Database Configuration
	cfg.Database = DatabaseConfig{
		Path:            getEnvString("BASTION_DB_PATH", cfg.Database.Path),
		BusyTimeout:     getEnvInt("BASTION_DB_BUSY_TIMEOUT", 5000),
		JournalMode:     getEnvString("BASTION_DB_JOURNAL_MODE", "WAL"),
		SynchronousMode: getEnvString("BASTION_DB_SYNCHRONOUS_MODE", "NORMAL"),
		CacheSize:       getEnvInt("BASTION_DB_CACHE_SIZE", -64000), // ~64MB
		ForeignKeys:     getEnvBool("BASTION_DB_FOREIGN_KEYS", true),
		ConnMaxLife:     getEnvDuration("BASTION_DB_CONN_MAX_LIFE", 5*time.Minute),
		QueryTimeout:    getEnvDuration("BASTION_DB_QUERY_TIMEOUT", 30*time.Second),
	}

	// Logging Configuration
	cfg.Logging = LoggingConfig{
		Level:     getEnvString("BASTION_LOG_LEVEL", "info"),
		Format:    getEnvString("BASTION_LOG_FORMAT", "text"),
		Output:    getEnvString("BASTION_LOG_OUTPUT", defaultLogPath),
		AddSource: getEnvBool("BASTION_LOG_ADD_SOURCE", false),
	}

	// Watch Configuration
	cfg.Watch = WatchConfig{
		PollInterval:     getEnvDuration("BASTION_WATCH_POLL_INTERVAL", time.Second),
		BackfillLimit:    getEnvInt("BASTION_WATCH_BACKFILL_LIMIT", 1000),
		DrainGrace:       getEnvDuration("BASTION_WATCH_DRAIN_GRACE", 3*time.Second),
		PollFailureLimit: getEnvInt("BASTION_WATCH_POLL_FAILURE_LIMIT", 5),
	}

	// The init command loads before a config file exists; defer validation
	// to the first regular startup.
	if isInitializing {
		return cfg, nil
	}

	return cfg, cfg.Validate()
}
