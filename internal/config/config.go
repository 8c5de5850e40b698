package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// Global configuration instance
	globalConfig *Config
	configMutex  sync.RWMutex
)

// Get returns the global configuration instance
// If the configuration has not been initialized, it will return an error
func Get() (*Config, error) {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if globalConfig == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}

	return globalConfig, nil
}

// Set sets the global configuration instance
func Set(cfg *Config) {
	configMutex.Lock()
	defer configMutex.Unlock()

	globalConfig = cfg
}

// Config represents the complete application configuration
type Config struct {
	Hub       HubConfig
	Database  DatabaseConfig
	Logging   LoggingConfig
	Watch     WatchConfig
	configDir string // Internal: Directory where config was loaded from
}

// HubConfig holds connection settings for the Bastion hub API
type HubConfig struct {
	BaseURL    string        // Hub base URL; the active profile overrides this
	Token      string        // API token override; wins over the active profile's token
	Timeout    time.Duration // Request timeout
	MaxRetries int           // Maximum number of retries on failure

	// Rate limiting
	RequestsPerMinute int
	BurstLimit        int
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Path            string        // Path to the SQLite database file
	JournalMode     string        // Journal mode (WAL recommended)
	SynchronousMode string        // Synchronous mode
	BusyTimeout     int           // Busy timeout in milliseconds
	CacheSize       int           // Cache size in KiB
	ForeignKeys     bool          // Whether to enforce foreign key constraints
	ConnMaxLife     time.Duration // Maximum connection lifetime
	QueryTimeout    time.Duration // Query timeout
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level     string // debug, info, warn, error
	Format    string // text or json
	Output    string // stdout, stderr, or file path
	AddSource bool   // Include source code position in logs
}

// WatchConfig holds tuning knobs for live run watching
type WatchConfig struct {
	PollInterval     time.Duration // Status poll cadence while a target is live
	BackfillLimit    int           // Maximum events fetched when (re)opening a view
	DrainGrace       time.Duration // How long the stream keeps draining after terminal status
	PollFailureLimit int           // Consecutive poll failures before polling gives up
}

// New returns a new empty Config
func New() *Config {
	return &Config{
		Hub:      HubConfig{},
		Database: DatabaseConfig{},
		Logging:  LoggingConfig{},
		Watch:    WatchConfig{},
	}
}

// ConfigDir returns the directory the configuration was loaded from
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.validateHub(); err != nil {
		return fmt.Errorf("hub config: %w", err)
	}

	if err := c.validateDatabase(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}

	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.validateWatch(); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	return nil
}

func (c *Config) validateHub() error {
	if c.Hub.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	if c.Hub.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if c.Hub.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}

	if c.Hub.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute cannot be negative")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	// Create the directory if it doesn't exist
	dir := filepath.Dir(c.Database.Path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory for database: %w", err)
		}
	}

	// Check if directory is writable
	if err := checkDirectoryWritable(dir); err != nil {
		return fmt.Errorf("database directory: %w", err)
	}

	if c.Database.BusyTimeout <= 0 {
		return fmt.Errorf("busy timeout must be positive")
	}

	if c.Database.ConnMaxLife <= 0 {
		return fmt.Errorf("connection max life must be positive")
	}

	if c.Database.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive")
	}

	return nil
}

func (c *Config) validateLogging() error {
	// Validate logging level
	level := strings.ToLower(c.Logging.Level)
	if level != "debug" && level != "info" && level != "warn" && level != "error" && level != "none" {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate format
	format := strings.ToLower(c.Logging.Format)
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

func (c *Config) validateWatch() error {
	if c.Watch.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	if c.Watch.BackfillLimit <= 0 {
		return fmt.Errorf("backfill limit must be positive")
	}

	if c.Watch.DrainGrace < 0 {
		return fmt.Errorf("drain grace cannot be negative")
	}

	if c.Watch.PollFailureLimit <= 0 {
		return fmt.Errorf("poll failure limit must be positive")
	}

	return nil
}

// getEnvString returns a string from the environment variable
func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns an int from the environment variable
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool returns a bool from the environment variable
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration returns a time.Duration from the environment variable
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// checkDirectoryWritable tests if a directory is writable
func checkDirectoryWritable(dir string) error {
	// Create a temporary file to test write permissions
	testFile := filepath.Join(dir, fmt.Sprintf("test_write_%d", time.Now().UnixNano()))
	f, err := os.Create(testFile)
	if err != nil {
		return fmt.Errorf("directory not writable: %w", err)
	}

	// Clean up
	f.Close()
	os.Remove(testFile)

	return nil
}
