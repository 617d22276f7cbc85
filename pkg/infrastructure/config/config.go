// Package config loads scheduler configuration from a JSON file overlaid
// with environment variable overrides, following the defaults-then-file-
// then-env layering used throughout the rest of the stack.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all scheduler configuration.
type Config struct {
	// Server Configuration (shared by both run modes)
	Server ServerConfig `json:"server"`

	// Database Configuration
	Database DatabaseConfig `json:"database"`

	// HTTP Configuration (submission surface, "http" run mode)
	HTTP HTTPConfig `json:"http"`

	// Logging Configuration
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig holds the executor's tunables, per spec §6.
type ServerConfig struct {
	// MaxSecondsToSleep is the sleep/lookahead horizon: tasks farther out
	// are never held in memory.
	MaxSecondsToSleep int `json:"max_seconds_to_sleep"`

	// LookForNewTasksInterval is the number of seconds between Sweeper
	// passes.
	LookForNewTasksInterval int `json:"look_for_new_tasks_interval_seconds"`

	// MaxConcurrentTasksInMemory sizes the WorkQueue channel and the
	// sleep semaphore.
	MaxConcurrentTasksInMemory int `json:"max_concurrent_tasks_in_memory"`

	// MaxConcurrentExecutingTasks sizes the exec semaphore.
	MaxConcurrentExecutingTasks int `json:"max_concurrent_executing_tasks"`

	// TasksChannelName is the pub/sub channel name shared by all
	// processes in a deployment.
	TasksChannelName string `json:"tasks_channel_name"`

	// BarURL is the URL the Bar task body issues its GET against.
	BarURL string `json:"bar_url"`
}

// DatabaseConfig holds PostgreSQL connection parameters. Password is never
// read from the JSON file — only from the TASKSCHED_DB_PASSWORD
// environment variable — mirroring the original's SecretBox separation.
type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	User            string        `json:"user"`
	Password        string        `json:"-"`
	Database        string        `json:"database"`
	SSLMode         string        `json:"ssl_mode"`
	MaxConns        int32         `json:"max_conns"`
	MaxConnLifetime time.Duration `json:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `json:"max_conn_idle_time"`
}

// HTTPConfig holds the submission API's listen address.
type HTTPConfig struct {
	ListenPort int `json:"listen_port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
	File   string `json:"file"`
}

// DefaultConfig returns a configuration with sensible defaults, matching
// the original's hardcoded development defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			MaxSecondsToSleep:           100,
			LookForNewTasksInterval:     30,
			MaxConcurrentTasksInMemory:  2000,
			MaxConcurrentExecutingTasks: 100,
			TasksChannelName:            "new_tasks",
			BarURL:                      "https://www.whattimeisitrightnow.com/",
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Database:        "tasksched",
			SSLMode:         "disable",
			MaxConns:        10,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
		},
		HTTP: HTTPConfig{
			ListenPort: 3000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "console",
			File:   "",
		},
	}
}

// Load loads configuration from file with environment variable overrides.
// An empty configPath, or one that does not exist, is not an error —
// defaults are used instead.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.applyEnvironmentOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a JSON file.
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	return json.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies TASKSCHED_* environment variable
// overrides, including the database password, which has no JSON field.
func (c *Config) applyEnvironmentOverrides() {
	// Server overrides
	if val := os.Getenv("TASKSCHED_MAX_SECONDS_TO_SLEEP"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Server.MaxSecondsToSleep = n
		}
	}
	if val := os.Getenv("TASKSCHED_SWEEP_INTERVAL_SECONDS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Server.LookForNewTasksInterval = n
		}
	}
	if val := os.Getenv("TASKSCHED_MAX_TASKS_IN_MEMORY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Server.MaxConcurrentTasksInMemory = n
		}
	}
	if val := os.Getenv("TASKSCHED_MAX_EXECUTING_TASKS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Server.MaxConcurrentExecutingTasks = n
		}
	}
	if val := os.Getenv("TASKSCHED_TASKS_CHANNEL"); val != "" {
		c.Server.TasksChannelName = val
	}
	if val := os.Getenv("TASKSCHED_BAR_URL"); val != "" {
		c.Server.BarURL = val
	}

	// Database overrides
	if val := os.Getenv("TASKSCHED_DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("TASKSCHED_DB_PORT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Database.Port = n
		}
	}
	if val := os.Getenv("TASKSCHED_DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("TASKSCHED_DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("TASKSCHED_DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("TASKSCHED_DB_SSLMODE"); val != "" {
		c.Database.SSLMode = val
	}

	// HTTP overrides
	if val := os.Getenv("TASKSCHED_LISTEN_PORT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.HTTP.ListenPort = n
		}
	}

	// Logging overrides
	if val := os.Getenv("TASKSCHED_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv("TASKSCHED_LOG_FORMAT"); val != "" {
		c.Logging.Format = val
	}
	if val := os.Getenv("TASKSCHED_LOG_OUTPUT"); val != "" {
		c.Logging.Output = val
	}
	if val := os.Getenv("TASKSCHED_LOG_FILE"); val != "" {
		c.Logging.File = val
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.MaxSecondsToSleep <= 0 {
		return fmt.Errorf("max_seconds_to_sleep must be positive")
	}
	if c.Server.LookForNewTasksInterval <= 0 {
		return fmt.Errorf("look_for_new_tasks_interval_seconds must be positive")
	}
	if c.Server.MaxConcurrentTasksInMemory <= 0 {
		return fmt.Errorf("max_concurrent_tasks_in_memory must be positive")
	}
	if c.Server.MaxConcurrentExecutingTasks <= 0 {
		return fmt.Errorf("max_concurrent_executing_tasks must be positive")
	}
	if c.Server.TasksChannelName == "" {
		return fmt.Errorf("tasks_channel_name cannot be empty")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host cannot be empty")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("database port must be between 1 and 65535")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("database max_conns must be positive")
	}

	if c.HTTP.ListenPort <= 0 || c.HTTP.ListenPort > 65535 {
		return fmt.Errorf("listen_port must be between 1 and 65535")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	validOutputs := map[string]bool{"console": true, "file": true, "both": true}
	if !validOutputs[c.Logging.Output] {
		return fmt.Errorf("invalid log output: %s", c.Logging.Output)
	}

	return nil
}

// ConnString builds a libpq-style connection string suitable for both
// pgxpool.ParseConfig and database/sql.Open("postgres", ...).
// The password is single-quoted so that an empty value, or one containing
// spaces, does not swallow the keyword that follows it.
func (d DatabaseConfig) ConnString() string {
	password := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(d.Password)
	return fmt.Sprintf("host=%s port=%d user=%s password='%s' dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, password, d.Database, d.SSLMode)
}

// SaveToFile saves the configuration to a JSON file. The database
// password is excluded by its `json:"-"` tag.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(homeDir, ".tasksched", "config.json"), nil
}
