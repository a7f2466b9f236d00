// Package config provides configuration management for the replay standalone
// server. It loads settings from environment variables with sensible defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the replay server.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Replay   ReplayConfig   `mapstructure:"replay"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // mysql, postgres, sqlite3
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"name"`
	Prefix   string `mapstructure:"prefix"` // Table prefix (default: "replay_")
}

// ReplayConfig holds replay-specific configuration.
type ReplayConfig struct {
	BatchSize           int  `mapstructure:"batch_size"`           // Records per drain pass
	MaxConcurrent       int  `mapstructure:"max_concurrent"`       // Concurrent dispatch workers
	IntervalSeconds     int  `mapstructure:"interval_seconds"`     // Background loop period
	RetentionHours      int  `mapstructure:"retention_hours"`      // Terminal record retention
	MaxRetries          int  `mapstructure:"max_retries"`          // Retry budget per message
	EnableNotifications bool `mapstructure:"enable_notifications"` // Log-based notifications
}

// Load loads configuration from environment variables.
// Follows 12-factor app principles - configuration via environment.
//
// Keys map to env vars with underscores, e.g. server.port → SERVER_PORT,
// database.driver → DATABASE_DRIVER, replay.batch_size → REPLAY_BATCH_SIZE.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "replay")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "replay.db")
	v.SetDefault("database.prefix", "replay_")

	v.SetDefault("replay.batch_size", 50)
	v.SetDefault("replay.max_concurrent", 10)
	v.SetDefault("replay.interval_seconds", 30)
	v.SetDefault("replay.retention_hours", 168)
	v.SetDefault("replay.max_retries", 3)
	v.SetDefault("replay.enable_notifications", true)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	// SQLite needs no credentials; everything else does.
	if cfg.Database.Driver != "sqlite3" && cfg.Database.Password == "" {
		return nil, fmt.Errorf("DATABASE_PASSWORD environment variable is required for driver %q", cfg.Database.Driver)
	}

	return &cfg, nil
}

// GetDSN returns the database connection string based on driver.
func (c *DatabaseConfig) GetDSN() string {
	switch strings.ToLower(c.Driver) {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Database)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.Database)
	case "sqlite3":
		return c.Database // SQLite uses file path as DSN
	default:
		return ""
	}
}
