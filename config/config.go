// Package config reads the command line tool configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/platforma-dev/nexus/database"
)

const (
	envDatabaseURL   = "DATABASE_URL"
	envDriver        = "NEXUS_DB_DRIVER"
	envMigrationsDir = "NEXUS_MIGRATIONS_DIR"
	envLogFormat     = "NEXUS_LOG_FORMAT"
	envLogLevel      = "NEXUS_LOG_LEVEL"

	// DefaultMigrationsDir is used when NEXUS_MIGRATIONS_DIR is not set.
	DefaultMigrationsDir = "./migrations"
)

var (
	// ErrMissingDatabaseURL is returned when DATABASE_URL is empty.
	ErrMissingDatabaseURL = errors.New(envDatabaseURL + " is required")
	// ErrInvalidLogFormat is returned for a log format other than text or json.
	ErrInvalidLogFormat = errors.New(envLogFormat + " must be text or json")
)

// Config is the environment configuration.
type Config struct {
	DatabaseURL   string
	Driver        string
	MigrationsDir string
	LogFormat     string
	LogLevel      string
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	cfg := Read()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Read reads the configuration from the environment without validating it.
func Read() Config {
	return Config{
		DatabaseURL:   os.Getenv(envDatabaseURL),
		Driver:        strings.ToLower(getEnv(envDriver, database.DriverPostgres)),
		MigrationsDir: getEnv(envMigrationsDir, DefaultMigrationsDir),
		LogFormat:     strings.ToLower(getEnv(envLogFormat, "text")),
		LogLevel:      getEnv(envLogLevel, "info"),
	}
}

// Validate checks required values and enumerations.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	switch c.Driver {
	case database.DriverPostgres, database.DriverPGX:
	default:
		return fmt.Errorf("%s: %w: %q", envDriver, database.ErrUnsupportedDriver, c.Driver)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return ErrInvalidLogFormat
	}
	return nil
}

// Database returns the session configuration.
func (c Config) Database() database.Config {
	return database.Config{URL: c.DatabaseURL, Driver: c.Driver}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
