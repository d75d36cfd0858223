package main

import (
	"fmt"

	"github.com/dns-smart-block/dns-smart-block/internal/config"
)

// Config holds all configuration for the migration tool
type Config struct {
	// DatabaseURL is the PostgreSQL connection string
	DatabaseURL string

	// MigrationTable is the name of the table to track migrations
	MigrationTable string
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. DATABASE_PASSWORD_FILE, when set, supplies the password out of
// band so the URL itself can stay secret-free.
func LoadConfig() (*Config, error) {
	databaseURL, err := config.ConstructDatabaseURL(
		config.GetEnvStr("DATABASE_URL", ""),
		config.GetEnvStr("DATABASE_PASSWORD_FILE", ""),
	)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := &Config{
		DatabaseURL:    databaseURL,
		MigrationTable: config.GetEnvStr("MIGRATION_TABLE", "schema_migrations"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return config.ErrDatabaseURLEmpty
	}

	if c.MigrationTable == "" {
		return fmt.Errorf("MIGRATION_TABLE cannot be empty")
	}

	return nil
}

// String returns a string representation of the configuration (safe for logging)
func (c *Config) String() string {
	return fmt.Sprintf("Config{DatabaseURL: %s, MigrationTable: %s}",
		config.MaskDatabaseURL(c.DatabaseURL), c.MigrationTable)
}
