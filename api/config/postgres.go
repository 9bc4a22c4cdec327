// Package config reads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
)

// PgConfig holds the PostgreSQL configuration.
type PgConfig struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	SSLMode  string

	// RunMigrations applies pending migrations at startup.
	RunMigrations bool
}

// PostgresFromEnv reads POSTGRES_* variables. POSTGRES_DB, POSTGRES_USER and
// POSTGRES_PASSWORD are required.
func PostgresFromEnv() (PgConfig, error) {
	cfg := PgConfig{
		Host:     envOr("POSTGRES_HOST", "localhost"),
		Port:     envOr("POSTGRES_PORT", "5432"),
		Database: os.Getenv("POSTGRES_DB"),
		Username: os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		SSLMode:  envOr("POSTGRES_SSLMODE", "disable"),
	}
	if v := os.Getenv("POSTGRES_RUN_MIGRATIONS"); v != "" {
		run, err := strconv.ParseBool(v)
		if err != nil {
			return PgConfig{}, fmt.Errorf("invalid POSTGRES_RUN_MIGRATIONS %q: %w", v, err)
		}
		cfg.RunMigrations = run
	}
	if err := cfg.Validate(); err != nil {
		return PgConfig{}, err
	}
	return cfg, nil
}

func (cfg *PgConfig) Validate() error {
	if cfg.Database == "" {
		return errors.New("POSTGRES_DB is required")
	}
	if cfg.Username == "" {
		return errors.New("POSTGRES_USER is required")
	}
	if cfg.Password == "" {
		return errors.New("POSTGRES_PASSWORD is required")
	}
	return nil
}

// ConnString returns the postgres:// URL for cfg.
func (cfg PgConfig) ConnString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     cfg.Host + ":" + cfg.Port,
		Path:     "/" + cfg.Database,
		RawQuery: url.Values{"sslmode": []string{cfg.SSLMode}}.Encode(),
	}
	return u.String()
}

// Redacted describes cfg for logs without the password.
func (cfg PgConfig) Redacted() string {
	return fmt.Sprintf("host=%s port=%s database=%s username=%s", cfg.Host, cfg.Port, cfg.Database, cfg.Username)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
