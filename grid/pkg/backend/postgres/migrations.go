package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver with database/sql
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// slogGooseLogger adapts slog.Logger to goose.Logger.
type slogGooseLogger struct {
	log *slog.Logger
}

func (l *slogGooseLogger) Fatalf(format string, v ...any) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *slogGooseLogger) Printf(format string, v ...any) {
	l.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// MigrateUp runs all pending migrations.
func MigrateUp(ctx context.Context, log *slog.Logger, connString string) error {
	return withGoose(log, connString, func(db *sql.DB) error {
		log.Info("running PostgreSQL migrations (up)")
		if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("PostgreSQL migrations completed")
		return nil
	})
}

// MigrateDown rolls back the last migration.
func MigrateDown(ctx context.Context, log *slog.Logger, connString string) error {
	return withGoose(log, connString, func(db *sql.DB) error {
		log.Info("rolling back PostgreSQL migration (down)")
		if err := goose.DownContext(ctx, db, migrationsDir); err != nil {
			return fmt.Errorf("failed to rollback migration: %w", err)
		}
		return nil
	})
}

// MigrateStatus logs the state of every migration.
func MigrateStatus(ctx context.Context, log *slog.Logger, connString string) error {
	return withGoose(log, connString, func(db *sql.DB) error {
		if err := goose.StatusContext(ctx, db, migrationsDir); err != nil {
			return fmt.Errorf("failed to get migration status: %w", err)
		}
		return nil
	})
}

// MigrateReset rolls back every migration, dropping all grid tables.
func MigrateReset(ctx context.Context, log *slog.Logger, connString string) error {
	return withGoose(log, connString, func(db *sql.DB) error {
		log.Warn("resetting PostgreSQL schema")
		if err := goose.ResetContext(ctx, db, migrationsDir); err != nil {
			return fmt.Errorf("failed to reset migrations: %w", err)
		}
		return nil
	})
}

func withGoose(log *slog.Logger, connString string, fn func(*sql.DB) error) error {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	goose.SetLogger(&slogGooseLogger{log: log})
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return fn(db)
}
