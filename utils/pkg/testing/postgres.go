package gridtesting

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// DBConfig holds the PostgreSQL test container configuration.
type DBConfig struct {
	Database       string
	Username       string
	Password       string
	ContainerImage string
}

func (cfg *DBConfig) Validate() error {
	if cfg.Database == "" {
		cfg.Database = "test"
	}
	if cfg.Username == "" {
		cfg.Username = "test"
	}
	if cfg.Password == "" {
		cfg.Password = "test"
	}
	if cfg.ContainerImage == "" {
		cfg.ContainerImage = "postgres:16-alpine"
	}
	return nil
}

// DB is a PostgreSQL test container.
type DB struct {
	log       *slog.Logger
	connStr   string
	container *tcpostgres.PostgresContainer
}

// NewDB starts a PostgreSQL container, retrying transient Docker failures.
func NewDB(ctx context.Context, log *slog.Logger, cfg *DBConfig) (*DB, error) {
	if cfg == nil {
		cfg = &DBConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate DB config: %w", err)
	}

	var container *tcpostgres.PostgresContainer
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		var err error
		container, err = tcpostgres.Run(ctx,
			cfg.ContainerImage,
			tcpostgres.WithDatabase(cfg.Database),
			tcpostgres.WithUsername(cfg.Username),
			tcpostgres.WithPassword(cfg.Password),
			testcontainers.WithWaitStrategy(waitForPostgres()),
			tcpostgres.WithSQLDriver("pgx"),
		)
		if err == nil {
			break
		}
		lastErr = err
		container = nil
		if !isRetryableContainerStartErr(err) || attempt == 3 {
			break
		}
		time.Sleep(time.Duration(attempt) * 750 * time.Millisecond)
	}
	if container == nil {
		return nil, fmt.Errorf("failed to start PostgreSQL container after retries: %w", lastErr)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get PostgreSQL connection string: %w", err)
	}

	return &DB{log: log, connStr: connStr, container: container}, nil
}

// ConnStr returns the connection string of the container's default database.
func (db *DB) ConnStr() string {
	return db.connStr
}

// Close terminates the container.
func (db *DB) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.container.Terminate(ctx); err != nil {
		db.log.Error("failed to terminate PostgreSQL container", "error", err)
	}
}

// NewDatabase creates an empty database for one test and returns its connection string.
func (db *DB) NewDatabase(t *testing.T) string {
	t.Helper()
	ctx := t.Context()

	name := "grid_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	conn, err := pgx.Connect(ctx, db.connStr)
	require.NoError(t, err)
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, "CREATE DATABASE "+name)
	require.NoError(t, err, "failed to create test database")

	u, err := url.Parse(db.connStr)
	require.NoError(t, err)
	u.Path = "/" + name
	return u.String()
}

func isRetryableContainerStartErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "wait until ready") ||
		strings.Contains(s, "mapped port") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "context deadline exceeded") ||
		strings.Contains(s, "/containers/") && strings.Contains(s, "json")
}

// waitForPostgres waits for the second ready line; the first is logged by the init run.
func waitForPostgres() *wait.LogStrategy {
	return wait.ForLog("database system is ready to accept connections").
		WithOccurrence(2).
		WithStartupTimeout(60 * time.Second)
}
