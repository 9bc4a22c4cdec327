package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/Agents-Autonomous/billiondollarcontract/api/config"
	"github.com/Agents-Autonomous/billiondollarcontract/api/handlers"
	"github.com/Agents-Autonomous/billiondollarcontract/api/metrics"
	"github.com/Agents-Autonomous/billiondollarcontract/api/server"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/archive"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/backend/memory"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/backend/postgres"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/engine"
	"github.com/Agents-Autonomous/billiondollarcontract/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr  = "0.0.0.0:8080"
	defaultMetricsAddr = "0.0.0.0:9090"

	backendMemory   = "memory"
	backendPostgres = "postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	verboseFlag := flag.Bool("verbose", false, "Enable verbose (debug) logging")
	logJSONFlag := flag.Bool("log-json", false, "Log JSON lines instead of console output")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "Address to serve the API on (or set GRID_LISTEN_ADDR env var)")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics, empty to disable (or set GRID_METRICS_ADDR env var)")
	backendFlag := flag.String("backend", backendMemory, "Storage backend: memory or postgres (or set GRID_BACKEND env var)")
	programIDFlag := flag.String("program-id", "", "Program id used to derive grid addresses (or set GRID_PROGRAM_ID env var)")
	corsOriginsFlag := flag.String("cors-origins", "*", "Comma-separated allowed CORS origins (or set CORS_ORIGINS env var)")
	rateLimitFlag := flag.Int("rate-limit", 60, "Signed operations allowed per minute per client IP, 0 to disable (or set GRID_RATE_LIMIT env var)")
	signatureWindowFlag := flag.Duration("signature-window", handlers.DefaultSignatureWindow, "Allowed clock skew for signed requests")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 15*time.Second, "Maximum time to wait for in-flight requests during graceful shutdown")

	// Purge archive
	archiveBucketFlag := flag.String("archive-bucket", "", "S3 bucket for grid snapshots archived before a purge (or set GRID_ARCHIVE_BUCKET env var)")
	archivePrefixFlag := flag.String("archive-prefix", "grid", "Key prefix for archived snapshots (or set GRID_ARCHIVE_PREFIX env var)")
	archiveEndpointFlag := flag.String("archive-endpoint", "", "Custom S3-compatible endpoint (or set GRID_ARCHIVE_ENDPOINT env var)")

	flag.Parse()

	overrideFromEnv(listenAddrFlag, "GRID_LISTEN_ADDR")
	overrideFromEnv(metricsAddrFlag, "GRID_METRICS_ADDR")
	overrideFromEnv(backendFlag, "GRID_BACKEND")
	overrideFromEnv(programIDFlag, "GRID_PROGRAM_ID")
	overrideFromEnv(corsOriginsFlag, "CORS_ORIGINS")
	overrideFromEnv(archiveBucketFlag, "GRID_ARCHIVE_BUCKET")
	overrideFromEnv(archivePrefixFlag, "GRID_ARCHIVE_PREFIX")
	overrideFromEnv(archiveEndpointFlag, "GRID_ARCHIVE_ENDPOINT")
	if v := os.Getenv("GRID_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid GRID_RATE_LIMIT %q: %w", v, err)
		}
		*rateLimitFlag = n
	}

	log := logger.NewWithOptions(logger.Options{Verbose: *verboseFlag, JSON: *logJSONFlag})
	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	if *programIDFlag == "" {
		return errors.New("--program-id is required")
	}
	programID, err := solana.PublicKeyFromBase58(*programIDFlag)
	if err != nil {
		return fmt.Errorf("invalid program id: %w", err)
	}

	sentryEnabled := os.Getenv("SENTRY_DSN") != ""
	if sentryEnabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         os.Getenv("SENTRY_DSN"),
			Environment: os.Getenv("SENTRY_ENVIRONMENT"),
			Release:     version,
		}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
		log.Info("sentry initialized")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := openBackend(ctx, log, *backendFlag)
	if err != nil {
		return err
	}
	defer st.close()

	engineCfg := engine.Config{
		Logger:    log,
		Backend:   st.backend,
		ProgramID: programID,
	}
	if *archiveBucketFlag != "" {
		client, err := archive.NewS3Client(ctx, archive.S3Config{
			Region:   os.Getenv("AWS_REGION"),
			Endpoint: *archiveEndpointFlag,
		})
		if err != nil {
			return err
		}
		archiver, err := archive.New(archive.Config{
			Logger: log,
			Client: client,
			Bucket: *archiveBucketFlag,
			Prefix: *archivePrefixFlag,
		})
		if err != nil {
			return fmt.Errorf("failed to create archiver: %w", err)
		}
		engineCfg.Archiver = archiver
		log.Info("purge archive enabled", "bucket", *archiveBucketFlag, "prefix", *archivePrefixFlag)
	}

	eng, err := engine.New(ctx, engineCfg)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	handlerCfg := handlers.Config{
		Logger:          log,
		Grid:            eng,
		Journal:         st.journal,
		SignatureWindow: *signatureWindowFlag,
	}
	if *rateLimitFlag > 0 {
		limiter := handlers.NewRateLimiter(rate.Every(time.Minute/time.Duration(*rateLimitFlag)), max(*rateLimitFlag/6, 1))
		defer limiter.Stop()
		handlerCfg.RateLimiter = limiter
	}
	h, err := handlers.New(handlerCfg)
	if err != nil {
		return fmt.Errorf("failed to create handlers: %w", err)
	}

	srv, err := server.New(server.Config{
		Logger:          log,
		Handler:         h,
		ListenAddr:      *listenAddrFlag,
		MetricsAddr:     *metricsAddrFlag,
		CORSOrigins:     splitList(*corsOriginsFlag),
		Version:         handlers.VersionResponse{Version: version, Commit: commit, Date: date},
		Ready:           st.ready,
		Sentry:          sentryEnabled,
		ShutdownTimeout: *shutdownTimeoutFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	log.Info("grid api starting",
		"version", version,
		"backend", *backendFlag,
		"program_id", programID,
		"initialized", eng.Initialized())
	if err := srv.Run(ctx); err != nil {
		return err
	}
	log.Info("grid api stopped")
	return nil
}

// store bundles the selected backend with its journal reader and lifecycle hooks.
type store struct {
	backend engine.Backend
	journal handlers.JournalReader
	ready   func(ctx context.Context) error
	close   func()
}

func openBackend(ctx context.Context, log *slog.Logger, kind string) (*store, error) {
	switch kind {
	case backendMemory:
		b, err := memory.New(memory.Config{Logger: log})
		if err != nil {
			return nil, err
		}
		log.Warn("using in-memory backend; state is lost on restart")
		return &store{backend: b, journal: b, close: func() {}}, nil

	case backendPostgres:
		pgCfg, err := config.PostgresFromEnv()
		if err != nil {
			return nil, err
		}
		log.Info("connecting to postgres", "config", pgCfg.Redacted())
		if pgCfg.RunMigrations {
			if err := postgres.MigrateUp(ctx, log, pgCfg.ConnString()); err != nil {
				return nil, err
			}
		}
		b, err := postgres.New(ctx, postgres.Config{Logger: log, ConnString: pgCfg.ConnString()})
		if err != nil {
			return nil, err
		}
		return &store{backend: b, journal: b, ready: b.Ping, close: b.Close}, nil

	default:
		return nil, fmt.Errorf("unknown backend %q (want %s or %s)", kind, backendMemory, backendPostgres)
	}
}

func overrideFromEnv(flagValue *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*flagValue = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
