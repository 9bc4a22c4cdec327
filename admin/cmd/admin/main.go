package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/Agents-Autonomous/billiondollarcontract/admin/internal/admin"
	"github.com/Agents-Autonomous/billiondollarcontract/api/config"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/backend/postgres"
	"github.com/Agents-Autonomous/billiondollarcontract/utils/pkg/logger"
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

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	pgConnFlag := flag.String("pg-conn", "", "PostgreSQL connection string (default: built from POSTGRES_* env vars)")

	// Schema commands
	pgMigrateFlag := flag.Bool("pg-migrate", false, "Run PostgreSQL migrations using goose")
	pgMigrateStatusFlag := flag.Bool("pg-migrate-status", false, "Show PostgreSQL migration status")
	pgMigrateDownFlag := flag.Bool("pg-migrate-down", false, "Roll back the last PostgreSQL migration")
	resetDBFlag := flag.Bool("reset-db", false, "Drop all grid tables")
	dryRunFlag := flag.Bool("dry-run", false, "Dry run mode - show what would be done without actually executing")
	yesFlag := flag.Bool("yes", false, "Skip confirmation prompt (use with caution)")

	// Ledger commands
	fundFlag := flag.String("fund", "", "Mint grid tokens into this account")
	amountFlag := flag.String("amount", "", "Token amount in base units for --fund")
	transferAssetFlag := flag.String("transfer-asset", "", "Move this parcel asset to --owner")
	ownerFlag := flag.String("owner", "", "New owner for --transfer-asset")
	journalFlag := flag.Bool("journal", false, "Print the most recent journal entries")
	limitFlag := flag.Int("limit", 50, "Number of entries for --journal")

	flag.Parse()

	log := logger.New(*verboseFlag)

	connString := *pgConnFlag
	if connString == "" {
		pgCfg, err := config.PostgresFromEnv()
		if err != nil {
			return err
		}
		connString = pgCfg.ConnString()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch {
	case *pgMigrateFlag:
		return postgres.MigrateUp(ctx, log, connString)
	case *pgMigrateStatusFlag:
		return postgres.MigrateStatus(ctx, log, connString)
	case *pgMigrateDownFlag:
		return postgres.MigrateDown(ctx, log, connString)
	case *resetDBFlag:
		return admin.ResetDB(ctx, log, admin.ResetDBConfig{
			ConnString:  connString,
			DryRun:      *dryRunFlag,
			SkipConfirm: *yesFlag,
			In:          os.Stdin,
			Out:         os.Stdout,
		})
	}

	if *fundFlag == "" && *transferAssetFlag == "" && !*journalFlag {
		flag.Usage()
		return nil
	}

	backend, err := postgres.New(ctx, postgres.Config{Logger: log, ConnString: connString, MaxConns: 2})
	if err != nil {
		return err
	}
	defer backend.Close()

	switch {
	case *fundFlag != "":
		return admin.Fund(ctx, log, backend, *fundFlag, *amountFlag)
	case *transferAssetFlag != "":
		if *ownerFlag == "" {
			return fmt.Errorf("--owner is required for --transfer-asset")
		}
		return admin.TransferAsset(ctx, log, backend, *transferAssetFlag, *ownerFlag)
	default:
		return admin.PrintJournal(ctx, os.Stdout, backend, *limitFlag)
	}
}
