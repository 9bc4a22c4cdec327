package admin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/backend/postgres"
)

type ResetDBConfig struct {
	ConnString  string
	DryRun      bool
	SkipConfirm bool

	In  io.Reader
	Out io.Writer
}

// ResetDB rolls back every grid migration after listing the tables that will be dropped
// and, unless SkipConfirm is set, asking the operator to type "yes".
func ResetDB(ctx context.Context, log *slog.Logger, cfg ResetDBConfig) error {
	tables, err := listTables(ctx, cfg.ConnString)
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		fmt.Fprintln(cfg.Out, "No grid tables found")
		return nil
	}

	fmt.Fprintf(cfg.Out, "WARNING: This will DROP %d table(s):\n\n", len(tables))
	for _, table := range tables {
		fmt.Fprintf(cfg.Out, "  - %s\n", table)
	}

	if cfg.DryRun {
		fmt.Fprintln(cfg.Out, "\n[DRY RUN] Would drop the above tables")
		return nil
	}

	if !cfg.SkipConfirm {
		ok, err := Confirm(cfg.In, cfg.Out, "\nThis is a DESTRUCTIVE operation that cannot be undone!\nType 'yes' to confirm: ")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cfg.Out, "\nConfirmation failed. Operation cancelled.")
			return nil
		}
	}

	if err := postgres.MigrateReset(ctx, log, cfg.ConnString); err != nil {
		return err
	}
	fmt.Fprintf(cfg.Out, "\nSuccessfully dropped %d table(s)\n", len(tables))
	return nil
}

// Confirm writes prompt and reports whether the next line read from in is "yes".
func Confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprint(out, prompt)
	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && (err != io.EOF || response == "") {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	return strings.EqualFold(strings.TrimSpace(response), "yes"), nil
}

func listTables(ctx context.Context, connString string) ([]string, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema()
		  AND table_type = 'BASE TABLE'
		  AND table_name <> 'goose_db_version'
		ORDER BY table_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	tables, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan table names: %w", err)
	}
	return tables, nil
}
