package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/engine"
)

// Ledger is the subset of the postgres backend the operator commands touch.
type Ledger interface {
	Fund(ctx context.Context, account solana.PublicKey, amount uint64) error
	TransferAsset(ctx context.Context, asset, newOwner solana.PublicKey) error
	BalanceOf(ctx context.Context, account solana.PublicKey) (uint64, error)
	RecentJournal(ctx context.Context, limit int) ([]engine.JournalEntry, error)
}

// Fund mints amount base units of the grid token into account, creating the account if needed.
func Fund(ctx context.Context, log *slog.Logger, ledger Ledger, account string, amount string) error {
	acct, err := solana.PublicKeyFromBase58(account)
	if err != nil {
		return fmt.Errorf("invalid account %q: %w", account, err)
	}
	n, err := ParseAmount(amount)
	if err != nil {
		return err
	}
	if err := ledger.Fund(ctx, acct, n); err != nil {
		return fmt.Errorf("failed to fund %s: %w", acct, err)
	}
	balance, err := ledger.BalanceOf(ctx, acct)
	if err != nil {
		return fmt.Errorf("failed to read balance of %s: %w", acct, err)
	}
	log.Info("account funded", "account", acct, "amount", n, "balance", balance)
	return nil
}

// TransferAsset moves a parcel asset to a new owner, as a marketplace sale would.
func TransferAsset(ctx context.Context, log *slog.Logger, ledger Ledger, asset, owner string) error {
	a, err := solana.PublicKeyFromBase58(asset)
	if err != nil {
		return fmt.Errorf("invalid asset %q: %w", asset, err)
	}
	o, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return fmt.Errorf("invalid owner %q: %w", owner, err)
	}
	if err := ledger.TransferAsset(ctx, a, o); err != nil {
		return fmt.Errorf("failed to transfer %s: %w", a, err)
	}
	log.Info("asset transferred", "asset", a, "owner", o)
	return nil
}

// PrintJournal writes the newest limit journal entries to w as a table.
func PrintJournal(ctx context.Context, w io.Writer, ledger Ledger, limit int) error {
	entries, err := ledger.RecentJournal(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tOPERATION\tACTOR\tPARCEL\tAMOUNT")
	for _, e := range entries {
		parcel := "-"
		if e.ParcelID != 0 {
			parcel = strconv.FormatUint(uint64(e.ParcelID), 10)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", e.At.UTC().Format(time.RFC3339), e.Operation, e.Actor, parcel, e.Amount)
	}
	return tw.Flush()
}

// ParseAmount parses a positive base-unit token amount.
func ParseAmount(s string) (uint64, error) {
	if s == "" {
		return 0, errors.New("--amount is required")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if n == 0 {
		return 0, errors.New("amount must be positive")
	}
	return n, nil
}
