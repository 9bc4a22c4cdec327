// Package postgres is an engine.Backend persisted in PostgreSQL.
//
// Grid state, the payment ledger and the asset registry live in one database so a grid
// operation commits or rolls back as a single transaction. Amounts are stored as
// NUMERIC and exchanged as decimal text to keep the full uint64 range.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/blockmap"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/engine"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/griderror"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/parcel"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/rewards"
	"github.com/Agents-Autonomous/billiondollarcontract/utils/pkg/retry"
)

const (
	defaultMaxConns        = 10
	defaultMinConns        = 2
	defaultConnectTimeout  = 5 * time.Second
	defaultMaxConnLifetime = time.Hour
	defaultMaxConnIdleTime = 30 * time.Minute

	pgCheckViolation = "23514"
)

type Config struct {
	Logger     *slog.Logger
	ConnString string
	MaxConns   int32
	MinConns   int32

	// Retry governs the initial connection attempts.
	Retry retry.Config
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ConnString == "" {
		return errors.New("connection string is required")
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = defaultMaxConns
	}
	if cfg.MinConns <= 0 {
		cfg.MinConns = defaultMinConns
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = cfg.Logger
	}
	return nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Backend struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

// New connects to PostgreSQL, retrying transient failures. Migrations are not applied;
// see MigrateUp.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = defaultMaxConnLifetime
	poolConfig.MaxConnIdleTime = defaultMaxConnIdleTime

	var pool *pgxpool.Pool
	err = retry.Do(ctx, cfg.Retry, func() error {
		connectCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()

		p, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
		if err != nil {
			return fmt.Errorf("failed to create postgres pool: %w", err)
		}
		if err := p.Ping(connectCtx); err != nil {
			p.Close()
			return fmt.Errorf("failed to ping postgres: %w", err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	cfg.Logger.Info("postgres: connected",
		"host", poolConfig.ConnConfig.Host,
		"database", poolConfig.ConnConfig.Database,
		"max_conns", cfg.MaxConns)

	return &Backend{log: cfg.Logger, pool: pool}, nil
}

func (b *Backend) Close() {
	b.pool.Close()
}

// Ping checks the database is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}

func (b *Backend) Begin(ctx context.Context) (engine.Tx, error) {
	pgTx, err := b.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &tx{tx: pgTx}, nil
}

func (b *Backend) Load(ctx context.Context) (*engine.Snapshot, error) {
	var doc []byte
	err := b.pool.QueryRow(ctx, `SELECT data FROM grid_config WHERE id = 1`).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load grid config: %w", err)
	}
	cfg, err := decodeConfig(doc)
	if err != nil {
		return nil, err
	}

	grid := blockmap.New()
	var blocks []byte
	err = b.pool.QueryRow(ctx, `SELECT blocks FROM grid_blocks WHERE id = 1`).Scan(&blocks)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to load grid blocks: %w", err)
	default:
		if err := grid.UnmarshalBinary(blocks); err != nil {
			return nil, err
		}
	}

	rows, err := b.pool.Query(ctx, `
		SELECT id, asset, x, y, width, height, checkpoint::text
		FROM parcels
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load parcels: %w", err)
	}
	defer rows.Close()

	var records []parcel.Record
	for rows.Next() {
		var (
			id                  int32
			asset, checkpoint   string
			x, y, width, height int16
		)
		if err := rows.Scan(&id, &asset, &x, &y, &width, &height, &checkpoint); err != nil {
			return nil, fmt.Errorf("failed to scan parcel: %w", err)
		}
		key, err := solana.PublicKeyFromBase58(asset)
		if err != nil {
			return nil, fmt.Errorf("parcel %d has malformed asset %q: %w", id, asset, err)
		}
		cp, err := rewards.ParseValue(checkpoint)
		if err != nil {
			return nil, fmt.Errorf("parcel %d: %w", id, err)
		}
		records = append(records, parcel.Record{
			ID:         uint16(id),
			Asset:      key,
			Rect:       parcel.Rect{X: uint8(x), Y: uint8(y), Width: uint8(width), Height: uint8(height)},
			Checkpoint: cp,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate parcels: %w", err)
	}

	return &engine.Snapshot{Config: cfg, Grid: grid, Parcels: records}, nil
}

func (b *Backend) BalanceOf(ctx context.Context, account solana.PublicKey) (uint64, error) {
	return balanceOf(ctx, b.pool, account)
}

func (b *Backend) OwnerOf(ctx context.Context, asset solana.PublicKey) (solana.PublicKey, error) {
	owner, _, err := assetOwnership(ctx, b.pool, asset)
	return owner, err
}

func (b *Backend) CollectionOf(ctx context.Context, asset solana.PublicKey) (solana.PublicKey, error) {
	_, collection, err := assetOwnership(ctx, b.pool, asset)
	return collection, err
}

// Fund credits amount to account, creating it if needed.
func (b *Backend) Fund(ctx context.Context, account solana.PublicKey, amount uint64) error {
	return credit(ctx, b.pool, account, amount)
}

// TransferAsset moves an asset to a new owner outside any grid operation.
func (b *Backend) TransferAsset(ctx context.Context, asset, newOwner solana.PublicKey) error {
	tag, err := b.pool.Exec(ctx, `UPDATE assets SET owner = $2 WHERE asset = $1`, asset.String(), newOwner.String())
	if err != nil {
		return fmt.Errorf("failed to transfer asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: unknown asset %s", griderror.ErrInvalidCoreAsset, asset)
	}
	return nil
}

// RecentJournal returns up to limit journal entries, newest first.
func (b *Backend) RecentJournal(ctx context.Context, limit int) ([]engine.JournalEntry, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT id, operation, actor, COALESCE(parcel_id, 0), amount::text, at
		FROM grid_journal
		ORDER BY at DESC, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []engine.JournalEntry
	for rows.Next() {
		var (
			e             engine.JournalEntry
			actor, amount string
			parcelID      int32
		)
		if err := rows.Scan(&e.ID, &e.Operation, &actor, &parcelID, &amount, &e.At); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		if e.Actor, err = solana.PublicKeyFromBase58(actor); err != nil {
			return nil, fmt.Errorf("journal entry %s has malformed actor: %w", e.ID, err)
		}
		if e.Amount, err = strconv.ParseUint(amount, 10, 64); err != nil {
			return nil, fmt.Errorf("journal entry %s has malformed amount: %w", e.ID, err)
		}
		e.ParcelID = uint16(parcelID)
		e.At = e.At.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// configDoc stores the accumulator as a decimal string alongside the config fields.
type configDoc struct {
	engine.GridConfig
	RewardsPerCell string `json:"rewards_per_cell"`
}

func encodeConfig(cfg engine.GridConfig) ([]byte, error) {
	doc := configDoc{GridConfig: cfg, RewardsPerCell: cfg.RewardsPerCell.Dec()}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode grid config: %w", err)
	}
	return data, nil
}

func decodeConfig(data []byte) (engine.GridConfig, error) {
	var doc configDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return engine.GridConfig{}, fmt.Errorf("failed to decode grid config: %w", err)
	}
	acc, err := rewards.ParseValue(doc.RewardsPerCell)
	if err != nil {
		return engine.GridConfig{}, fmt.Errorf("grid config: %w", err)
	}
	cfg := doc.GridConfig
	cfg.RewardsPerCell = acc
	return cfg, nil
}

func balanceOf(ctx context.Context, q querier, account solana.PublicKey) (uint64, error) {
	var balance string
	err := q.QueryRow(ctx, `SELECT balance::text FROM token_accounts WHERE account = $1`, account.String()).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", engine.ErrAccountNotFound, account)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return strconv.ParseUint(balance, 10, 64)
}

func credit(ctx context.Context, q querier, account solana.PublicKey, amount uint64) error {
	_, err := q.Exec(ctx, `
		INSERT INTO token_accounts (account, balance) VALUES ($1, $2::numeric)
		ON CONFLICT (account) DO UPDATE SET balance = token_accounts.balance + EXCLUDED.balance
	`, account.String(), strconv.FormatUint(amount, 10))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation {
			return fmt.Errorf("%w: balance of %s", griderror.ErrOverflow, account)
		}
		return fmt.Errorf("failed to credit %s: %w", account, err)
	}
	return nil
}

// debit subtracts amount from account, failing without change when the balance is short.
func debit(ctx context.Context, q querier, account solana.PublicKey, amount uint64) error {
	tag, err := q.Exec(ctx, `
		UPDATE token_accounts SET balance = balance - $2::numeric
		WHERE account = $1 AND balance >= $2::numeric
	`, account.String(), strconv.FormatUint(amount, 10))
	if err != nil {
		return fmt.Errorf("failed to debit %s: %w", account, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	bal, err := balanceOf(ctx, q, account)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s holds %d, needs %d", griderror.ErrInsufficientBalance, account, bal, amount)
}

func assetOwnership(ctx context.Context, q querier, asset solana.PublicKey) (owner, collection solana.PublicKey, err error) {
	var ownerStr, collectionStr string
	err = q.QueryRow(ctx, `SELECT owner, collection FROM assets WHERE asset = $1`, asset.String()).Scan(&ownerStr, &collectionStr)
	if errors.Is(err, pgx.ErrNoRows) {
		return owner, collection, fmt.Errorf("%w: unknown asset %s", griderror.ErrInvalidCoreAsset, asset)
	}
	if err != nil {
		return owner, collection, fmt.Errorf("failed to read asset: %w", err)
	}
	if owner, err = solana.PublicKeyFromBase58(ownerStr); err != nil {
		return owner, collection, fmt.Errorf("%w: asset %s owner: %v", griderror.ErrInvalidCoreAsset, asset, err)
	}
	if collection, err = solana.PublicKeyFromBase58(collectionStr); err != nil {
		return owner, collection, fmt.Errorf("%w: asset %s collection: %v", griderror.ErrInvalidCoreAsset, asset, err)
	}
	return owner, collection, nil
}
