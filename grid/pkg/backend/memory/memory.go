// Package memory is an in-process engine.Backend for local runs and tests.
//
// A transaction holds the backend lock from Begin until Commit or Rollback and applies
// its writes directly, keeping an undo log for rollback. Transactions are therefore fully
// serialized.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/blockmap"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/engine"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/griderror"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/parcel"
)

var errTxDone = errors.New("transaction already finished")

// Asset is a minted parcel asset.
type Asset struct {
	Owner      solana.PublicKey
	Collection solana.PublicKey
	Name       string
	URI        string
}

type Config struct {
	Logger *slog.Logger
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

type Backend struct {
	log *slog.Logger

	mu          sync.Mutex
	accounts    map[solana.PublicKey]uint64
	assets      map[solana.PublicKey]Asset
	collections map[solana.PublicKey]solana.PublicKey // collection -> update authority
	config      *engine.GridConfig
	grid        *blockmap.BlockMap
	parcels     map[uint16]parcel.Record
	journal     []engine.JournalEntry
	burned      uint64

	faults map[string]error
}

func New(cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Backend{
		log:         cfg.Logger,
		accounts:    make(map[solana.PublicKey]uint64),
		assets:      make(map[solana.PublicKey]Asset),
		collections: make(map[solana.PublicKey]solana.PublicKey),
		parcels:     make(map[uint16]parcel.Record),
		faults:      make(map[string]error),
	}, nil
}

// Begin starts a transaction. It blocks while another transaction is open.
func (b *Backend) Begin(ctx context.Context) (engine.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	return &tx{b: b}, nil
}

// Load returns the committed state, or nil when no config is stored.
func (b *Backend) Load(ctx context.Context) (*engine.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.config == nil {
		return nil, nil
	}
	grid := blockmap.New()
	if b.grid != nil {
		grid = b.grid.Clone()
	}
	records := make([]parcel.Record, 0, len(b.parcels))
	for _, id := range slices.Sorted(maps.Keys(b.parcels)) {
		records = append(records, b.parcels[id])
	}
	return &engine.Snapshot{Config: b.config.Clone(), Grid: grid, Parcels: records}, nil
}

func (b *Backend) BalanceOf(ctx context.Context, account solana.PublicKey) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balanceOf(account)
}

func (b *Backend) OwnerOf(ctx context.Context, asset solana.PublicKey) (solana.PublicKey, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, err := b.asset(asset)
	return a.Owner, err
}

func (b *Backend) CollectionOf(ctx context.Context, asset solana.PublicKey) (solana.PublicKey, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, err := b.asset(asset)
	return a.Collection, err
}

// Fund credits amount to account, creating it if needed.
func (b *Backend) Fund(account solana.PublicKey, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[account] += amount
}

// TransferAsset moves an asset to a new owner outside any grid operation, as a
// marketplace sale would.
func (b *Backend) TransferAsset(asset, newOwner solana.PublicKey) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, err := b.asset(asset)
	if err != nil {
		return err
	}
	a.Owner = newOwner
	b.assets[asset] = a
	return nil
}

// Asset returns a minted asset.
func (b *Backend) Asset(asset solana.PublicKey) (Asset, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.assets[asset]
	return a, ok
}

// CollectionAuthority returns the update authority recorded for a collection.
func (b *Backend) CollectionAuthority(collection solana.PublicKey) (solana.PublicKey, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.collections[collection]
	return a, ok
}

// Burned returns the total amount burned.
func (b *Backend) Burned() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.burned
}

// Journal returns the committed journal entries in order.
func (b *Backend) Journal() []engine.JournalEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.journal)
}

// RecentJournal returns up to limit committed journal entries, newest first.
func (b *Backend) RecentJournal(ctx context.Context, limit int) ([]engine.JournalEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := min(max(limit, 0), len(b.journal))
	out := slices.Clone(b.journal[len(b.journal)-n:])
	slices.Reverse(out)
	return out, nil
}

// InjectFault makes every later call of the named transaction method fail with err. A
// nil err clears the fault.
func (b *Backend) InjectFault(method string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.faults, method)
		return
	}
	b.faults[method] = err
}

func (b *Backend) balanceOf(account solana.PublicKey) (uint64, error) {
	bal, ok := b.accounts[account]
	if !ok {
		return 0, fmt.Errorf("%w: %s", engine.ErrAccountNotFound, account)
	}
	return bal, nil
}

func (b *Backend) asset(asset solana.PublicKey) (Asset, error) {
	a, ok := b.assets[asset]
	if !ok {
		return Asset{}, fmt.Errorf("%w: unknown asset %s", griderror.ErrInvalidCoreAsset, asset)
	}
	return a, nil
}
