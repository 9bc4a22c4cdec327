// Package engine runs grid operations against a Backend.
//
// Every mutating operation holds the engine's write lock from validation through the
// backend commit, computes its changes on a staged copy of the in-memory state, and
// applies the copy only after the backend transaction commits. Reward settlements hold
// the read lock plus a per-parcel lock so settlements of different parcels proceed in
// parallel while still serializing against new contributions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/blockmap"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/griderror"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/metrics"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/parcel"
)

// Operation names used in logs, metrics and the journal.
const (
	OpInitialize                  = "initialize"
	OpUpdateConfig                = "update_config"
	OpClaimParcel                 = "claim_parcel"
	OpAdminMint                   = "admin_mint"
	OpClaimLandBuyRewards         = "claim_land_buy_rewards"
	OpAdminCloseParcelInfo        = "admin_close_parcel_info"
	OpAdminPurge                  = "admin_purge"
	OpTransferCollectionAuthority = "transfer_collection_authority"
	OpUpdateParcelMetadata        = "update_parcel_metadata"
)

type Config struct {
	Logger    *slog.Logger
	Clock     clockwork.Clock
	Backend   Backend
	ProgramID solana.PublicKey
	Archiver  Archiver // optional; when nil purge skips the snapshot upload
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Backend == nil {
		return errors.New("backend is required")
	}
	if cfg.ProgramID.IsZero() {
		return errors.New("program id is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// state is the in-memory mirror of the committed backend state.
type state struct {
	config  GridConfig
	grid    *blockmap.BlockMap
	parcels *parcel.Registry
}

type Engine struct {
	log *slog.Logger
	cfg Config

	mu    sync.RWMutex
	state *state // nil when not initialized

	// parcelsMu guards parcel registry access by holders of the read lock.
	parcelsMu sync.Mutex

	parcelLocksMu sync.Mutex
	parcelLocks   map[uint16]*sync.Mutex
}

// New creates an engine and restores any state persisted by the backend.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		log:         cfg.Logger,
		cfg:         cfg,
		parcelLocks: make(map[uint16]*sync.Mutex),
	}

	snap, err := cfg.Backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load grid state: %w", err)
	}
	if snap != nil {
		e.state = stateFromSnapshot(snap)
		metrics.SetTotals(snap.Config.TotalClaimedCells, snap.Config.TotalBurned, snap.Config.CurrentRing())
		e.log.Info("engine: restored grid state",
			"parcels", len(snap.Parcels),
			"claimed_cells", snap.Config.TotalClaimedCells,
			"next_parcel_id", snap.Config.NextParcelID)
	} else {
		e.log.Info("engine: grid not initialized")
	}

	return e, nil
}

func stateFromSnapshot(snap *Snapshot) *state {
	grid := snap.Grid
	if grid == nil {
		grid = blockmap.New()
	}
	reg := parcel.NewRegistry()
	for _, rec := range snap.Parcels {
		reg.Put(rec)
	}
	return &state{config: snap.Config.Clone(), grid: grid, parcels: reg}
}

// Initialized reports whether the grid has been initialized.
func (e *Engine) Initialized() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state != nil
}

// ConfigAddress derives the grid config address.
func (e *Engine) ConfigAddress() (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(ConfigSeed)}, e.cfg.ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive grid config address: %w", err)
	}
	return addr, nil
}

// RewardPoolAddress derives the reward pool account owned by the config at configAddr.
func (e *Engine) RewardPoolAddress(configAddr solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(RewardPoolSeed), configAddr.Bytes()}, e.cfg.ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive reward pool address: %w", err)
	}
	return addr, nil
}

// requireState returns the live state or ErrNotInitialized. Callers hold e.mu.
func (e *Engine) requireState() (*state, error) {
	if e.state == nil {
		return nil, griderror.ErrNotInitialized
	}
	return e.state, nil
}

func requireAuthority(cfg GridConfig, caller solana.PublicKey) error {
	if !cfg.Authority.Equals(caller) {
		return fmt.Errorf("%w: %s is not the grid authority", griderror.ErrUnauthorized, caller)
	}
	return nil
}

// inTx runs fn inside one backend transaction, committing when fn succeeds and rolling
// back otherwise.
func (e *Engine) inTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := e.cfg.Backend.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			e.log.Warn("engine: rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (e *Engine) journal(op string, actor solana.PublicKey, parcelID uint16, amount uint64) JournalEntry {
	return JournalEntry{
		ID:        uuid.New(),
		Operation: op,
		Actor:     actor,
		ParcelID:  parcelID,
		Amount:    amount,
		At:        e.cfg.Clock.Now().UTC(),
	}
}

// observe records metrics and logs the outcome of an operation.
func (e *Engine) observe(op string, start time.Time, err error, attrs ...any) {
	metrics.RecordOperation(op, e.cfg.Clock.Since(start), err)
	if err == nil {
		e.log.Info("engine: "+op, attrs...)
		return
	}
	attrs = append(attrs, "code", griderror.Code(err), "error", err)
	if griderror.Classify(err) == griderror.ClassUnknown {
		e.log.Error("engine: "+op+" failed", attrs...)
		return
	}
	e.log.Debug("engine: "+op+" rejected", attrs...)
}

func (e *Engine) publishTotals(cfg GridConfig) {
	metrics.SetTotals(cfg.TotalClaimedCells, cfg.TotalBurned, cfg.CurrentRing())
}

func (e *Engine) parcelLock(id uint16) *sync.Mutex {
	e.parcelLocksMu.Lock()
	defer e.parcelLocksMu.Unlock()
	l, ok := e.parcelLocks[id]
	if !ok {
		l = &sync.Mutex{}
		e.parcelLocks[id] = l
	}
	return l
}
