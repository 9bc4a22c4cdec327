package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/gagliardetto/solana-go"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/blockmap"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/griderror"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/metrics"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/parcel"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/rewards"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/ring"
)

// checkCells walks the rectangle row by row. With gated set, a cell outside the unlocked
// rings fails RingLocked before its ownership is checked.
func checkCells(grid *blockmap.BlockMap, r parcel.Rect, gated bool, unlocked uint8) error {
	for dy := uint8(0); dy < r.Height; dy++ {
		for dx := uint8(0); dx < r.Width; dx++ {
			x, y := r.X+dx, r.Y+dy
			if gated {
				if cellRing := ring.Of(x, y); cellRing > unlocked {
					return fmt.Errorf("%w: cell (%d, %d) is in ring %d, unlocked ring is %d", griderror.ErrRingLocked, x, y, cellRing, unlocked)
				}
			}
			if owner := grid.Get(x, y); owner != blockmap.Unclaimed {
				return fmt.Errorf("%w: cell (%d, %d) belongs to parcel %d", griderror.ErrBlockAlreadyClaimed, x, y, owner)
			}
		}
	}
	return nil
}

// paymentSplit returns the cost of cells and how it divides into the reward pool share
// and the burned remainder.
func paymentSplit(cells uint32, price uint64, bps uint16) (cost, reward, burn uint64, err error) {
	hi, cost := bits.Mul64(uint64(cells), price)
	if hi != 0 {
		return 0, 0, 0, fmt.Errorf("%w: cost of %d cells at %d", griderror.ErrOverflow, cells, price)
	}
	hi, share := bits.Mul64(cost, uint64(bps))
	if hi != 0 {
		return 0, 0, 0, fmt.Errorf("%w: reward share of %d", griderror.ErrOverflow, cost)
	}
	reward = share / MaxRewardShareBps
	return cost, reward, cost - reward, nil
}

// allocation is the staged result of assigning a rectangle to a new parcel.
type allocation struct {
	config GridConfig
	grid   *blockmap.BlockMap
	record parcel.Record
}

// allocate stages the totals, id, grid and record changes shared by purchases and admin
// mints. cfg is the staged config and is modified in place.
func allocate(cfg *GridConfig, grid *blockmap.BlockMap, r parcel.Rect) (*allocation, error) {
	cells := r.Cells()
	if cfg.TotalClaimedCells > math.MaxUint32-cells {
		return nil, fmt.Errorf("%w: total claimed cells", griderror.ErrOverflow)
	}
	if cfg.NextParcelID == math.MaxUint16 {
		return nil, fmt.Errorf("%w: parcel ids exhausted", griderror.ErrOverflow)
	}

	id := cfg.NextParcelID
	cfg.TotalClaimedCells += cells
	cfg.NextParcelID++

	staged := grid.Clone()
	staged.AssignRectangle(r.X, r.Y, r.Width, r.Height, id)

	return &allocation{
		config: *cfg,
		grid:   staged,
		record: parcel.Record{ID: id, Rect: r, Checkpoint: cfg.RewardsPerCell},
	}, nil
}

// commitAllocation mints the asset and persists an allocation within tx.
func (e *Engine) commitAllocation(ctx context.Context, tx Tx, a *allocation, owner solana.PublicKey) error {
	asset, err := tx.Mint(ctx, a.config.Collection, owner, parcel.Name(a.record.ID), parcel.URI(a.config.URIBase, a.record.ID))
	if err != nil {
		return fmt.Errorf("failed to mint parcel asset: %w", err)
	}
	a.record.Asset = asset

	if err := tx.SaveConfig(ctx, a.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	if err := tx.SaveGrid(ctx, a.grid); err != nil {
		return fmt.Errorf("failed to save grid: %w", err)
	}
	if err := tx.SaveParcel(ctx, a.record); err != nil {
		return fmt.Errorf("failed to save parcel: %w", err)
	}
	return nil
}

func (e *Engine) applyAllocation(st *state, a *allocation) {
	st.config = a.config
	st.grid = a.grid
	st.parcels.Put(a.record)
	e.publishTotals(a.config)
}

// ClaimParcel sells the rectangle r to buyer. The payment is split between the reward
// pool, which is credited to existing owners, and a burn.
func (e *Engine) ClaimParcel(ctx context.Context, buyer solana.PublicKey, r parcel.Rect) (rec parcel.Record, err error) {
	start := e.cfg.Clock.Now()
	defer func() {
		e.observe(OpClaimParcel, start, err, "buyer", buyer, "x", r.X, "y", r.Y, "width", r.Width, "height", r.Height, "parcel_id", rec.ID)
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.requireState()
	if err != nil {
		return parcel.Record{}, err
	}
	if err := r.Validate(); err != nil {
		return parcel.Record{}, err
	}
	if st.config.Collection.IsZero() {
		return parcel.Record{}, griderror.ErrCollectionNotSet
	}
	if err := checkCells(st.grid, r, true, st.config.CurrentRing()); err != nil {
		return parcel.Record{}, err
	}

	cfg := st.config.Clone()
	cells := r.Cells()
	cost, reward, burn, err := paymentSplit(cells, cfg.PricePerCell, cfg.RewardShareBps)
	if err != nil {
		return parcel.Record{}, err
	}

	var a *allocation
	err = e.inTx(ctx, func(tx Tx) error {
		balance, err := tx.BalanceOf(ctx, buyer)
		if err != nil && !errors.Is(err, ErrAccountNotFound) {
			return fmt.Errorf("failed to read buyer balance: %w", err)
		}
		if balance < cost {
			return fmt.Errorf("%w: cost %d, balance %d", griderror.ErrInsufficientBalance, cost, balance)
		}

		if reward > 0 {
			if err := tx.Transfer(ctx, buyer, cfg.RewardPool, reward); err != nil {
				return fmt.Errorf("failed to pay reward pool: %w", err)
			}
		}
		if burn > 0 {
			if err := tx.Burn(ctx, buyer, burn); err != nil {
				return fmt.Errorf("failed to burn payment: %w", err)
			}
		}

		acc, err := rewards.NewAccumulator(cfg.RewardsPerCell)
		if err != nil {
			return err
		}
		if err := acc.RecordContribution(reward, cfg.TotalClaimedCells); err != nil {
			return err
		}
		cfg.RewardsPerCell = acc.Value()

		if cfg.TotalBurned > math.MaxUint64-burn {
			return fmt.Errorf("%w: total burned", griderror.ErrOverflow)
		}
		cfg.TotalBurned += burn

		a, err = allocate(&cfg, st.grid, r)
		if err != nil {
			return err
		}
		if err := e.commitAllocation(ctx, tx, a, buyer); err != nil {
			return err
		}
		return tx.AppendJournal(ctx, e.journal(OpClaimParcel, buyer, a.record.ID, cost))
	})
	if err != nil {
		return parcel.Record{}, err
	}

	e.applyAllocation(st, a)
	metrics.RewardsContributedTotal.Add(float64(reward))
	return a.record, nil
}

// AdminMint allocates r to recipient without payment or ring gating while seeding is
// enabled.
func (e *Engine) AdminMint(ctx context.Context, caller, recipient solana.PublicKey, r parcel.Rect) (rec parcel.Record, err error) {
	start := e.cfg.Clock.Now()
	defer func() {
		e.observe(OpAdminMint, start, err, "recipient", recipient, "x", r.X, "y", r.Y, "width", r.Width, "height", r.Height, "parcel_id", rec.ID)
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.requireState()
	if err != nil {
		return parcel.Record{}, err
	}
	if err := requireAuthority(st.config, caller); err != nil {
		return parcel.Record{}, err
	}
	if st.config.Collection.IsZero() {
		return parcel.Record{}, griderror.ErrCollectionNotSet
	}
	if !st.config.SeedingEnabled {
		return parcel.Record{}, griderror.ErrSeedingDisabled
	}
	if err := r.Validate(); err != nil {
		return parcel.Record{}, err
	}
	if err := checkCells(st.grid, r, false, 0); err != nil {
		return parcel.Record{}, err
	}

	cfg := st.config.Clone()
	a, err := allocate(&cfg, st.grid, r)
	if err != nil {
		return parcel.Record{}, err
	}
	err = e.inTx(ctx, func(tx Tx) error {
		if err := e.commitAllocation(ctx, tx, a, recipient); err != nil {
			return err
		}
		return tx.AppendJournal(ctx, e.journal(OpAdminMint, caller, a.record.ID, 0))
	})
	if err != nil {
		return parcel.Record{}, err
	}

	e.applyAllocation(st, a)
	return a.record, nil
}
