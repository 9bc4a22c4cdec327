package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/blockmap"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/griderror"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/parcel"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/rewards"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/ring"
)

func (st *state) snapshot() Snapshot {
	return Snapshot{
		Config:  st.config.Clone(),
		Grid:    st.grid.Clone(),
		Parcels: st.parcels.All(),
	}
}

// Config returns the current config with the unlocked ring and pool balance.
func (e *Engine) Config(ctx context.Context) (ConfigView, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st, err := e.requireState()
	if err != nil {
		return ConfigView{}, err
	}
	balance, err := e.cfg.Backend.BalanceOf(ctx, st.config.RewardPool)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return ConfigView{}, fmt.Errorf("failed to read reward pool balance: %w", err)
	}
	return ConfigView{
		GridConfig:        st.config.Clone(),
		UnlockedRing:      st.config.CurrentRing(),
		RewardPoolBalance: balance,
	}, nil
}

// Cell describes the cell at (x, y).
func (e *Engine) Cell(x, y uint8) (CellView, error) {
	if int(x) >= ring.GridSize || int(y) >= ring.GridSize {
		return CellView{}, fmt.Errorf("%w: cell (%d, %d)", griderror.ErrOutOfBounds, x, y)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	st, err := e.requireState()
	if err != nil {
		return CellView{}, err
	}
	id := st.grid.Get(x, y)
	return CellView{
		X:        x,
		Y:        y,
		Ring:     ring.Of(x, y),
		ParcelID: id,
		Claimed:  id != blockmap.Unclaimed,
	}, nil
}

// Parcel returns parcel id with its current owner and pending reward.
func (e *Engine) Parcel(ctx context.Context, id uint16) (ParcelView, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st, err := e.requireState()
	if err != nil {
		return ParcelView{}, err
	}

	e.parcelsMu.Lock()
	rec, ok := st.parcels.Get(id)
	e.parcelsMu.Unlock()
	if !ok {
		return ParcelView{}, fmt.Errorf("%w: %d", griderror.ErrParcelNotFound, id)
	}

	acc, err := rewards.NewAccumulator(st.config.RewardsPerCell)
	if err != nil {
		return ParcelView{}, err
	}
	owed, err := acc.Owed(rec.Checkpoint, rec.Rect.Cells())
	if err != nil {
		return ParcelView{}, err
	}
	owner, err := e.cfg.Backend.OwnerOf(ctx, rec.Asset)
	if err != nil {
		return ParcelView{}, err
	}
	return ParcelView{Record: rec, Owner: owner, Cells: rec.Rect.Cells(), OwedReward: owed}, nil
}

// Parcels returns every parcel record ordered by id.
func (e *Engine) Parcels() ([]parcel.Record, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st, err := e.requireState()
	if err != nil {
		return nil, err
	}
	e.parcelsMu.Lock()
	defer e.parcelsMu.Unlock()
	return st.parcels.All(), nil
}

// Grid returns a copy of the block map.
func (e *Engine) Grid() (*blockmap.BlockMap, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st, err := e.requireState()
	if err != nil {
		return nil, err
	}
	return st.grid.Clone(), nil
}

// Snapshot returns a copy of the full grid state.
func (e *Engine) Snapshot() (Snapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st, err := e.requireState()
	if err != nil {
		return Snapshot{}, err
	}
	e.parcelsMu.Lock()
	defer e.parcelsMu.Unlock()
	return st.snapshot(), nil
}
