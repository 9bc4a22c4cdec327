package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/griderror"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/metrics"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/rewards"
)

// ClaimLandBuyRewards pays the owner of parcel id the rewards accrued since its last
// settlement. When asset is non-nil it must match the parcel's asset.
func (e *Engine) ClaimLandBuyRewards(ctx context.Context, claimant solana.PublicKey, id uint16, asset *solana.PublicKey) (owed uint64, err error) {
	start := e.cfg.Clock.Now()
	defer func() {
		e.observe(OpClaimLandBuyRewards, start, err, "claimant", claimant, "parcel_id", id, "owed", owed)
	}()

	e.mu.RLock()
	defer e.mu.RUnlock()

	st, err := e.requireState()
	if err != nil {
		return 0, err
	}

	lock := e.parcelLock(id)
	lock.Lock()
	defer lock.Unlock()

	e.parcelsMu.Lock()
	rec, ok := st.parcels.Get(id)
	e.parcelsMu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: %d", griderror.ErrParcelNotFound, id)
	}
	if asset != nil && !asset.Equals(rec.Asset) {
		return 0, fmt.Errorf("%w: parcel %d is asset %s", griderror.ErrAssetMismatch, id, rec.Asset)
	}

	// The accumulator only moves under the write lock, so it is stable here.
	acc, err := rewards.NewAccumulator(st.config.RewardsPerCell)
	if err != nil {
		return 0, err
	}
	pool := st.config.RewardPool

	err = e.inTx(ctx, func(tx Tx) error {
		owner, err := tx.OwnerOf(ctx, rec.Asset)
		if err != nil {
			return err
		}
		if !owner.Equals(claimant) {
			return fmt.Errorf("%w: parcel %d", griderror.ErrNotOwner, id)
		}

		owed, err = acc.Settle(rec.Checkpoint, rec.Rect.Cells())
		if err != nil {
			return err
		}
		rec.Checkpoint = acc.Value()
		if err := tx.SaveParcel(ctx, rec); err != nil {
			return fmt.Errorf("failed to save parcel: %w", err)
		}

		if err := tx.Transfer(ctx, pool, claimant, owed); err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return fmt.Errorf("%w: %v", griderror.ErrInvalidRewardPool, err)
			}
			return fmt.Errorf("failed to pay rewards: %w", err)
		}
		return tx.AppendJournal(ctx, e.journal(OpClaimLandBuyRewards, claimant, id, owed))
	})
	if err != nil {
		return 0, err
	}

	e.parcelsMu.Lock()
	st.parcels.Put(rec)
	e.parcelsMu.Unlock()
	metrics.RewardsPaidTotal.Add(float64(owed))
	return owed, nil
}
