package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/blockmap"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/griderror"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/metrics"
)

// AdminCloseParcelInfo removes the record of parcel id. Its cells stay claimed.
func (e *Engine) AdminCloseParcelInfo(ctx context.Context, caller solana.PublicKey, id uint16) (err error) {
	start := e.cfg.Clock.Now()
	defer func() { e.observe(OpAdminCloseParcelInfo, start, err, "parcel_id", id) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.requireState()
	if err != nil {
		return err
	}
	if err := requireAuthority(st.config, caller); err != nil {
		return err
	}
	if _, ok := st.parcels.Get(id); !ok {
		return fmt.Errorf("%w: %d", griderror.ErrParcelNotFound, id)
	}

	err = e.inTx(ctx, func(tx Tx) error {
		if err := tx.DeleteParcel(ctx, id); err != nil {
			return fmt.Errorf("failed to delete parcel: %w", err)
		}
		return tx.AppendJournal(ctx, e.journal(OpAdminCloseParcelInfo, caller, id, 0))
	})
	if err != nil {
		return err
	}

	st.parcels.Delete(id)
	e.parcelLocksMu.Lock()
	delete(e.parcelLocks, id)
	e.parcelLocksMu.Unlock()
	return nil
}

// AdminPurge archives the final snapshot when an archiver is configured, drains the
// reward pool to the authority, closes the pool, zeroes the grid and releases the config.
// Afterwards the engine is uninitialized.
func (e *Engine) AdminPurge(ctx context.Context, caller solana.PublicKey) (res PurgeResult, err error) {
	start := e.cfg.Clock.Now()
	defer func() { e.observe(OpAdminPurge, start, err, "drained", res.Drained, "archive_key", res.ArchiveKey) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.requireState()
	if err != nil {
		return PurgeResult{}, err
	}
	if err := requireAuthority(st.config, caller); err != nil {
		return PurgeResult{}, err
	}

	var archiveKey string
	if e.cfg.Archiver != nil {
		archiveKey, err = e.cfg.Archiver.Archive(ctx, st.snapshot())
		metrics.RecordArchiveUpload(err)
		if err != nil {
			return PurgeResult{}, fmt.Errorf("failed to archive grid snapshot: %w", err)
		}
	}

	pool := st.config.RewardPool
	authority := st.config.Authority
	var drained uint64
	err = e.inTx(ctx, func(tx Tx) error {
		balance, err := tx.BalanceOf(ctx, pool)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return fmt.Errorf("%w: %v", griderror.ErrInvalidRewardPool, err)
			}
			return fmt.Errorf("failed to read reward pool balance: %w", err)
		}
		if balance > 0 {
			if err := tx.Transfer(ctx, pool, authority, balance); err != nil {
				return fmt.Errorf("failed to drain reward pool: %w", err)
			}
		}
		drained = balance
		if err := tx.CloseAccount(ctx, pool, authority); err != nil {
			return fmt.Errorf("failed to close reward pool: %w", err)
		}
		if err := tx.SaveGrid(ctx, blockmap.New()); err != nil {
			return fmt.Errorf("failed to zero grid: %w", err)
		}
		if err := tx.Purge(ctx); err != nil {
			return fmt.Errorf("failed to release grid state: %w", err)
		}
		return tx.AppendJournal(ctx, e.journal(OpAdminPurge, caller, 0, drained))
	})
	if err != nil {
		return PurgeResult{}, err
	}

	e.state = nil
	e.parcelLocksMu.Lock()
	e.parcelLocks = make(map[uint16]*sync.Mutex)
	e.parcelLocksMu.Unlock()
	metrics.SetTotals(0, 0, 0)
	return PurgeResult{Drained: drained, ArchiveKey: archiveKey}, nil
}

// TransferCollectionAuthority hands update authority over the parcel collection to
// newAuthority.
func (e *Engine) TransferCollectionAuthority(ctx context.Context, caller, newAuthority solana.PublicKey) (err error) {
	start := e.cfg.Clock.Now()
	defer func() { e.observe(OpTransferCollectionAuthority, start, err, "new_authority", newAuthority) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.requireState()
	if err != nil {
		return err
	}
	if err := requireAuthority(st.config, caller); err != nil {
		return err
	}
	if st.config.Collection.IsZero() {
		return griderror.ErrCollectionNotSet
	}
	collection := st.config.Collection

	return e.inTx(ctx, func(tx Tx) error {
		if err := tx.TransferUpdateAuthority(ctx, collection, newAuthority); err != nil {
			return fmt.Errorf("failed to transfer collection authority: %w", err)
		}
		return tx.AppendJournal(ctx, e.journal(OpTransferCollectionAuthority, caller, 0, 0))
	})
}

// UpdateParcelMetadata changes the name or URI of a parcel asset in the grid's collection.
func (e *Engine) UpdateParcelMetadata(ctx context.Context, caller, asset solana.PublicKey, u MetadataUpdate) (err error) {
	start := e.cfg.Clock.Now()
	defer func() { e.observe(OpUpdateParcelMetadata, start, err, "asset", asset) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.requireState()
	if err != nil {
		return err
	}
	if err := requireAuthority(st.config, caller); err != nil {
		return err
	}
	collection := st.config.Collection

	return e.inTx(ctx, func(tx Tx) error {
		assetCollection, err := tx.CollectionOf(ctx, asset)
		if err != nil {
			return err
		}
		if collection.IsZero() || !assetCollection.Equals(collection) {
			return fmt.Errorf("%w: asset %s belongs to %s", griderror.ErrInvalidCollection, asset, assetCollection)
		}
		if err := tx.UpdateMetadata(ctx, asset, u); err != nil {
			return fmt.Errorf("failed to update asset metadata: %w", err)
		}
		return tx.AppendJournal(ctx, e.journal(OpUpdateParcelMetadata, caller, 0, 0))
	})
}
