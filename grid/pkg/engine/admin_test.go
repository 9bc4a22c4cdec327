package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/engine"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/griderror"
	gridtesting "github.com/Agents-Autonomous/billiondollarcontract/utils/pkg/testing"
)

type fakeArchiver struct {
	key       string
	err       error
	snapshots []engine.Snapshot
}

func (a *fakeArchiver) Archive(_ context.Context, snap engine.Snapshot) (string, error) {
	a.snapshots = append(a.snapshots, snap)
	return a.key, a.err
}

func TestGrid_Engine_AdminCloseParcelInfo(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	f := newFixture(t)
	f.initialize(t, 1, 0, allRingsOpen)
	buyer := f.funded(t, 100)
	rec, err := f.eng.ClaimParcel(ctx, buyer, rect(10, 10, 2, 2))
	require.NoError(t, err)

	err = f.eng.AdminCloseParcelInfo(ctx, gridtesting.NewKey(), rec.ID)
	require.ErrorIs(t, err, griderror.ErrUnauthorized)

	require.NoError(t, f.eng.AdminCloseParcelInfo(ctx, f.authority, rec.ID))

	_, err = f.eng.Parcel(ctx, rec.ID)
	require.ErrorIs(t, err, griderror.ErrParcelNotFound)
	_, err = f.eng.ClaimLandBuyRewards(ctx, buyer, rec.ID, nil)
	require.ErrorIs(t, err, griderror.ErrParcelNotFound)
	err = f.eng.AdminCloseParcelInfo(ctx, f.authority, rec.ID)
	require.ErrorIs(t, err, griderror.ErrParcelNotFound)

	// The cells remain claimed and counted.
	cell, err := f.eng.Cell(11, 11)
	require.NoError(t, err)
	require.True(t, cell.Claimed)
	require.Equal(t, rec.ID, cell.ParcelID)
	require.Equal(t, uint32(4), f.config(t).TotalClaimedCells)

	_, err = f.eng.ClaimParcel(ctx, f.funded(t, 100), rect(11, 11, 1, 1))
	require.ErrorIs(t, err, griderror.ErrBlockAlreadyClaimed)

	// The asset itself is untouched.
	asset, ok := f.backend.Asset(rec.Asset)
	require.True(t, ok)
	require.Equal(t, buyer, asset.Owner)
}

func TestGrid_Engine_AdminPurge(t *testing.T) {
	t.Parallel()

	t.Run("drains the pool and resets the grid", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		f := newFixture(t)
		f.initialize(t, 10, 5000, allRingsOpen)

		_, err := f.eng.AdminMint(ctx, f.authority, gridtesting.NewKey(), rect(0, 0, 5, 5))
		require.NoError(t, err)
		_, err = f.eng.ClaimParcel(ctx, f.funded(t, 100), rect(20, 20, 2, 2))
		require.NoError(t, err)
		pool := f.config(t).RewardPool
		require.Equal(t, uint64(20), f.balance(t, pool))

		_, err = f.eng.AdminPurge(ctx, gridtesting.NewKey())
		require.ErrorIs(t, err, griderror.ErrUnauthorized)

		res, err := f.eng.AdminPurge(ctx, f.authority)
		require.NoError(t, err)
		require.Equal(t, uint64(20), res.Drained)
		require.Empty(t, res.ArchiveKey)
		require.Equal(t, uint64(20), f.balance(t, f.authority))

		_, err = f.backend.BalanceOf(ctx, pool)
		require.ErrorIs(t, err, engine.ErrAccountNotFound)

		require.False(t, f.eng.Initialized())
		_, err = f.eng.Config(ctx)
		require.ErrorIs(t, err, griderror.ErrNotInitialized)

		snap, err := f.backend.Load(ctx)
		require.NoError(t, err)
		require.Nil(t, snap)

		journal := f.backend.Journal()
		require.Equal(t, engine.OpAdminPurge, journal[len(journal)-1].Operation)
		require.Equal(t, uint64(20), journal[len(journal)-1].Amount)
	})

	t.Run("allows a fresh initialize", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		f := newFixture(t)
		f.initialize(t, 1, 0, allRingsOpen)
		_, err := f.eng.ClaimParcel(ctx, f.funded(t, 100), rect(0, 0, 3, 3))
		require.NoError(t, err)

		_, err = f.eng.AdminPurge(ctx, f.authority)
		require.NoError(t, err)

		f.initialize(t, 1, 0, allRingsOpen)
		cfg := f.config(t)
		require.Zero(t, cfg.TotalClaimedCells)
		require.Equal(t, engine.FirstParcelID, cfg.NextParcelID)

		rec, err := f.eng.ClaimParcel(ctx, f.funded(t, 100), rect(0, 0, 3, 3))
		require.NoError(t, err)
		require.Equal(t, engine.FirstParcelID, rec.ID)
	})

	t.Run("archives the final snapshot", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		archiver := &fakeArchiver{key: "grid/snapshot.json"}
		f := newFixture(t, withArchiver(archiver))
		f.initialize(t, 1, 0, allRingsOpen)
		rec, err := f.eng.ClaimParcel(ctx, f.funded(t, 100), rect(5, 5, 2, 3))
		require.NoError(t, err)

		res, err := f.eng.AdminPurge(ctx, f.authority)
		require.NoError(t, err)
		require.Equal(t, "grid/snapshot.json", res.ArchiveKey)

		require.Len(t, archiver.snapshots, 1)
		snap := archiver.snapshots[0]
		require.Equal(t, uint32(6), snap.Config.TotalClaimedCells)
		require.Len(t, snap.Parcels, 1)
		require.Equal(t, rec.ID, snap.Parcels[0].ID)
		require.Equal(t, rec.ID, snap.Grid.Get(6, 7))
	})

	t.Run("failed archive leaves the grid intact", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		boom := errors.New("bucket unavailable")
		f := newFixture(t, withArchiver(&fakeArchiver{err: boom}))
		f.initialize(t, 1, 0, allRingsOpen)
		_, err := f.eng.ClaimParcel(ctx, f.funded(t, 100), rect(5, 5, 1, 1))
		require.NoError(t, err)
		before := f.config(t)

		_, err = f.eng.AdminPurge(ctx, f.authority)
		require.ErrorIs(t, err, boom)
		require.True(t, f.eng.Initialized())
		require.Equal(t, before, f.config(t))
	})

	t.Run("backend failure leaves the grid intact", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		f := newFixture(t)
		f.initialize(t, 10, 10_000, allRingsOpen)
		_, err := f.eng.ClaimParcel(ctx, f.funded(t, 100), rect(5, 5, 1, 1))
		require.NoError(t, err)
		before := f.config(t)

		boom := errors.New("disk full")
		f.backend.InjectFault("Purge", boom)
		_, err = f.eng.AdminPurge(ctx, f.authority)
		require.ErrorIs(t, err, boom)

		require.True(t, f.eng.Initialized())
		require.Equal(t, before, f.config(t))
		_, err = f.backend.BalanceOf(ctx, f.authority)
		require.ErrorIs(t, err, engine.ErrAccountNotFound)
		cell, err := f.eng.Cell(5, 5)
		require.NoError(t, err)
		require.True(t, cell.Claimed)
	})
}

func TestGrid_Engine_TransferCollectionAuthority(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	f := newFixture(t)
	_, err := f.eng.Initialize(ctx, f.authority, engine.InitializeParams{PaymentMint: f.mint})
	require.NoError(t, err)

	next := gridtesting.NewKey()
	err = f.eng.TransferCollectionAuthority(ctx, f.authority, next)
	require.ErrorIs(t, err, griderror.ErrCollectionNotSet)

	_, err = f.eng.UpdateConfig(ctx, f.authority, engine.ConfigUpdate{Collection: &f.collection})
	require.NoError(t, err)

	err = f.eng.TransferCollectionAuthority(ctx, gridtesting.NewKey(), next)
	require.ErrorIs(t, err, griderror.ErrUnauthorized)
	_, ok := f.backend.CollectionAuthority(f.collection)
	require.False(t, ok)

	require.NoError(t, f.eng.TransferCollectionAuthority(ctx, f.authority, next))
	got, ok := f.backend.CollectionAuthority(f.collection)
	require.True(t, ok)
	require.Equal(t, next, got)
}

func TestGrid_Engine_UpdateParcelMetadata(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	f := newFixture(t)
	f.initialize(t, 1, 0, allRingsOpen)
	rec, err := f.eng.AdminMint(ctx, f.authority, gridtesting.NewKey(), rect(0, 0, 1, 1))
	require.NoError(t, err)

	uri := "https://elsewhere/1.json"
	err = f.eng.UpdateParcelMetadata(ctx, gridtesting.NewKey(), rec.Asset, engine.MetadataUpdate{URI: &uri})
	require.ErrorIs(t, err, griderror.ErrUnauthorized)

	require.NoError(t, f.eng.UpdateParcelMetadata(ctx, f.authority, rec.Asset, engine.MetadataUpdate{URI: &uri}))
	asset, ok := f.backend.Asset(rec.Asset)
	require.True(t, ok)
	require.Equal(t, uri, asset.URI)
	require.Equal(t, "Parcel #1", asset.Name)

	err = f.eng.UpdateParcelMetadata(ctx, f.authority, gridtesting.NewKey(), engine.MetadataUpdate{URI: &uri})
	require.ErrorIs(t, err, griderror.ErrInvalidCoreAsset)

	// An asset minted into the grid's previous collection is rejected after a switch.
	other := gridtesting.NewKey()
	_, err = f.eng.UpdateConfig(ctx, f.authority, engine.ConfigUpdate{Collection: &other})
	require.NoError(t, err)
	name := "Renamed"
	err = f.eng.UpdateParcelMetadata(ctx, f.authority, rec.Asset, engine.MetadataUpdate{Name: &name})
	require.ErrorIs(t, err, griderror.ErrInvalidCollection)
	asset, _ = f.backend.Asset(rec.Asset)
	require.Equal(t, "Parcel #1", asset.Name)
}

func TestGrid_Engine_ConcurrentOverlappingClaims(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	f := newFixture(t)
	f.initialize(t, 1, 1000, allRingsOpen)

	const workers = 16
	errs := make(chan error, workers)
	for i := range workers {
		buyer := f.funded(t, 1000)
		go func() {
			// Every rectangle overlaps its neighbours.
			_, err := f.eng.ClaimParcel(ctx, buyer, rect(uint8(i*3), 40, 5, 5))
			errs <- err
		}()
	}

	var won int
	for range workers {
		err := <-errs
		if err == nil {
			won++
			continue
		}
		require.ErrorIs(t, err, griderror.ErrBlockAlreadyClaimed)
	}
	require.Positive(t, won)
	require.Less(t, won, workers)
	assertGridConsistent(t, f)
}
