package memory

import (
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/blockmap"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/engine"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/griderror"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/parcel"
	gridtesting "github.com/Agents-Autonomous/billiondollarcontract/utils/pkg/testing"
)

func newBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(Config{Logger: gridtesting.NewLogger()})
	require.NoError(t, err)
	return b
}

func TestGrid_Memory_New(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "logger is required")
}

func TestGrid_Memory_Ledger(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	b := newBackend(t)
	alice := solana.NewWallet().PublicKey()
	bob := solana.NewWallet().PublicKey()
	b.Fund(alice, 100)

	tx, err := b.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Transfer(ctx, alice, bob, 30))
	require.NoError(t, tx.Burn(ctx, alice, 20))

	err = tx.Transfer(ctx, alice, bob, 51)
	require.ErrorIs(t, err, griderror.ErrInsufficientBalance)

	_, err = tx.BalanceOf(ctx, solana.NewWallet().PublicKey())
	require.ErrorIs(t, err, engine.ErrAccountNotFound)
	require.NoError(t, tx.Commit(ctx))

	bal, err := b.BalanceOf(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(50), bal)
	bal, err = b.BalanceOf(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, uint64(30), bal)
	require.Equal(t, uint64(20), b.Burned())

	t.Run("close requires empty account", func(t *testing.T) {
		tx, err := b.Begin(ctx)
		require.NoError(t, err)
		err = tx.CloseAccount(ctx, bob, alice)
		require.Error(t, err)
		require.Contains(t, err.Error(), "still holds")
		require.NoError(t, tx.Rollback(ctx))
	})
}

func TestGrid_Memory_RollbackRestoresEverything(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	b := newBackend(t)
	alice := solana.NewWallet().PublicKey()
	pool := solana.NewWallet().PublicKey()
	collection := solana.NewWallet().PublicKey()
	b.Fund(alice, 10)

	tx, err := b.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateAccount(ctx, pool))
	require.NoError(t, tx.Transfer(ctx, alice, pool, 4))
	require.NoError(t, tx.Burn(ctx, alice, 6))
	asset, err := tx.Mint(ctx, collection, alice, parcel.Name(1), "uri/1")
	require.NoError(t, err)
	require.NoError(t, tx.SaveConfig(ctx, engine.GridConfig{NextParcelID: 2}))
	require.NoError(t, tx.SaveGrid(ctx, blockmap.New()))
	require.NoError(t, tx.SaveParcel(ctx, parcel.Record{ID: 1, Asset: asset}))
	require.NoError(t, tx.TransferUpdateAuthority(ctx, collection, alice))
	require.NoError(t, tx.AppendJournal(ctx, engine.JournalEntry{Operation: "test"}))
	require.NoError(t, tx.Rollback(ctx))

	bal, err := b.BalanceOf(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(10), bal)
	_, err = b.BalanceOf(ctx, pool)
	require.ErrorIs(t, err, engine.ErrAccountNotFound)
	_, ok := b.Asset(asset)
	require.False(t, ok)
	_, ok = b.CollectionAuthority(collection)
	require.False(t, ok)
	require.Zero(t, b.Burned())
	require.Empty(t, b.Journal())

	snap, err := b.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, snap)

	// The lock is released; a new transaction can start.
	tx, err = b.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	require.Error(t, tx.Commit(ctx))
}

func TestGrid_Memory_LoadAndPurge(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	b := newBackend(t)

	grid := blockmap.New()
	grid.AssignRectangle(0, 0, 2, 2, 1)

	tx, err := b.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SaveConfig(ctx, engine.GridConfig{NextParcelID: 3, RingThresholds: []uint64{0, 5}}))
	require.NoError(t, tx.SaveGrid(ctx, grid))
	require.NoError(t, tx.SaveParcel(ctx, parcel.Record{ID: 2}))
	require.NoError(t, tx.SaveParcel(ctx, parcel.Record{ID: 1}))
	require.NoError(t, tx.Commit(ctx))

	snap, err := b.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.Equal(t, uint16(3), snap.Config.NextParcelID)
	require.Equal(t, []uint64{0, 5}, snap.Config.RingThresholds)
	require.Equal(t, 4, snap.Grid.Owned(1))
	require.Len(t, snap.Parcels, 2)
	require.Equal(t, uint16(1), snap.Parcels[0].ID)

	tx, err = b.Begin(ctx)
	require.NoError(t, err)
	require.ErrorIs(t, tx.DeleteParcel(ctx, 9), griderror.ErrParcelNotFound)
	require.NoError(t, tx.Purge(ctx))
	require.NoError(t, tx.Commit(ctx))

	snap, err = b.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, snap)
}

func TestGrid_Memory_Assets(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	b := newBackend(t)
	alice := solana.NewWallet().PublicKey()
	bob := solana.NewWallet().PublicKey()
	collection := solana.NewWallet().PublicKey()

	tx, err := b.Begin(ctx)
	require.NoError(t, err)
	asset, err := tx.Mint(ctx, collection, alice, "Parcel #1", "https://example.com/1")
	require.NoError(t, err)
	name := "Renamed"
	require.NoError(t, tx.UpdateMetadata(ctx, asset, engine.MetadataUpdate{Name: &name}))
	require.NoError(t, tx.Commit(ctx))

	a, ok := b.Asset(asset)
	require.True(t, ok)
	require.Equal(t, "Renamed", a.Name)
	require.Equal(t, "https://example.com/1", a.URI)

	owner, err := b.OwnerOf(ctx, asset)
	require.NoError(t, err)
	require.Equal(t, alice, owner)
	coll, err := b.CollectionOf(ctx, asset)
	require.NoError(t, err)
	require.Equal(t, collection, coll)

	require.NoError(t, b.TransferAsset(asset, bob))
	owner, err = b.OwnerOf(ctx, asset)
	require.NoError(t, err)
	require.Equal(t, bob, owner)

	_, err = b.OwnerOf(ctx, solana.NewWallet().PublicKey())
	require.ErrorIs(t, err, griderror.ErrInvalidCoreAsset)
}

func TestGrid_Memory_InjectFault(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	b := newBackend(t)
	boom := errors.New("boom")
	b.InjectFault("Mint", boom)

	tx, err := b.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Mint(ctx, solana.PublicKey{}, solana.PublicKey{}, "", "")
	require.ErrorIs(t, err, boom)
	require.NoError(t, tx.Rollback(ctx))

	b.InjectFault("Mint", nil)
	tx, err = b.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Mint(ctx, solana.PublicKey{}, solana.PublicKey{}, "", "")
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
}

func TestGrid_Memory_RecentJournal(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	b := newBackend(t)

	tx, err := b.Begin(ctx)
	require.NoError(t, err)
	for _, op := range []string{"a", "b", "c"} {
		require.NoError(t, tx.AppendJournal(ctx, engine.JournalEntry{Operation: op}))
	}
	require.NoError(t, tx.Commit(ctx))

	entries, err := b.RecentJournal(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "c", entries[0].Operation)
	require.Equal(t, "b", entries[1].Operation)

	entries, err = b.RecentJournal(ctx, 50)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	entries, err = b.RecentJournal(ctx, -1)
	require.NoError(t, err)
	require.Empty(t, entries)
}
