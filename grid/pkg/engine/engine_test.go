package engine_test

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/backend/memory"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/engine"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/griderror"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/parcel"
	gridtesting "github.com/Agents-Autonomous/billiondollarcontract/utils/pkg/testing"
)

var programID = solana.MustPublicKeyFromBase58("BDBCR33yBuWjGJiGXoApW3qR9ajP2fGSJfzTP6SbYn6h")

// allRingsOpen unlocks every ring at zero burn.
var allRingsOpen = []uint64{0, 0, 0, 0, 0, 0, 0, 0, 0, 0}

type fixture struct {
	eng        *engine.Engine
	backend    *memory.Backend
	clock      *clockwork.FakeClock
	authority  solana.PublicKey
	collection solana.PublicKey
	mint       solana.PublicKey
}

type fixtureOption func(*engine.Config)

func withArchiver(a engine.Archiver) fixtureOption {
	return func(cfg *engine.Config) { cfg.Archiver = a }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	backend, err := memory.New(memory.Config{Logger: gridtesting.NewLogger()})
	require.NoError(t, err)

	clock := clockwork.NewFakeClock()
	cfg := engine.Config{
		Logger:    gridtesting.NewLogger(),
		Clock:     clock,
		Backend:   backend,
		ProgramID: programID,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	eng, err := engine.New(t.Context(), cfg)
	require.NoError(t, err)

	return &fixture{
		eng:        eng,
		backend:    backend,
		clock:      clock,
		authority:  gridtesting.NewKey(),
		collection: gridtesting.NewKey(),
		mint:       gridtesting.NewKey(),
	}
}

// initialize sets up a grid with the given economics and a configured collection.
func (f *fixture) initialize(t *testing.T, price uint64, bps uint16, thresholds []uint64) {
	t.Helper()
	ctx := t.Context()
	_, err := f.eng.Initialize(ctx, f.authority, engine.InitializeParams{
		PaymentMint:    f.mint,
		PricePerCell:   price,
		RingThresholds: thresholds,
		URIBase:        "https://grid.example/parcels/",
		RewardShareBps: bps,
	})
	require.NoError(t, err)
	_, err = f.eng.UpdateConfig(ctx, f.authority, engine.ConfigUpdate{Collection: &f.collection})
	require.NoError(t, err)
}

func (f *fixture) funded(t *testing.T, amount uint64) solana.PublicKey {
	t.Helper()
	key := gridtesting.NewKey()
	f.backend.Fund(key, amount)
	return key
}

func (f *fixture) balance(t *testing.T, account solana.PublicKey) uint64 {
	t.Helper()
	bal, err := f.backend.BalanceOf(context.Background(), account)
	require.NoError(t, err)
	return bal
}

func (f *fixture) config(t *testing.T) engine.ConfigView {
	t.Helper()
	cfg, err := f.eng.Config(t.Context())
	require.NoError(t, err)
	return cfg
}

func rect(x, y, w, h uint8) parcel.Rect {
	return parcel.Rect{X: x, Y: y, Width: w, Height: h}
}

func TestGrid_Engine_New(t *testing.T) {
	t.Parallel()

	backend, err := memory.New(memory.Config{Logger: gridtesting.NewLogger()})
	require.NoError(t, err)

	tests := []struct {
		name string
		cfg  engine.Config
		want string
	}{
		{"missing logger", engine.Config{Backend: backend, ProgramID: programID}, "logger is required"},
		{"missing backend", engine.Config{Logger: gridtesting.NewLogger(), ProgramID: programID}, "backend is required"},
		{"missing program", engine.Config{Logger: gridtesting.NewLogger(), Backend: backend}, "program id is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := engine.New(t.Context(), tt.cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGrid_Engine_NotInitialized(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	f := newFixture(t)
	require.False(t, f.eng.Initialized())

	_, err := f.eng.ClaimParcel(ctx, f.authority, rect(0, 0, 1, 1))
	require.ErrorIs(t, err, griderror.ErrNotInitialized)
	_, err = f.eng.UpdateConfig(ctx, f.authority, engine.ConfigUpdate{})
	require.ErrorIs(t, err, griderror.ErrNotInitialized)
	_, err = f.eng.ClaimLandBuyRewards(ctx, f.authority, 1, nil)
	require.ErrorIs(t, err, griderror.ErrNotInitialized)
	_, err = f.eng.AdminPurge(ctx, f.authority)
	require.ErrorIs(t, err, griderror.ErrNotInitialized)
	_, err = f.eng.Config(ctx)
	require.ErrorIs(t, err, griderror.ErrNotInitialized)
	_, err = f.eng.Cell(0, 0)
	require.ErrorIs(t, err, griderror.ErrNotInitialized)
}

func TestGrid_Engine_Initialize(t *testing.T) {
	t.Parallel()

	t.Run("creates config and reward pool", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		f := newFixture(t)

		cfg, err := f.eng.Initialize(ctx, f.authority, engine.InitializeParams{
			PaymentMint:    f.mint,
			PricePerCell:   25,
			RingThresholds: []uint64{0, 1000},
			URIBase:        "ipfs://grid/",
			RewardShareBps: 2000,
		})
		require.NoError(t, err)
		require.Equal(t, f.authority, cfg.Authority)
		require.Equal(t, f.mint, cfg.PaymentMint)
		require.Equal(t, engine.FirstParcelID, cfg.NextParcelID)
		require.True(t, cfg.SeedingEnabled)
		require.True(t, cfg.Collection.IsZero())
		require.Zero(t, cfg.TotalBurned)
		require.Zero(t, cfg.TotalClaimedCells)
		require.True(t, cfg.RewardsPerCell.IsZero())

		configAddr, err := f.eng.ConfigAddress()
		require.NoError(t, err)
		require.Equal(t, configAddr, cfg.Address)
		pool, err := f.eng.RewardPoolAddress(configAddr)
		require.NoError(t, err)
		require.Equal(t, pool, cfg.RewardPool)
		require.Zero(t, f.balance(t, pool))

		require.True(t, f.eng.Initialized())
		view := f.config(t)
		require.Equal(t, uint8(1), view.UnlockedRing)

		journal := f.backend.Journal()
		require.Len(t, journal, 1)
		require.Equal(t, engine.OpInitialize, journal[0].Operation)
		require.Equal(t, f.clock.Now().UTC(), journal[0].At)
	})

	t.Run("rejects a second initialize", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.initialize(t, 1, 0, nil)
		_, err := f.eng.Initialize(t.Context(), f.authority, engine.InitializeParams{})
		require.ErrorIs(t, err, griderror.ErrAlreadyInitialized)
	})

	t.Run("validates parameters", func(t *testing.T) {
		t.Parallel()

		long := make([]byte, engine.MaxURIBaseLen+1)
		for i := range long {
			long[i] = 'a'
		}
		tests := []struct {
			name   string
			params engine.InitializeParams
		}{
			{"too many thresholds", engine.InitializeParams{RingThresholds: make([]uint64, 11)}},
			{"decreasing thresholds", engine.InitializeParams{RingThresholds: []uint64{5, 1}}},
			{"reward share above 100%", engine.InitializeParams{RewardShareBps: 10_001}},
			{"uri base too long", engine.InitializeParams{URIBase: string(long)}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()
				f := newFixture(t)
				_, err := f.eng.Initialize(t.Context(), f.authority, tt.params)
				require.ErrorIs(t, err, griderror.ErrInvalidConfig)
				require.False(t, f.eng.Initialized())
				require.Empty(t, f.backend.Journal())
			})
		}
	})
}

func TestGrid_Engine_UpdateConfig(t *testing.T) {
	t.Parallel()

	t.Run("requires authority", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.initialize(t, 1, 0, nil)
		price := uint64(99)
		_, err := f.eng.UpdateConfig(t.Context(), gridtesting.NewKey(), engine.ConfigUpdate{PricePerCell: &price})
		require.ErrorIs(t, err, griderror.ErrUnauthorized)
		require.Equal(t, uint64(1), f.config(t).PricePerCell)
	})

	t.Run("applies provided fields", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.initialize(t, 1, 0, nil)

		price := uint64(7)
		thresholds := []uint64{0, 10, 20}
		uri := "https://new/"
		seeding := false
		bps := uint16(5000)
		burned := uint64(15)
		cfg, err := f.eng.UpdateConfig(t.Context(), f.authority, engine.ConfigUpdate{
			PricePerCell:   &price,
			RingThresholds: &thresholds,
			URIBase:        &uri,
			SeedingEnabled: &seeding,
			RewardShareBps: &bps,
			TotalBurned:    &burned,
		})
		require.NoError(t, err)
		require.Equal(t, price, cfg.PricePerCell)
		require.Equal(t, thresholds, cfg.RingThresholds)
		require.Equal(t, uri, cfg.URIBase)
		require.False(t, cfg.SeedingEnabled)
		require.Equal(t, bps, cfg.RewardShareBps)
		require.Equal(t, burned, cfg.TotalBurned)
		require.Equal(t, f.collection, cfg.Collection)
		require.Equal(t, uint8(2), f.config(t).UnlockedRing)

		// The caller's slice is copied.
		thresholds[0] = 1000
		require.Equal(t, uint64(0), f.config(t).RingThresholds[0])
	})

	t.Run("is all or nothing", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.initialize(t, 1, 100, nil)
		before := f.config(t)

		price := uint64(500)
		bps := uint16(20_000)
		_, err := f.eng.UpdateConfig(t.Context(), f.authority, engine.ConfigUpdate{PricePerCell: &price, RewardShareBps: &bps})
		require.ErrorIs(t, err, griderror.ErrInvalidConfig)
		require.Equal(t, before, f.config(t))
	})
}

func TestGrid_Engine_RestoresStateFromBackend(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	f := newFixture(t)
	f.initialize(t, 1, 0, allRingsOpen)
	buyer := f.funded(t, 100)
	rec, err := f.eng.ClaimParcel(ctx, buyer, rect(10, 10, 3, 3))
	require.NoError(t, err)

	restored, err := engine.New(ctx, engine.Config{
		Logger:    gridtesting.NewLogger(),
		Backend:   f.backend,
		ProgramID: programID,
	})
	require.NoError(t, err)
	require.True(t, restored.Initialized())

	cell, err := restored.Cell(11, 11)
	require.NoError(t, err)
	require.Equal(t, rec.ID, cell.ParcelID)
	require.True(t, cell.Claimed)

	view, err := restored.Parcel(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, buyer, view.Owner)
	require.Equal(t, uint32(9), view.Cells)

	cfg, err := restored.Config(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(9), cfg.TotalClaimedCells)
	require.Equal(t, uint16(2), cfg.NextParcelID)
}
