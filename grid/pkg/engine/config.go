package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/gagliardetto/solana-go"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/blockmap"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/griderror"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/parcel"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/ring"
)

func validateURIBase(uri string) error {
	if len(uri) > MaxURIBaseLen {
		return fmt.Errorf("%w: uri base is %d bytes, limit is %d", griderror.ErrInvalidConfig, len(uri), MaxURIBaseLen)
	}
	return nil
}

func validateRewardShare(bps uint16) error {
	if bps > MaxRewardShareBps {
		return fmt.Errorf("%w: reward share %d bps exceeds %d", griderror.ErrInvalidConfig, bps, MaxRewardShareBps)
	}
	return nil
}

// Initialize creates the grid config, the empty grid and the reward pool account. The
// caller becomes the authority.
func (e *Engine) Initialize(ctx context.Context, caller solana.PublicKey, params InitializeParams) (cfg GridConfig, err error) {
	start := e.cfg.Clock.Now()
	defer func() { e.observe(OpInitialize, start, err, "authority", caller) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != nil {
		return GridConfig{}, griderror.ErrAlreadyInitialized
	}
	if caller.IsZero() {
		return GridConfig{}, fmt.Errorf("%w: authority is required", griderror.ErrInvalidConfig)
	}
	if err := ring.ValidateThresholds(params.RingThresholds); err != nil {
		return GridConfig{}, err
	}
	if err := validateURIBase(params.URIBase); err != nil {
		return GridConfig{}, err
	}
	if err := validateRewardShare(params.RewardShareBps); err != nil {
		return GridConfig{}, err
	}

	configAddr, err := e.ConfigAddress()
	if err != nil {
		return GridConfig{}, err
	}
	pool, err := e.RewardPoolAddress(configAddr)
	if err != nil {
		return GridConfig{}, err
	}

	cfg = GridConfig{
		Address:        configAddr,
		Authority:      caller,
		PaymentMint:    params.PaymentMint,
		RewardPool:     pool,
		PricePerCell:   params.PricePerCell,
		RingThresholds: slices.Clone(params.RingThresholds),
		URIBase:        params.URIBase,
		RewardShareBps: params.RewardShareBps,
		SeedingEnabled: true,
		NextParcelID:   FirstParcelID,
	}
	grid := blockmap.New()

	err = e.inTx(ctx, func(tx Tx) error {
		if err := tx.CreateAccount(ctx, pool); err != nil {
			return fmt.Errorf("failed to create reward pool: %w", err)
		}
		if err := tx.SaveConfig(ctx, cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		if err := tx.SaveGrid(ctx, grid); err != nil {
			return fmt.Errorf("failed to save grid: %w", err)
		}
		return tx.AppendJournal(ctx, e.journal(OpInitialize, caller, 0, 0))
	})
	if err != nil {
		return GridConfig{}, err
	}

	e.state = &state{config: cfg, grid: grid, parcels: parcel.NewRegistry()}
	e.publishTotals(cfg)
	return cfg.Clone(), nil
}

// UpdateConfig applies every provided field of u, or none of them.
func (e *Engine) UpdateConfig(ctx context.Context, caller solana.PublicKey, u ConfigUpdate) (cfg GridConfig, err error) {
	start := e.cfg.Clock.Now()
	defer func() { e.observe(OpUpdateConfig, start, err, "caller", caller) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.requireState()
	if err != nil {
		return GridConfig{}, err
	}
	if err := requireAuthority(st.config, caller); err != nil {
		return GridConfig{}, err
	}

	cfg = st.config.Clone()
	if u.PricePerCell != nil {
		cfg.PricePerCell = *u.PricePerCell
	}
	if u.RingThresholds != nil {
		if err := ring.ValidateThresholds(*u.RingThresholds); err != nil {
			return GridConfig{}, err
		}
		cfg.RingThresholds = slices.Clone(*u.RingThresholds)
	}
	if u.URIBase != nil {
		if err := validateURIBase(*u.URIBase); err != nil {
			return GridConfig{}, err
		}
		cfg.URIBase = *u.URIBase
	}
	if u.SeedingEnabled != nil {
		cfg.SeedingEnabled = *u.SeedingEnabled
	}
	if u.Collection != nil {
		cfg.Collection = *u.Collection
	}
	if u.RewardShareBps != nil {
		if err := validateRewardShare(*u.RewardShareBps); err != nil {
			return GridConfig{}, err
		}
		cfg.RewardShareBps = *u.RewardShareBps
	}
	if u.TotalBurned != nil {
		cfg.TotalBurned = *u.TotalBurned
	}

	err = e.inTx(ctx, func(tx Tx) error {
		if err := tx.SaveConfig(ctx, cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		return tx.AppendJournal(ctx, e.journal(OpUpdateConfig, caller, 0, 0))
	})
	if err != nil {
		return GridConfig{}, err
	}

	st.config = cfg
	e.publishTotals(cfg)
	return cfg.Clone(), nil
}
