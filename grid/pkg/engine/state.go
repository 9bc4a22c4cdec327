package engine

import (
	"slices"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/blockmap"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/parcel"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/ring"
)

const (
	// ConfigSeed is the seed of the grid config address.
	ConfigSeed = "grid_config"

	// RewardPoolSeed prefixes the reward pool address seeds, followed by the config address.
	RewardPoolSeed = "land_buy_reward_pool"

	// MaxURIBaseLen bounds the metadata URI prefix.
	MaxURIBaseLen = 128

	// MaxRewardShareBps is 100%.
	MaxRewardShareBps = 10_000

	// FirstParcelID is the id of the first allocated parcel; 0 marks unclaimed cells.
	FirstParcelID uint16 = 1
)

// GridConfig is the grid-wide singleton state.
type GridConfig struct {
	Address           solana.PublicKey `json:"address"`
	Authority         solana.PublicKey `json:"authority"`
	PaymentMint       solana.PublicKey `json:"payment_mint"`
	Collection        solana.PublicKey `json:"collection"`
	RewardPool        solana.PublicKey `json:"reward_pool"`
	PricePerCell      uint64           `json:"price_per_cell"`
	RingThresholds    []uint64         `json:"ring_thresholds"`
	URIBase           string           `json:"uri_base"`
	RewardShareBps    uint16           `json:"reward_share_bps"`
	SeedingEnabled    bool             `json:"seeding_enabled"`
	NextParcelID      uint16           `json:"next_parcel_id"`
	TotalBurned       uint64           `json:"total_burned"`
	TotalClaimedCells uint32           `json:"total_claimed_cells"`
	RewardsPerCell    uint256.Int      `json:"rewards_per_cell"`
}

// Clone returns a deep copy.
func (c GridConfig) Clone() GridConfig {
	c.RingThresholds = slices.Clone(c.RingThresholds)
	return c
}

// CurrentRing returns the highest purchasable ring for the current burn total.
func (c GridConfig) CurrentRing() uint8 {
	return ring.Unlocked(c.TotalBurned, c.RingThresholds)
}

// Snapshot is the full persisted state of an initialized grid.
type Snapshot struct {
	Config  GridConfig
	Grid    *blockmap.BlockMap
	Parcels []parcel.Record
}

// InitializeParams are the arguments of Initialize. The caller becomes the authority.
type InitializeParams struct {
	PaymentMint    solana.PublicKey `json:"payment_mint"`
	PricePerCell   uint64           `json:"price_per_cell"`
	RingThresholds []uint64         `json:"ring_thresholds"`
	URIBase        string           `json:"uri_base"`
	RewardShareBps uint16           `json:"reward_share_bps"`
}

// ConfigUpdate lists the fields UpdateConfig may change. Nil fields are left as is.
type ConfigUpdate struct {
	PricePerCell   *uint64           `json:"price_per_cell,omitempty"`
	RingThresholds *[]uint64         `json:"ring_thresholds,omitempty"`
	URIBase        *string           `json:"uri_base,omitempty"`
	SeedingEnabled *bool             `json:"seeding_enabled,omitempty"`
	Collection     *solana.PublicKey `json:"collection,omitempty"`
	RewardShareBps *uint16           `json:"reward_share_bps,omitempty"`
	TotalBurned    *uint64           `json:"total_burned,omitempty"`
}

// MetadataUpdate lists the asset metadata fields to change. Nil fields are left as is.
type MetadataUpdate struct {
	Name *string `json:"name,omitempty"`
	URI  *string `json:"uri,omitempty"`
}

// ConfigView is the config as returned by queries.
type ConfigView struct {
	GridConfig
	UnlockedRing      uint8  `json:"unlocked_ring"`
	RewardPoolBalance uint64 `json:"reward_pool_balance"`
}

// ParcelView is a parcel record with its live ownership and pending reward.
type ParcelView struct {
	parcel.Record
	Owner      solana.PublicKey `json:"owner"`
	Cells      uint32           `json:"cells"`
	OwedReward uint64           `json:"owed_reward"`
}

// CellView describes one grid cell.
type CellView struct {
	X        uint8  `json:"x"`
	Y        uint8  `json:"y"`
	Ring     uint8  `json:"ring"`
	ParcelID uint16 `json:"parcel_id"`
	Claimed  bool   `json:"claimed"`
}

// PurgeResult reports what AdminPurge released.
type PurgeResult struct {
	Drained    uint64 `json:"drained"`
	ArchiveKey string `json:"archive_key,omitempty"`
}
