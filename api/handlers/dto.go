package handlers

import (
	"github.com/gagliardetto/solana-go"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/engine"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/parcel"
)

// ConfigResponse is the grid config with the 128-bit accumulator as a decimal string.
type ConfigResponse struct {
	engine.GridConfig
	RewardsPerCell    string `json:"rewards_per_cell"`
	UnlockedRing      uint8  `json:"unlocked_ring"`
	RewardPoolBalance uint64 `json:"reward_pool_balance"`
}

func newConfigResponse(v engine.ConfigView) ConfigResponse {
	return ConfigResponse{
		GridConfig:        v.GridConfig,
		RewardsPerCell:    v.RewardsPerCell.Dec(),
		UnlockedRing:      v.UnlockedRing,
		RewardPoolBalance: v.RewardPoolBalance,
	}
}

// ParcelResponse describes a parcel. Owner and OwedReward are only set by the
// single-parcel lookup.
type ParcelResponse struct {
	ID         uint16            `json:"id"`
	Asset      solana.PublicKey  `json:"asset"`
	Rect       parcel.Rect       `json:"rect"`
	Cells      uint32            `json:"cells"`
	Checkpoint string            `json:"checkpoint"`
	Owner      *solana.PublicKey `json:"owner,omitempty"`
	OwedReward *uint64           `json:"owed_reward,omitempty"`
}

func newParcelResponse(rec parcel.Record) ParcelResponse {
	return ParcelResponse{
		ID:         rec.ID,
		Asset:      rec.Asset,
		Rect:       rec.Rect,
		Cells:      rec.Rect.Cells(),
		Checkpoint: rec.Checkpoint.Dec(),
	}
}

func newParcelViewResponse(v engine.ParcelView) ParcelResponse {
	resp := newParcelResponse(v.Record)
	resp.Owner = &v.Owner
	resp.OwedReward = &v.OwedReward
	return resp
}

// GridResponse carries the borsh-encoded block map, base64 in JSON.
type GridResponse struct {
	Blocks  []byte `json:"blocks"`
	Parcels int    `json:"parcels"`
}

// RingsResponse is the row-major ring of every cell.
type RingsResponse struct {
	GridSize int   `json:"grid_size"`
	Rings    []int `json:"rings"`
}

type AdminMintRequest struct {
	Recipient solana.PublicKey `json:"recipient"`
	parcel.Rect
}

type ClaimRewardsRequest struct {
	Asset *solana.PublicKey `json:"asset,omitempty"`
}

type ClaimRewardsResponse struct {
	ParcelID uint16 `json:"parcel_id"`
	Paid     uint64 `json:"paid"`
}

type TransferAuthorityRequest struct {
	NewAuthority solana.PublicKey `json:"new_authority"`
}

type UpdateMetadataRequest struct {
	Asset solana.PublicKey `json:"asset"`
	engine.MetadataUpdate
}
