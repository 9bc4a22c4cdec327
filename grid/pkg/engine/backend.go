package engine

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/blockmap"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/parcel"
)

// ErrAccountNotFound is returned by a Ledger for an account that was never created or
// has been closed.
var ErrAccountNotFound = errors.New("token account not found")

// Ledger moves the payment asset between accounts.
type Ledger interface {
	CreateAccount(ctx context.Context, account solana.PublicKey) error
	// Transfer fails with griderror.ErrInsufficientBalance when from holds less than
	// amount. The destination account is created if missing.
	Transfer(ctx context.Context, from, to solana.PublicKey, amount uint64) error
	Burn(ctx context.Context, from solana.PublicKey, amount uint64) error
	BalanceOf(ctx context.Context, account solana.PublicKey) (uint64, error)
	// CloseAccount removes an empty account.
	CloseAccount(ctx context.Context, account, destination solana.PublicKey) error
}

// AssetRegistry mints and administers parcel assets.
type AssetRegistry interface {
	Mint(ctx context.Context, collection, owner solana.PublicKey, name, uri string) (solana.PublicKey, error)
	UpdateMetadata(ctx context.Context, asset solana.PublicKey, update MetadataUpdate) error
	TransferUpdateAuthority(ctx context.Context, collection, newAuthority solana.PublicKey) error
}

// AssetReader answers ownership questions about assets. Unknown or malformed assets fail
// with griderror.ErrInvalidCoreAsset.
type AssetReader interface {
	OwnerOf(ctx context.Context, asset solana.PublicKey) (solana.PublicKey, error)
	CollectionOf(ctx context.Context, asset solana.PublicKey) (solana.PublicKey, error)
}

// Store persists grid state.
type Store interface {
	SaveConfig(ctx context.Context, cfg GridConfig) error
	SaveGrid(ctx context.Context, grid *blockmap.BlockMap) error
	SaveParcel(ctx context.Context, rec parcel.Record) error
	DeleteParcel(ctx context.Context, id uint16) error
	// Purge releases the config, grid and parcel records.
	Purge(ctx context.Context) error
	AppendJournal(ctx context.Context, entry JournalEntry) error
}

// Tx stages ledger, asset and store calls so they commit or roll back together.
type Tx interface {
	Ledger
	AssetRegistry
	AssetReader
	Store

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Backend provides transactions and committed reads.
type Backend interface {
	AssetReader

	Begin(ctx context.Context) (Tx, error)
	// Load returns the persisted snapshot, or nil when the grid is not initialized.
	Load(ctx context.Context) (*Snapshot, error)
	BalanceOf(ctx context.Context, account solana.PublicKey) (uint64, error)
}

// Archiver stores the final snapshot before a purge.
type Archiver interface {
	Archive(ctx context.Context, snapshot Snapshot) (string, error)
}

// JournalEntry records one committed operation.
type JournalEntry struct {
	ID        uuid.UUID        `json:"id"`
	Operation string           `json:"operation"`
	Actor     solana.PublicKey `json:"actor"`
	ParcelID  uint16           `json:"parcel_id,omitempty"`
	Amount    uint64           `json:"amount,omitempty"`
	At        time.Time        `json:"at"`
}
