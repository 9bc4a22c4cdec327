package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/blockmap"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/engine"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/griderror"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/parcel"
)

type tx struct {
	tx pgx.Tx
}

func (t *tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func (t *tx) CreateAccount(ctx context.Context, account solana.PublicKey) error {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO token_accounts (account, balance) VALUES ($1, 0)
		ON CONFLICT (account) DO NOTHING
	`, account.String())
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s already exists", account)
	}
	return nil
}

func (t *tx) Transfer(ctx context.Context, from, to solana.PublicKey, amount uint64) error {
	if err := debit(ctx, t.tx, from, amount); err != nil {
		return err
	}
	return credit(ctx, t.tx, to, amount)
}

func (t *tx) Burn(ctx context.Context, from solana.PublicKey, amount uint64) error {
	if err := debit(ctx, t.tx, from, amount); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO token_burns (account, amount) VALUES ($1, $2::numeric)`,
		from.String(), strconv.FormatUint(amount, 10))
	if err != nil {
		return fmt.Errorf("failed to record burn: %w", err)
	}
	return nil
}

func (t *tx) BalanceOf(ctx context.Context, account solana.PublicKey) (uint64, error) {
	return balanceOf(ctx, t.tx, account)
}

func (t *tx) CloseAccount(ctx context.Context, account, destination solana.PublicKey) error {
	bal, err := balanceOf(ctx, t.tx, account)
	if err != nil {
		return err
	}
	if bal != 0 {
		return fmt.Errorf("account %s still holds %d", account, bal)
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM token_accounts WHERE account = $1`, account.String()); err != nil {
		return fmt.Errorf("failed to close account: %w", err)
	}
	return nil
}

func (t *tx) Mint(ctx context.Context, collection, owner solana.PublicKey, name, uri string) (solana.PublicKey, error) {
	asset := solana.NewWallet().PublicKey()
	_, err := t.tx.Exec(ctx, `
		INSERT INTO assets (asset, owner, collection, name, uri) VALUES ($1, $2, $3, $4, $5)
	`, asset.String(), owner.String(), collection.String(), name, uri)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to insert asset: %w", err)
	}
	return asset, nil
}

func (t *tx) UpdateMetadata(ctx context.Context, asset solana.PublicKey, u engine.MetadataUpdate) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE assets SET name = COALESCE($2, name), uri = COALESCE($3, uri)
		WHERE asset = $1
	`, asset.String(), u.Name, u.URI)
	if err != nil {
		return fmt.Errorf("failed to update asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: unknown asset %s", griderror.ErrInvalidCoreAsset, asset)
	}
	return nil
}

func (t *tx) TransferUpdateAuthority(ctx context.Context, collection, newAuthority solana.PublicKey) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO collections (collection, update_authority) VALUES ($1, $2)
		ON CONFLICT (collection) DO UPDATE SET update_authority = EXCLUDED.update_authority
	`, collection.String(), newAuthority.String())
	if err != nil {
		return fmt.Errorf("failed to set collection authority: %w", err)
	}
	return nil
}

func (t *tx) OwnerOf(ctx context.Context, asset solana.PublicKey) (solana.PublicKey, error) {
	owner, _, err := assetOwnership(ctx, t.tx, asset)
	return owner, err
}

func (t *tx) CollectionOf(ctx context.Context, asset solana.PublicKey) (solana.PublicKey, error) {
	_, collection, err := assetOwnership(ctx, t.tx, asset)
	return collection, err
}

func (t *tx) SaveConfig(ctx context.Context, cfg engine.GridConfig) error {
	doc, err := encodeConfig(cfg)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO grid_config (id, data, updated_at) VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`, doc)
	if err != nil {
		return fmt.Errorf("failed to save grid config: %w", err)
	}
	return nil
}

func (t *tx) SaveGrid(ctx context.Context, grid *blockmap.BlockMap) error {
	blocks, err := grid.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO grid_blocks (id, blocks, updated_at) VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET blocks = EXCLUDED.blocks, updated_at = EXCLUDED.updated_at
	`, blocks)
	if err != nil {
		return fmt.Errorf("failed to save grid blocks: %w", err)
	}
	return nil
}

func (t *tx) SaveParcel(ctx context.Context, rec parcel.Record) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO parcels (id, asset, x, y, width, height, checkpoint, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, now())
		ON CONFLICT (id) DO UPDATE SET
			asset = EXCLUDED.asset,
			x = EXCLUDED.x,
			y = EXCLUDED.y,
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			checkpoint = EXCLUDED.checkpoint,
			updated_at = EXCLUDED.updated_at
	`, int32(rec.ID), rec.Asset.String(),
		int16(rec.Rect.X), int16(rec.Rect.Y), int16(rec.Rect.Width), int16(rec.Rect.Height),
		rec.Checkpoint.Dec())
	if err != nil {
		return fmt.Errorf("failed to save parcel %d: %w", rec.ID, err)
	}
	return nil
}

func (t *tx) DeleteParcel(ctx context.Context, id uint16) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM parcels WHERE id = $1`, int32(id))
	if err != nil {
		return fmt.Errorf("failed to delete parcel %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", griderror.ErrParcelNotFound, id)
	}
	return nil
}

func (t *tx) Purge(ctx context.Context) error {
	for _, table := range []string{"parcels", "grid_blocks", "grid_config"} {
		if _, err := t.tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to purge %s: %w", table, err)
		}
	}
	return nil
}

func (t *tx) AppendJournal(ctx context.Context, e engine.JournalEntry) error {
	var parcelID *int32
	if e.ParcelID != 0 {
		id := int32(e.ParcelID)
		parcelID = &id
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO grid_journal (id, operation, actor, parcel_id, amount, at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)
	`, e.ID, e.Operation, e.Actor.String(), parcelID, strconv.FormatUint(e.Amount, 10), e.At)
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}
