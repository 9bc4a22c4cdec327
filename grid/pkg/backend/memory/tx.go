package memory

import (
	"context"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/blockmap"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/engine"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/griderror"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/parcel"
)

// tx writes through to the backend while holding its lock and records how to undo each
// write.
type tx struct {
	b    *Backend
	undo []func()
	done bool
}

func (t *tx) check(method string) error {
	if t.done {
		return errTxDone
	}
	if err, ok := t.b.faults[method]; ok {
		return err
	}
	return nil
}

func (t *tx) setAccount(account solana.PublicKey, balance uint64) {
	prev, existed := t.b.accounts[account]
	t.b.accounts[account] = balance
	t.undo = append(t.undo, func() {
		if existed {
			t.b.accounts[account] = prev
		} else {
			delete(t.b.accounts, account)
		}
	})
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	if err := t.check("Commit"); err != nil {
		t.rollback()
		return err
	}
	t.done = true
	t.undo = nil
	t.b.mu.Unlock()
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	t.rollback()
	return nil
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.done = true
	t.b.mu.Unlock()
}

// Ledger

func (t *tx) CreateAccount(ctx context.Context, account solana.PublicKey) error {
	if err := t.check("CreateAccount"); err != nil {
		return err
	}
	if _, ok := t.b.accounts[account]; ok {
		return fmt.Errorf("account %s already exists", account)
	}
	t.setAccount(account, 0)
	return nil
}

func (t *tx) Transfer(ctx context.Context, from, to solana.PublicKey, amount uint64) error {
	if err := t.check("Transfer"); err != nil {
		return err
	}
	fromBal, err := t.b.balanceOf(from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", griderror.ErrInsufficientBalance, from, fromBal, amount)
	}
	if from.Equals(to) {
		return nil
	}
	toBal := t.b.accounts[to]
	if toBal > math.MaxUint64-amount {
		return fmt.Errorf("%w: balance of %s", griderror.ErrOverflow, to)
	}
	t.setAccount(from, fromBal-amount)
	t.setAccount(to, toBal+amount)
	return nil
}

func (t *tx) Burn(ctx context.Context, from solana.PublicKey, amount uint64) error {
	if err := t.check("Burn"); err != nil {
		return err
	}
	bal, err := t.b.balanceOf(from)
	if err != nil {
		return err
	}
	if bal < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", griderror.ErrInsufficientBalance, from, bal, amount)
	}
	t.setAccount(from, bal-amount)
	prev := t.b.burned
	t.b.burned += amount
	t.undo = append(t.undo, func() { t.b.burned = prev })
	return nil
}

func (t *tx) BalanceOf(ctx context.Context, account solana.PublicKey) (uint64, error) {
	if err := t.check("BalanceOf"); err != nil {
		return 0, err
	}
	return t.b.balanceOf(account)
}

func (t *tx) CloseAccount(ctx context.Context, account, destination solana.PublicKey) error {
	if err := t.check("CloseAccount"); err != nil {
		return err
	}
	bal, err := t.b.balanceOf(account)
	if err != nil {
		return err
	}
	if bal != 0 {
		return fmt.Errorf("account %s still holds %d", account, bal)
	}
	delete(t.b.accounts, account)
	t.undo = append(t.undo, func() { t.b.accounts[account] = bal })
	return nil
}

// Asset registry

func (t *tx) Mint(ctx context.Context, collection, owner solana.PublicKey, name, uri string) (solana.PublicKey, error) {
	if err := t.check("Mint"); err != nil {
		return solana.PublicKey{}, err
	}
	id := solana.NewWallet().PublicKey()
	t.b.assets[id] = Asset{Owner: owner, Collection: collection, Name: name, URI: uri}
	t.undo = append(t.undo, func() { delete(t.b.assets, id) })
	return id, nil
}

func (t *tx) UpdateMetadata(ctx context.Context, asset solana.PublicKey, u engine.MetadataUpdate) error {
	if err := t.check("UpdateMetadata"); err != nil {
		return err
	}
	prev, err := t.b.asset(asset)
	if err != nil {
		return err
	}
	next := prev
	if u.Name != nil {
		next.Name = *u.Name
	}
	if u.URI != nil {
		next.URI = *u.URI
	}
	t.b.assets[asset] = next
	t.undo = append(t.undo, func() { t.b.assets[asset] = prev })
	return nil
}

func (t *tx) TransferUpdateAuthority(ctx context.Context, collection, newAuthority solana.PublicKey) error {
	if err := t.check("TransferUpdateAuthority"); err != nil {
		return err
	}
	prev, existed := t.b.collections[collection]
	t.b.collections[collection] = newAuthority
	t.undo = append(t.undo, func() {
		if existed {
			t.b.collections[collection] = prev
		} else {
			delete(t.b.collections, collection)
		}
	})
	return nil
}

func (t *tx) OwnerOf(ctx context.Context, asset solana.PublicKey) (solana.PublicKey, error) {
	if err := t.check("OwnerOf"); err != nil {
		return solana.PublicKey{}, err
	}
	a, err := t.b.asset(asset)
	return a.Owner, err
}

func (t *tx) CollectionOf(ctx context.Context, asset solana.PublicKey) (solana.PublicKey, error) {
	if err := t.check("CollectionOf"); err != nil {
		return solana.PublicKey{}, err
	}
	a, err := t.b.asset(asset)
	return a.Collection, err
}

// Store

func (t *tx) SaveConfig(ctx context.Context, cfg engine.GridConfig) error {
	if err := t.check("SaveConfig"); err != nil {
		return err
	}
	prev := t.b.config
	next := cfg.Clone()
	t.b.config = &next
	t.undo = append(t.undo, func() { t.b.config = prev })
	return nil
}

func (t *tx) SaveGrid(ctx context.Context, grid *blockmap.BlockMap) error {
	if err := t.check("SaveGrid"); err != nil {
		return err
	}
	prev := t.b.grid
	t.b.grid = grid.Clone()
	t.undo = append(t.undo, func() { t.b.grid = prev })
	return nil
}

func (t *tx) SaveParcel(ctx context.Context, rec parcel.Record) error {
	if err := t.check("SaveParcel"); err != nil {
		return err
	}
	prev, existed := t.b.parcels[rec.ID]
	t.b.parcels[rec.ID] = rec
	t.undo = append(t.undo, func() {
		if existed {
			t.b.parcels[rec.ID] = prev
		} else {
			delete(t.b.parcels, rec.ID)
		}
	})
	return nil
}

func (t *tx) DeleteParcel(ctx context.Context, id uint16) error {
	if err := t.check("DeleteParcel"); err != nil {
		return err
	}
	prev, ok := t.b.parcels[id]
	if !ok {
		return fmt.Errorf("%w: %d", griderror.ErrParcelNotFound, id)
	}
	delete(t.b.parcels, id)
	t.undo = append(t.undo, func() { t.b.parcels[id] = prev })
	return nil
}

func (t *tx) Purge(ctx context.Context) error {
	if err := t.check("Purge"); err != nil {
		return err
	}
	prevConfig, prevGrid, prevParcels := t.b.config, t.b.grid, t.b.parcels
	t.b.config = nil
	t.b.grid = nil
	t.b.parcels = make(map[uint16]parcel.Record)
	t.undo = append(t.undo, func() {
		t.b.config, t.b.grid, t.b.parcels = prevConfig, prevGrid, prevParcels
	})
	return nil
}

func (t *tx) AppendJournal(ctx context.Context, entry engine.JournalEntry) error {
	if err := t.check("AppendJournal"); err != nil {
		return err
	}
	n := len(t.b.journal)
	t.b.journal = append(t.b.journal, entry)
	t.undo = append(t.undo, func() { t.b.journal = t.b.journal[:n] })
	return nil
}
