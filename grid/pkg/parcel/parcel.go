// Package parcel holds parcel records and their derived addresses.
package parcel

import (
	"encoding/binary"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/griderror"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/ring"
)

const (
	// SeedPrefix is the seed for parcel record addresses.
	SeedPrefix = "parcel"

	// NamePrefix prefixes the minted asset name.
	NamePrefix = "Parcel #"
)

// Rect is a parcel's footprint on the grid.
type Rect struct {
	X      uint8 `json:"x"`
	Y      uint8 `json:"y"`
	Width  uint8 `json:"width"`
	Height uint8 `json:"height"`
}

// Cells returns width*height.
func (r Rect) Cells() uint32 {
	return uint32(r.Width) * uint32(r.Height)
}

// Validate checks the rectangle has a non-zero extent and lies inside the grid.
func (r Rect) Validate() error {
	if r.Width == 0 || r.Height == 0 {
		return fmt.Errorf("%w: %dx%d", griderror.ErrInvalidDimensions, r.Width, r.Height)
	}
	if int(r.X)+int(r.Width) > ring.GridSize || int(r.Y)+int(r.Height) > ring.GridSize {
		return fmt.Errorf("%w: %dx%d at (%d, %d)", griderror.ErrOutOfBounds, r.Width, r.Height, r.X, r.Y)
	}
	return nil
}

// Record is the persistent state of one parcel.
type Record struct {
	ID         uint16           `json:"id"`
	Asset      solana.PublicKey `json:"asset"`
	Rect       Rect             `json:"rect"`
	Checkpoint uint256.Int      `json:"checkpoint"`
}

// Name returns the asset name minted for parcel id.
func Name(id uint16) string {
	return NamePrefix + strconv.FormatUint(uint64(id), 10)
}

// URI returns the metadata URI minted for parcel id.
func URI(base string, id uint16) string {
	return base + strconv.FormatUint(uint64(id), 10)
}

// Address derives the record address of parcel id under programID.
func Address(programID solana.PublicKey, id uint16) (solana.PublicKey, error) {
	var le [2]byte
	binary.LittleEndian.PutUint16(le[:], id)
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(SeedPrefix), le[:]}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive parcel address: %w", err)
	}
	return addr, nil
}

// Registry maps parcel ids to records. It is not safe for concurrent use; the engine
// guards it.
type Registry struct {
	records map[uint16]Record
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[uint16]Record)}
}

// Get returns the record for id.
func (r *Registry) Get(id uint16) (Record, bool) {
	rec, ok := r.records[id]
	return rec, ok
}

// Put inserts or replaces a record.
func (r *Registry) Put(rec Record) {
	r.records[rec.ID] = rec
}

// Delete removes the record for id and reports whether it existed.
func (r *Registry) Delete(id uint16) bool {
	_, ok := r.records[id]
	delete(r.records, id)
	return ok
}

// Len returns the number of records.
func (r *Registry) Len() int {
	return len(r.records)
}

// All returns every record ordered by id.
func (r *Registry) All() []Record {
	ids := slices.Sorted(maps.Keys(r.records))
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.records[id])
	}
	return out
}

// Clone returns an independent copy.
func (r *Registry) Clone() *Registry {
	return &Registry{records: maps.Clone(r.records)}
}
