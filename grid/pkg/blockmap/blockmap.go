// Package blockmap holds the dense cell ownership table of the grid.
package blockmap

import (
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/ring"
)

const (
	GridSize   = ring.GridSize
	TotalCells = GridSize * GridSize

	// Unclaimed marks a cell no parcel owns.
	Unclaimed uint16 = 0

	// EncodedSize is the length of the encoded block map: one little-endian u16 per cell.
	EncodedSize = 2 * TotalCells
)

// BlockMap stores the parcel id owning each cell, indexed y*GridSize+x.
type BlockMap struct {
	Blocks [TotalCells]uint16
}

// New returns an all-unclaimed block map.
func New() *BlockMap {
	return &BlockMap{}
}

func index(x, y uint8) int {
	return int(y)*GridSize + int(x)
}

// Get returns the owner of (x, y). Coordinates are not bounds checked.
func (m *BlockMap) Get(x, y uint8) uint16 {
	return m.Blocks[index(x, y)]
}

// Set writes the owner of (x, y). Coordinates are not bounds checked.
func (m *BlockMap) Set(x, y uint8, parcelID uint16) {
	m.Blocks[index(x, y)] = parcelID
}

// RectangleIsFree reports whether every cell of the rectangle is unclaimed.
// The rectangle must lie inside the grid.
func (m *BlockMap) RectangleIsFree(x, y, width, height uint8) bool {
	for dy := uint8(0); dy < height; dy++ {
		for dx := uint8(0); dx < width; dx++ {
			if m.Get(x+dx, y+dy) != Unclaimed {
				return false
			}
		}
	}
	return true
}

// AssignRectangle writes parcelID to every cell of the rectangle. Callers validate with
// RectangleIsFree first; there is no rollback of partial writes.
func (m *BlockMap) AssignRectangle(x, y, width, height uint8, parcelID uint16) {
	for dy := uint8(0); dy < height; dy++ {
		for dx := uint8(0); dx < width; dx++ {
			m.Set(x+dx, y+dy, parcelID)
		}
	}
}

// Owned counts the cells owned by parcelID.
func (m *BlockMap) Owned(parcelID uint16) int {
	n := 0
	for _, id := range m.Blocks {
		if id == parcelID {
			n++
		}
	}
	return n
}

// Zero releases every cell.
func (m *BlockMap) Zero() {
	m.Blocks = [TotalCells]uint16{}
}

// Clone returns an independent copy.
func (m *BlockMap) Clone() *BlockMap {
	c := *m
	return &c
}

// MarshalBinary encodes the map in its on-chain layout (borsh, little-endian u16s).
func (m *BlockMap) MarshalBinary() ([]byte, error) {
	data, err := bin.MarshalBorsh(&m.Blocks)
	if err != nil {
		return nil, fmt.Errorf("failed to encode block map: %w", err)
	}
	return data, nil
}

// UnmarshalBinary decodes a map produced by MarshalBinary.
func (m *BlockMap) UnmarshalBinary(data []byte) error {
	if len(data) != EncodedSize {
		return fmt.Errorf("invalid block map size: expected %d, got %d", EncodedSize, len(data))
	}
	var blocks [TotalCells]uint16
	if err := bin.UnmarshalBorsh(&blocks, data); err != nil {
		return fmt.Errorf("failed to decode block map: %w", err)
	}
	m.Blocks = blocks
	return nil
}
