// Package rewards implements the pull-based land-buy reward accumulator.
//
// Every purchase contributes a reward to existing owners pro rata by cell count. The
// contribution is folded into a single scaled accumulator; each parcel keeps a
// checkpoint of the accumulator and is owed (acc - checkpoint) * cells / Scale.
package rewards

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/griderror"
)

// Scale is the fixed-point precision of the accumulator.
const Scale = 1_000_000_000

// maxBits is the width of the stored accumulator and checkpoints.
const maxBits = 128

var scale = uint256.NewInt(Scale)

// Accumulator is the global reward-per-cell value, scaled by Scale. It only grows.
// The zero value is ready to use.
type Accumulator struct {
	value uint256.Int
}

// NewAccumulator returns an accumulator starting at v.
func NewAccumulator(v uint256.Int) (*Accumulator, error) {
	if v.BitLen() > maxBits {
		return nil, fmt.Errorf("%w: accumulator exceeds %d bits", griderror.ErrOverflow, maxBits)
	}
	return &Accumulator{value: v}, nil
}

// Value returns the current accumulator.
func (a *Accumulator) Value() uint256.Int {
	return a.value
}

// RecordContribution spreads reward over cellsBefore already-claimed cells. With no cells
// claimed the reward stays in the pool and the accumulator is unchanged.
func (a *Accumulator) RecordContribution(reward uint64, cellsBefore uint32) error {
	if reward == 0 || cellsBefore == 0 {
		return nil
	}
	scaled, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(reward), scale)
	if overflow {
		return fmt.Errorf("%w: scaling reward %d", griderror.ErrOverflow, reward)
	}
	increment := new(uint256.Int).Div(scaled, uint256.NewInt(uint64(cellsBefore)))

	next, overflow := new(uint256.Int).AddOverflow(&a.value, increment)
	if overflow || next.BitLen() > maxBits {
		return fmt.Errorf("%w: accumulator exceeds %d bits", griderror.ErrOverflow, maxBits)
	}
	a.value = *next
	return nil
}

// Owed returns what a parcel with the given checkpoint and cell count could withdraw now.
// Zero is a valid result here; use Settle to enforce a non-empty claim.
func (a *Accumulator) Owed(checkpoint uint256.Int, cells uint32) (uint64, error) {
	delta, underflow := new(uint256.Int).SubOverflow(&a.value, &checkpoint)
	if underflow {
		return 0, fmt.Errorf("%w: checkpoint %s ahead of accumulator %s", griderror.ErrOverflow, checkpoint.Dec(), a.value.Dec())
	}
	product, overflow := new(uint256.Int).MulOverflow(delta, uint256.NewInt(uint64(cells)))
	if overflow {
		return 0, fmt.Errorf("%w: owed reward", griderror.ErrOverflow)
	}
	owed := product.Div(product, scale)
	if !owed.IsUint64() {
		return 0, fmt.Errorf("%w: owed reward exceeds u64", griderror.ErrOverflow)
	}
	return owed.Uint64(), nil
}

// Settle computes the owed amount for a withdrawal. It fails with NothingToClaim when
// nothing is owed. The caller moves the parcel checkpoint to Value() once the payout
// commits.
func (a *Accumulator) Settle(checkpoint uint256.Int, cells uint32) (uint64, error) {
	owed, err := a.Owed(checkpoint, cells)
	if err != nil {
		return 0, err
	}
	if owed == 0 {
		return 0, griderror.ErrNothingToClaim
	}
	return owed, nil
}

// ParseValue decodes a base-10 accumulator or checkpoint.
func ParseValue(s string) (uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("failed to parse reward value %q: %w", s, err)
	}
	if v.BitLen() > maxBits {
		return uint256.Int{}, fmt.Errorf("%w: reward value exceeds %d bits", griderror.ErrOverflow, maxBits)
	}
	return *v, nil
}
