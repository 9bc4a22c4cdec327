// Package ring maps grid cells to concentric unlock rings and decides which ring is
// currently purchasable.
//
// Ring 1 is the outer band (corners and edges) and unlocks first; ring 10 is the center
// band and unlocks last.
package ring

import (
	"fmt"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/griderror"
)

const (
	// GridSize is the width and height of the grid in cells.
	GridSize = 100

	// Count is the number of rings.
	Count = 10

	// MaxThresholds bounds the configured threshold list.
	MaxThresholds = Count

	bandWidth = 5
	center    = GridSize / 2
)

// Of returns the ring (1..=10) of the cell at (x, y).
func Of(x, y uint8) uint8 {
	dx := absDiff(int(x), center)
	dy := absDiff(int(y), center)
	distance := max(dx, dy)

	band := distance/bandWidth + 1
	return uint8(max(1, Count+1-min(band, Count)))
}

// Unlocked returns the highest ring whose threshold totalBurned has reached. Ring 1 is
// always unlocked.
func Unlocked(totalBurned uint64, thresholds []uint64) uint8 {
	for i := len(thresholds) - 1; i >= 0; i-- {
		if totalBurned >= thresholds[i] {
			return uint8(i + 1)
		}
	}
	return 1
}

// ValidateThresholds checks the list is non-decreasing and fits the ring count.
func ValidateThresholds(thresholds []uint64) error {
	if len(thresholds) > MaxThresholds {
		return fmt.Errorf("%w: at most %d ring thresholds, got %d", griderror.ErrInvalidConfig, MaxThresholds, len(thresholds))
	}
	for i := 1; i < len(thresholds); i++ {
		if thresholds[i] < thresholds[i-1] {
			return fmt.Errorf("%w: ring thresholds must be non-decreasing (index %d)", griderror.ErrInvalidConfig, i)
		}
	}
	return nil
}

// Layout returns the ring of every cell, indexed y*GridSize+x.
func Layout() []uint8 {
	out := make([]uint8, GridSize*GridSize)
	for y := 0; y < GridSize; y++ {
		for x := 0; x < GridSize; x++ {
			out[y*GridSize+x] = Of(uint8(x), uint8(y))
		}
	}
	return out
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
