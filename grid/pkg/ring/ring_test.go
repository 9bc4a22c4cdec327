package ring

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/griderror"
)

func TestGrid_Ring_Of(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		x, y uint8
		want uint8
	}{
		{"center", 50, 50, 10},
		{"inside center band", 46, 54, 10},
		{"first cell of ring 9", 45, 50, 9},
		{"ring 9 on the far side", 55, 50, 9},
		{"origin corner", 0, 0, 1},
		{"far corner", 99, 99, 1},
		{"edge", 0, 50, 1},
		{"outer band inner edge", 5, 50, 1},
		{"ring 2 outer edge", 6, 50, 2},
		{"ring 5", 30, 50, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Of(tt.x, tt.y))
		})
	}
}

func TestGrid_Ring_Of_RangeAndSymmetry(t *testing.T) {
	t.Parallel()

	for x := 0; x < GridSize; x++ {
		for y := 0; y < GridSize; y++ {
			r := Of(uint8(x), uint8(y))
			require.GreaterOrEqual(t, r, uint8(1))
			require.LessOrEqual(t, r, uint8(Count))
			require.Equal(t, r, Of(uint8(y), uint8(x)), "transpose (%d,%d)", x, y)
			if x > 0 {
				// Cells mirror around the center line at 50.
				require.Equal(t, r, Of(uint8(GridSize-x), uint8(y)), "mirror (%d,%d)", x, y)
			}
		}
	}
}

func TestGrid_Ring_Unlocked(t *testing.T) {
	t.Parallel()

	thresholds := []uint64{0, 1_000, 5_000, 20_000}
	tests := []struct {
		burned uint64
		want   uint8
	}{
		{0, 1},
		{999, 1},
		{1_000, 2},
		{4_999, 2},
		{5_000, 3},
		{20_000, 4},
		{1 << 62, 4},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Unlocked(tt.burned, thresholds), "burned %d", tt.burned)
	}

	t.Run("evenly spaced thresholds", func(t *testing.T) {
		t.Parallel()
		even := []uint64{0, 100, 200, 300, 400, 500, 600, 700, 800, 900}
		for burned, want := range map[uint64]uint8{0: 1, 99: 1, 100: 2, 500: 6, 899: 9, 1000: 10} {
			require.Equal(t, want, Unlocked(burned, even), "burned %d", burned)
		}
	})

	t.Run("no thresholds", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, uint8(1), Unlocked(1_000_000, nil))
	})

	t.Run("nothing reached", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, uint8(1), Unlocked(5, []uint64{10, 20}))
	})
}

func TestGrid_Ring_ValidateThresholds(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateThresholds(nil))
	require.NoError(t, ValidateThresholds([]uint64{0, 0, 10, 10, 20}))

	err := ValidateThresholds([]uint64{0, 10, 5})
	require.ErrorIs(t, err, griderror.ErrInvalidConfig)
	require.Contains(t, err.Error(), "non-decreasing")

	err = ValidateThresholds(make([]uint64, MaxThresholds+1))
	require.ErrorIs(t, err, griderror.ErrInvalidConfig)
}

func TestGrid_Ring_Layout(t *testing.T) {
	t.Parallel()

	layout := Layout()
	require.Len(t, layout, GridSize*GridSize)
	require.Equal(t, uint8(10), layout[50*GridSize+50])
	require.Equal(t, uint8(1), layout[0])

	counts := make(map[uint8]int)
	for _, r := range layout {
		counts[r]++
	}
	require.Len(t, counts, Count)
}
