package blockmap

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGrid_BlockMap_AssignRectangle(t *testing.T) {
	t.Parallel()

	m := New()
	require.True(t, m.RectangleIsFree(10, 20, 3, 2))

	m.AssignRectangle(10, 20, 3, 2, 7)
	require.Equal(t, 6, m.Owned(7))
	require.Equal(t, uint16(7), m.Get(10, 20))
	require.Equal(t, uint16(7), m.Get(12, 21))
	require.Equal(t, Unclaimed, m.Get(13, 21))
	require.Equal(t, Unclaimed, m.Get(10, 22))

	require.False(t, m.RectangleIsFree(12, 21, 5, 5))
	require.True(t, m.RectangleIsFree(13, 20, 5, 5))
}

func TestGrid_BlockMap_Index(t *testing.T) {
	t.Parallel()

	m := New()
	m.Set(3, 2, 9)
	require.Equal(t, uint16(9), m.Blocks[2*GridSize+3])
	require.Equal(t, Unclaimed, m.Get(2, 3))
}

func TestGrid_BlockMap_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	m := New()
	m.Set(0, 0, 1)
	c := m.Clone()
	c.Set(1, 1, 2)
	require.Equal(t, Unclaimed, m.Get(1, 1))
	require.Equal(t, uint16(1), c.Get(0, 0))

	c.Zero()
	require.Equal(t, 0, c.Owned(1))
	require.Equal(t, 1, m.Owned(1))
}

func TestGrid_BlockMap_Binary(t *testing.T) {
	t.Parallel()

	m := New()
	m.AssignRectangle(98, 99, 2, 1, 0x0102)

	data, err := m.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, EncodedSize)

	last := (TotalCells - 1) * 2
	require.Equal(t, uint16(0x0102), binary.LittleEndian.Uint16(data[last:]))
	require.Equal(t, uint16(0), binary.LittleEndian.Uint16(data[0:]))

	var decoded BlockMap
	require.NoError(t, decoded.UnmarshalBinary(data))
	require.Equal(t, m.Blocks, decoded.Blocks)

	t.Run("rejects wrong size", func(t *testing.T) {
		t.Parallel()
		var bad BlockMap
		err := bad.UnmarshalBinary(data[:10])
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid block map size")
	})
}
