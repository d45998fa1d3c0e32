package covering

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBinaryTreeRanges(t *testing.T) {
	require.Equal(t, Range{Start: 4, End: 5}, CoveringRange(7, 2))
	require.Equal(t, Range{Start: 5, End: 6}, CoveringRange(8, 2))
}

func TestQuadTreeRanges(t *testing.T) {
	require.Equal(t, Range{Start: 3, End: 4}, CoveringRange(3, 4))
	require.Equal(t, Range{Start: 0, End: 4}, CoveringRange(4, 4))
}

func TestItemCoverings(t *testing.T) {
	start, end := CoveringsForItem(3, 4)
	require.Equal(t, CoveringId(3), start)
	require.Equal(t, CoveringId(5), end)

	start, end = CoveringsForItem(4, 4)
	require.Equal(t, CoveringId(5), start)
	require.Equal(t, CoveringId(6), end)
}

func TestChildrenForCovering(t *testing.T) {
	c0 := ChildrenForCovering(20, 4)
	require.Equal(t, []CoveringId{4, 9, 14, 19}, c0)

	c1 := ChildrenForCovering(4, 4)
	require.Equal(t, []CoveringId{0, 1, 2, 3}, c1)
}

func TestChildrenForLeafIsEmpty(t *testing.T) {
	require.Nil(t, ChildrenForCovering(0, 4))
}

func TestGetPeaksCoversEveryItemExactlyOnce(t *testing.T) {
	for _, width := range []uint64{2, 4, 8} {
		for length := uint64(1); length <= 200; length++ {
			peaks := GetPeaks(length, width)
			require.NotEmpty(t, peaks)

			var covered uint64
			var prevEnd ItemId
			for _, p := range peaks {
				rng := CoveringRange(p, width)
				require.Equal(t, prevEnd, rng.Start, "peaks must tile the item range contiguously")
				covered += uint64(rng.End - rng.Start)
				prevEnd = rng.End
			}
			require.Equal(t, length, covered)
			require.Equal(t, ItemId(length), prevEnd)
		}
	}
}

func TestGetPeaksEmptyAtZero(t *testing.T) {
	require.Nil(t, GetPeaks(0, 4))
}

func TestMapItemToCoveringMonotonic(t *testing.T) {
	var prev CoveringId = 0
	for n := ItemId(1); n < 100; n++ {
		_, end := CoveringsForItem(n, 4)
		require.Greater(t, uint64(end), uint64(prev))
		prev = end
	}
}
