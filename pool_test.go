package axisdata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRebuildScratchBuffersResize(t *testing.T) {
	s := getRebuildScratch()
	defer s.release()

	cursor := s.cursorOf(4)
	require.Len(t, cursor, 4)

	perm, indPrev, valPrev := s.sliceBufs(7)
	require.Len(t, perm, 7)
	require.Len(t, indPrev, 7)
	require.Len(t, valPrev, 7)

	// Shrinking reuses the grown backing arrays.
	perm2, _, _ := s.sliceBufs(3)
	require.Len(t, perm2, 3)
	require.GreaterOrEqual(t, cap(perm2), 7)
}

func TestRebuildScratchZeroLength(t *testing.T) {
	s := getRebuildScratch()
	defer s.release()
	require.Len(t, s.cursorOf(0), 0)
}

func TestGrowIntsKeepsCapacity(t *testing.T) {
	buf := growInts(nil, 5)
	require.Len(t, buf, 5)
	again := growInts(buf, 2)
	require.Len(t, again, 2)
	require.Equal(t, cap(buf), cap(again))
}
