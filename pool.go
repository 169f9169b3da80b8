package axisdata

import "sync"

// rebuildScratch is the reusable workspace one compressed-sparse
// rebuild needs: the outer-dimension cursor buildSparseMatrix walks
// while placing triples, and the permutation plus previous-order
// copies sortPair uses on each outer slice. Rebuilds check one out
// per call, so the per-source goroutines of a concat fill never share
// buffers, and the buffers grow to the largest slice a rebuild has
// seen instead of reallocating per outer slice.
type rebuildScratch struct {
	cursor  []int
	perm    []int
	indPrev []int
	valPrev []float64
}

var rebuildScratchPool = sync.Pool{
	New: func() interface{} { return new(rebuildScratch) },
}

func getRebuildScratch() *rebuildScratch {
	return rebuildScratchPool.Get().(*rebuildScratch)
}

func (s *rebuildScratch) release() {
	rebuildScratchPool.Put(s)
}

// cursorOf returns the cursor buffer resized to n entries. Contents
// are unspecified; callers overwrite before reading.
func (s *rebuildScratch) cursorOf(n int) []int {
	s.cursor = growInts(s.cursor, n)
	return s.cursor
}

// sliceBufs returns the permutation, index-copy and value-copy
// buffers sortPair needs for an outer slice of n entries.
func (s *rebuildScratch) sliceBufs(n int) (perm, indPrev []int, valPrev []float64) {
	s.perm = growInts(s.perm, n)
	s.indPrev = growInts(s.indPrev, n)
	s.valPrev = growFloats(s.valPrev, n)
	return s.perm, s.indPrev, s.valPrev
}

func growInts(buf []int, n int) []int {
	if cap(buf) < n {
		return make([]int, n)
	}
	return buf[:n]
}

func growFloats(buf []float64, n int) []float64 {
	if cap(buf) < n {
		return make([]float64, n)
	}
	return buf[:n]
}
