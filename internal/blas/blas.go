// Package blas provides the small sparse Level 1 kernels that move
// values between compressed index/value pairs and dense float64
// buffers. The compressed side always uses the engine's on-disk
// convention: indices are 1-based and sorted ascending, and dense
// buffers are plain stride-1 slices, so callers pass their nzind/Ind
// slices straight through with no index translation.
package blas

// Scatter writes val[k] into dense[ind[k]-1] for every stored entry.
// It is the expansion step of a sparse-to-dense conversion; positions
// not named by ind are left untouched.
func Scatter(dense []float64, ind []int, val []float64) {
	for k, pos := range ind {
		dense[pos-1] = val[k]
	}
}

// ScatterConst writes c into dense[ind[k]-1] for every stored entry.
// It expands a boolean vector stored without values, where every
// stored position is implicitly true.
func ScatterConst(dense []float64, ind []int, c float64) {
	for _, pos := range ind {
		dense[pos-1] = c
	}
}

// Gather reads dense[ind[k]-1] into out[k] for every stored entry,
// the compression step matching Scatter.
func Gather(dense []float64, ind []int, out []float64) {
	for k, pos := range ind {
		out[k] = dense[pos-1]
	}
}

// Dot returns the dot product of a compressed vector (ind, val)
// against a dense one, touching only the stored positions.
func Dot(ind []int, val []float64, dense []float64) (dot float64) {
	for k, pos := range ind {
		dot += val[k] * dense[pos-1]
	}
	return dot
}
