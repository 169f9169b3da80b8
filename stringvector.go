package axisdata

// stringVector is the dense-string vector representation used for
// the string storage-scalar element type: matrix/vector elements
// are otherwise always storage-real (float64-backed), but string
// axis-indexed properties need their own backing since a string has no
// fixed-width numeric encoding. It participates in VectorExpr as an
// opaque dense string-indexed array; there is no sparse-string
// in-memory counterpart (only the HDF5 on-disk layout has a
// sparse-string group, built from a stringVector by the hdf5 backend).
type stringVector struct {
	data []string
}

// newStringVector wraps data as a dense string vector without copying.
func newStringVector(data []string) *stringVector {
	return &stringVector{data: data}
}

// NewStringVector wraps data as a dense string VectorExpr without
// copying, for backends outside this package (the hdf5 backend reads
// a dense string dataset back into exactly this representation).
func NewStringVector(data []string) VectorExpr {
	return newStringVector(data)
}

// Len returns the vector's length.
func (v *stringVector) Len() int { return len(v.data) }

// At returns the i'th element.
func (v *stringVector) At(i int) string { return v.data[i] }

// setStringVector commits a dense string vector to w under (axis,
// name), routing through the Writer.SetVector primitive with ElemType
// String.
func setStringVector(w Writer, axis, name string, entries []string) error {
	return w.SetVector(axis, name, newStringVector(entries), String)
}
