package axisdata

// DenseBytes estimates the byte footprint of a dense representation
// of nelems elements of the given type.
func DenseBytes(nelems int, elemType ElemType) int64 {
	return int64(nelems) * int64(Sizeof(elemType))
}

// SparseMatrixBytes estimates the byte footprint of a compressed
// sparse matrix representation with the given shape and nnz:
// nnz*(sizeof(elt)+sizeof(idx)) + (outerLen+1)*sizeof(idx).
// outerLen is the length of the compressed outer dimension (ncols for
// a Columns-major matrix, nrows for Rows-major).
func SparseMatrixBytes(nnz, outerLen int, elemType ElemType) int64 {
	idxWidth := Sizeof(IndexWidth(maxInt(nnz, outerLen+1)))
	eltWidth := Sizeof(elemType)
	return int64(nnz)*int64(eltWidth+idxWidth) + int64(outerLen+1)*int64(idxWidth)
}

// SparseVectorBytes estimates the byte footprint of a compressed
// sparse vector with nnz non-zero entries out of a domain of size n:
// nnz*(sizeof(elt)+sizeof(idx)).
func SparseVectorBytes(nnz, n int, elemType ElemType) int64 {
	idxWidth := Sizeof(IndexWidth(n))
	eltWidth := Sizeof(elemType)
	return int64(nnz) * int64(eltWidth+idxWidth)
}

// SavesFraction returns (dense-sparse)/dense, the "sparse-saves
// fraction" from the GLOSSARY. Positive means sparse is cheaper.
func SavesFraction(denseBytes, sparseBytes int64) float64 {
	if denseBytes == 0 {
		return 0
	}
	return float64(denseBytes-sparseBytes) / float64(denseBytes)
}

// BestifyOptions configures Bestify.
type BestifyOptions struct {
	// Threshold is the minimum saves-fraction at which sparse is
	// preferred. Defaults to 0.25 when zero.
	Threshold float64
}

func (o BestifyOptions) threshold() float64 {
	if o.Threshold == 0 {
		return 0.25
	}
	return o.Threshold
}

// Sparsify converts m to compressed form, preserving the wrapper
// structure around it (a Transpose stays a Transpose, ReadOnly stays
// ReadOnly).
func Sparsify(m MatrixExpr) MatrixExpr {
	switch v := m.(type) {
	case *SparseMatrix:
		return v
	case *DenseMatrix:
		rows, cols := v.Dims()
		triples := make([]sparseTriple, 0, v.NNZ())
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				if val := v.At(i, j); val != 0 {
					triples = append(triples, sparseTriple{row: i, col: j, val: val})
				}
			}
		}
		return buildSparseMatrix(rows, cols, v.Major, triples, v.ElemType)
	case *Transpose:
		return &Transpose{Parent: Sparsify(v.Parent)}
	case *ReadOnlyMatrix:
		return &ReadOnlyMatrix{Parent: Sparsify(v.Parent)}
	default:
		panic("axisdata: Sparsify: unsupported matrix expression")
	}
}

// Densify converts m to dense form, preserving wrapper structure.
func Densify(m MatrixExpr) MatrixExpr {
	switch v := m.(type) {
	case *DenseMatrix:
		return v
	case *SparseMatrix:
		rows, cols := v.Dims()
		out := newDenseMatrix(rows, cols, v.Major)
		out.ElemType = v.ElemType
		for _, t := range v.triples() {
			out.Set(t.row, t.col, t.val)
		}
		return out
	case *Transpose:
		return &Transpose{Parent: Densify(v.Parent)}
	case *ReadOnlyMatrix:
		return &ReadOnlyMatrix{Parent: Densify(v.Parent)}
	default:
		panic("axisdata: Densify: unsupported matrix expression")
	}
}

// Bestify picks sparse when it saves at least opts.Threshold of the
// dense byte footprint (default 0.25), else dense.
func Bestify(m MatrixExpr, opts BestifyOptions) MatrixExpr {
	rows, cols := m.Dims()
	elemType := matrixElemType(m)
	nnz := matrixNNZ(m)
	outerLen := cols
	if MajorAxis(unwrap(m)) == Rows {
		outerLen = rows
	}
	dense := DenseBytes(rows*cols, elemType)
	sparse := SparseMatrixBytes(nnz, outerLen, elemType)
	if SavesFraction(dense, sparse) >= opts.threshold() {
		return Sparsify(m)
	}
	return Densify(m)
}

func unwrap(m MatrixExpr) MatrixExpr {
	switch v := m.(type) {
	case *Transpose:
		return unwrap(v.Parent)
	case *ReadOnlyMatrix:
		return unwrap(v.Parent)
	default:
		return v
	}
}

func matrixElemType(m MatrixExpr) ElemType {
	switch v := unwrap(m).(type) {
	case *DenseMatrix:
		return v.ElemType
	case *SparseMatrix:
		return v.ElemType
	default:
		return Float64
	}
}

func matrixNNZ(m MatrixExpr) int {
	switch v := unwrap(m).(type) {
	case *DenseMatrix:
		return v.NNZ()
	case *SparseMatrix:
		return v.NNZ()
	default:
		return 0
	}
}
