package axisdata

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// DenseMatrix is a contiguous in-memory matrix. All storage-real
// element types are represented as float64 internally; ElemType only
// records the declared on-disk
// type for encoding and dtype-promotion purposes. Data is laid out
// column-major (Data[col*rows+row]) when Major == Columns, row-major
// (Data[row*cols+col]) when Major == Rows.
type DenseMatrix struct {
	rows, cols int
	Major      AxisLabel
	Data       []float64
	ElemType   ElemType
}

func newDenseMatrix(rows, cols int, major AxisLabel) *DenseMatrix {
	return &DenseMatrix{rows: rows, cols: cols, Major: major, Data: make([]float64, rows*cols), ElemType: Float64}
}

// NewDenseMatrix wraps an existing buffer as a dense matrix without
// copying; the caller-supplied slice becomes the backing storage.
func NewDenseMatrix(rows, cols int, major AxisLabel, elemType ElemType, data []float64) *DenseMatrix {
	if len(data) != rows*cols {
		panic("axisdata: NewDenseMatrix: data length does not match rows*cols")
	}
	return &DenseMatrix{rows: rows, cols: cols, Major: major, Data: data, ElemType: elemType}
}

// Dims returns (rows, columns).
func (d *DenseMatrix) Dims() (int, int) { return d.rows, d.cols }

func (d *DenseMatrix) index(i, j int) int {
	if i < 0 || i >= d.rows || j < 0 || j >= d.cols {
		panic("axisdata: DenseMatrix: index out of range")
	}
	if d.Major == Columns {
		return j*d.rows + i
	}
	return i*d.cols + j
}

// At returns the element at row i, column j.
func (d *DenseMatrix) At(i, j int) float64 { return d.Data[d.index(i, j)] }

// Set assigns the element at row i, column j.
func (d *DenseMatrix) Set(i, j int, v float64) { d.Data[d.index(i, j)] = v }

// T returns the receiver's transpose as a gonum matrix view,
// satisfying mat.Matrix so dense matrices interoperate with
// gonum.org/v1/gonum/mat operations directly.
func (d *DenseMatrix) T() mat.Matrix { return mat.Transpose{Matrix: d} }

// NNZ returns the number of non-zero elements (computed by scanning,
// since dense matrices don't track it incrementally).
func (d *DenseMatrix) NNZ() int {
	n := 0
	for _, v := range d.Data {
		if v != 0 {
			n++
		}
	}
	return n
}

// sparseTriple is an (row, col, value) triple used as an intermediate
// form when building or transposing compressed matrices, the same
// role a coordinate (COO) form plays when assembling CSR/CSC.
type sparseTriple struct {
	row, col int
	val      float64
}

// SparseMatrix is a compressed-sparse matrix generalized over its
// major axis: when Major == Columns it is laid out as CSC (Ptr
// indexes columns, Ind holds row indices within each column); when
// Major == Rows it is laid out as CSR (Ptr indexes rows, Ind holds
// column indices within each row). Ptr and Ind are 1-based because
// this representation is written directly to the on-disk compressed
// layout, whose indices are 1-based.
type SparseMatrix struct {
	rows, cols int
	Major      AxisLabel
	Ptr        []int // length outerDim()+1, 1-based cumulative counts
	Ind        []int // length nnz, 1-based inner indices, sorted within each outer slice
	Val        []float64
	ElemType   ElemType
	boolNoVal  bool // true for an all-true sparse bool matrix stored without Val
}

// NewSparseMatrix wraps caller-supplied compressed buffers as a
// sparse matrix without copying. ptr and ind must already be
// 1-based; val may be nil only when elemType == Bool, interpreted as
// every stored entry being true.
func NewSparseMatrix(rows, cols int, major AxisLabel, elemType ElemType, ptr, ind []int, val []float64) *SparseMatrix {
	m := &SparseMatrix{rows: rows, cols: cols, Major: major, Ptr: ptr, Ind: ind, Val: val, ElemType: elemType}
	if val == nil {
		if elemType != Bool {
			panic("axisdata: NewSparseMatrix: only bool matrices may omit values")
		}
		m.boolNoVal = true
	}
	return m
}

// Dims returns (rows, columns).
func (s *SparseMatrix) Dims() (int, int) { return s.rows, s.cols }

// NNZ returns the number of stored non-zero elements.
func (s *SparseMatrix) NNZ() int { return len(s.Ind) }

func (s *SparseMatrix) outerDim() int {
	if s.Major == Columns {
		return s.cols
	}
	return s.rows
}

// valueAt returns the stored value for the k'th entry (0-based into
// Ind/Val), synthesizing true for an elided all-true bool matrix.
func (s *SparseMatrix) valueAt(k int) float64 {
	if s.boolNoVal {
		return 1
	}
	return s.Val[k]
}

// At returns the element at row i, column j, 0 if not stored.
func (s *SparseMatrix) At(i, j int) float64 {
	if i < 0 || i >= s.rows || j < 0 || j >= s.cols {
		panic("axisdata: SparseMatrix: index out of range")
	}
	var outer, inner int
	if s.Major == Columns {
		outer, inner = j, i
	} else {
		outer, inner = i, j
	}
	lo, hi := s.Ptr[outer]-1, s.Ptr[outer+1]-1
	slice := s.Ind[lo:hi]
	k := sort.SearchInts(slice, inner+1)
	if k < len(slice) && slice[k] == inner+1 {
		return s.valueAt(lo + k)
	}
	return 0
}

// T returns the receiver's transpose as a gonum matrix view,
// satisfying mat.Matrix.
func (s *SparseMatrix) T() mat.Matrix { return mat.Transpose{Matrix: s} }

// triples expands the compressed form into (row, col, value) triples,
// the intermediate form Transposer and Relayout use to rebuild a
// matrix under a different major axis.
func (s *SparseMatrix) triples() []sparseTriple {
	out := make([]sparseTriple, 0, s.NNZ())
	outer := s.outerDim()
	for o := 0; o < outer; o++ {
		lo, hi := s.Ptr[o]-1, s.Ptr[o+1]-1
		for k := lo; k < hi; k++ {
			inner := s.Ind[k] - 1
			v := s.valueAt(k)
			if s.Major == Columns {
				out = append(out, sparseTriple{row: inner, col: o, val: v})
			} else {
				out = append(out, sparseTriple{row: o, col: inner, val: v})
			}
		}
	}
	return out
}

func (s *SparseMatrix) clone() *SparseMatrix {
	out := &SparseMatrix{rows: s.rows, cols: s.cols, Major: s.Major, ElemType: s.ElemType, boolNoVal: s.boolNoVal}
	out.Ptr = append([]int(nil), s.Ptr...)
	out.Ind = append([]int(nil), s.Ind...)
	if s.Val != nil {
		out.Val = append([]float64(nil), s.Val...)
	}
	return out
}

// buildSparseMatrix builds a compressed sparse matrix of the given
// major axis from unordered triples, sorting entries within each
// outer slice to keep sparse indices ascending.
func buildSparseMatrix(rows, cols int, major AxisLabel, triples []sparseTriple, elemType ElemType) *SparseMatrix {
	outerDim := cols
	if major == Rows {
		outerDim = rows
	}
	counts := make([]int, outerDim+1)
	outerOf := func(t sparseTriple) int {
		if major == Columns {
			return t.col
		}
		return t.row
	}
	innerOf := func(t sparseTriple) int {
		if major == Columns {
			return t.row
		}
		return t.col
	}
	for _, t := range triples {
		counts[outerOf(t)+1]++
	}
	for i := 0; i < outerDim; i++ {
		counts[i+1] += counts[i]
	}
	ptr := make([]int, outerDim+1)
	for i := range ptr {
		ptr[i] = counts[i] + 1
	}
	ind := make([]int, len(triples))
	val := make([]float64, len(triples))
	scratch := getRebuildScratch()
	defer scratch.release()
	cursor := scratch.cursorOf(len(counts))
	copy(cursor, counts)
	for _, t := range triples {
		o := outerOf(t)
		pos := cursor[o]
		cursor[o]++
		ind[pos] = innerOf(t) + 1
		val[pos] = t.val
	}
	// sort each outer slice by inner index ascending
	for o := 0; o < outerDim; o++ {
		lo, hi := ptr[o]-1, ptr[o+1]-1
		sortPair(ind[lo:hi], val[lo:hi], scratch)
	}
	m := &SparseMatrix{rows: rows, cols: cols, Major: major, Ptr: ptr, Ind: ind, Val: val, ElemType: elemType}
	return m
}

var (
	_ mat.Matrix = (*DenseMatrix)(nil)
	_ mat.Matrix = (*SparseMatrix)(nil)
)

// sortPair sorts ind ascending, permuting val in lock-step. It runs
// once per outer slice of every rebuild, so the permutation and
// previous-order buffers come from the rebuild's shared scratch.
func sortPair(ind []int, val []float64, scratch *rebuildScratch) {
	perm, indPrev, valPrev := scratch.sliceBufs(len(ind))
	for i := range perm {
		perm[i] = i
	}
	sort.Slice(perm, func(a, b int) bool { return ind[perm[a]] < ind[perm[b]] })
	copy(indPrev, ind)
	copy(valPrev, val)
	for i, j := range perm {
		ind[i] = indPrev[j]
		val[i] = valPrev[j]
	}
}
