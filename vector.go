package axisdata

import (
	"sort"

	"gonum.org/v1/gonum/blas/blas64"

	"github.com/scidatakit/axisdata/internal/blas"
)

// VectorExpr is the sum type over in-memory vector representations:
// dense, compressed-sparse, and the dense string vector of
// stringvector.go. Like MatrixExpr it is a small closed
// set of concrete types dispatched through free functions rather than
// an interface method per operation.
type VectorExpr interface {
	Len() int
}

// DenseVector is a contiguous in-memory vector, the vector analogue of
// DenseMatrix.
type DenseVector struct {
	Data     []float64
	ElemType ElemType
}

// NewDenseVector wraps data as a dense vector without copying.
func NewDenseVector(elemType ElemType, data []float64) *DenseVector {
	return &DenseVector{Data: data, ElemType: elemType}
}

// Len returns the vector's length.
func (v *DenseVector) Len() int { return len(v.Data) }

// At returns the i'th element.
func (v *DenseVector) At(i int) float64 { return v.Data[i] }

// Set assigns the i'th element.
func (v *DenseVector) Set(i int, val float64) { v.Data[i] = val }

// RawVector exposes the dense buffer in gonum's blas64 form (stride
// 1, aliased not copied), the raw-access convention mat.RawVectorer
// names.
func (v *DenseVector) RawVector() blas64.Vector {
	return blas64.Vector{N: len(v.Data), Inc: 1, Data: v.Data}
}

// NNZ returns the number of non-zero elements, computed by scanning.
func (v *DenseVector) NNZ() int {
	n := 0
	for _, x := range v.Data {
		if x != 0 {
			n++
		}
	}
	return n
}

// SparseVector is a compressed-sparse vector: 1-based Ind holds the
// positions of non-zero entries in ascending order, Val holds their
// values. A sparse boolean vector may omit Val entirely, every
// stored position being implicitly true.
type SparseVector struct {
	length    int
	Ind       []int
	Val       []float64
	ElemType  ElemType
	boolNoVal bool
}

// NewSparseVector wraps 1-based ind/val buffers as a sparse vector
// without copying. val may be nil only when elemType == Bool.
func NewSparseVector(length int, elemType ElemType, ind []int, val []float64) *SparseVector {
	v := &SparseVector{length: length, Ind: ind, Val: val, ElemType: elemType}
	if val == nil {
		if elemType != Bool {
			panic("axisdata: NewSparseVector: only bool vectors may omit values")
		}
		v.boolNoVal = true
	}
	return v
}

// Len returns the vector's logical length (its axis length).
func (v *SparseVector) Len() int { return v.length }

// NNZ returns the number of stored non-zero entries.
func (v *SparseVector) NNZ() int { return len(v.Ind) }

func (v *SparseVector) valueAt(k int) float64 {
	if v.boolNoVal {
		return 1
	}
	return v.Val[k]
}

// At returns the i'th (0-based) element, 0 if not stored.
func (v *SparseVector) At(i int) float64 {
	if i < 0 || i >= v.length {
		panic("axisdata: SparseVector: index out of range")
	}
	k := sort.SearchInts(v.Ind, i+1)
	if k < len(v.Ind) && v.Ind[k] == i+1 {
		return v.valueAt(k)
	}
	return 0
}

// ToDense scatters the sparse vector into a freshly allocated dense
// vector of the same element type. The 1-based Ind slice feeds the
// blas kernels directly; an elided all-true bool vector expands via
// ScatterConst.
func (v *SparseVector) ToDense() *DenseVector {
	out := &DenseVector{Data: make([]float64, v.length), ElemType: v.ElemType}
	if v.boolNoVal {
		blas.ScatterConst(out.Data, v.Ind, 1)
		return out
	}
	blas.Scatter(out.Data, v.Ind, v.Val)
	return out
}

func (v *SparseVector) clone() *SparseVector {
	out := &SparseVector{length: v.length, ElemType: v.ElemType, boolNoVal: v.boolNoVal}
	out.Ind = append([]int(nil), v.Ind...)
	if v.Val != nil {
		out.Val = append([]float64(nil), v.Val...)
	}
	return out
}

// SparsifyVector converts a vector to compressed form.
func SparsifyVector(v VectorExpr) VectorExpr {
	switch t := v.(type) {
	case *SparseVector:
		return t
	case *DenseVector:
		ind := make([]int, 0, t.NNZ())
		val := make([]float64, 0, t.NNZ())
		for i, x := range t.Data {
			if x != 0 {
				ind = append(ind, i+1)
				val = append(val, x)
			}
		}
		return &SparseVector{length: len(t.Data), Ind: ind, Val: val, ElemType: t.ElemType}
	default:
		panic("axisdata: SparsifyVector: unsupported vector expression")
	}
}

// DensifyVector converts a vector to dense form.
func DensifyVector(v VectorExpr) VectorExpr {
	switch t := v.(type) {
	case *DenseVector:
		return t
	case *SparseVector:
		return t.ToDense()
	default:
		panic("axisdata: DensifyVector: unsupported vector expression")
	}
}

// BestifyVector picks sparse when it saves at least opts.Threshold of
// the dense byte footprint (default 0.25), else dense, mirroring
// Bestify for matrices.
func BestifyVector(v VectorExpr, opts BestifyOptions) VectorExpr {
	var elemType ElemType
	var nnz int
	switch t := v.(type) {
	case *DenseVector:
		elemType, nnz = t.ElemType, t.NNZ()
	case *SparseVector:
		elemType, nnz = t.ElemType, t.NNZ()
	default:
		panic("axisdata: BestifyVector: unsupported vector expression")
	}
	dense := DenseBytes(v.Len(), elemType)
	sparse := SparseVectorBytes(nnz, v.Len(), elemType)
	if SavesFraction(dense, sparse) >= opts.threshold() {
		return SparsifyVector(v)
	}
	return DensifyVector(v)
}
