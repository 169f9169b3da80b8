package axisdata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDenseVectorAtSet(t *testing.T) {
	v := NewDenseVector(Float64, make([]float64, 4))
	v.Set(2, 9)
	require.Equal(t, float64(9), v.At(2))
	require.Equal(t, 4, v.Len())
	require.Equal(t, 1, v.NNZ())
}

func TestSparseVectorAt(t *testing.T) {
	// length 5, nonzero entries at positions 2 and 4 (1-based)
	v := NewSparseVector(5, Float64, []int{2, 4}, []float64{10, 20})
	require.Equal(t, float64(0), v.At(0))
	require.Equal(t, float64(10), v.At(1))
	require.Equal(t, float64(0), v.At(2))
	require.Equal(t, float64(20), v.At(3))
	require.Equal(t, float64(0), v.At(4))
	require.Equal(t, 2, v.NNZ())
}

func TestSparseVectorBoolElision(t *testing.T) {
	v := NewSparseVector(3, Bool, []int{1, 3}, nil)
	require.Equal(t, float64(1), v.At(0))
	require.Equal(t, float64(0), v.At(1))
	require.Equal(t, float64(1), v.At(2))

	require.Panics(t, func() { NewSparseVector(3, Float64, []int{1}, nil) }, "only bool vectors may omit Val")
}

func TestSparseVectorToDense(t *testing.T) {
	v := NewSparseVector(5, Float64, []int{2, 4}, []float64{10, 20})
	dense := v.ToDense()
	require.Equal(t, []float64{0, 10, 0, 20, 0}, dense.Data)
	require.Equal(t, Float64, dense.ElemType)
}

func TestSparseVectorIndexOutOfRangePanics(t *testing.T) {
	v := NewSparseVector(3, Float64, []int{}, []float64{})
	require.Panics(t, func() { v.At(-1) })
	require.Panics(t, func() { v.At(3) })
}
