package axisdata

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestDenseMatrixImplementsGonumMatrix(t *testing.T) {
	// [1 3]
	// [2 4]
	d := NewDenseMatrix(2, 2, Columns, Float64, []float64{1, 2, 3, 4})
	require.Equal(t, 10.0, mat.Sum(d))
	require.Equal(t, 4.0, mat.Max(d))

	tr := d.T()
	require.Equal(t, d.At(0, 1), tr.At(1, 0))
}

func TestSparseMatrixImplementsGonumMatrix(t *testing.T) {
	// 3x3, nonzeros (1,2)=5 and (0,0)=2
	sm := NewSparseMatrix(3, 3, Columns, Float64, []int{1, 2, 2, 3}, []int{1, 2}, []float64{2, 5})
	require.Equal(t, 7.0, mat.Sum(sm))
	require.Equal(t, 5.0, sm.T().At(2, 1))
}

func TestDenseVectorRawVector(t *testing.T) {
	v := NewDenseVector(Float64, []float64{1, 2, 3})
	raw := v.RawVector()
	require.Equal(t, 3, raw.N)
	require.Equal(t, 1, raw.Inc)
	raw.Data[0] = 9
	require.Equal(t, 9.0, v.At(0), "RawVector aliases the backing buffer")
}

func TestTransposerSparse(t *testing.T) {
	// 3x2, column-major, nonzeros (0,0)=1 and (2,1)=4
	sm := NewSparseMatrix(3, 2, Columns, Float64, []int{1, 2, 3}, []int{1, 3}, []float64{1, 4})
	out := Transposer(sm).(*SparseMatrix)
	rows, cols := out.Dims()
	require.Equal(t, 2, rows)
	require.Equal(t, 3, cols)
	require.Equal(t, Columns, out.Major, "Transposer keeps src's major-axis label")
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			require.Equal(t, sm.At(i, j), out.At(j, i))
		}
	}
	back := Transposer(out).(*SparseMatrix)
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			require.Equal(t, sm.At(i, j), back.At(i, j), "Transposer round-trips element-wise")
		}
	}
}
