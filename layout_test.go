package axisdata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMajorAxis(t *testing.T) {
	dense := NewDenseMatrix(2, 3, Columns, Float64, make([]float64, 6))
	sparse := NewSparseMatrix(2, 3, Rows, Float64, []int{1, 1, 1}, []int{}, []float64{})

	cases := []struct {
		name string
		m    MatrixExpr
		want AxisLabel
	}{
		{"dense columns-major", dense, Columns},
		{"sparse rows-major", sparse, Rows},
		{"transpose flips", &Transpose{Parent: dense}, Rows},
		{"readonly passes through", &ReadOnlyMatrix{Parent: dense}, Columns},
		{"double transpose flips twice", &Transpose{Parent: &Transpose{Parent: dense}}, Columns},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, MajorAxis(c.m))
		})
	}
}

func TestOtherAxis(t *testing.T) {
	require.Equal(t, Columns, OtherAxis(Rows))
	require.Equal(t, Rows, OtherAxis(Columns))
	require.Panics(t, func() { OtherAxis(NoMajorAxis) })
}

func TestTransposerDense(t *testing.T) {
	// [1 2 3]
	// [4 5 6]
	src := NewDenseMatrix(2, 3, Rows, Float64, []float64{1, 2, 3, 4, 5, 6})
	out := Transposer(src).(*DenseMatrix)
	rows, cols := out.Dims()
	require.Equal(t, 3, rows)
	require.Equal(t, 2, cols)
	require.Equal(t, Rows, out.Major, "Transposer keeps src's major-axis label")
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			require.Equal(t, src.At(i, j), out.At(j, i))
		}
	}
}

func TestRelayoutDenseRoundTrip(t *testing.T) {
	src := NewDenseMatrix(2, 3, Columns, Float64, []float64{1, 2, 3, 4, 5, 6})
	relaid := Relayout(src).(*DenseMatrix)
	require.Equal(t, Rows, relaid.Major)
	rows, cols := relaid.Dims()
	require.Equal(t, rows, 2)
	require.Equal(t, cols, 3)
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			require.Equal(t, src.At(i, j), relaid.At(i, j), "relayout preserves element-at-(i,j)")
		}
	}
	back := Relayout(relaid).(*DenseMatrix)
	require.Equal(t, Columns, back.Major)
	require.Equal(t, src.Data, back.Data)
}

func TestRelayoutSparseRoundTrip(t *testing.T) {
	// column-major 3x3, single nonzero at (1,2)=5
	sm := NewSparseMatrix(3, 3, Columns, Float64, []int{1, 1, 1, 2}, []int{2}, []float64{5})
	relaid := Relayout(sm).(*SparseMatrix)
	require.Equal(t, Rows, relaid.Major)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			require.Equal(t, sm.At(i, j), relaid.At(i, j))
		}
	}
}

func TestRelayoutPreservesWrappers(t *testing.T) {
	src := NewDenseMatrix(2, 2, Columns, Float64, []float64{1, 2, 3, 4})
	out := Relayout(&Transpose{Parent: src})
	_, ok := out.(*Transpose)
	require.True(t, ok, "Relayout of a Transpose stays a Transpose")

	out2 := Relayout(&ReadOnlyMatrix{Parent: src})
	_, ok = out2.(*ReadOnlyMatrix)
	require.True(t, ok, "Relayout of a ReadOnlyMatrix stays a ReadOnlyMatrix")
}

func TestCopyMatrixIsIndependent(t *testing.T) {
	src := NewDenseMatrix(2, 2, Columns, Float64, []float64{1, 2, 3, 4})
	cp := CopyMatrix(src).(*DenseMatrix)
	cp.Set(0, 0, 99)
	require.Equal(t, float64(1), src.At(0, 0), "copy must not alias source storage")
	require.Equal(t, float64(99), cp.At(0, 0))
}

func TestCheckAccessPolicies(t *testing.T) {
	rowMajor := NewDenseMatrix(2, 2, Rows, Float64, make([]float64, 4))

	t.Run("ignore", func(t *testing.T) {
		SetInefficientActionPolicy(PolicyIgnore, nil)
		err := CheckAccess("op", "m", rowMajor, Columns, "here")
		require.NoError(t, err)
	})

	t.Run("warn invokes callback", func(t *testing.T) {
		var got *Notice
		SetInefficientActionPolicy(PolicyWarn, func(n Notice) { got = &n })
		err := CheckAccess("op", "m", rowMajor, Columns, "here")
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, Columns, got.Wanted)
		require.Equal(t, Rows, got.Actual)
	})

	t.Run("error", func(t *testing.T) {
		SetInefficientActionPolicy(PolicyError, nil)
		err := CheckAccess("op", "m", rowMajor, Columns, "here")
		require.Error(t, err)
		var iae *InefficientAccessError
		require.ErrorAs(t, err, &iae)
	})

	t.Run("matching major axis never triggers the policy", func(t *testing.T) {
		SetInefficientActionPolicy(PolicyError, nil)
		err := CheckAccess("op", "m", rowMajor, Rows, "here")
		require.NoError(t, err)
	})

	// restore the default so later tests in the package aren't affected
	SetInefficientActionPolicy(PolicyWarn, nil)
}

func TestMaterializeResolvesWrappers(t *testing.T) {
	// [1 3]
	// [2 4]
	src := NewDenseMatrix(2, 2, Columns, Float64, []float64{1, 2, 3, 4})

	same := Materialize(&ReadOnlyMatrix{Parent: src})
	require.Same(t, src, same, "ReadOnly strips to its parent")

	flipped := Materialize(&Transpose{Parent: src}).(*DenseMatrix)
	rows, cols := flipped.Dims()
	require.Equal(t, 2, rows)
	require.Equal(t, 2, cols)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			require.Equal(t, src.At(i, j), flipped.At(j, i))
		}
	}
}
