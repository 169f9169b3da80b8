package axisdata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMemStoreDenseMatrixBothLayouts round-trips a dense matrix
// through both stored layouts via RelayoutMatrix.
func TestMemStoreDenseMatrixBothLayouts(t *testing.T) {
	store := NewMemStore("s1", ModeWriteTruncate)
	require.NoError(t, store.AddAxis("cell", []string{"c1", "c2", "c3"}))
	require.NoError(t, store.AddAxis("gene", []string{"g1", "g2"}))

	umis := NewDenseMatrix(3, 2, Columns, Float64, []float64{0, 2, 3, 1, 0, 4})
	require.NoError(t, store.SetMatrix("cell", "gene", "UMIs", umis, Float64))

	got, _, err := store.GetMatrix("cell", "gene", "UMIs")
	require.NoError(t, err)
	rows, cols := got.Dims()
	require.Equal(t, 3, rows)
	require.Equal(t, 2, cols)
	require.Equal(t, Columns, MajorAxis(got), "rows-axis first means rows-contiguous")

	relaid, err := store.RelayoutMatrix("gene", "cell", "UMIs", got)
	require.NoError(t, err)
	rrows, rcols := relaid.Dims()
	require.Equal(t, 2, rrows)
	require.Equal(t, 3, rcols)
	flipped := relaid.(*DenseMatrix)
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			require.Equal(t, got.(*DenseMatrix).At(i, j), flipped.At(j, i))
		}
	}

	stored, _, err := store.GetMatrix("gene", "cell", "UMIs")
	require.NoError(t, err)
	srows, scols := stored.Dims()
	require.Equal(t, 2, srows)
	require.Equal(t, 3, scols)
}

func TestMemStoreVectorLengthInvariant(t *testing.T) {
	store := NewMemStore("s", ModeWriteTruncate)
	require.NoError(t, store.AddAxis("cell", []string{"c1", "c2"}))
	err := store.SetVector("cell", "batch", NewDenseVector(String, []float64{1, 2, 3}), Float64)
	require.Error(t, err)
	var se *SchemaError
	require.ErrorAs(t, err, &se)
}

func TestMemStoreAxisDeletionSafety(t *testing.T) {
	store := NewMemStore("s", ModeWriteTruncate)
	require.NoError(t, store.AddAxis("cell", []string{"c1", "c2"}))
	require.NoError(t, store.SetVector("cell", "batch", NewDenseVector(Float64, []float64{1, 2}), Float64))

	err := store.DeleteAxis("cell")
	require.Error(t, err, "deleting an axis with dependent vectors must fail")

	require.NoError(t, store.DeleteVector("cell", "batch", false))
	require.NoError(t, store.DeleteAxis("cell"))
	require.False(t, store.HasAxis("cell"))
}

func TestMemStoreDuplicateAxisRejected(t *testing.T) {
	store := NewMemStore("s", ModeWriteTruncate)
	require.NoError(t, store.AddAxis("cell", []string{"c1"}))
	err := store.AddAxis("cell", []string{"c2"})
	require.Error(t, err)
}

func TestMemStoreSparseMatrixCSCInvariants(t *testing.T) {
	store := NewMemStore("s", ModeWriteTruncate)
	require.NoError(t, store.AddAxis("cell", []string{"c1", "c2", "c3"}))
	require.NoError(t, store.AddAxis("gene", []string{"g1", "g2"}))

	ptr, ind, val, err := store.GetEmptySparseMatrix("cell", "gene", "sparse", Float64, Uint8, 2)
	require.NoError(t, err)
	ptr[0], ptr[1], ptr[2] = 1, 1, 3
	ind[0], ind[1] = 1, 3
	val[0], val[1] = 5, 9

	m, _, err := store.GetMatrix("cell", "gene", "sparse")
	require.NoError(t, err)
	sm := m.(*SparseMatrix)
	require.Equal(t, 1, sm.Ptr[0])
	require.Equal(t, sm.NNZ()+1, sm.Ptr[len(sm.Ptr)-1])
	require.Equal(t, Columns, MajorAxis(sm))
}

func TestMemStoreReadOnlyRejectsMutation(t *testing.T) {
	store := NewMemStore("s", ModeRead)
	err := store.AddAxis("cell", []string{"c1"})
	require.Error(t, err)
}
