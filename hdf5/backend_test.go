package hdf5

import (
	"path/filepath"
	"testing"

	axisdata "github.com/scidatakit/axisdata"
	"github.com/stretchr/testify/require"
)

func TestSplitShorthand(t *testing.T) {
	root, group := splitShorthand("/tmp/data.h5")
	require.Equal(t, "/tmp/data.h5", root)
	require.Equal(t, "", group)

	root, group = splitShorthand("/tmp/data.h5#/nested/group/")
	require.Equal(t, "/tmp/data.h5", root)
	require.Equal(t, "nested/group", group)
}

func TestIndexWidthFromBytes(t *testing.T) {
	require.Equal(t, axisdata.Uint8, indexWidthFromBytes(0, 0))
	require.Equal(t, axisdata.Uint8, indexWidthFromBytes(5, 5))
	require.Equal(t, axisdata.Uint16, indexWidthFromBytes(10, 5))
	require.Equal(t, axisdata.Uint32, indexWidthFromBytes(20, 5))
	require.Equal(t, axisdata.Uint64, indexWidthFromBytes(40, 5))
}

func TestBackendPathWithGroup(t *testing.T) {
	b := &Backend{path: "/tmp/data.h5", groupPath: "nested"}
	require.Equal(t, "/tmp/data.h5#/nested", b.Name())
	require.Equal(t, "/nested/scalars", b.p("scalars"))
}

func TestBackendPathWithoutGroup(t *testing.T) {
	b := &Backend{path: "/tmp/data.h5"}
	require.Equal(t, "/tmp/data.h5", b.Name())
	require.Equal(t, "/scalars", b.p("scalars"))
}

// TestBackendRoundTrip reproduces scenario S1 (and a scalar, a sparse
// vector, and a string axis) against a real file on disk: write every
// kind of property through a ModeWriteTruncate backend, close it, and
// reopen ModeRead to check that everything this package's own Reader
// surface returns still matches. This exercises createFresh,
// openExisting's daf-marker check, rebuildRegistry, and the
// objheader.go object-header walk that every read goes through —
// nothing here is covered by the pure helper tests above.
func TestBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.h5")

	w, err := Open(path, axisdata.ModeWriteTruncate)
	require.NoError(t, err)

	require.NoError(t, w.AddAxis("cell", []string{"c1", "c2", "c3"}))
	require.NoError(t, w.AddAxis("gene", []string{"g1", "g2"}))
	require.NoError(t, w.SetScalar("version", axisdata.StringScalar("1.0")))
	require.NoError(t, w.SetVector("cell", "umi", axisdata.NewDenseVector(axisdata.Float64, []float64{1, 2, 3}), axisdata.Float64))

	ind, val, err := w.GetEmptySparseVector("gene", "score", axisdata.Float64, axisdata.Uint8, 1)
	require.NoError(t, err)
	ind[0] = 2
	val[0] = 5.5
	require.NoError(t, w.FilledEmptySparseVector("gene", "score", true))

	umis := axisdata.NewDenseMatrix(3, 2, axisdata.Columns, axisdata.Float64, []float64{0, 2, 3, 1, 0, 4})
	require.NoError(t, w.SetMatrix("cell", "gene", "UMIs", umis, axisdata.Float64))

	relaid, err := w.RelayoutMatrix("gene", "cell", "UMIs", umis)
	require.NoError(t, err)
	rrows, rcols := relaid.Dims()
	require.Equal(t, 2, rrows)
	require.Equal(t, 3, rcols)

	require.NoError(t, w.Close())

	r, err := Open(path, axisdata.ModeRead)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, []string{"c1", "c2", "c3"}, r.AxisVector("cell"))
	require.Equal(t, []string{"g1", "g2"}, r.AxisVector("gene"))

	v, err := r.GetScalar("version")
	require.NoError(t, err)
	require.Equal(t, "1.0", v.S)

	umiVec, et, err := r.GetVector("cell", "umi")
	require.NoError(t, err)
	require.Equal(t, axisdata.Float64, et)
	require.Equal(t, []float64{1, 2, 3}, axisdata.DensifyVector(umiVec).(*axisdata.DenseVector).Data)

	scoreVec, _, err := r.GetVector("gene", "score")
	require.NoError(t, err)
	require.Equal(t, []float64{0, 5.5}, axisdata.DensifyVector(scoreVec).(*axisdata.DenseVector).Data)

	got, _, err := r.GetMatrix("cell", "gene", "UMIs")
	require.NoError(t, err)
	rows, cols := got.Dims()
	require.Equal(t, 3, rows)
	require.Equal(t, 2, cols)
	require.Equal(t, axisdata.Columns, axisdata.MajorAxis(got), "rows-axis first means rows-contiguous")
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			require.Equal(t, umis.At(i, j), got.(*axisdata.DenseMatrix).At(i, j))
		}
	}

	flipped, _, err := r.GetMatrix("gene", "cell", "UMIs")
	require.NoError(t, err)
	frows, fcols := flipped.Dims()
	require.Equal(t, 2, frows)
	require.Equal(t, 3, fcols)
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			require.Equal(t, umis.At(i, j), flipped.(*axisdata.DenseMatrix).At(j, i))
		}
	}
}

// TestBackendOpenReadMissingFileFails checks the ModeRead open path's
// existence guard (Open's first branch for a nonexistent target),
// which the round-trip test above never exercises since its file
// always exists by the time it reopens ModeRead.
func TestBackendOpenReadMissingFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.h5")
	_, err := Open(path, axisdata.ModeRead)
	require.Error(t, err)
	var fe *axisdata.FormatError
	require.ErrorAs(t, err, &fe)
}
