package axisdata

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildSource(t *testing.T, name string, cells []string, umi []float64, kind []string) *MemStore {
	t.Helper()
	s := NewMemStore(name, ModeWriteTruncate)
	require.NoError(t, s.AddAxis("cell", cells))
	if umi != nil {
		require.NoError(t, s.SetVector("cell", "umi", NewDenseVector(Float64, umi), Float64))
	}
	if kind != nil {
		require.NoError(t, setStringVector(s, "cell", "kind", kind))
	}
	return s
}

// Concatenating two sources with a dataset axis records each entry's
// originating source both as axis entries and as a vector on the
// concatenated axis.
func TestConcatDatasetAxis(t *testing.T) {
	s1 := buildSource(t, "a", []string{"c1", "c2"}, []float64{10, 20}, []string{"t", "n"})
	s2 := buildSource(t, "b", []string{"c3"}, []float64{30}, []string{"t"})

	d := NewMemStore("d", ModeWriteTruncate)
	token := NewLockToken()
	err := Concat(d, token, ConcatOptions{
		Axes:            []string{"cell"},
		Sources:         []Reader{s1, s2},
		Names:           []string{"a", "b"},
		DatasetAxis:     "dataset",
		DatasetProperty: true,
	})
	require.NoError(t, err)

	require.Equal(t, []string{"c1", "c2", "c3"}, d.AxisVector("cell"))
	require.Equal(t, []string{"a", "b"}, d.AxisVector("dataset"))

	umi, _, err := d.GetVector("cell", "umi")
	require.NoError(t, err)
	require.Equal(t, []float64{10, 20, 30}, DensifyVector(umi).(*DenseVector).Data)

	kind, _, err := d.GetVector("cell", "kind")
	require.NoError(t, err)
	require.Equal(t, "t", kind.(*stringVector).At(0))
	require.Equal(t, "n", kind.(*stringVector).At(1))
	require.Equal(t, "t", kind.(*stringVector).At(2))

	ds, _, err := d.GetVector("cell", "dataset")
	require.NoError(t, err)
	dsv := ds.(*stringVector)
	require.Equal(t, "a", dsv.At(0))
	require.Equal(t, "a", dsv.At(1))
	require.Equal(t, "b", dsv.At(2))
}

// A source missing a property fails the concat unless an empty fill
// value is supplied; prefixing renames each source's axis entries.
func TestConcatPrefixAndEmptyValue(t *testing.T) {
	s1 := NewMemStore("a", ModeWriteTruncate)
	require.NoError(t, s1.AddAxis("cell", []string{"c1", "c2"}))
	require.NoError(t, s1.SetVector("cell", "score", NewDenseVector(Float64, []float64{1.0, 2.0}), Float64))

	s2 := NewMemStore("b", ModeWriteTruncate)
	require.NoError(t, s2.AddAxis("cell", []string{"c1"}))

	d := NewMemStore("d", ModeWriteTruncate)
	err := Concat(d, NewLockToken(), ConcatOptions{
		Axes:    []string{"cell"},
		Sources: []Reader{s1, s2},
		Names:   []string{"a", "b"},
		Prefix:  true,
	})
	require.Error(t, err, "missing score in s2 with no empty value must fail")
	var mde *MissingDataError
	require.ErrorAs(t, err, &mde)
	require.Equal(t, "b", mde.Source)
	require.Equal(t, "score", mde.Property)

	d2 := NewMemStore("d2", ModeWriteTruncate)
	err = Concat(d2, NewLockToken(), ConcatOptions{
		Axes:    []string{"cell"},
		Sources: []Reader{s1, s2},
		Names:   []string{"a", "b"},
		Prefix:  true,
		Empty:   map[string]ScalarValue{CanonicalKey("cell", "", "score"): FloatScalar(Float64, 0.0)},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a.c1", "a.c2", "b.c1"}, d2.AxisVector("cell"))
	score, _, err := d2.GetVector("cell", "score")
	require.NoError(t, err)
	require.Equal(t, []float64{1.0, 2.0, 0.0}, DensifyVector(score).(*DenseVector).Data)
}

// CollectAxis on a scalar stacks the per-source values into a vector
// on the dataset axis instead of carrying the scalar itself.
func TestConcatCollectAxisScalar(t *testing.T) {
	s1 := NewMemStore("a", ModeWriteTruncate)
	require.NoError(t, s1.AddAxis("cell", []string{"c1"}))
	require.NoError(t, s1.SetScalar("version", StringScalar("1.0")))

	s2 := NewMemStore("b", ModeWriteTruncate)
	require.NoError(t, s2.AddAxis("cell", []string{"c2"}))
	require.NoError(t, s2.SetScalar("version", StringScalar("1.1")))

	d := NewMemStore("d", ModeWriteTruncate)
	err := Concat(d, NewLockToken(), ConcatOptions{
		Axes:        []string{"cell"},
		Sources:     []Reader{s1, s2},
		Names:       []string{"a", "b"},
		DatasetAxis: "dataset",
		Merge:       []MergeRule{{Property: "version", Action: CollectAxis}},
	})
	require.NoError(t, err)
	require.False(t, d.HasScalar("version"), "version must not survive as a scalar on D")
	v, _, err := d.GetVector("dataset", "version")
	require.NoError(t, err)
	sv := v.(*stringVector)
	require.Equal(t, "1.0", sv.At(0))
	require.Equal(t, "1.1", sv.At(1))
}

func TestConcatRejectsSquareMatrixOverConcatAxis(t *testing.T) {
	s := NewMemStore("a", ModeWriteTruncate)
	require.NoError(t, s.AddAxis("cell", []string{"c1", "c2"}))
	dist := NewDenseMatrix(2, 2, Columns, Float64, make([]float64, 4))
	require.NoError(t, s.SetMatrix("cell", "cell", "distance", dist, Float64))

	d := NewMemStore("d", ModeWriteTruncate)
	err := Concat(d, NewLockToken(), ConcatOptions{
		Axes:    []string{"cell"},
		Sources: []Reader{s},
	})
	require.Error(t, err)
	var se *ShapeError
	require.ErrorAs(t, err, &se)
}

func TestConcatLength(t *testing.T) {
	s1 := buildSource(t, "a", []string{"c1", "c2"}, []float64{1, 2}, nil)
	s2 := buildSource(t, "b", []string{"c3", "c4", "c5"}, []float64{3, 4, 5}, nil)

	d := NewMemStore("d", ModeWriteTruncate)
	err := Concat(d, NewLockToken(), ConcatOptions{
		Axes:    []string{"cell"},
		Sources: []Reader{s1, s2},
	})
	require.NoError(t, err)
	require.Equal(t, 5, d.AxisLength("cell"))
}

func TestConcatDenseMatrixAlongColumns(t *testing.T) {
	s1 := NewMemStore("a", ModeWriteTruncate)
	require.NoError(t, s1.AddAxis("gene", []string{"g1", "g2"}))
	require.NoError(t, s1.AddAxis("cell", []string{"c1", "c2"}))
	m1 := NewDenseMatrix(2, 2, Columns, Float64, []float64{1, 2, 3, 4})
	require.NoError(t, s1.SetMatrix("gene", "cell", "UMIs", m1, Float64))

	s2 := NewMemStore("b", ModeWriteTruncate)
	require.NoError(t, s2.AddAxis("gene", []string{"g1", "g2"}))
	require.NoError(t, s2.AddAxis("cell", []string{"c3"}))
	m2 := NewDenseMatrix(2, 1, Columns, Float64, []float64{5, 6})
	require.NoError(t, s2.SetMatrix("gene", "cell", "UMIs", m2, Float64))

	d := NewMemStore("d", ModeWriteTruncate)
	err := Concat(d, NewLockToken(), ConcatOptions{
		Axes:    []string{"cell"},
		Sources: []Reader{s1, s2},
	})
	require.NoError(t, err)

	require.True(t, d.HasAxis("gene"), "the non-concatenation axis must be copied into the destination")
	got, _, err := d.GetMatrix("gene", "cell", "UMIs")
	require.NoError(t, err)
	dm := got.(*DenseMatrix)
	rows, cols := dm.Dims()
	require.Equal(t, 2, rows)
	require.Equal(t, 3, cols)
	require.Equal(t, float64(1), dm.At(0, 0))
	require.Equal(t, float64(4), dm.At(1, 1))
	require.Equal(t, float64(5), dm.At(0, 2))
	require.Equal(t, float64(6), dm.At(1, 2))
}

func TestConcatSparseMatrixAlongColumns(t *testing.T) {
	genes := make([]string, 40)
	for i := range genes {
		genes[i] = fmt.Sprintf("g%d", i)
	}
	cellsOf := func(prefix string, n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = fmt.Sprintf("%s%d", prefix, i)
		}
		return out
	}

	s1 := NewMemStore("a", ModeWriteTruncate)
	require.NoError(t, s1.AddAxis("gene", genes))
	require.NoError(t, s1.AddAxis("cell", cellsOf("a", 30)))
	ptr1 := make([]int, 31)
	ptr1[0] = 1
	for c := 1; c < 30; c++ {
		ptr1[c] = 2
	}
	ptr1[30] = 3
	m1 := NewSparseMatrix(40, 30, Columns, Float64, ptr1, []int{6, 13}, []float64{1, 2})
	require.NoError(t, s1.SetMatrix("gene", "cell", "x", m1, Float64))

	s2 := NewMemStore("b", ModeWriteTruncate)
	require.NoError(t, s2.AddAxis("gene", genes))
	require.NoError(t, s2.AddAxis("cell", cellsOf("b", 30)))
	ptr2 := make([]int, 31)
	ptr2[0] = 1
	for c := 1; c <= 30; c++ {
		ptr2[c] = 2
	}
	m2 := NewSparseMatrix(40, 30, Columns, Float64, ptr2, []int{21}, []float64{3})
	require.NoError(t, s2.SetMatrix("gene", "cell", "x", m2, Float64))

	d := NewMemStore("d", ModeWriteTruncate)
	err := Concat(d, NewLockToken(), ConcatOptions{
		Axes:    []string{"cell"},
		Sources: []Reader{s1, s2},
	})
	require.NoError(t, err)

	got, _, err := d.GetMatrix("gene", "cell", "x")
	require.NoError(t, err)
	sm := got.(*SparseMatrix)
	rows, cols := sm.Dims()
	require.Equal(t, 40, rows)
	require.Equal(t, 60, cols)
	require.Equal(t, 3, sm.NNZ())
	require.Equal(t, 1, sm.Ptr[0])
	require.Equal(t, sm.NNZ()+1, sm.Ptr[60])
	require.Equal(t, float64(1), sm.At(5, 0))
	require.Equal(t, float64(2), sm.At(12, 29))
	require.Equal(t, float64(3), sm.At(20, 30))
}

func TestConcatMatrixAlongRows(t *testing.T) {
	s1 := NewMemStore("a", ModeWriteTruncate)
	require.NoError(t, s1.AddAxis("cell", []string{"c1", "c2"}))
	require.NoError(t, s1.AddAxis("gene", []string{"g1"}))
	m1 := NewDenseMatrix(2, 1, Columns, Float64, []float64{1, 2})
	require.NoError(t, s1.SetMatrix("cell", "gene", "m", m1, Float64))

	s2 := NewMemStore("b", ModeWriteTruncate)
	require.NoError(t, s2.AddAxis("cell", []string{"c3"}))
	require.NoError(t, s2.AddAxis("gene", []string{"g1"}))
	m2 := NewDenseMatrix(1, 1, Columns, Float64, []float64{3})
	require.NoError(t, s2.SetMatrix("cell", "gene", "m", m2, Float64))

	d := NewMemStore("d", ModeWriteTruncate)
	err := Concat(d, NewLockToken(), ConcatOptions{
		Axes:    []string{"cell"},
		Sources: []Reader{s1, s2},
	})
	require.NoError(t, err)

	got, _, err := d.GetMatrix("cell", "gene", "m")
	require.NoError(t, err)
	dm := got.(*DenseMatrix)
	rows, cols := dm.Dims()
	require.Equal(t, 3, rows)
	require.Equal(t, 1, cols)
	require.Equal(t, float64(1), dm.At(0, 0))
	require.Equal(t, float64(2), dm.At(1, 0))
	require.Equal(t, float64(3), dm.At(2, 0))
}

func TestConcatMergeLastValue(t *testing.T) {
	s1 := NewMemStore("a", ModeWriteTruncate)
	require.NoError(t, s1.AddAxis("cell", []string{"c1"}))
	require.NoError(t, s1.AddAxis("gene", []string{"g1", "g2"}))
	require.NoError(t, s1.SetScalar("organism", StringScalar("mouse")))
	require.NoError(t, s1.SetVector("gene", "length", NewDenseVector(Float64, []float64{100, 200}), Float64))

	s2 := NewMemStore("b", ModeWriteTruncate)
	require.NoError(t, s2.AddAxis("cell", []string{"c2"}))
	require.NoError(t, s2.AddAxis("gene", []string{"g1", "g2"}))
	require.NoError(t, s2.SetScalar("organism", StringScalar("human")))

	d := NewMemStore("d", ModeWriteTruncate)
	err := Concat(d, NewLockToken(), ConcatOptions{
		Axes:    []string{"cell"},
		Sources: []Reader{s1, s2},
		Merge: []MergeRule{
			{Property: "organism", Action: LastValue},
			{Axis: "gene", Property: "length", Action: LastValue},
		},
	})
	require.NoError(t, err)

	got, err := d.GetScalar("organism")
	require.NoError(t, err)
	require.Equal(t, "human", got.S, "LastValue takes the last source that has the property")

	require.True(t, d.HasAxis("gene"), "LastValue on a vector must copy its axis into the destination")
	length, _, err := d.GetVector("gene", "length")
	require.NoError(t, err)
	require.Equal(t, []float64{100, 200}, DensifyVector(length).(*DenseVector).Data)
}

func TestConcatMergeCollectAxisMatrixRejected(t *testing.T) {
	s := NewMemStore("a", ModeWriteTruncate)
	require.NoError(t, s.AddAxis("cell", []string{"c1"}))
	require.NoError(t, s.AddAxis("gene", []string{"g1"}))
	require.NoError(t, s.AddAxis("batch", []string{"b1"}))
	m := NewDenseMatrix(1, 1, Columns, Float64, []float64{1})
	require.NoError(t, s.SetMatrix("gene", "batch", "counts", m, Float64))

	d := NewMemStore("d", ModeWriteTruncate)
	err := Concat(d, NewLockToken(), ConcatOptions{
		Axes:        []string{"cell"},
		Sources:     []Reader{s},
		DatasetAxis: "dataset",
		Merge:       []MergeRule{{Axis: "gene", ColsAxis: "batch", Property: "counts", Action: CollectAxis}},
	})
	require.Error(t, err, "CollectAxis is illegal for matrix properties")
	var se *ShapeError
	require.ErrorAs(t, err, &se)
}

func TestConcatMergeCollectAxisVector(t *testing.T) {
	s1 := NewMemStore("a", ModeWriteTruncate)
	require.NoError(t, s1.AddAxis("cell", []string{"c1"}))
	require.NoError(t, s1.AddAxis("gene", []string{"g1", "g2"}))
	require.NoError(t, s1.SetVector("gene", "mean", NewDenseVector(Float64, []float64{1, 2}), Float64))

	s2 := NewMemStore("b", ModeWriteTruncate)
	require.NoError(t, s2.AddAxis("cell", []string{"c2"}))
	require.NoError(t, s2.AddAxis("gene", []string{"g1", "g2"}))
	require.NoError(t, s2.SetVector("gene", "mean", NewDenseVector(Float64, []float64{3, 4}), Float64))

	d := NewMemStore("d", ModeWriteTruncate)
	err := Concat(d, NewLockToken(), ConcatOptions{
		Axes:        []string{"cell"},
		Sources:     []Reader{s1, s2},
		DatasetAxis: "dataset",
		Merge:       []MergeRule{{Axis: "gene", Property: "mean", Action: CollectAxis}},
	})
	require.NoError(t, err)

	got, _, err := d.GetMatrix("gene", "dataset", "mean")
	require.NoError(t, err)
	rows, cols := got.Dims()
	require.Equal(t, 2, rows)
	require.Equal(t, 2, cols)
	require.Equal(t, float64(1), matrixAt(got, 0, 0))
	require.Equal(t, float64(4), matrixAt(got, 1, 1))
}

// A Bool vector on the concatenation axis is its own 1-bit-domain
// type; mixing it with a numeric vector under the same property name
// is rejected rather than silently promoted through the
// signed-integer ladder.
func TestConcatRejectsBoolNumericVectorMix(t *testing.T) {
	s1 := NewMemStore("a", ModeWriteTruncate)
	require.NoError(t, s1.AddAxis("cell", []string{"c1"}))
	require.NoError(t, s1.SetVector("cell", "flag", NewDenseVector(Bool, []float64{1}), Bool))

	s2 := NewMemStore("b", ModeWriteTruncate)
	require.NoError(t, s2.AddAxis("cell", []string{"c2"}))
	require.NoError(t, s2.SetVector("cell", "flag", NewDenseVector(Int8, []float64{1}), Int8))

	d := NewMemStore("d", ModeWriteTruncate)
	err := Concat(d, NewLockToken(), ConcatOptions{
		Axes:    []string{"cell"},
		Sources: []Reader{s1, s2},
	})
	require.Error(t, err)
	var se *SchemaError
	require.ErrorAs(t, err, &se)
}
