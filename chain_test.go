package axisdata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// A chain write lands on the tail writer and overrides an earlier
// member's value, but deleting the override is refused while the
// earlier member still carries the property.
func TestChainOverrideAndRefusedDelete(t *testing.T) {
	r := NewMemStore("R", ModeWriteTruncate)
	require.NoError(t, r.SetScalar("v", Int64Scalar(Int64, 1)))
	require.NoError(t, r.AddAxis("cell", []string{"c1", "c2"}))
	require.NoError(t, setStringVector(r, "cell", "batch", []string{"a", "b"}))

	w := NewMemStore("W", ModeWriteTruncate)

	c, err := NewWriteChain(w, r)
	require.NoError(t, err)

	require.NoError(t, c.SetScalar("v", Int64Scalar(Int64, 2)))
	require.True(t, w.HasScalar("v"), "write must land on the tail writer")
	got, err := c.GetScalar("v")
	require.NoError(t, err)
	require.Equal(t, int64(2), got.I)

	err = c.DeleteScalar("v", false)
	require.Error(t, err, "deleting W's override must be refused while R still has v")
	var ce *ChainError
	require.ErrorAs(t, err, &ce)

	require.NoError(t, c.SetScalar("v", Int64Scalar(Int64, 3)))
	err = c.DeleteScalar("v", false)
	require.Error(t, err, "still refused after a second override")
}

func TestChainUnionAndLastWins(t *testing.T) {
	r := NewMemStore("R", ModeWriteTruncate)
	require.NoError(t, r.AddAxis("cell", []string{"c1", "c2"}))
	require.NoError(t, r.SetScalar("only-in-r", Int64Scalar(Int64, 7)))

	w := NewMemStore("W", ModeWriteTruncate)
	require.NoError(t, w.SetScalar("only-in-w", Int64Scalar(Int64, 9)))

	c, err := NewWriteChain(w, r)
	require.NoError(t, err)

	require.True(t, c.HasScalar("only-in-r"))
	require.True(t, c.HasScalar("only-in-w"))
	require.ElementsMatch(t, []string{"only-in-r", "only-in-w"}, c.ScalarsSet())

	// a key present in both: tail (first-consulted) wins.
	require.NoError(t, r.SetScalar("dup", Int64Scalar(Int64, 1)))
	require.NoError(t, w.SetScalar("dup", Int64Scalar(Int64, 2)))
	got, err := c.GetScalar("dup")
	require.NoError(t, err)
	require.Equal(t, int64(2), got.I)
}

func TestChainAxisIdentityMismatchRejected(t *testing.T) {
	a := NewMemStore("A", ModeWriteTruncate)
	require.NoError(t, a.AddAxis("cell", []string{"c1", "c2"}))
	b := NewMemStore("B", ModeWriteTruncate)
	require.NoError(t, b.AddAxis("cell", []string{"c1", "c3"}))

	_, err := NewChain(a, b)
	require.Error(t, err, "same axis name with different entries across members must fail construction")
}

func TestChainWriteAddsMissingAxisFromEarlierMember(t *testing.T) {
	r := NewMemStore("R", ModeWriteTruncate)
	require.NoError(t, r.AddAxis("cell", []string{"c1", "c2"}))

	w := NewMemStore("W", ModeWriteTruncate)
	c, err := NewWriteChain(w, r)
	require.NoError(t, err)

	require.NoError(t, c.SetVector("cell", "score", NewDenseVector(Float64, []float64{1, 2}), Float64))
	require.True(t, w.HasAxis("cell"), "write chain must copy the axis into the writer before writing the vector")
	require.Equal(t, []string{"c1", "c2"}, w.AxisVector("cell"))
}

func TestChainVersionSumsMembers(t *testing.T) {
	r := NewMemStore("R", ModeWriteTruncate)
	require.NoError(t, r.SetScalar("v", Int64Scalar(Int64, 1)))

	w := NewMemStore("W", ModeWriteTruncate)
	c, err := NewWriteChain(w, r)
	require.NoError(t, err)

	key := CanonicalKey("", "", "v")
	require.Equal(t, uint32(1), c.Version(key))

	require.NoError(t, c.SetScalar("v", Int64Scalar(Int64, 2)))
	require.Equal(t, uint32(2), c.Version(key), "a write to any member must change the chain's counter")

	require.NoError(t, r.SetScalar("v", Int64Scalar(Int64, 3)))
	require.Equal(t, uint32(3), c.Version(key))
}
