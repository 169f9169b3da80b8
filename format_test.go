package axisdata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalKey(t *testing.T) {
	require.Equal(t, "v", CanonicalKey("", "", "v"))
	require.Equal(t, "/cell:batch", CanonicalKey("cell", "", "batch"))
	require.Equal(t, "/cell/gene:UMIs", CanonicalKey("cell", "gene", "UMIs"))
}

func TestCacheGetPutInvalidateAxis(t *testing.T) {
	c := NewCache()
	key := CanonicalKey("cell", "", "batch")
	_, ok := c.Get(key)
	require.False(t, ok)

	c.Put(key, MemoryData, []float64{1, 2, 3}, "cell")
	v, ok := c.Get(key)
	require.True(t, ok)
	require.Equal(t, []float64{1, 2, 3}, v)

	c.InvalidateAxis("cell")
	_, ok = c.Get(key)
	require.False(t, ok, "invalidating the dependency axis must forget the dependent entry")
}

func TestCacheEmptyExactlyOneOf(t *testing.T) {
	c := NewCache()
	err := c.Empty([]CacheClass{MappedData}, []CacheClass{MemoryData})
	require.Error(t, err, "clear and keep are mutually exclusive")
}

func TestCacheEmptyClearSelectsClass(t *testing.T) {
	c := NewCache()
	c.Put("a", MappedData, 1)
	c.Put("b", MemoryData, 2)
	require.NoError(t, c.Empty([]CacheClass{MappedData}, nil))
	_, ok := c.Get("a")
	require.False(t, ok)
	_, ok = c.Get("b")
	require.True(t, ok, "keep the class not named in clear")
}

func TestCacheEmptyKeepSelectsClass(t *testing.T) {
	c := NewCache()
	c.Put("a", MappedData, 1)
	c.Put("b", MemoryData, 2)
	require.NoError(t, c.Empty(nil, []CacheClass{MemoryData}))
	_, ok := c.Get("a")
	require.False(t, ok, "a's class (MappedData) is not in keep, so it is forgotten")
	_, ok = c.Get("b")
	require.True(t, ok)
}

func TestCacheVersionBump(t *testing.T) {
	c := NewCache()
	require.Equal(t, uint32(0), c.Version("x"))
	require.Equal(t, uint32(1), c.BumpVersion("x"))
	require.Equal(t, uint32(2), c.BumpVersion("x"))
	require.Equal(t, uint32(2), c.Version("x"))
}

func TestCheckLockHelpers(t *testing.T) {
	l := NewDataLock()
	tok := NewLockToken()
	require.Error(t, CheckReadLock(l, tok, "GetScalar"))
	l.RLock(tok)
	require.NoError(t, CheckReadLock(l, tok, "GetScalar"))
	require.Error(t, CheckWriteLock(l, tok, "SetScalar"))
	l.TryUpgrade(tok)
	require.NoError(t, CheckWriteLock(l, tok, "SetScalar"))
	l.Unlock(tok)
}
