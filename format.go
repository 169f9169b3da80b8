package axisdata

import (
	"fmt"
	"sync"
)

// Mode governs what a data set's backend allows on open: whether the
// target is created, truncated, opened for modification, or opened
// read-only.
type Mode int

const (
	// ModeRead opens an existing store read-only; every mutation
	// primitive on the returned Reader/Writer pair fails.
	ModeRead Mode = iota
	// ModeReadWrite opens an existing store for modification.
	ModeReadWrite
	// ModeWriteCreate creates the store if it does not already
	// exist, otherwise opens it for modification.
	ModeWriteCreate
	// ModeWriteTruncate truncates the target on open, creating it if
	// necessary.
	ModeWriteTruncate
)

// Reader is the read half of the backend trait every storage format
// implements. Every primitive's contract requires the caller
// to hold the store's read lock (or write lock, which subsumes it).
// Neither MemStore nor the hdf5 Backend calls CheckReadLock: MemStore
// takes its own lock with its owner token inside each primitive, and
// the hdf5 Backend's primitives do not check locks at all.
type Reader interface {
	Name() string

	HasScalar(name string) bool
	ScalarsSet() []string
	GetScalar(name string) (ScalarValue, error)

	HasAxis(name string) bool
	AxesSet() []string
	AxisVector(name string) []string
	AxisLength(name string) int

	HasVector(axis, name string) bool
	VectorsSet(axis string) []string
	GetVector(axis, name string) (VectorExpr, ElemType, error)

	HasMatrix(rowsAxis, colsAxis, name string) bool
	MatricesSet(rowsAxis, colsAxis string) []string
	GetMatrix(rowsAxis, colsAxis, name string) (MatrixExpr, ElemType, error)

	// Version returns the monotonic counter for a property key built
	// by CanonicalKey, or 0 if the property does not exist.
	Version(key string) uint32

	// Cache exposes the backend's in-store cache for higher layers.
	Cache() *Cache
}

// Writer is the write half of the backend trait. All of its
// methods additionally require the write lock.
type Writer interface {
	Reader

	SetScalar(name string, value ScalarValue) error
	DeleteScalar(name string, forSet bool) error

	AddAxis(name string, entries []string) error
	DeleteAxis(name string) error

	SetVector(axis, name string, value VectorExpr, elemType ElemType) error
	// GetEmptyDenseVector returns a direct, mutable reference to
	// backing storage for a new dense vector; the caller fills it in
	// place; the reference points at the backing storage itself
	// (ideally memory-mapped), never a private copy.
	GetEmptyDenseVector(axis, name string, elemType ElemType) (*DenseVector, error)
	// GetEmptySparseVector returns direct references to the index
	// and value buffers of a new sparse vector of the given nnz and
	// index width.
	GetEmptySparseVector(axis, name string, elemType, idx ElemType, nnz int) (ind []int, val []float64, err error)
	FilledEmptySparseVector(axis, name string, filled bool) error
	DeleteVector(axis, name string, forSet bool) error

	SetMatrix(rowsAxis, colsAxis, name string, value MatrixExpr, elemType ElemType) error
	GetEmptyDenseMatrix(rowsAxis, colsAxis, name string, elemType ElemType) (*DenseMatrix, error)
	GetEmptySparseMatrix(rowsAxis, colsAxis, name string, elemType, idx ElemType, nnz int) (ptr, ind []int, val []float64, err error)
	DeleteMatrix(rowsAxis, colsAxis, name string, forSet bool) error

	// RelayoutMatrix stores and returns src's physical transpose under
	// the swapped key (rowsAxis, colsAxis, name), with the same major
	// axis label as src, so the new first axis is contiguous; sparse
	// or dense storage follows src.
	RelayoutMatrix(rowsAxis, colsAxis, name string, src MatrixExpr) (MatrixExpr, error)

	// Lock returns the backend's reader-writer lock.
	Lock() *DataLock
}

// CheckReadLock returns a LockError if token does not hold l's read
// lock. No backend in this module calls it from its primitives.
func CheckReadLock(l *DataLock, token *LockToken, primitive string) error {
	if !l.HasReadLock(token) {
		return &LockError{Primitive: primitive, Required: "read"}
	}
	return nil
}

// CheckWriteLock returns a LockError if token does not hold l's write
// lock.
func CheckWriteLock(l *DataLock, token *LockToken, primitive string) error {
	if !l.HasWriteLock(token) {
		return &LockError{Primitive: primitive, Required: "write"}
	}
	return nil
}

// CacheClass differentiates cache entries by memory-pressure and
// eviction priority.
type CacheClass int

const (
	// MappedData is backed by memory-mapped storage with zero
	// additional GC cost.
	MappedData CacheClass = iota
	// MemoryData has been copied into heap memory, e.g. after a
	// relayout.
	MemoryData
	// QueryData is derived from a user query.
	QueryData
)

// CanonicalKey builds the canonical cache/version key for a scalar
// (both axes "", name only), a vector ("/axis:name"), or a matrix
// ("/axis1/axis2:name"), so one string identifies a property
// across caches and version counters.
func CanonicalKey(axis1, axis2, name string) string {
	switch {
	case axis1 == "" && axis2 == "":
		return name
	case axis2 == "":
		return fmt.Sprintf("/%s:%s", axis1, name)
	default:
		return fmt.Sprintf("/%s/%s:%s", axis1, axis2, name)
	}
}

type cacheEntry struct {
	class   CacheClass
	value   interface{}
	depends []string
}

// Cache is the in-store mapping keyed by CanonicalKey, with
// dependency-based invalidation: a vector entry depends on its axis,
// a matrix on both of its axes.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	// dependents maps a dependency key (an axis name) to every cache
	// key that depends on it, so invalidating an axis can invalidate
	// everything built from it in one pass.
	dependents map[string]map[string]struct{}
	versions   map[string]uint32
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{
		entries:    make(map[string]cacheEntry),
		dependents: make(map[string]map[string]struct{}),
		versions:   make(map[string]uint32),
	}
}

// Get returns the cached value for key and whether it was present.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Put stores value under key in the given class, depending on the
// named axes (0, 1 or 2 of them) for invalidation purposes.
func (c *Cache) Put(key string, class CacheClass, value interface{}, dependsOnAxes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{class: class, value: value, depends: dependsOnAxes}
	for _, axis := range dependsOnAxes {
		if c.dependents[axis] == nil {
			c.dependents[axis] = make(map[string]struct{})
		}
		c.dependents[axis][key] = struct{}{}
	}
}

// InvalidateAxis forgets every cache entry that depends on axis
// (directly, via Put's dependsOnAxes), e.g. because the axis was
// deleted or its backing store changed underneath it.
func (c *Cache) InvalidateAxis(axis string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.dependents[axis] {
		delete(c.entries, key)
	}
	delete(c.dependents, axis)
}

// Empty bulk-forgets cache entries. At most one of clear/keep may be
// non-empty (with neither, every entry is forgotten);
// clear names classes to forget, keep names classes to retain while
// forgetting everything else.
func (c *Cache) Empty(clear, keep []CacheClass) error {
	if len(clear) != 0 && len(keep) != 0 {
		return fmt.Errorf("axisdata: Cache.Empty: exactly one of clear/keep may be specified")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	shouldForget := func(class CacheClass) bool {
		if len(clear) != 0 {
			for _, c2 := range clear {
				if c2 == class {
					return true
				}
			}
			return false
		}
		if len(keep) != 0 {
			for _, c2 := range keep {
				if c2 == class {
					return false
				}
			}
			return true
		}
		return true // neither specified: forget everything
	}
	for key, e := range c.entries {
		if shouldForget(e.class) {
			delete(c.entries, key)
		}
	}
	return nil
}

// BumpVersion increments and returns the monotonic uint32 counter for
// key, called on every successful write to that property.
func (c *Cache) BumpVersion(key string) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[key]++
	return c.versions[key]
}

// Version returns the current counter for key, 0 if never written.
func (c *Cache) Version(key string) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[key]
}
