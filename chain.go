package axisdata

import "sort"

// Chain presents an ordered list of backend stores as a single
// store. Reads consult members last-to-first and return the first
// hit; set/axes/scalars/matrices enumeration returns the union. If tail
// is non-nil the chain is a write chain: every write primitive
// dispatches to tail, auto-adding any axis it references from the
// earliest member that defines it, and refuses any delete that would
// merely shadow an earlier member's value.
type Chain struct {
	members []Reader // members[0] is consulted last (the "earliest"/base member)
	tail    Writer   // nil for a read-only chain; otherwise == members[len-1]
	token   *LockToken
}

// NewChain builds a read-only chain over members, consulted in the
// given order (members[len-1] is consulted first). Construction fails
// if any axis name shared by two members carries different entry
// sequences.
func NewChain(members ...Reader) (*Chain, error) {
	if err := verifyChainAxisIdentity(members); err != nil {
		return nil, err
	}
	return &Chain{members: members, token: NewLockToken()}, nil
}

// NewWriteChain builds a write chain whose final member, tail, is the
// single writer every mutation dispatches to. earlier are consulted,
// in order, before tail for reads.
func NewWriteChain(tail Writer, earlier ...Reader) (*Chain, error) {
	members := append(append([]Reader(nil), earlier...), tail)
	if err := verifyChainAxisIdentity(members); err != nil {
		return nil, err
	}
	return &Chain{members: members, tail: tail, token: NewLockToken()}, nil
}

func verifyChainAxisIdentity(members []Reader) error {
	seen := make(map[string]*Axis)
	seenOwner := make(map[string]string)
	for _, m := range members {
		for _, name := range m.AxesSet() {
			axis, err := NewAxis(name, m.AxisVector(name))
			if err != nil {
				return err
			}
			if prior, ok := seen[name]; ok {
				if !prior.SameEntries(axis) {
					return &ChainError{Kind: ChainConstructionFailed, Member: m.Name(), Detail: "axis " + name + " entries differ from member " + seenOwner[name]}
				}
				continue
			}
			seen[name] = axis
			seenOwner[name] = m.Name()
		}
	}
	return nil
}

func (c *Chain) Name() string {
	if len(c.members) == 0 {
		return "chain"
	}
	return "chain:" + c.members[len(c.members)-1].Name()
}

// Lock returns the DataLock of the chain's representative member: the
// tail writer for a write chain, or the last (first-consulted) member
// for a read-only chain. It satisfies the Writer/Reader trait's
// Lock() requirement; see LockAll for full chain-entry locking.
func (c *Chain) Lock() *DataLock {
	if c.tail != nil {
		return c.tail.Lock()
	}
	return memberLock(c.members[len(c.members)-1])
}

func memberLock(r Reader) *DataLock {
	if l, ok := r.(interface{ Lock() *DataLock }); ok {
		return l.Lock()
	}
	return nil
}

// Token returns the owner token of the lock Lock() returns, so that
// callers locking a chain externally (e.g. a concat with a chain
// destination) re-enter its members' primitives as the lock's owner.
func (c *Chain) Token() *LockToken {
	var rep Reader
	if c.tail != nil {
		rep = c.tail
	} else {
		rep = c.members[len(c.members)-1]
	}
	if tp, ok := rep.(interface{ Token() *LockToken }); ok {
		return tp.Token()
	}
	return c.token
}

// LockAll acquires read locks on every member in order, then (for a
// write chain) upgrades the tail's lock to a write lock: entering
// under a read lock takes read locks on every member in order;
// entering under a write lock takes the write lock on the final
// writer and read locks on all earlier members. UnlockAll releases in
// the reverse order.
func (c *Chain) LockAll(token *LockToken, forWrite bool) {
	for _, m := range c.members {
		if l := memberLock(m); l != nil {
			l.RLock(ownerToken(m, token))
		}
	}
	if forWrite && c.tail != nil {
		c.tail.Lock().TryUpgrade(ownerToken(c.tail, token))
	}
}

// UnlockAll releases the locks taken by LockAll, in reverse order. For
// a write-mode acquisition the tail's write lock is released first
// (TryUpgrade left no read lock on it to also release), then every
// member's read lock is released in reverse member order.
func (c *Chain) UnlockAll(token *LockToken, forWrite bool) {
	if forWrite && c.tail != nil {
		c.tail.Lock().Unlock(ownerToken(c.tail, token))
	}
	for i := len(c.members) - 1; i >= 0; i-- {
		if forWrite && c.members[i] == Reader(c.tail) {
			continue
		}
		if l := memberLock(c.members[i]); l != nil {
			l.RUnlock(ownerToken(c.members[i], token))
		}
	}
}

// --- read-side: consult last to first ---

func (c *Chain) HasScalar(name string) bool {
	for i := len(c.members) - 1; i >= 0; i-- {
		if c.members[i].HasScalar(name) {
			return true
		}
	}
	return false
}

func (c *Chain) ScalarsSet() []string { return unionStrings(func(i int) []string { return c.members[i].ScalarsSet() }, len(c.members)) }

func (c *Chain) GetScalar(name string) (ScalarValue, error) {
	for i := len(c.members) - 1; i >= 0; i-- {
		if c.members[i].HasScalar(name) {
			return c.members[i].GetScalar(name)
		}
	}
	return ScalarValue{}, &SchemaError{Op: "GetScalar", Property: name, Detail: "no such scalar in any chain member"}
}

func (c *Chain) HasAxis(name string) bool {
	for i := len(c.members) - 1; i >= 0; i-- {
		if c.members[i].HasAxis(name) {
			return true
		}
	}
	return false
}

func (c *Chain) AxesSet() []string { return unionStrings(func(i int) []string { return c.members[i].AxesSet() }, len(c.members)) }

func (c *Chain) AxisVector(name string) []string {
	for i := len(c.members) - 1; i >= 0; i-- {
		if c.members[i].HasAxis(name) {
			return c.members[i].AxisVector(name)
		}
	}
	return nil
}

func (c *Chain) AxisLength(name string) int {
	for i := len(c.members) - 1; i >= 0; i-- {
		if c.members[i].HasAxis(name) {
			return c.members[i].AxisLength(name)
		}
	}
	return 0
}

func (c *Chain) HasVector(axis, name string) bool {
	for i := len(c.members) - 1; i >= 0; i-- {
		if c.members[i].HasVector(axis, name) {
			return true
		}
	}
	return false
}

func (c *Chain) VectorsSet(axis string) []string {
	return unionStrings(func(i int) []string { return c.members[i].VectorsSet(axis) }, len(c.members))
}

func (c *Chain) GetVector(axis, name string) (VectorExpr, ElemType, error) {
	for i := len(c.members) - 1; i >= 0; i-- {
		if c.members[i].HasVector(axis, name) {
			return c.members[i].GetVector(axis, name)
		}
	}
	return nil, 0, &SchemaError{Op: "GetVector", Axis: axis, Property: name, Detail: "no such vector in any chain member"}
}

func (c *Chain) HasMatrix(rowsAxis, colsAxis, name string) bool {
	for i := len(c.members) - 1; i >= 0; i-- {
		if c.members[i].HasMatrix(rowsAxis, colsAxis, name) {
			return true
		}
	}
	return false
}

func (c *Chain) MatricesSet(rowsAxis, colsAxis string) []string {
	return unionStrings(func(i int) []string { return c.members[i].MatricesSet(rowsAxis, colsAxis) }, len(c.members))
}

func (c *Chain) GetMatrix(rowsAxis, colsAxis, name string) (MatrixExpr, ElemType, error) {
	for i := len(c.members) - 1; i >= 0; i-- {
		if c.members[i].HasMatrix(rowsAxis, colsAxis, name) {
			return c.members[i].GetMatrix(rowsAxis, colsAxis, name)
		}
	}
	return nil, 0, &SchemaError{Op: "GetMatrix", Property: name, Detail: "no such matrix in any chain member"}
}

// Version sums the members' counters for key, so a change in any
// member changes the chain's observed counter.
func (c *Chain) Version(key string) uint32 {
	var sum uint32
	for _, m := range c.members {
		sum += m.Version(key)
	}
	return sum
}

func (c *Chain) Cache() *Cache {
	if c.tail != nil {
		return c.tail.Cache()
	}
	return c.members[len(c.members)-1].Cache()
}

func unionStrings(get func(i int) []string, n int) []string {
	seen := make(map[string]struct{})
	for i := 0; i < n; i++ {
		for _, s := range get(i) {
			seen[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// --- write-side: dispatch to tail, auto-adding axes, refusing shadowed deletes ---

func (c *Chain) requireTail(op string) error {
	if c.tail == nil {
		return &ChainError{Kind: ChainNoTailWriter, Member: c.Name(), Detail: op + ": chain is read-only"}
	}
	return nil
}

// ensureAxis adds name to tail, copying entries from the earliest
// member that defines it, if tail does not already carry it.
func (c *Chain) ensureAxis(name string) error {
	if c.tail.HasAxis(name) {
		return nil
	}
	for _, m := range c.members {
		if m == Reader(c.tail) {
			continue
		}
		if m.HasAxis(name) {
			return c.tail.AddAxis(name, m.AxisVector(name))
		}
	}
	return &SchemaError{Op: "ensureAxis", Axis: name, Detail: "axis not found in any chain member"}
}

// existsInEarlierMember reports whether some member other than tail
// carries the given scalar (name!="" axis=="" col==""), vector
// (axis!="", col==""), or matrix (axis!="", col!="") property.
func (c *Chain) existsInEarlierMember(axis, col, name string) (string, bool) {
	for _, m := range c.members {
		if m == Reader(c.tail) {
			continue
		}
		var found bool
		switch {
		case axis == "":
			found = m.HasScalar(name)
		case col == "":
			found = m.HasVector(axis, name)
		default:
			found = m.HasMatrix(axis, col, name)
		}
		if found {
			return m.Name(), true
		}
	}
	return "", false
}

func (c *Chain) SetScalar(name string, value ScalarValue) error {
	if err := c.requireTail("SetScalar"); err != nil {
		return err
	}
	return c.tail.SetScalar(name, value)
}

func (c *Chain) DeleteScalar(name string, forSet bool) error {
	if err := c.requireTail("DeleteScalar"); err != nil {
		return err
	}
	if owner, shadowed := c.existsInEarlierMember("", "", name); shadowed {
		return &ChainError{Kind: ChainDeleteRefused, Member: owner, Property: name, Detail: "cannot delete: write a new value instead"}
	}
	return c.tail.DeleteScalar(name, forSet)
}

func (c *Chain) AddAxis(name string, entries []string) error {
	if err := c.requireTail("AddAxis"); err != nil {
		return err
	}
	return c.tail.AddAxis(name, entries)
}

func (c *Chain) DeleteAxis(name string) error {
	if err := c.requireTail("DeleteAxis"); err != nil {
		return err
	}
	for _, m := range c.members {
		if m == Reader(c.tail) {
			continue
		}
		if m.HasAxis(name) {
			return &ChainError{Kind: ChainDeleteRefused, Member: m.Name(), Axis: name, Detail: "cannot delete: axis defined in an earlier member"}
		}
	}
	return c.tail.DeleteAxis(name)
}

func (c *Chain) SetVector(axis, name string, value VectorExpr, elemType ElemType) error {
	if err := c.requireTail("SetVector"); err != nil {
		return err
	}
	if err := c.ensureAxis(axis); err != nil {
		return err
	}
	return c.tail.SetVector(axis, name, value, elemType)
}

func (c *Chain) GetEmptyDenseVector(axis, name string, elemType ElemType) (*DenseVector, error) {
	if err := c.requireTail("GetEmptyDenseVector"); err != nil {
		return nil, err
	}
	if err := c.ensureAxis(axis); err != nil {
		return nil, err
	}
	return c.tail.GetEmptyDenseVector(axis, name, elemType)
}

func (c *Chain) GetEmptySparseVector(axis, name string, elemType, idx ElemType, nnz int) ([]int, []float64, error) {
	if err := c.requireTail("GetEmptySparseVector"); err != nil {
		return nil, nil, err
	}
	if err := c.ensureAxis(axis); err != nil {
		return nil, nil, err
	}
	return c.tail.GetEmptySparseVector(axis, name, elemType, idx, nnz)
}

func (c *Chain) FilledEmptySparseVector(axis, name string, filled bool) error {
	if err := c.requireTail("FilledEmptySparseVector"); err != nil {
		return err
	}
	return c.tail.FilledEmptySparseVector(axis, name, filled)
}

func (c *Chain) DeleteVector(axis, name string, forSet bool) error {
	if err := c.requireTail("DeleteVector"); err != nil {
		return err
	}
	if owner, shadowed := c.existsInEarlierMember(axis, "", name); shadowed {
		return &ChainError{Kind: ChainDeleteRefused, Member: owner, Property: name, Detail: "cannot delete: write a new value instead"}
	}
	return c.tail.DeleteVector(axis, name, forSet)
}

func (c *Chain) SetMatrix(rowsAxis, colsAxis, name string, value MatrixExpr, elemType ElemType) error {
	if err := c.requireTail("SetMatrix"); err != nil {
		return err
	}
	if err := c.ensureAxis(rowsAxis); err != nil {
		return err
	}
	if err := c.ensureAxis(colsAxis); err != nil {
		return err
	}
	return c.tail.SetMatrix(rowsAxis, colsAxis, name, value, elemType)
}

func (c *Chain) GetEmptyDenseMatrix(rowsAxis, colsAxis, name string, elemType ElemType) (*DenseMatrix, error) {
	if err := c.requireTail("GetEmptyDenseMatrix"); err != nil {
		return nil, err
	}
	if err := c.ensureAxis(rowsAxis); err != nil {
		return nil, err
	}
	if err := c.ensureAxis(colsAxis); err != nil {
		return nil, err
	}
	return c.tail.GetEmptyDenseMatrix(rowsAxis, colsAxis, name, elemType)
}

func (c *Chain) GetEmptySparseMatrix(rowsAxis, colsAxis, name string, elemType, idx ElemType, nnz int) ([]int, []int, []float64, error) {
	if err := c.requireTail("GetEmptySparseMatrix"); err != nil {
		return nil, nil, nil, err
	}
	if err := c.ensureAxis(rowsAxis); err != nil {
		return nil, nil, nil, err
	}
	if err := c.ensureAxis(colsAxis); err != nil {
		return nil, nil, nil, err
	}
	return c.tail.GetEmptySparseMatrix(rowsAxis, colsAxis, name, elemType, idx, nnz)
}

func (c *Chain) DeleteMatrix(rowsAxis, colsAxis, name string, forSet bool) error {
	if err := c.requireTail("DeleteMatrix"); err != nil {
		return err
	}
	if owner, shadowed := c.existsInEarlierMember(rowsAxis, colsAxis, name); shadowed {
		return &ChainError{Kind: ChainDeleteRefused, Member: owner, Property: name, Detail: "cannot delete: write a new value instead"}
	}
	return c.tail.DeleteMatrix(rowsAxis, colsAxis, name, forSet)
}

// RelayoutMatrix prefers to materialize into tail if it owns the
// source matrix (keyed under the swapped axes); otherwise it produces
// the flipped matrix in memory and caches it under the owning
// member's MemoryData class.
func (c *Chain) RelayoutMatrix(rowsAxis, colsAxis, name string, src MatrixExpr) (MatrixExpr, error) {
	if err := c.requireTail("RelayoutMatrix"); err != nil {
		return nil, err
	}
	if c.tail.HasMatrix(colsAxis, rowsAxis, name) {
		return c.tail.RelayoutMatrix(rowsAxis, colsAxis, name, src)
	}
	relaid := Transposer(src)
	for _, m := range c.members {
		if m == Reader(c.tail) {
			continue
		}
		if m.HasMatrix(colsAxis, rowsAxis, name) {
			m.Cache().Put(CanonicalKey(rowsAxis, colsAxis, name), MemoryData, relaid, rowsAxis, colsAxis)
			break
		}
	}
	return relaid, nil
}

var (
	_ Reader = (*Chain)(nil)
	_ Writer = (*Chain)(nil)
)
