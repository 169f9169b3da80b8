package axisdata

import (
	"fmt"
	"sort"
)

// MemStore is the in-memory reference implementation of the Writer
// trait: every scalar, axis, vector and matrix lives in plain Go
// maps. It is a full data set in its own right, useful standalone,
// as the tail member of a Chain, and as the destination of a concat.
type MemStore struct {
	name    string
	mode    Mode
	lock    *DataLock
	cache   *Cache
	token   *LockToken // the implicit owner used by the single-threaded convenience methods
	scalars map[string]ScalarValue
	axes    map[string]*Axis
	// vectors[axis][name]
	vectors map[string]map[string]storedVector
	// matrices[rowsAxis][colsAxis][name]
	matrices map[string]map[string]map[string]storedMatrix
}

type storedVector struct {
	value    VectorExpr
	elemType ElemType
}

type storedMatrix struct {
	value    MatrixExpr
	elemType ElemType
}

// NewMemStore creates an empty in-memory data set named name, opened
// in the given mode. ModeRead on an empty store is permitted (it
// simply starts, and stays, empty) since MemStore has no on-disk
// state to distinguish "missing" from "empty".
func NewMemStore(name string, mode Mode) *MemStore {
	return &MemStore{
		name:     name,
		mode:     mode,
		lock:     NewDataLock(),
		cache:    NewCache(),
		token:    NewLockToken(),
		scalars:  make(map[string]ScalarValue),
		axes:     make(map[string]*Axis),
		vectors:  make(map[string]map[string]storedVector),
		matrices: make(map[string]map[string]map[string]storedMatrix),
	}
}

// Token returns the LockToken this store's convenience (single-owner)
// methods use internally. Callers that want to interleave MemStore
// access with their own explicit locking can reuse it.
func (m *MemStore) Token() *LockToken { return m.token }

func (m *MemStore) Name() string  { return m.name }
func (m *MemStore) Lock() *DataLock { return m.lock }
func (m *MemStore) Cache() *Cache   { return m.cache }

func (m *MemStore) readOnly() bool { return m.mode == ModeRead }

// --- scalars ---

func (m *MemStore) HasScalar(name string) bool {
	m.lock.RLock(m.token)
	defer m.lock.RUnlock(m.token)
	_, ok := m.scalars[name]
	return ok
}

func (m *MemStore) ScalarsSet() []string {
	m.lock.RLock(m.token)
	defer m.lock.RUnlock(m.token)
	out := make([]string, 0, len(m.scalars))
	for k := range m.scalars {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *MemStore) GetScalar(name string) (ScalarValue, error) {
	m.lock.RLock(m.token)
	defer m.lock.RUnlock(m.token)
	v, ok := m.scalars[name]
	if !ok {
		return ScalarValue{}, &SchemaError{Op: "GetScalar", Property: name, Detail: "no such scalar"}
	}
	return v, nil
}

func (m *MemStore) SetScalar(name string, value ScalarValue) error {
	if m.readOnly() {
		return fmt.Errorf("axisdata: SetScalar: store %q is read-only", m.name)
	}
	m.lock.Lock(m.token)
	defer m.lock.Unlock(m.token)
	m.scalars[name] = value
	m.cache.BumpVersion(CanonicalKey("", "", name))
	return nil
}

func (m *MemStore) DeleteScalar(name string, forSet bool) error {
	if m.readOnly() {
		return fmt.Errorf("axisdata: DeleteScalar: store %q is read-only", m.name)
	}
	m.lock.Lock(m.token)
	defer m.lock.Unlock(m.token)
	if _, ok := m.scalars[name]; !ok && !forSet {
		return &SchemaError{Op: "DeleteScalar", Property: name, Detail: "no such scalar"}
	}
	delete(m.scalars, name)
	return nil
}

// --- axes ---

func (m *MemStore) HasAxis(name string) bool {
	m.lock.RLock(m.token)
	defer m.lock.RUnlock(m.token)
	_, ok := m.axes[name]
	return ok
}

func (m *MemStore) AxesSet() []string {
	m.lock.RLock(m.token)
	defer m.lock.RUnlock(m.token)
	out := make([]string, 0, len(m.axes))
	for k := range m.axes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *MemStore) AxisVector(name string) []string {
	m.lock.RLock(m.token)
	defer m.lock.RUnlock(m.token)
	a, ok := m.axes[name]
	if !ok {
		return nil
	}
	return a.Entries()
}

func (m *MemStore) AxisLength(name string) int {
	m.lock.RLock(m.token)
	defer m.lock.RUnlock(m.token)
	a, ok := m.axes[name]
	if !ok {
		return 0
	}
	return a.Len()
}

func (m *MemStore) AddAxis(name string, entries []string) error {
	if m.readOnly() {
		return fmt.Errorf("axisdata: AddAxis: store %q is read-only", m.name)
	}
	m.lock.Lock(m.token)
	defer m.lock.Unlock(m.token)
	if _, dup := m.axes[name]; dup {
		return &SchemaError{Op: "AddAxis", Axis: name, Detail: "axis already exists"}
	}
	axis, err := NewAxis(name, entries)
	if err != nil {
		return err
	}
	m.axes[name] = axis
	return nil
}

func (m *MemStore) DeleteAxis(name string) error {
	if m.readOnly() {
		return fmt.Errorf("axisdata: DeleteAxis: store %q is read-only", m.name)
	}
	m.lock.Lock(m.token)
	defer m.lock.Unlock(m.token)
	if _, ok := m.axes[name]; !ok {
		return &SchemaError{Op: "DeleteAxis", Axis: name, Detail: "no such axis"}
	}
	if len(m.vectors[name]) > 0 {
		return &SchemaError{Op: "DeleteAxis", Axis: name, Detail: "axis has dependent vectors"}
	}
	for rowsAxis, byCols := range m.matrices {
		for colsAxis, byName := range byCols {
			if (rowsAxis == name || colsAxis == name) && len(byName) > 0 {
				return &SchemaError{Op: "DeleteAxis", Axis: name, Detail: "axis has dependent matrices"}
			}
		}
	}
	delete(m.axes, name)
	delete(m.vectors, name)
	delete(m.matrices, name)
	m.cache.InvalidateAxis(name)
	return nil
}

// --- vectors ---

func (m *MemStore) HasVector(axis, name string) bool {
	m.lock.RLock(m.token)
	defer m.lock.RUnlock(m.token)
	_, ok := m.vectors[axis][name]
	return ok
}

func (m *MemStore) VectorsSet(axis string) []string {
	m.lock.RLock(m.token)
	defer m.lock.RUnlock(m.token)
	out := make([]string, 0, len(m.vectors[axis]))
	for k := range m.vectors[axis] {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *MemStore) GetVector(axis, name string) (VectorExpr, ElemType, error) {
	m.lock.RLock(m.token)
	defer m.lock.RUnlock(m.token)
	v, ok := m.vectors[axis][name]
	if !ok {
		return nil, 0, &SchemaError{Op: "GetVector", Axis: axis, Property: name, Detail: "no such vector"}
	}
	return v.value, v.elemType, nil
}

func (m *MemStore) SetVector(axis, name string, value VectorExpr, elemType ElemType) error {
	if m.readOnly() {
		return fmt.Errorf("axisdata: SetVector: store %q is read-only", m.name)
	}
	m.lock.Lock(m.token)
	defer m.lock.Unlock(m.token)
	a, ok := m.axes[axis]
	if !ok {
		return &SchemaError{Op: "SetVector", Axis: axis, Detail: "no such axis"}
	}
	if value.Len() != a.Len() {
		return &SchemaError{Op: "SetVector", Axis: axis, Property: name, Detail: "vector length does not match axis length"}
	}
	if m.vectors[axis] == nil {
		m.vectors[axis] = make(map[string]storedVector)
	}
	m.vectors[axis][name] = storedVector{value: value, elemType: elemType}
	m.cache.BumpVersion(CanonicalKey(axis, "", name))
	return nil
}

func (m *MemStore) GetEmptyDenseVector(axis, name string, elemType ElemType) (*DenseVector, error) {
	if m.readOnly() {
		return nil, fmt.Errorf("axisdata: GetEmptyDenseVector: store %q is read-only", m.name)
	}
	a, ok := m.axes[axis]
	if !ok {
		return nil, &SchemaError{Op: "GetEmptyDenseVector", Axis: axis, Detail: "no such axis"}
	}
	v := &DenseVector{Data: make([]float64, a.Len()), ElemType: elemType}
	m.lock.Lock(m.token)
	if m.vectors[axis] == nil {
		m.vectors[axis] = make(map[string]storedVector)
	}
	m.vectors[axis][name] = storedVector{value: v, elemType: elemType}
	m.lock.Unlock(m.token)
	return v, nil
}

// GetEmptySparseVector reserves name under axis immediately (as the
// backend's direct-backing-storage contract requires) and returns the
// ind/val buffers by reference; the caller fills them in ascending
// index order. FilledEmptySparseVector bumps the version once the
// caller is done writing.
func (m *MemStore) GetEmptySparseVector(axis, name string, elemType, idx ElemType, nnz int) ([]int, []float64, error) {
	if m.readOnly() {
		return nil, nil, fmt.Errorf("axisdata: GetEmptySparseVector: store %q is read-only", m.name)
	}
	a, ok := m.axes[axis]
	if !ok {
		return nil, nil, &SchemaError{Op: "GetEmptySparseVector", Axis: axis, Detail: "no such axis"}
	}
	ind := make([]int, nnz)
	var val []float64
	if elemType != Bool {
		val = make([]float64, nnz)
	}
	sv := NewSparseVector(a.Len(), elemType, ind, val)
	m.lock.Lock(m.token)
	if m.vectors[axis] == nil {
		m.vectors[axis] = make(map[string]storedVector)
	}
	m.vectors[axis][name] = storedVector{value: sv, elemType: elemType}
	m.lock.Unlock(m.token)
	return ind, val, nil
}

func (m *MemStore) FilledEmptySparseVector(axis, name string, filled bool) error {
	if !filled {
		return nil
	}
	m.cache.BumpVersion(CanonicalKey(axis, "", name))
	return nil
}

func (m *MemStore) DeleteVector(axis, name string, forSet bool) error {
	if m.readOnly() {
		return fmt.Errorf("axisdata: DeleteVector: store %q is read-only", m.name)
	}
	m.lock.Lock(m.token)
	defer m.lock.Unlock(m.token)
	if _, ok := m.vectors[axis][name]; !ok && !forSet {
		return &SchemaError{Op: "DeleteVector", Axis: axis, Property: name, Detail: "no such vector"}
	}
	delete(m.vectors[axis], name)
	return nil
}

// --- matrices ---

func (m *MemStore) HasMatrix(rowsAxis, colsAxis, name string) bool {
	m.lock.RLock(m.token)
	defer m.lock.RUnlock(m.token)
	_, ok := m.matrices[rowsAxis][colsAxis][name]
	return ok
}

func (m *MemStore) MatricesSet(rowsAxis, colsAxis string) []string {
	m.lock.RLock(m.token)
	defer m.lock.RUnlock(m.token)
	out := make([]string, 0, len(m.matrices[rowsAxis][colsAxis]))
	for k := range m.matrices[rowsAxis][colsAxis] {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *MemStore) GetMatrix(rowsAxis, colsAxis, name string) (MatrixExpr, ElemType, error) {
	m.lock.RLock(m.token)
	defer m.lock.RUnlock(m.token)
	v, ok := m.matrices[rowsAxis][colsAxis][name]
	if !ok {
		return nil, 0, &SchemaError{Op: "GetMatrix", Property: name, Detail: fmt.Sprintf("no such matrix (%s, %s)", rowsAxis, colsAxis)}
	}
	return v.value, v.elemType, nil
}

func (m *MemStore) SetMatrix(rowsAxis, colsAxis, name string, value MatrixExpr, elemType ElemType) error {
	if m.readOnly() {
		return fmt.Errorf("axisdata: SetMatrix: store %q is read-only", m.name)
	}
	m.lock.Lock(m.token)
	defer m.lock.Unlock(m.token)
	ra, ok := m.axes[rowsAxis]
	if !ok {
		return &SchemaError{Op: "SetMatrix", Axis: rowsAxis, Detail: "no such axis"}
	}
	ca, ok := m.axes[colsAxis]
	if !ok {
		return &SchemaError{Op: "SetMatrix", Axis: colsAxis, Detail: "no such axis"}
	}
	r, c := value.Dims()
	if r != ra.Len() || c != ca.Len() {
		return &SchemaError{Op: "SetMatrix", Property: name, Detail: "matrix shape does not match axes"}
	}
	if m.matrices[rowsAxis] == nil {
		m.matrices[rowsAxis] = make(map[string]map[string]storedMatrix)
	}
	if m.matrices[rowsAxis][colsAxis] == nil {
		m.matrices[rowsAxis][colsAxis] = make(map[string]storedMatrix)
	}
	m.matrices[rowsAxis][colsAxis][name] = storedMatrix{value: value, elemType: elemType}
	m.cache.BumpVersion(CanonicalKey(rowsAxis, colsAxis, name))
	return nil
}

func (m *MemStore) GetEmptyDenseMatrix(rowsAxis, colsAxis, name string, elemType ElemType) (*DenseMatrix, error) {
	if m.readOnly() {
		return nil, fmt.Errorf("axisdata: GetEmptyDenseMatrix: store %q is read-only", m.name)
	}
	ra, ok := m.axes[rowsAxis]
	if !ok {
		return nil, &SchemaError{Op: "GetEmptyDenseMatrix", Axis: rowsAxis, Detail: "no such axis"}
	}
	ca, ok := m.axes[colsAxis]
	if !ok {
		return nil, &SchemaError{Op: "GetEmptyDenseMatrix", Axis: colsAxis, Detail: "no such axis"}
	}
	d := newDenseMatrix(ra.Len(), ca.Len(), Columns)
	d.ElemType = elemType
	m.registerMatrix(rowsAxis, colsAxis, name, d, elemType)
	return d, nil
}

// GetEmptySparseMatrix reserves name under (rowsAxis, colsAxis)
// immediately and returns the colptr/rowval/nzval buffers by
// reference, Columns-major so the first axis is the contiguous one.
// The caller fills colptr/rowval/nzval in ascending order per
// column.
func (m *MemStore) GetEmptySparseMatrix(rowsAxis, colsAxis, name string, elemType, idx ElemType, nnz int) ([]int, []int, []float64, error) {
	if m.readOnly() {
		return nil, nil, nil, fmt.Errorf("axisdata: GetEmptySparseMatrix: store %q is read-only", m.name)
	}
	ra, ok := m.axes[rowsAxis]
	if !ok {
		return nil, nil, nil, &SchemaError{Op: "GetEmptySparseMatrix", Axis: rowsAxis, Detail: "no such axis"}
	}
	ca, ok := m.axes[colsAxis]
	if !ok {
		return nil, nil, nil, &SchemaError{Op: "GetEmptySparseMatrix", Axis: colsAxis, Detail: "no such axis"}
	}
	ptr := make([]int, ca.Len()+1)
	ind := make([]int, nnz)
	var val []float64
	if elemType != Bool {
		val = make([]float64, nnz)
	}
	sm := NewSparseMatrix(ra.Len(), ca.Len(), Columns, elemType, ptr, ind, val)
	m.registerMatrix(rowsAxis, colsAxis, name, sm, elemType)
	return ptr, ind, val, nil
}

func (m *MemStore) registerMatrix(rowsAxis, colsAxis, name string, value MatrixExpr, elemType ElemType) {
	m.lock.Lock(m.token)
	if m.matrices[rowsAxis] == nil {
		m.matrices[rowsAxis] = make(map[string]map[string]storedMatrix)
	}
	if m.matrices[rowsAxis][colsAxis] == nil {
		m.matrices[rowsAxis][colsAxis] = make(map[string]storedMatrix)
	}
	m.matrices[rowsAxis][colsAxis][name] = storedMatrix{value: value, elemType: elemType}
	m.lock.Unlock(m.token)
}

func (m *MemStore) DeleteMatrix(rowsAxis, colsAxis, name string, forSet bool) error {
	if m.readOnly() {
		return fmt.Errorf("axisdata: DeleteMatrix: store %q is read-only", m.name)
	}
	m.lock.Lock(m.token)
	defer m.lock.Unlock(m.token)
	if _, ok := m.matrices[rowsAxis][colsAxis][name]; !ok && !forSet {
		return &SchemaError{Op: "DeleteMatrix", Property: name, Detail: "no such matrix"}
	}
	delete(m.matrices[rowsAxis][colsAxis], name)
	return nil
}

// RelayoutMatrix materializes the swapped-axes copy of src under
// (rowsAxis, colsAxis, name): src is keyed (colsAxis, rowsAxis), and
// the stored result is its physical transpose with the same
// major-axis label, so the new first axis is the contiguous one.
func (m *MemStore) RelayoutMatrix(rowsAxis, colsAxis, name string, src MatrixExpr) (MatrixExpr, error) {
	relaid := Transposer(src)
	if err := m.SetMatrix(rowsAxis, colsAxis, name, relaid, matrixElemType(relaid)); err != nil {
		return nil, err
	}
	return relaid, nil
}

func (m *MemStore) Version(key string) uint32 {
	return m.cache.Version(key)
}

var (
	_ Reader = (*MemStore)(nil)
	_ Writer = (*MemStore)(nil)
)
