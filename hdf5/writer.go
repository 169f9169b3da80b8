package hdf5

import (
	"fmt"

	axisdata "github.com/scidatakit/axisdata"
	scigohdf5 "github.com/scigolib/hdf5"
)

// ensureWritable returns an error if this backend was not opened with
// a mode that admits mutation; a ModeRead store refuses every
// mutation primitive.
func (b *Backend) ensureWritable() error {
	if b.fw == nil {
		return fmt.Errorf("axisdata/hdf5: %q is opened read-only", b.Name())
	}
	return nil
}

// writeTypedSlice converts vals (the engine's universal float64
// in-memory representation) to the Go slice type matching elemType
// and hands it to ds.Write, the inverse of decodeFloats's per-width
// dispatch on the read path.
func writeTypedSlice(ds *scigohdf5.DatasetWriter, elemType axisdata.ElemType, vals []float64) error {
	switch elemType {
	case axisdata.Float64:
		return ds.Write(vals)
	case axisdata.Float32:
		out := make([]float32, len(vals))
		for i, v := range vals {
			out[i] = float32(v)
		}
		return ds.Write(out)
	case axisdata.Int8:
		out := make([]int8, len(vals))
		for i, v := range vals {
			out[i] = int8(v)
		}
		return ds.Write(out)
	case axisdata.Int16:
		out := make([]int16, len(vals))
		for i, v := range vals {
			out[i] = int16(v)
		}
		return ds.Write(out)
	case axisdata.Int32:
		out := make([]int32, len(vals))
		for i, v := range vals {
			out[i] = int32(v)
		}
		return ds.Write(out)
	case axisdata.Int64:
		out := make([]int64, len(vals))
		for i, v := range vals {
			out[i] = int64(v)
		}
		return ds.Write(out)
	case axisdata.Uint8, axisdata.Bool:
		out := make([]uint8, len(vals))
		for i, v := range vals {
			out[i] = uint8(v)
		}
		return ds.Write(out)
	case axisdata.Uint16:
		out := make([]uint16, len(vals))
		for i, v := range vals {
			out[i] = uint16(v)
		}
		return ds.Write(out)
	case axisdata.Uint32:
		out := make([]uint32, len(vals))
		for i, v := range vals {
			out[i] = uint32(v)
		}
		return ds.Write(out)
	default: // Uint64
		out := make([]uint64, len(vals))
		for i, v := range vals {
			out[i] = uint64(v)
		}
		return ds.Write(out)
	}
}

// writeIndexSlice writes a 1-based index buffer (colptr/rowval/nzind)
// at the caller-chosen width, which decodeIndices recovers on read.
func writeIndexSlice(ds *scigohdf5.DatasetWriter, width axisdata.ElemType, idx []int) error {
	vals := make([]float64, len(idx))
	for i, v := range idx {
		vals[i] = float64(v)
	}
	return writeTypedSlice(ds, width, vals)
}

// createDataset creates a 1-D dataset of n elements of elemType at
// path and writes vals into it, flushing so the bytes are durable
// before any mmap is taken over them.
func (b *Backend) createDataset(path string, elemType axisdata.ElemType, vals []float64) error {
	dt, err := datatypeOf(elemType)
	if err != nil {
		return err
	}
	ds, err := b.fw.CreateDataset(path, dt, []uint64{uint64(len(vals))})
	if err != nil {
		return fmt.Errorf("axisdata/hdf5: create dataset %q: %w", path, err)
	}
	if err := writeTypedSlice(ds, elemType, vals); err != nil {
		return fmt.Errorf("axisdata/hdf5: write dataset %q: %w", path, err)
	}
	return b.fw.Flush()
}

func (b *Backend) createIndexDataset(path string, width axisdata.ElemType, idx []int) error {
	dt, err := datatypeOf(width)
	if err != nil {
		return err
	}
	ds, err := b.fw.CreateDataset(path, dt, []uint64{uint64(len(idx))})
	if err != nil {
		return fmt.Errorf("axisdata/hdf5: create dataset %q: %w", path, err)
	}
	if err := writeIndexSlice(ds, width, idx); err != nil {
		return fmt.Errorf("axisdata/hdf5: write dataset %q: %w", path, err)
	}
	return b.fw.Flush()
}

func (b *Backend) createStringDataset(path string, vals []string) error {
	dt, err := datatypeOf(axisdata.String)
	if err != nil {
		return err
	}
	ds, err := b.fw.CreateDataset(path, dt, []uint64{uint64(len(vals))})
	if err != nil {
		return fmt.Errorf("axisdata/hdf5: create dataset %q: %w", path, err)
	}
	if err := ds.Write(vals); err != nil {
		return fmt.Errorf("axisdata/hdf5: write dataset %q: %w", path, err)
	}
	return b.fw.Flush()
}

// refreshFile reopens the read-side *scigohdf5.File so that Walk and
// object-header lookups see datasets created since the last refresh;
// scigohdf5.FileWriter and scigohdf5.File are separate handles onto
// the same bytes, per the open/write split the rest of backend.go
// already assumes.
func (b *Backend) refreshFile() error {
	if b.file != nil {
		b.file.Close()
	}
	f, err := scigohdf5.Open(b.path)
	if err != nil {
		return fmt.Errorf("axisdata/hdf5: reopen %q: %w", b.path, err)
	}
	b.file = f
	return nil
}

func (b *Backend) findDataset(path string) (*scigohdf5.Dataset, bool) {
	var found *scigohdf5.Dataset
	b.file.Walk(func(p string, obj scigohdf5.Object) {
		if found != nil {
			return
		}
		if ds, ok := obj.(*scigohdf5.Dataset); ok && p == path {
			found = ds
		}
	})
	return found, found != nil
}

// datasetAddress parses ds's object header to find its data address,
// the same ObjectHeader + Parse{Datatype,Dataspace,DataLayout}Message
// walk readDatasetMetaBytes uses, stopping short of the ReadAt copy
// since the caller wants to alias the bytes in place, not copy them.
func (b *Backend) datasetAddress(ds *scigohdf5.Dataset) (addr uint64, contiguous bool, err error) {
	sb := b.file.Superblock()
	offsetSize := int(sb.OffsetSize)
	lengthSize := int(sb.LengthSize)
	order := sb.Endianness

	messages, err := readObjectHeaderMessages(b.file.Reader(), ds.Address(), offsetSize, lengthSize, order)
	if err != nil {
		return 0, false, err
	}
	var layoutMsg *objectHeaderMessage
	for i, msg := range messages {
		if msg.msgType == msgDataLayout {
			layoutMsg = &messages[i]
		}
	}
	if layoutMsg == nil {
		return 0, false, fmt.Errorf("dataset missing data layout message")
	}
	layout, err := parseDataLayoutMessage(layoutMsg.data, offsetSize, lengthSize, order)
	if err != nil {
		return 0, false, err
	}
	return layout.dataAddress, layout.isContiguous(), nil
}

// mappedFloats locates the just-flushed dataset at path, remaps the
// writable file-backed view to cover any growth, and returns a
// []float64 that aliases directly into the mapping: writes through it
// land on disk without a further Write call, which is what makes the
// empty-dense buffers direct references into backing storage.
func (b *Backend) mappedFloats(path string, n int) ([]float64, error) {
	if err := b.wmap.remap(); err != nil {
		return nil, err
	}
	if err := b.refreshFile(); err != nil {
		return nil, err
	}
	ds, ok := b.findDataset(path)
	if !ok {
		return nil, fmt.Errorf("axisdata/hdf5: just-created dataset %q not found", path)
	}
	addr, contiguous, err := b.datasetAddress(ds)
	if err != nil {
		return nil, err
	}
	if !contiguous {
		return nil, &axisdata.FormatError{Path: b.path, Detail: "freshly created dataset is not contiguous"}
	}
	if addr%8 != 0 {
		return nil, &axisdata.FormatError{Path: b.path, Detail: "dataset is not 8-byte aligned; the file must be created with alignment (1, 8) for memory-mapping"}
	}
	return b.wmap.floatsAt(int64(addr), n), nil
}

// --- axisdata.Writer ---

func (b *Backend) SetScalar(name string, value axisdata.ScalarValue) error {
	if err := b.ensureWritable(); err != nil {
		return err
	}
	path := b.p("scalars", name)
	if value.Type == axisdata.String {
		if err := b.createStringDataset(path, []string{value.S}); err != nil {
			return err
		}
	} else {
		if err := b.createDataset(path, value.Type, []float64{value.Numeric()}); err != nil {
			return err
		}
	}
	b.scalarSet[name] = value.Type
	b.cache.BumpVersion(axisdata.CanonicalKey("", "", name))
	return nil
}

func (b *Backend) DeleteScalar(name string, forSet bool) error {
	if err := b.ensureWritable(); err != nil {
		return err
	}
	if _, ok := b.scalarSet[name]; !ok && !forSet {
		return &axisdata.SchemaError{Op: "DeleteScalar", Property: name, Detail: "no such scalar"}
	}
	// The underlying library exposes no dataset-unlink primitive; the
	// scalar is forgotten from the registry (so HasScalar/ScalarsSet
	// and every higher-level read stop seeing it) even though its
	// bytes remain allocated in the file until the next full rewrite.
	delete(b.scalarSet, name)
	return nil
}

func (b *Backend) AddAxis(name string, entries []string) error {
	if err := b.ensureWritable(); err != nil {
		return err
	}
	if _, dup := b.axes[name]; dup {
		return &axisdata.SchemaError{Op: "AddAxis", Axis: name, Detail: "axis already exists"}
	}
	axis, err := axisdata.NewAxis(name, entries)
	if err != nil {
		return err
	}
	if err := b.createStringDataset(b.p("axes", name), entries); err != nil {
		return err
	}
	b.axes[name] = axis
	return nil
}

func (b *Backend) DeleteAxis(name string) error {
	if err := b.ensureWritable(); err != nil {
		return err
	}
	if _, ok := b.axes[name]; !ok {
		return &axisdata.SchemaError{Op: "DeleteAxis", Axis: name, Detail: "no such axis"}
	}
	if len(b.vectors[name]) > 0 {
		return &axisdata.SchemaError{Op: "DeleteAxis", Axis: name, Detail: "axis has dependent vectors"}
	}
	for rowsAxis, byCols := range b.matrices {
		for colsAxis, byName := range byCols {
			if (rowsAxis == name || colsAxis == name) && len(byName) > 0 {
				return &axisdata.SchemaError{Op: "DeleteAxis", Axis: name, Detail: "axis has dependent matrices"}
			}
		}
	}
	delete(b.axes, name)
	delete(b.vectors, name)
	delete(b.matrices, name)
	b.cache.InvalidateAxis(name)
	return nil
}

func (b *Backend) SetVector(axis, name string, value axisdata.VectorExpr, elemType axisdata.ElemType) error {
	if err := b.ensureWritable(); err != nil {
		return err
	}
	a, ok := b.axes[axis]
	if !ok {
		return &axisdata.SchemaError{Op: "SetVector", Axis: axis, Detail: "no such axis"}
	}
	if value.Len() != a.Len() {
		return &axisdata.SchemaError{Op: "SetVector", Axis: axis, Property: name, Detail: "vector length does not match axis length"}
	}

	switch v := value.(type) {
	case *axisdata.DenseVector:
		// Dense datasets are always stored at float64 physical width:
		// DenseVector is float64-backed in memory regardless of its
		// declared ElemType, and GetEmptyDenseVector must alias the
		// mapping as []float64, so both writers agree on width here.
		if err := b.createDataset(b.p("vectors", axis, name, "dense"), axisdata.Float64, v.Data); err != nil {
			return err
		}
		b.registerVectorLeaf(axis, name, "dense", elemType)
	case *axisdata.SparseVector:
		if err := b.writeSparseVectorGroup(axis, name, v, elemType, axisdata.IndexWidth(v.Len())); err != nil {
			return err
		}
	default:
		entries, ok := stringVectorEntries(value)
		if !ok {
			return &axisdata.SchemaError{Op: "SetVector", Axis: axis, Property: name, Detail: "unsupported vector representation"}
		}
		if err := b.createStringDataset(b.p("vectors", axis, name, "dense"), entries); err != nil {
			return err
		}
		b.registerVectorLeaf(axis, name, "dense", axisdata.String)
	}

	b.cache.BumpVersion(axisdata.CanonicalKey(axis, "", name))
	return nil
}

func (b *Backend) writeSparseVectorGroup(axis, name string, v *axisdata.SparseVector, elemType, idxWidth axisdata.ElemType) error {
	base := b.p("vectors", axis, name, "sparse")
	if err := b.createIndexDataset(base+"/nzind", idxWidth, v.Ind); err != nil {
		return err
	}
	if v.Val != nil {
		if err := b.createDataset(base+"/nzval", elemType, v.Val); err != nil {
			return err
		}
	}
	b.registerVectorLeaf(axis, name, "sparse", elemType)
	return nil
}

// GetEmptyDenseVector allocates a contiguous dense vector dataset and
// returns a view directly aliasing the file's writable mapping. The
// caller fills it in place and need not call anything
// else; the version is bumped here before returning.
func (b *Backend) GetEmptyDenseVector(axis, name string, elemType axisdata.ElemType) (*axisdata.DenseVector, error) {
	if err := b.ensureWritable(); err != nil {
		return nil, err
	}
	a, ok := b.axes[axis]
	if !ok {
		return nil, &axisdata.SchemaError{Op: "GetEmptyDenseVector", Axis: axis, Detail: "no such axis"}
	}
	n := a.Len()
	path := b.p("vectors", axis, name, "dense")
	if err := b.createDataset(path, axisdata.Float64, make([]float64, n)); err != nil {
		return nil, err
	}
	data, err := b.mappedFloats(path, n)
	if err != nil {
		return nil, err
	}
	b.registerVectorLeaf(axis, name, "dense", elemType)
	b.cache.BumpVersion(axisdata.CanonicalKey(axis, "", name))
	return axisdata.NewDenseVector(elemType, data), nil
}

func (b *Backend) GetEmptySparseVector(axis, name string, elemType, idx axisdata.ElemType, nnz int) ([]int, []float64, error) {
	if err := b.ensureWritable(); err != nil {
		return nil, nil, err
	}
	if _, ok := b.axes[axis]; !ok {
		return nil, nil, &axisdata.SchemaError{Op: "GetEmptySparseVector", Axis: axis, Detail: "no such axis"}
	}
	ind := make([]int, nnz)
	var val []float64
	if elemType != axisdata.Bool {
		val = make([]float64, nnz)
	}
	b.pendingSparseVectors = append(b.pendingSparseVectors, pendingSparseVector{
		axis: axis, name: name, elemType: elemType, idxWidth: idx, ind: ind, val: val,
	})
	return ind, val, nil
}

func (b *Backend) FilledEmptySparseVector(axis, name string, filled bool) error {
	if err := b.ensureWritable(); err != nil {
		return err
	}
	if !filled {
		b.pendingSparseVectors = dropPendingVector(b.pendingSparseVectors, axis, name)
		return nil
	}
	p, ok := takePendingVector(&b.pendingSparseVectors, axis, name)
	if !ok {
		return fmt.Errorf("axisdata/hdf5: FilledEmptySparseVector: no pending vector (%s,%s)", axis, name)
	}
	sv := axisdata.NewSparseVector(b.axes[axis].Len(), p.elemType, p.ind, p.val)
	if err := b.writeSparseVectorGroup(axis, name, sv, p.elemType, p.idxWidth); err != nil {
		return err
	}
	b.cache.BumpVersion(axisdata.CanonicalKey(axis, "", name))
	return nil
}

func (b *Backend) DeleteVector(axis, name string, forSet bool) error {
	if err := b.ensureWritable(); err != nil {
		return err
	}
	if _, ok := b.vectors[axis][name]; !ok && !forSet {
		return &axisdata.SchemaError{Op: "DeleteVector", Axis: axis, Property: name, Detail: "no such vector"}
	}
	delete(b.vectors[axis], name)
	return nil
}

func (b *Backend) SetMatrix(rowsAxis, colsAxis, name string, value axisdata.MatrixExpr, elemType axisdata.ElemType) error {
	if err := b.ensureWritable(); err != nil {
		return err
	}
	ra, ok := b.axes[rowsAxis]
	if !ok {
		return &axisdata.SchemaError{Op: "SetMatrix", Axis: rowsAxis, Detail: "no such axis"}
	}
	ca, ok := b.axes[colsAxis]
	if !ok {
		return &axisdata.SchemaError{Op: "SetMatrix", Axis: colsAxis, Detail: "no such axis"}
	}
	r, c := value.Dims()
	if r != ra.Len() || c != ca.Len() {
		return &axisdata.SchemaError{Op: "SetMatrix", Property: name, Detail: "matrix shape does not match axes"}
	}
	if err := axisdata.CheckAccess("SetMatrix", name, value, axisdata.Columns, b.Name()); err != nil {
		return err
	}
	colMajor := axisdata.Materialize(value)
	if axisdata.MajorAxis(colMajor) != axisdata.Columns {
		colMajor = axisdata.Relayout(colMajor)
	}
	switch v := colMajor.(type) {
	case *axisdata.DenseMatrix:
		if err := b.createDataset(b.p("matrices", rowsAxis, colsAxis, name, "dense"), axisdata.Float64, v.Data); err != nil {
			return err
		}
		b.registerMatrixLeaf(rowsAxis, colsAxis, name, "dense", elemType)
	case *axisdata.SparseMatrix:
		rows, _ := v.Dims()
		idxWidth := axisdata.IndexWidth(maxInt(rows, v.NNZ()))
		if err := b.writeSparseMatrixGroup(rowsAxis, colsAxis, name, v, elemType, idxWidth); err != nil {
			return err
		}
	default:
		return &axisdata.SchemaError{Op: "SetMatrix", Property: name, Detail: "unsupported matrix representation"}
	}
	b.cache.BumpVersion(axisdata.CanonicalKey(rowsAxis, colsAxis, name))
	return nil
}

func (b *Backend) writeSparseMatrixGroup(rowsAxis, colsAxis, name string, m *axisdata.SparseMatrix, elemType, idxWidth axisdata.ElemType) error {
	base := b.p("matrices", rowsAxis, colsAxis, name, "sparse")
	if err := b.createIndexDataset(base+"/colptr", idxWidth, m.Ptr); err != nil {
		return err
	}
	if err := b.createIndexDataset(base+"/rowval", idxWidth, m.Ind); err != nil {
		return err
	}
	if m.Val != nil {
		if err := b.createDataset(base+"/nzval", elemType, m.Val); err != nil {
			return err
		}
	}
	b.registerMatrixLeaf(rowsAxis, colsAxis, name, "sparse", elemType)
	return nil
}

func (b *Backend) GetEmptyDenseMatrix(rowsAxis, colsAxis, name string, elemType axisdata.ElemType) (*axisdata.DenseMatrix, error) {
	if err := b.ensureWritable(); err != nil {
		return nil, err
	}
	ra, ok := b.axes[rowsAxis]
	if !ok {
		return nil, &axisdata.SchemaError{Op: "GetEmptyDenseMatrix", Axis: rowsAxis, Detail: "no such axis"}
	}
	ca, ok := b.axes[colsAxis]
	if !ok {
		return nil, &axisdata.SchemaError{Op: "GetEmptyDenseMatrix", Axis: colsAxis, Detail: "no such axis"}
	}
	n := ra.Len() * ca.Len()
	path := b.p("matrices", rowsAxis, colsAxis, name, "dense")
	if err := b.createDataset(path, axisdata.Float64, make([]float64, n)); err != nil {
		return nil, err
	}
	data, err := b.mappedFloats(path, n)
	if err != nil {
		return nil, err
	}
	b.registerMatrixLeaf(rowsAxis, colsAxis, name, "dense", elemType)
	b.cache.BumpVersion(axisdata.CanonicalKey(rowsAxis, colsAxis, name))
	return axisdata.NewDenseMatrix(ra.Len(), ca.Len(), axisdata.Columns, elemType, data), nil
}

func (b *Backend) GetEmptySparseMatrix(rowsAxis, colsAxis, name string, elemType, idx axisdata.ElemType, nnz int) ([]int, []int, []float64, error) {
	if err := b.ensureWritable(); err != nil {
		return nil, nil, nil, err
	}
	ca, ok := b.axes[colsAxis]
	if !ok {
		return nil, nil, nil, &axisdata.SchemaError{Op: "GetEmptySparseMatrix", Axis: colsAxis, Detail: "no such axis"}
	}
	ptr := make([]int, ca.Len()+1)
	ind := make([]int, nnz)
	var val []float64
	if elemType != axisdata.Bool {
		val = make([]float64, nnz)
	}
	b.pendingSparseMatrices = append(b.pendingSparseMatrices, pendingSparseMatrix{
		rowsAxis: rowsAxis, colsAxis: colsAxis, name: name, elemType: elemType, idxWidth: idx,
		ptr: ptr, ind: ind, val: val,
	})
	return ptr, ind, val, nil
}

func (b *Backend) DeleteMatrix(rowsAxis, colsAxis, name string, forSet bool) error {
	if err := b.ensureWritable(); err != nil {
		return err
	}
	if _, ok := b.matrices[rowsAxis][colsAxis][name]; !ok && !forSet {
		return &axisdata.SchemaError{Op: "DeleteMatrix", Property: name, Detail: "no such matrix"}
	}
	delete(b.matrices[rowsAxis][colsAxis], name)
	return nil
}

// RelayoutMatrix materializes the swapped-axes copy of src under
// (rowsAxis, colsAxis, name): the stored result is src's physical
// transpose with the same major-axis label, preferring sparse storage
// when src was sparse.
func (b *Backend) RelayoutMatrix(rowsAxis, colsAxis, name string, src axisdata.MatrixExpr) (axisdata.MatrixExpr, error) {
	if err := b.ensureWritable(); err != nil {
		return nil, err
	}
	relaid := axisdata.Transposer(src)
	var et axisdata.ElemType
	switch v := src.(type) {
	case *axisdata.DenseMatrix:
		et = v.ElemType
	case *axisdata.SparseMatrix:
		et = v.ElemType
	default:
		et = axisdata.Float64
	}
	if err := b.SetMatrix(rowsAxis, colsAxis, name, relaid, et); err != nil {
		return nil, err
	}
	return relaid, nil
}

// pendingSparseVector/pendingSparseMatrix hold the buffers handed out
// by GetEmptySparse{Vector,Matrix} between that call and the moment
// their contents are known to be complete, since a pure Go HDF5
// dataset cannot be grown once created: the sparse write is deferred
// until then. Vectors have an explicit signal (FilledEmptySparseVector);
// matrices don't, so flushPendingMatrices (backend.go) flushes them
// lazily on the next matrix registry read and unconditionally on Close.
type pendingSparseVector struct {
	axis, name string
	elemType   axisdata.ElemType
	idxWidth   axisdata.ElemType
	ind        []int
	val        []float64
}

type pendingSparseMatrix struct {
	rowsAxis, colsAxis, name string
	elemType                 axisdata.ElemType
	idxWidth                 axisdata.ElemType
	ptr, ind                 []int
	val                      []float64
}

func dropPendingVector(pending []pendingSparseVector, axis, name string) []pendingSparseVector {
	out := pending[:0]
	for _, p := range pending {
		if p.axis == axis && p.name == name {
			continue
		}
		out = append(out, p)
	}
	return out
}

func takePendingVector(pending *[]pendingSparseVector, axis, name string) (pendingSparseVector, bool) {
	for i, p := range *pending {
		if p.axis == axis && p.name == name {
			*pending = append((*pending)[:i], (*pending)[i+1:]...)
			return p, true
		}
	}
	return pendingSparseVector{}, false
}

func stringVectorEntries(v axisdata.VectorExpr) ([]string, bool) {
	type stringer interface {
		Len() int
		At(int) string
	}
	sv, ok := v.(stringer)
	if !ok {
		return nil, false
	}
	out := make([]string, sv.Len())
	for i := range out {
		out[i] = sv.At(i)
	}
	return out, true
}

var (
	_ axisdata.Writer = (*Backend)(nil)
)
