package hdf5

import (
	"fmt"

	axisdata "github.com/scidatakit/axisdata"
)

// indexWidthFromBytes recovers the on-disk width of an index buffer
// from its byte length and element count: writeIndexSlice writes at a
// single caller-chosen width and the count is already known from the
// dataset's dataspace, so the division is unambiguous and saves a
// second object-header parse per index buffer.
func indexWidthFromBytes(nBytes, n int) axisdata.ElemType {
	if n == 0 {
		return axisdata.Uint8
	}
	switch nBytes / n {
	case 1:
		return axisdata.Uint8
	case 2:
		return axisdata.Uint16
	case 4:
		return axisdata.Uint32
	default:
		return axisdata.Uint64
	}
}

// GetVector reads back a vector previously written by SetVector,
// GetEmptyDenseVector or FilledEmptySparseVector, in whichever of the
// three on-disk forms (dense, sparse, sparse-string) the registry
// recorded for it.
func (b *Backend) GetVector(axis, name string) (axisdata.VectorExpr, axisdata.ElemType, error) {
	meta, ok := b.vectors[axis][name]
	if !ok {
		return nil, 0, &axisdata.SchemaError{Op: "GetVector", Axis: axis, Property: name, Detail: "no such vector"}
	}

	if meta.sparseString {
		// A sparse string vector has no canonical in-memory sparse form;
		// synthesize the dense array on read, as the on-disk
		// sparse-string group is a storage optimization only.
		indData, _, indDims, err := b.readDatasetRaw(b.p("vectors", axis, name, "sparse-string", "nzind"))
		if err != nil {
			return nil, 0, err
		}
		nnz := int(indDims[0])
		ind := decodeIndices(indData, indexWidthFromBytes(len(indData), nnz), nnz)
		txtData, _, _, err := b.readDatasetRaw(b.p("vectors", axis, name, "sparse-string", "nztxt"))
		if err != nil {
			return nil, 0, err
		}
		txt := decodeStrings(txtData, len(txtData)/maxInt(nnz, 1), nnz)
		entries := make([]string, meta.length)
		for k, pos := range ind {
			entries[pos-1] = txt[k]
		}
		return axisdata.NewStringVector(entries), axisdata.String, nil
	}

	if meta.sparse {
		indData, _, indDims, err := b.readDatasetRaw(b.p("vectors", axis, name, "sparse", "nzind"))
		if err != nil {
			return nil, 0, err
		}
		nnz := int(indDims[0])
		ind := decodeIndices(indData, indexWidthFromBytes(len(indData), nnz), nnz)

		var val []float64
		if meta.elemType != axisdata.Bool {
			valData, _, _, err := b.readDatasetRaw(b.p("vectors", axis, name, "sparse", "nzval"))
			if err != nil {
				return nil, 0, err
			}
			val = decodeFloats(valData, meta.elemType, nnz)
		}
		sv := axisdata.NewSparseVector(meta.length, meta.elemType, ind, val)
		return sv, meta.elemType, nil
	}

	data, _, dims, err := b.readDatasetRaw(b.p("vectors", axis, name, "dense"))
	if err != nil {
		return nil, 0, err
	}
	n := int(dims[0])
	if meta.elemType == axisdata.String {
		entries := decodeStrings(data, len(data)/maxInt(n, 1), n)
		return axisdata.NewStringVector(entries), axisdata.String, nil
	}
	// Dense vectors are always written at float64 physical width (see
	// GetEmptyDenseVector/SetVector) so the mmap-aliased path and the
	// copy-decoded path here agree on layout.
	vals := decodeFloats(data, axisdata.Float64, n)
	return axisdata.NewDenseVector(meta.elemType, vals), meta.elemType, nil
}

// GetMatrix reads back a matrix previously written by SetMatrix,
// GetEmptyDenseMatrix or a flushed GetEmptySparseMatrix buffer,
// always Columns-major: everything this backend writes keeps the
// first axis contiguous.
func (b *Backend) GetMatrix(rowsAxis, colsAxis, name string) (axisdata.MatrixExpr, axisdata.ElemType, error) {
	if err := b.flushPendingMatrices(); err != nil {
		return nil, 0, err
	}
	meta, ok := b.matrices[rowsAxis][colsAxis][name]
	if !ok {
		return nil, 0, &axisdata.SchemaError{Op: "GetMatrix", Property: name, Detail: fmt.Sprintf("no such matrix (%s, %s)", rowsAxis, colsAxis)}
	}

	if meta.sparseString {
		// The in-memory matrix model is storage-real (float64-backed);
		// a sparse-string matrix read from a foreign file has no
		// representation to materialize into.
		return nil, 0, &axisdata.FormatError{Path: b.path, Detail: fmt.Sprintf("matrix %q is sparse-string, which has no in-memory matrix representation", name)}
	}

	if meta.sparse {
		base := b.p("matrices", rowsAxis, colsAxis, name, "sparse")
		ptrData, _, ptrDims, err := b.readDatasetRaw(base + "/colptr")
		if err != nil {
			return nil, 0, err
		}
		nptr := int(ptrDims[0])
		ptr := decodeIndices(ptrData, indexWidthFromBytes(len(ptrData), nptr), nptr)

		rowData, _, rowDims, err := b.readDatasetRaw(base + "/rowval")
		if err != nil {
			return nil, 0, err
		}
		nnz := int(rowDims[0])
		rowval := decodeIndices(rowData, indexWidthFromBytes(len(rowData), nnz), nnz)

		var val []float64
		if meta.elemType != axisdata.Bool {
			valData, _, _, err := b.readDatasetRaw(base + "/nzval")
			if err != nil {
				return nil, 0, err
			}
			val = decodeFloats(valData, meta.elemType, nnz)
		}
		sm := axisdata.NewSparseMatrix(meta.rows, meta.cols, axisdata.Columns, meta.elemType, ptr, rowval, val)
		return sm, meta.elemType, nil
	}

	data, _, _, err := b.readDatasetRaw(b.p("matrices", rowsAxis, colsAxis, name, "dense"))
	if err != nil {
		return nil, 0, err
	}
	vals := decodeFloats(data, axisdata.Float64, meta.rows*meta.cols)
	dm := axisdata.NewDenseMatrix(meta.rows, meta.cols, axisdata.Columns, meta.elemType, vals)
	return dm, meta.elemType, nil
}

var (
	_ axisdata.Reader = (*Backend)(nil)
)
