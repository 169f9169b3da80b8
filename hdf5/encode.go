package hdf5

import (
	"encoding/binary"
	"fmt"
	"math"

	axisdata "github.com/scidatakit/axisdata"
	scigohdf5 "github.com/scigolib/hdf5"
)

// datatypeOf maps a storage ElemType onto the scigolib/hdf5 library's
// own Datatype enum, the same constants demonstrated against
// FileWriter.CreateDataset ("ds, _ := fw.CreateDataset(\"/temperature\",
// Float64, []uint64{10})").
func datatypeOf(t axisdata.ElemType) (scigohdf5.Datatype, error) {
	switch t {
	case axisdata.Int8:
		return scigohdf5.Int8, nil
	case axisdata.Int16:
		return scigohdf5.Int16, nil
	case axisdata.Int32:
		return scigohdf5.Int32, nil
	case axisdata.Int64:
		return scigohdf5.Int64, nil
	case axisdata.Uint8:
		return scigohdf5.Uint8, nil
	case axisdata.Uint16:
		return scigohdf5.Uint16, nil
	case axisdata.Uint32:
		return scigohdf5.Uint32, nil
	case axisdata.Uint64:
		return scigohdf5.Uint64, nil
	case axisdata.Float32:
		return scigohdf5.Float32, nil
	case axisdata.Float64:
		return scigohdf5.Float64, nil
	case axisdata.Bool:
		return scigohdf5.Uint8, nil
	case axisdata.String:
		return scigohdf5.String, nil
	default:
		return 0, fmt.Errorf("axisdata/hdf5: unsupported element type %s", t)
	}
}

// decodeFloats decodes a dataset's little-endian bytes of the declared
// element width into the engine's universal float64 in-memory
// representation (per vector.go/matrix.go), the same per-element
// switch encodeAttributeValue's inverse uses for scalar attribute
// values. It is the read path for anything not read through a direct
// mmap alias (e.g. a foreign-width sparse index/value buffer).
func decodeFloats(buf []byte, elemType axisdata.ElemType, n int) []float64 {
	width := axisdata.Sizeof(elemType)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		off := i * width
		switch elemType {
		case axisdata.Float64:
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
		case axisdata.Float32:
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[off:])))
		case axisdata.Int8:
			out[i] = float64(int8(buf[off]))
		case axisdata.Uint8, axisdata.Bool:
			out[i] = float64(buf[off])
		case axisdata.Int16:
			out[i] = float64(int16(binary.LittleEndian.Uint16(buf[off:])))
		case axisdata.Uint16:
			out[i] = float64(binary.LittleEndian.Uint16(buf[off:]))
		case axisdata.Int32:
			out[i] = float64(int32(binary.LittleEndian.Uint32(buf[off:])))
		case axisdata.Uint32:
			out[i] = float64(binary.LittleEndian.Uint32(buf[off:]))
		case axisdata.Int64:
			out[i] = float64(int64(binary.LittleEndian.Uint64(buf[off:])))
		case axisdata.Uint64:
			out[i] = float64(binary.LittleEndian.Uint64(buf[off:]))
		}
	}
	return out
}

// decodeIndices decodes a 1-based index buffer (colptr, rowval or
// nzind) written at any of the widths IndexWidth can pick.
func decodeIndices(data []byte, width axisdata.ElemType, n int) []int {
	w := axisdata.Sizeof(width)
	out := make([]int, n)
	for i := 0; i < n; i++ {
		off := i * w
		switch w {
		case 1:
			out[i] = int(data[off])
		case 2:
			out[i] = int(binary.LittleEndian.Uint16(data[off:]))
		case 4:
			out[i] = int(binary.LittleEndian.Uint32(data[off:]))
		default:
			out[i] = int(binary.LittleEndian.Uint64(data[off:]))
		}
	}
	return out
}

// decodeStrings decodes a string dataset laid out as fixed-width
// null-padded records (width = the longest entry + 1, the same
// null-terminated convention encodeAttributeValue uses for a single
// string attribute).
func decodeStrings(data []byte, width, n int) []string {
	out := make([]string, n)
	for i := 0; i < n; i++ {
		rec := data[i*width : (i+1)*width]
		z := 0
		for z < len(rec) && rec[z] != 0 {
			z++
		}
		out[i] = string(rec[:z])
	}
	return out
}
