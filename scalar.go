package axisdata

import "fmt"

// ScalarValue holds a single storage-scalar value: signed/unsigned
// integer of width 8/16/32/64, float32/64, bool, or string. Only the
// field matching Type is meaningful.
type ScalarValue struct {
	Type ElemType
	I    int64
	U    uint64
	F    float64
	B    bool
	S    string
}

// Int64Scalar builds a signed-integer scalar value.
func Int64Scalar(t ElemType, v int64) ScalarValue { return ScalarValue{Type: t, I: v} }

// Uint64Scalar builds an unsigned-integer scalar value.
func Uint64Scalar(t ElemType, v uint64) ScalarValue { return ScalarValue{Type: t, U: v} }

// FloatScalar builds a floating point scalar value.
func FloatScalar(t ElemType, v float64) ScalarValue { return ScalarValue{Type: t, F: v} }

// BoolScalar builds a boolean scalar value.
func BoolScalar(v bool) ScalarValue { return ScalarValue{Type: Bool, B: v} }

// StringScalar builds a string scalar value.
func StringScalar(v string) ScalarValue { return ScalarValue{Type: String, S: v} }

// Numeric returns the value as a float64 regardless of its concrete
// storage type, used by the dtype-promotion and empty-value-fill
// paths in the concat engine. It panics for String.
func (v ScalarValue) Numeric() float64 {
	switch v.Type {
	case Float32, Float64:
		return v.F
	case Bool:
		if v.B {
			return 1
		}
		return 0
	case Int8, Int16, Int32, Int64:
		return float64(v.I)
	case Uint8, Uint16, Uint32, Uint64:
		return float64(v.U)
	default:
		panic("axisdata: ScalarValue.Numeric: String has no numeric value")
	}
}

func (v ScalarValue) String() string {
	switch v.Type {
	case String:
		return v.S
	case Bool:
		return fmt.Sprintf("%v", v.B)
	case Float32, Float64:
		return fmt.Sprintf("%v", v.F)
	case Int8, Int16, Int32, Int64:
		return fmt.Sprintf("%d", v.I)
	default:
		return fmt.Sprintf("%d", v.U)
	}
}
