package axisdata

import (
	"fmt"
	"sync"
)

// AxisLabel names one of the two roles a matrix axis can play: Rows
// (the first axis in a (rows-axis, columns-axis, name) key) or
// Columns (the second). It is also used as the result of MajorAxis to
// say which axis is contiguous in memory.
type AxisLabel int

const (
	// Rows labels the first axis of a matrix (its row dimension), or
	// reports that a matrix's columns are contiguous in memory
	// (row-major storage).
	Rows AxisLabel = iota
	// Columns labels the second axis of a matrix (its column
	// dimension), or reports that a matrix's rows are contiguous in
	// memory (column-major storage, as used by CSC).
	Columns
	// NoMajorAxis reports that neither axis of a matrix is
	// contiguous in memory.
	NoMajorAxis
)

func (a AxisLabel) String() string {
	switch a {
	case Rows:
		return "Rows"
	case Columns:
		return "Columns"
	case NoMajorAxis:
		return "none"
	default:
		return fmt.Sprintf("AxisLabel(%d)", int(a))
	}
}

// OtherAxis returns the opposite axis label. OtherAxis panics if asked
// for the opposite of NoMajorAxis, since that is not a role a matrix
// axis can play.
func OtherAxis(a AxisLabel) AxisLabel {
	switch a {
	case Rows:
		return Columns
	case Columns:
		return Rows
	default:
		panic("axisdata: OtherAxis has no meaning for NoMajorAxis")
	}
}

// MatrixExpr is the sum type over every in-memory matrix
// representation this package produces: dense, compressed-sparse, and
// the Transpose/ReadOnly decorators placed over either. Every
// layout-sensitive operation (MajorAxis, Transposer, CopyMatrix,
// Sparsify/Densify/Bestify) is a single recursive function over this
// type rather than a method table per concrete type, so that adding a
// new decorator only touches one place per operation.
type MatrixExpr interface {
	// Dims returns (rows, columns).
	Dims() (int, int)
}

// MajorAxis returns the axis that is contiguous in memory for m, or
// NoMajorAxis if m exposes no such guarantee.
func MajorAxis(m MatrixExpr) AxisLabel {
	switch v := m.(type) {
	case *DenseMatrix:
		return v.Major
	case *SparseMatrix:
		return v.Major
	case *Transpose:
		parent := MajorAxis(v.Parent)
		if parent == NoMajorAxis {
			return NoMajorAxis
		}
		return OtherAxis(parent)
	case *ReadOnlyMatrix:
		return MajorAxis(v.Parent)
	default:
		return NoMajorAxis
	}
}

// Transpose is a zero-copy wrapper that swaps the row/column roles of
// its parent. Its MajorAxis is the opposite of its parent's, per the
// MajorAxis contract above; it shares the parent's backing storage.
type Transpose struct {
	Parent MatrixExpr
}

// Dims returns the parent's dimensions swapped.
func (t *Transpose) Dims() (int, int) {
	r, c := t.Parent.Dims()
	return c, r
}

// ReadOnlyMatrix wraps a parent to forbid mutation through it. It is
// used by data sets opened in `read` mode (see Mode).
type ReadOnlyMatrix struct {
	Parent MatrixExpr
}

// Dims delegates to the parent.
func (r *ReadOnlyMatrix) Dims() (int, int) { return r.Parent.Dims() }

// Transposer returns a new matrix, physically rearranged so that its
// axes are swapped relative to src but whose MajorAxis label is the
// SAME as src's (unlike relayout, which flips the label). This is
// used by the backends' RelayoutMatrix to materialize a second copy
// of a logical matrix under the swapped axis key, as described in
// DESIGN.md's "relayout_matrix stores the swapped-axes copy" entry,
// and by Materialize to resolve a Transpose wrapper.
func Transposer(src MatrixExpr) MatrixExpr {
	switch v := src.(type) {
	case *DenseMatrix:
		rows, cols := v.Dims()
		out := newDenseMatrix(cols, rows, v.Major)
		for j := 0; j < cols; j++ {
			for i := 0; i < rows; i++ {
				out.Set(j, i, v.At(i, j))
			}
		}
		return out
	case *SparseMatrix:
		rows, cols := v.Dims()
		triples := v.triples()
		swapped := make([]sparseTriple, len(triples))
		for i, t := range triples {
			swapped[i] = sparseTriple{row: t.col, col: t.row, val: t.val}
		}
		return buildSparseMatrix(cols, rows, v.Major, swapped, v.ElemType)
	case *Transpose:
		return Transposer(v.Parent)
	case *ReadOnlyMatrix:
		return Transposer(v.Parent)
	default:
		panic("axisdata: Transposer: unsupported matrix expression")
	}
}

// Relayout rearranges the elements of src into a newly allocated
// matrix with the opposite MajorAxis. Unlike Transposer, the logical
// shape and element-at-(i,j) mapping are preserved; only the storage
// order changes. For sparse input the result is produced by building
// the compressed-by-the-other-axis form directly (equivalent to
// transposing the compressed representation twice), never a zero-copy
// wrapper. For dense input a cache-unfriendly-but-simple transpose of
// the backing buffer performs the rearrangement.
func Relayout(src MatrixExpr) MatrixExpr {
	switch v := src.(type) {
	case *DenseMatrix:
		rows, cols := v.Dims()
		out := newDenseMatrix(rows, cols, OtherAxis(v.Major))
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				out.Set(i, j, v.At(i, j))
			}
		}
		return out
	case *SparseMatrix:
		rows, cols := v.Dims()
		return buildSparseMatrix(rows, cols, OtherAxis(v.Major), v.triples(), v.ElemType)
	case *Transpose:
		return &Transpose{Parent: Relayout(v.Parent)}
	case *ReadOnlyMatrix:
		return &ReadOnlyMatrix{Parent: Relayout(v.Parent)}
	default:
		panic("axisdata: Relayout: unsupported matrix expression")
	}
}

// Materialize reduces m to a concrete DenseMatrix or SparseMatrix
// with the same logical shape and element mapping: ReadOnly wrappers
// are stripped, Transpose wrappers are resolved by physically
// transposing their parent. Backends use it before persisting a
// matrix, since only the two concrete forms have an on-disk layout.
func Materialize(m MatrixExpr) MatrixExpr {
	switch v := m.(type) {
	case *DenseMatrix:
		return v
	case *SparseMatrix:
		return v
	case *ReadOnlyMatrix:
		return Materialize(v.Parent)
	case *Transpose:
		return Transposer(Materialize(v.Parent))
	default:
		panic("axisdata: Materialize: unsupported matrix expression")
	}
}

// CopyMatrix returns a mutable copy of m that preserves its wrapper
// chain (ReadOnly becomes mutable, Transpose stays a Transpose of a
// copy of its parent, sparse stays sparse) and never silently
// relayouts the result.
func CopyMatrix(m MatrixExpr) MatrixExpr {
	switch v := m.(type) {
	case *DenseMatrix:
		out := newDenseMatrix(v.rows, v.cols, v.Major)
		copy(out.Data, v.Data)
		return out
	case *SparseMatrix:
		return v.clone()
	case *Transpose:
		return &Transpose{Parent: CopyMatrix(v.Parent)}
	case *ReadOnlyMatrix:
		return CopyMatrix(v.Parent)
	default:
		panic("axisdata: CopyMatrix: unsupported matrix expression")
	}
}

// Policy governs how the process reacts when an operation is about to
// run against a matrix on its non-contiguous axis.
type Policy int

const (
	// PolicyIgnore silently allows inefficient access.
	PolicyIgnore Policy = iota
	// PolicyWarn invokes the installed Notice handler (the default).
	PolicyWarn
	// PolicyError aborts the operation by returning an
	// InefficientAccessError.
	PolicyError
)

// Notice describes a single detected inefficient access, reported to
// the process-wide handler installed with SetInefficientActionPolicy.
type Notice struct {
	Operation string
	Operand   string
	Wanted    AxisLabel
	Actual    AxisLabel
	Location  string
}

func (n Notice) String() string {
	return fmt.Sprintf("%s on %q wants %s contiguous but major axis is %s (at %s)",
		n.Operation, n.Operand, n.Wanted, n.Actual, n.Location)
}

// InefficientAccessError is returned by CheckAccess under
// PolicyError.
type InefficientAccessError struct {
	Notice Notice
}

func (e *InefficientAccessError) Error() string {
	return "axisdata: inefficient access: " + e.Notice.String()
}

// globalHandler is the process-wide inefficient-action state,
// guarded by its own lock per the "avoid per-thread proliferation"
// design note.
var globalHandler = struct {
	mu       sync.Mutex
	policy   Policy
	callback func(Notice)
}{policy: PolicyWarn}

// SetInefficientActionPolicy installs the process-wide policy and,
// for PolicyWarn, the callback invoked with each Notice. It is safe
// to call concurrently with CheckAccess from any goroutine.
func SetInefficientActionPolicy(p Policy, onWarn func(Notice)) {
	globalHandler.mu.Lock()
	defer globalHandler.mu.Unlock()
	globalHandler.policy = p
	globalHandler.callback = onWarn
}

// CheckAccess is called by operations before touching a matrix along
// a given axis. If m's major axis differs from wanted, it applies the
// installed policy: ignore, invoke the warn callback, or return an
// InefficientAccessError.
func CheckAccess(operation, operand string, m MatrixExpr, wanted AxisLabel, location string) error {
	actual := MajorAxis(m)
	if actual == wanted || actual == NoMajorAxis {
		return nil
	}

	globalHandler.mu.Lock()
	policy := globalHandler.policy
	cb := globalHandler.callback
	globalHandler.mu.Unlock()

	notice := Notice{Operation: operation, Operand: operand, Wanted: wanted, Actual: actual, Location: location}

	switch policy {
	case PolicyIgnore:
		return nil
	case PolicyError:
		return &InefficientAccessError{Notice: notice}
	default: // PolicyWarn
		if cb != nil {
			cb(notice)
		}
		return nil
	}
}
