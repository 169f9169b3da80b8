package axisdata

import "fmt"

// SchemaError reports a violation of the data model's schema
// invariants: duplicate axes or axis entries, deleting an axis with
// dependents, missing axes or properties, length/shape mismatches, or
// element types that cannot be merged. Mismatched axis entries between
// chain members or concat sources are reported as ChainError or
// ConcatError instead.
type SchemaError struct {
	Op       string
	Property string
	Axis     string
	Detail   string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("axisdata: schema violation in %s: property=%q axis=%q: %s", e.Op, e.Property, e.Axis, e.Detail)
}

// FormatError reports that a backend's on-disk representation could
// not be interpreted: wrong magic/version, missing expected group, or
// a dense dataset that is not laid out contiguously.
type FormatError struct {
	Path   string
	Detail string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("axisdata: format incompatibility at %q: %s", e.Path, e.Detail)
}

// MissingDataError reports that a concat source lacked a property and
// no empty-value fill was supplied for it.
type MissingDataError struct {
	Source   string
	Property string
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("axisdata: source %q is missing property %q and no empty value was supplied", e.Source, e.Property)
}

// ShapeError reports an illegal shape request: a matrix with both
// axes in the concatenation set, CollectAxis applied to a matrix, or
// CollectAxis without a dataset axis.
type ShapeError struct {
	Detail string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("axisdata: illegal shape: %s", e.Detail)
}

// LockError reports that a backend primitive was invoked without the
// lock its contract requires.
type LockError struct {
	Primitive string
	Required  string
}

func (e *LockError) Error() string {
	return fmt.Sprintf("axisdata: %s requires the %s lock to be held", e.Primitive, e.Required)
}

// ChainErrorKind tags which of the several shapes a ChainError takes,
// so Error() can pick the right message template explicitly instead
// of inferring it from which fields happen to be set.
type ChainErrorKind int

const (
	// ChainConstructionFailed: NewChain/NewWriteChain rejected the
	// member list (e.g. mismatched axis entries between members).
	ChainConstructionFailed ChainErrorKind = iota
	// ChainNoTailWriter: a write primitive was called on a read-only
	// chain (tail == nil).
	ChainNoTailWriter
	// ChainDeleteRefused: a delete was refused because the property or
	// axis also exists in an earlier member.
	ChainDeleteRefused
)

// ChainError reports that a chain could not be constructed, that a
// write was attempted on a read-only chain, or that a delete was
// refused because it would shadow an earlier member.
type ChainError struct {
	Kind     ChainErrorKind
	Detail   string
	Member   string
	Axis     string
	Property string
}

func (e *ChainError) Error() string {
	switch e.Kind {
	case ChainNoTailWriter:
		return fmt.Sprintf("axisdata: chain %q has no tail writer: %s", e.Member, e.Detail)
	case ChainDeleteRefused:
		if e.Axis != "" {
			return fmt.Sprintf("axisdata: chain delete refused: axis %q exists in earlier member %q: %s", e.Axis, e.Member, e.Detail)
		}
		return fmt.Sprintf("axisdata: chain delete refused: %q exists in earlier member %q: %s", e.Property, e.Member, e.Detail)
	default:
		return fmt.Sprintf("axisdata: chain construction failed at member %q: %s", e.Member, e.Detail)
	}
}

// ConcatError reports a precondition failure of the concatenation
// engine, naming the offending source, destination, axis and/or
// property.
type ConcatError struct {
	Source      string
	Destination string
	Axis        string
	Property    string
	Detail      string
}

func (e *ConcatError) Error() string {
	return fmt.Sprintf("axisdata: concat failed: source=%q destination=%q axis=%q property=%q: %s",
		e.Source, e.Destination, e.Axis, e.Property, e.Detail)
}
