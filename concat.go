package axisdata

import (
	"fmt"
	"strings"
)

// MergeAction names what to do with a non-concatenation-axis property
// during a concat.
type MergeAction int

const (
	// Skip drops the property (the default action).
	Skip MergeAction = iota
	// LastValue copies the property, as-is, from the last source that
	// has it.
	LastValue
	// CollectAxis stacks the property's per-source values along the
	// concat's dataset axis. Illegal for matrix properties.
	CollectAxis
)

// MergeRule matches a scalar (Axis == "" && ColsAxis == ""), a vector
// (Axis != "" && ColsAxis == ""), or a matrix (ColsAxis != "")
// property key and names the action to take for it. Any of
// Axis/ColsAxis/Property set to "*" matches any value of that
// component; the last matching rule in the list wins.
type MergeRule struct {
	Axis     string
	ColsAxis string
	Property string
	Action   MergeAction
}

func matchesComponent(rule, actual string) bool { return rule == "*" || rule == actual }

func resolveMergeAction(rules []MergeRule, axis, colsAxis, property string) MergeAction {
	action := Skip
	for _, r := range rules {
		isMatrixRule := r.ColsAxis != ""
		isMatrixKey := colsAxis != ""
		if isMatrixRule != isMatrixKey {
			continue
		}
		if !matchesComponent(r.Axis, axis) {
			continue
		}
		if isMatrixRule && !matchesComponent(r.ColsAxis, colsAxis) {
			continue
		}
		if !matchesComponent(r.Property, property) {
			continue
		}
		action = r.Action
	}
	return action
}

// ConcatOptions configures a Concat call.
type ConcatOptions struct {
	// Axes is the list of concatenation axes, typically one.
	Axes []string
	// Sources is the ordered list of source readers.
	Sources []Reader
	// Names gives a unique name per source; if nil, each source's
	// Name() is used.
	Names []string

	// DatasetAxis names the axis recording each concatenated entry's
	// originating source. Set to "" to disable it.
	DatasetAxis string
	// DatasetProperty, when true and DatasetAxis != "", also sets a
	// vector (a, DatasetAxis) naming each entry's source.
	DatasetProperty bool

	// Prefix is the default prefixing decision for every concat axis.
	Prefix bool
	// PrefixAxes overrides Prefix per concatenation axis.
	PrefixAxes map[string]bool
	// PrefixProperties, if set for a concat axis, is the explicit set
	// of property names to prefix on that axis (overriding the
	// name-equals/name-starts-with-axis-name-dot default rule).
	PrefixProperties map[string]map[string]bool

	// Empty supplies fill values for properties missing from some
	// source, keyed by CanonicalKey(axis, colsAxis, name) (colsAxis=""
	// for vectors, both ""  for scalars named by name alone — use
	// CanonicalKey("", "", name) for scalars).
	Empty map[string]ScalarValue

	// SparseIfSavesFraction is the sparse/dense decision threshold
	// (default 0.25 when zero).
	SparseIfSavesFraction float64

	// Merge resolves the action for every non-concat-axis scalar,
	// vector and matrix property.
	Merge []MergeRule

	// Overwrite, when false (the default), makes it an error to
	// produce a property that already exists in the destination.
	Overwrite bool
}

func (o *ConcatOptions) threshold() float64 {
	if o.SparseIfSavesFraction == 0 {
		return 0.25
	}
	return o.SparseIfSavesFraction
}

func (o *ConcatOptions) sourceName(i int) string {
	if i < len(o.Names) && o.Names[i] != "" {
		return o.Names[i]
	}
	return o.Sources[i].Name()
}

func (o *ConcatOptions) prefixAxis(axis string) bool {
	if v, ok := o.PrefixAxes[axis]; ok {
		return v
	}
	return o.Prefix
}

// ownerToken resolves the LockToken to lock a store with: the store's
// own single-owner token when it exposes one (so that the store's
// internal primitives re-enter the lock as its owner rather than
// deadlocking against a foreign holder), else the caller's.
func ownerToken(v interface{}, fallback *LockToken) *LockToken {
	if tp, ok := v.(interface{ Token() *LockToken }); ok {
		return tp.Token()
	}
	return fallback
}

// Concat merges Sources into d along Axes, optionally producing a
// dataset axis, and applies the merge rules to every other property.
// Entry takes a write lock on d and, in source order, read locks on
// every source; all are released in reverse on return, so sources
// cannot mutate mid-concat while concurrent readers stay unblocked.
func Concat(d Writer, token *LockToken, opts ConcatOptions) error {
	if opts.SparseIfSavesFraction == 0 {
		opts.SparseIfSavesFraction = 0.25
	}
	if err := concatPreconditions(d, opts); err != nil {
		return err
	}

	dTok := ownerToken(d, token)
	d.Lock().Lock(dTok)
	defer d.Lock().Unlock(dTok)
	for _, s := range opts.Sources {
		if l, ok := s.(interface{ Lock() *DataLock }); ok {
			sTok := ownerToken(s, token)
			l.Lock().RLock(sTok)
			defer l.Lock().RUnlock(sTok)
		}
	}

	names := make([]string, len(opts.Sources))
	for i := range opts.Sources {
		names[i] = opts.sourceName(i)
	}

	if opts.DatasetAxis != "" {
		if err := d.AddAxis(opts.DatasetAxis, names); err != nil {
			return err
		}
	}

	// Each concatenation axis has its own per-source sizes/offsets,
	// computed independently.
	for _, axis := range opts.Axes {
		sizes := make([]int, len(opts.Sources))
		offsets := make([]int, len(opts.Sources))
		total := 0
		for i, s := range opts.Sources {
			offsets[i] = total
			sizes[i] = s.AxisLength(axis)
			total += sizes[i]
		}

		if err := concatOneAxis(d, opts, axis, names, sizes, offsets, total); err != nil {
			return err
		}

		if opts.DatasetAxis != "" && opts.DatasetProperty {
			entries := make([]string, total)
			for i := range opts.Sources {
				for k := 0; k < sizes[i]; k++ {
					entries[offsets[i]+k] = names[i]
				}
			}
			if err := setStringVector(d, axis, opts.DatasetAxis, entries); err != nil {
				return err
			}
		}
	}

	if err := applyMerge(d, opts, names); err != nil {
		return err
	}
	return nil
}

func concatPreconditions(d Writer, opts ConcatOptions) error {
	if len(opts.Axes) == 0 {
		return &ConcatError{Detail: "at least one concatenation axis is required"}
	}
	axisSet := make(map[string]bool, len(opts.Axes))
	for _, a := range opts.Axes {
		axisSet[a] = true
		if d.HasAxis(a) {
			return &ConcatError{Destination: d.Name(), Axis: a, Detail: "concatenation axis already exists in destination"}
		}
		for _, s := range opts.Sources {
			if !s.HasAxis(a) {
				return &ConcatError{Source: s.Name(), Axis: a, Detail: "concatenation axis missing from source"}
			}
		}
	}
	if opts.DatasetAxis != "" {
		if axisSet[opts.DatasetAxis] {
			return &ConcatError{Axis: opts.DatasetAxis, Detail: "dataset axis must not itself be a concatenation axis"}
		}
		if d.HasAxis(opts.DatasetAxis) {
			return &ConcatError{Destination: d.Name(), Axis: opts.DatasetAxis, Detail: "dataset axis already exists in destination"}
		}
		for _, s := range opts.Sources {
			if s.HasAxis(opts.DatasetAxis) {
				return &ConcatError{Source: s.Name(), Axis: opts.DatasetAxis, Detail: "dataset axis already exists in source"}
			}
		}
	}
	// No matrix in any source may have both axes among the
	// concatenation axes.
	for _, s := range opts.Sources {
		for _, ra := range allAxesOf(s) {
			for _, ca := range allAxesOf(s) {
				if !axisSet[ra] || !axisSet[ca] {
					continue
				}
				for _, name := range s.MatricesSet(ra, ca) {
					return &ShapeError{Detail: fmt.Sprintf("matrix %q in source %q has both axes (%s, %s) in the concatenation set", name, s.Name(), ra, ca)}
				}
			}
		}
	}
	// Shared non-concatenation axes must agree across sources.
	entriesByAxis := make(map[string][]string)
	ownerByAxis := make(map[string]string)
	for _, s := range opts.Sources {
		for _, a := range s.AxesSet() {
			if axisSet[a] {
				continue
			}
			entries := s.AxisVector(a)
			if prior, ok := entriesByAxis[a]; ok {
				if !sameEntries(prior, entries) {
					return &ConcatError{Source: s.Name(), Destination: ownerByAxis[a], Axis: a, Detail: "axis entries differ between sources"}
				}
				continue
			}
			entriesByAxis[a] = entries
			ownerByAxis[a] = s.Name()
		}
	}
	seenNames := make(map[string]bool)
	for i := range opts.Sources {
		n := opts.sourceName(i)
		if seenNames[n] {
			return &ConcatError{Source: n, Detail: "source names must be unique"}
		}
		seenNames[n] = true
	}
	return nil
}

func allAxesOf(r Reader) []string { return r.AxesSet() }

func sameEntries(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func concatOneAxis(d Writer, opts ConcatOptions, axis string, names []string, sizes, offsets []int, total int) error {
	prefixThisAxis := opts.prefixAxis(axis)
	entries := make([]string, total)
	if err := dispatchPerSource(len(opts.Sources), func(i int) error {
		src := opts.Sources[i].AxisVector(axis)
		for k, e := range src {
			if prefixThisAxis {
				entries[offsets[i]+k] = names[i] + "." + e
			} else {
				entries[offsets[i]+k] = e
			}
		}
		return nil
	}); err != nil {
		return err
	}
	if err := d.AddAxis(axis, entries); err != nil {
		return err
	}
	if err := concatVectors(d, opts, axis, names, sizes, offsets, total); err != nil {
		return err
	}
	if err := concatMatrices(d, opts, axis, names, sizes, offsets, total); err != nil {
		return err
	}
	return nil
}

// shouldPrefixProperty decides whether a property's values get the
// source-name prefix: an explicit per-axis set wins; otherwise
// properties named after a prefixed axis (exactly, or with a dotted
// suffix) are prefixed.
func shouldPrefixProperty(opts *ConcatOptions, axis, property string) bool {
	if set, ok := opts.PrefixProperties[axis]; ok {
		return set[property]
	}
	return property == axis || strings.HasPrefix(property, axis+".")
}

func concatVectors(d Writer, opts ConcatOptions, axis string, names []string, sizes, offsets []int, total int) error {
	propertySet := make(map[string]bool)
	for _, s := range opts.Sources {
		for _, p := range s.VectorsSet(axis) {
			propertySet[p] = true
		}
	}
	for property := range propertySet {
		if err := concatOneVector(d, &opts, axis, property, names, sizes, offsets, total); err != nil {
			return err
		}
	}
	return nil
}

func concatOneVector(d Writer, opts *ConcatOptions, axis, property string, names []string, sizes, offsets []int, total int) error {
	if !opts.Overwrite && d.HasVector(axis, property) {
		return &ConcatError{Destination: d.Name(), Axis: axis, Property: property, Detail: "property already exists and overwrite=false"}
	}
	prefixIt := shouldPrefixProperty(opts, axis, property)
	emptyKey := CanonicalKey(axis, "", property)
	emptyVal, hasEmpty := opts.Empty[emptyKey]

	// Determine element type and whether any source is a string vector.
	dtype := ElemType(-1)
	isString := false
	present := make([]bool, len(opts.Sources))
	for i, s := range opts.Sources {
		if !s.HasVector(axis, property) {
			continue
		}
		present[i] = true
		_, et, err := s.GetVector(axis, property)
		if err != nil {
			return err
		}
		if et == String {
			isString = true
		}
		if dtype == ElemType(-1) {
			dtype = et
		} else {
			dtype, err = mergeDtypes(dtype, et)
			if err != nil {
				return err
			}
		}
	}
	if hasEmpty {
		if dtype == ElemType(-1) {
			dtype = emptyVal.Type
		} else {
			var err error
			dtype, err = mergeDtypes(dtype, emptyVal.Type)
			if err != nil {
				return err
			}
		}
		if emptyVal.Type == String {
			isString = true
		}
	}
	for i := range opts.Sources {
		if !present[i] && !hasEmpty {
			return &MissingDataError{Source: opts.sourceName(i), Property: property}
		}
	}

	if isString {
		entries := make([]string, total)
		for i, s := range opts.Sources {
			if present[i] {
				v, _, err := s.GetVector(axis, property)
				if err != nil {
					return err
				}
				dv, ok := v.(*stringVector)
				if !ok {
					return &SchemaError{Op: "Concat", Property: property, Detail: "expected string vector"}
				}
				for k := 0; k < sizes[i]; k++ {
					val := dv.data[k]
					if prefixIt {
						val = names[i] + "." + val
					}
					entries[offsets[i]+k] = val
				}
			} else {
				for k := 0; k < sizes[i]; k++ {
					entries[offsets[i]+k] = emptyVal.S
				}
			}
		}
		return setStringVector(d, axis, property, entries)
	}

	// Numeric/bool path: estimate sparse-saves fraction.
	denseBytes := DenseBytes(total, dtype)
	var sparseBytes int64
	missingContributesNonzero := hasEmpty && emptyVal.Numeric() != 0
	for i, s := range opts.Sources {
		if present[i] {
			v, _, err := s.GetVector(axis, property)
			if err != nil {
				return err
			}
			if sv, ok := v.(*SparseVector); ok {
				sparseBytes += SparseVectorBytes(sv.NNZ(), sizes[i], dtype)
				continue
			}
			sparseBytes += DenseBytes(sizes[i], dtype)
		} else if missingContributesNonzero {
			sparseBytes += DenseBytes(sizes[i], dtype)
		}
	}
	useSparse := SavesFraction(denseBytes, sparseBytes) >= opts.threshold()
	if useSparse && hasEmpty && emptyVal.Numeric() != 0 {
		useSparse = false
	}

	if useSparse {
		var nnz int
		for i := range opts.Sources {
			if present[i] {
				v, _, _ := opts.Sources[i].GetVector(axis, property)
				nnz += nonzeroCount(v)
			}
		}
		idxWidth := IndexWidth(total)
		ind, val, err := d.GetEmptySparseVector(axis, property, dtype, idxWidth, nnz)
		if err != nil {
			return err
		}
		pos := 0
		for i, s := range opts.Sources {
			if !present[i] {
				continue
			}
			v, _, _ := s.GetVector(axis, property)
			switch t := v.(type) {
			case *SparseVector:
				for k, ix := range t.Ind {
					ind[pos] = ix + offsets[i]
					if val != nil {
						val[pos] = t.valueAt(k)
					}
					pos++
				}
			case *DenseVector:
				for k, x := range t.Data {
					if x == 0 {
						continue
					}
					ind[pos] = k + 1 + offsets[i]
					if val != nil {
						val[pos] = x
					}
					pos++
				}
			}
		}
		return d.FilledEmptySparseVector(axis, property, true)
	}

	dv, err := d.GetEmptyDenseVector(axis, property, dtype)
	if err != nil {
		return err
	}
	return dispatchPerSource(len(opts.Sources), func(i int) error {
		if present[i] {
			v, _, err := opts.Sources[i].GetVector(axis, property)
			if err != nil {
				return err
			}
			dense := DensifyVector(v).(*DenseVector)
			copy(dv.Data[offsets[i]:offsets[i]+sizes[i]], dense.Data)
		} else {
			fill := emptyVal.Numeric()
			for k := 0; k < sizes[i]; k++ {
				dv.Data[offsets[i]+k] = fill
			}
		}
		return nil
	})
}

// collectVectorAxis implements CollectAxis for a vector property on
// axis x: stacks each source's (x, property) vector as
// a column of a new matrix (x, dataset_axis, property) in d, choosing
// sparse vs dense by the same threshold rule as the main concat path.
func collectVectorAxis(d Writer, opts *ConcatOptions, axis, property string) error {
	if err := ensureDestAxis(d, opts, axis); err != nil {
		return err
	}
	n := len(opts.Sources)
	rows := d.AxisLength(axis)

	dtype := ElemType(-1)
	present := make([]bool, n)
	for i, s := range opts.Sources {
		if !s.HasVector(axis, property) {
			continue
		}
		present[i] = true
		_, et, err := s.GetVector(axis, property)
		if err != nil {
			return err
		}
		if dtype == ElemType(-1) {
			dtype = et
		} else {
			dtype, err = mergeDtypes(dtype, et)
			if err != nil {
				return err
			}
		}
	}
	if dtype == ElemType(-1) {
		dtype = Float64
	}

	denseBytes := DenseBytes(rows*n, dtype)
	var sparseBytes int64 = int64(n+1) * int64(Sizeof(IndexWidth(rows*n+1)))
	for i, s := range opts.Sources {
		if present[i] {
			v, _, err := s.GetVector(axis, property)
			if err != nil {
				return err
			}
			sparseBytes += int64(nonzeroCount(v)) * int64(Sizeof(dtype)+Sizeof(IndexWidth(rows)))
		}
	}
	useSparse := SavesFraction(denseBytes, sparseBytes) >= opts.threshold()

	if useSparse {
		var nnz int
		for i := range opts.Sources {
			if present[i] {
				v, _, _ := opts.Sources[i].GetVector(axis, property)
				nnz += nonzeroCount(v)
			}
		}
		idxWidth := IndexWidth(rows)
		ptr, ind, val, err := d.GetEmptySparseMatrix(axis, opts.DatasetAxis, property, dtype, idxWidth, nnz)
		if err != nil {
			return err
		}
		pos := 0
		for i := range opts.Sources {
			ptr[i] = pos + 1
			if present[i] {
				v, _, _ := opts.Sources[i].GetVector(axis, property)
				sv := SparsifyVector(v).(*SparseVector)
				for k, ix := range sv.Ind {
					ind[pos] = ix
					if val != nil {
						val[pos] = sv.valueAt(k)
					}
					pos++
				}
			}
		}
		ptr[n] = pos + 1
		return nil
	}

	dm, err := d.GetEmptyDenseMatrix(axis, opts.DatasetAxis, property, dtype)
	if err != nil {
		return err
	}
	for i := range opts.Sources {
		if !present[i] {
			continue
		}
		v, _, err := opts.Sources[i].GetVector(axis, property)
		if err != nil {
			return err
		}
		dense := DensifyVector(v).(*DenseVector)
		for r := 0; r < rows; r++ {
			dm.Set(r, i, dense.Data[r])
		}
	}
	return nil
}

func nonzeroCount(v VectorExpr) int {
	switch t := v.(type) {
	case *SparseVector:
		return t.NNZ()
	case *DenseVector:
		return t.NNZ()
	default:
		return 0
	}
}

func concatMatrices(d Writer, opts ConcatOptions, axis string, names []string, sizes, offsets []int, total int) error {
	otherAxes := make(map[string]bool)
	for _, s := range opts.Sources {
		for _, a := range s.AxesSet() {
			if a == axis {
				continue
			}
			if len(s.MatricesSet(a, axis)) > 0 {
				otherAxes[a] = true
			}
		}
	}
	for other := range otherAxes {
		propertySet := make(map[string]bool)
		for _, s := range opts.Sources {
			for _, p := range s.MatricesSet(other, axis) {
				propertySet[p] = true
			}
		}
		for property := range propertySet {
			if err := concatOneMatrix(d, &opts, other, axis, property, names, sizes, offsets, total); err != nil {
				return err
			}
		}
	}

	// Matrices stored under the swapped key (a, other) — the
	// concatenation axis naming the rows — are an independent layout of
	// the same logical data and are concatenated analogously, with row
	// indices offset instead of column pointers.
	rowsOtherAxes := make(map[string]bool)
	for _, s := range opts.Sources {
		for _, a := range s.AxesSet() {
			if a == axis {
				continue
			}
			if len(s.MatricesSet(axis, a)) > 0 {
				rowsOtherAxes[a] = true
			}
		}
	}
	for other := range rowsOtherAxes {
		propertySet := make(map[string]bool)
		for _, s := range opts.Sources {
			for _, p := range s.MatricesSet(axis, other) {
				propertySet[p] = true
			}
		}
		for property := range propertySet {
			if err := concatOneMatrixRows(d, &opts, axis, other, property, sizes, offsets, total); err != nil {
				return err
			}
		}
	}
	return nil
}

// concatOneMatrixRows concatenates matrices keyed (concatAxis,
// otherAxis, property) — concatenation along the rows. Each source's
// entries are shifted by its row offset; sparse output is rebuilt from
// triples since the per-column runs of the sources interleave in the
// destination's columns.
func concatOneMatrixRows(d Writer, opts *ConcatOptions, concatAxis, otherAxis, property string, sizes, offsets []int, total int) error {
	if !opts.Overwrite && d.HasMatrix(concatAxis, otherAxis, property) {
		return &ConcatError{Destination: d.Name(), Axis: otherAxis, Property: property, Detail: "property already exists and overwrite=false"}
	}
	if err := ensureDestAxis(d, opts, otherAxis); err != nil {
		return err
	}
	emptyKey := CanonicalKey(concatAxis, otherAxis, property)
	emptyVal, hasEmpty := opts.Empty[emptyKey]

	dtype := ElemType(-1)
	present := make([]bool, len(opts.Sources))
	var otherLen int
	for i, s := range opts.Sources {
		if !s.HasMatrix(concatAxis, otherAxis, property) {
			continue
		}
		present[i] = true
		m, et, err := s.GetMatrix(concatAxis, otherAxis, property)
		if err != nil {
			return err
		}
		if err := CheckAccess("concat", property, m, Columns, "source "+opts.sourceName(i)); err != nil {
			return err
		}
		if dtype == ElemType(-1) {
			dtype = et
		} else {
			dtype, err = mergeDtypes(dtype, et)
			if err != nil {
				return err
			}
		}
		otherLen = s.AxisLength(otherAxis)
	}
	if hasEmpty {
		if dtype == ElemType(-1) {
			dtype = emptyVal.Type
		} else {
			var err error
			dtype, err = mergeDtypes(dtype, emptyVal.Type)
			if err != nil {
				return err
			}
		}
	}
	for i := range opts.Sources {
		if !present[i] && !hasEmpty {
			return &MissingDataError{Source: opts.sourceName(i), Property: property}
		}
	}

	denseBytes := DenseBytes(total*otherLen, dtype)
	idxWidthGuess := Sizeof(IndexWidth(total))
	var sparseBytes int64 = int64(otherLen+1) * int64(idxWidthGuess)
	var nnz int
	for i, s := range opts.Sources {
		if !present[i] {
			continue
		}
		m, _, err := s.GetMatrix(concatAxis, otherAxis, property)
		if err != nil {
			return err
		}
		if sm, ok := unwrap(m).(*SparseMatrix); ok {
			sparseBytes += int64(sm.NNZ()) * int64(Sizeof(dtype)+idxWidthGuess)
			nnz += sm.NNZ()
			continue
		}
		sparseBytes += int64(sizes[i]) * int64(otherLen) * int64(Sizeof(dtype))
		nnz += matrixNNZ(m)
	}

	useSparse := SavesFraction(denseBytes, sparseBytes) >= opts.threshold()
	if useSparse && hasEmpty && emptyVal.Numeric() != 0 {
		useSparse = false
	}
	if useSparse {
		triples := make([]sparseTriple, 0, nnz)
		for i, s := range opts.Sources {
			if !present[i] {
				continue
			}
			m, _, err := s.GetMatrix(concatAxis, otherAxis, property)
			if err != nil {
				return err
			}
			smat := asCSC(m)
			for _, t := range smat.triples() {
				triples = append(triples, sparseTriple{row: t.row + offsets[i], col: t.col, val: t.val})
			}
		}
		sm := buildSparseMatrix(total, otherLen, Columns, triples, dtype)
		return d.SetMatrix(concatAxis, otherAxis, property, sm, dtype)
	}

	dm, err := d.GetEmptyDenseMatrix(concatAxis, otherAxis, property, dtype)
	if err != nil {
		return err
	}
	return dispatchPerSource(len(opts.Sources), func(i int) error {
		if present[i] {
			m, _, err := opts.Sources[i].GetMatrix(concatAxis, otherAxis, property)
			if err != nil {
				return err
			}
			dense := Densify(m)
			for r := 0; r < sizes[i]; r++ {
				for c := 0; c < otherLen; c++ {
					dm.Set(offsets[i]+r, c, matrixAt(dense, r, c))
				}
			}
		} else {
			fill := emptyVal.Numeric()
			for r := 0; r < sizes[i]; r++ {
				for c := 0; c < otherLen; c++ {
					dm.Set(offsets[i]+r, c, fill)
				}
			}
		}
		return nil
	})
}

func concatOneMatrix(d Writer, opts *ConcatOptions, otherAxis, concatAxis, property string, names []string, sizes, offsets []int, total int) error {
	if !opts.Overwrite && d.HasMatrix(otherAxis, concatAxis, property) {
		return &ConcatError{Destination: d.Name(), Axis: otherAxis, Property: property, Detail: "property already exists and overwrite=false"}
	}
	if err := ensureDestAxis(d, opts, otherAxis); err != nil {
		return err
	}
	emptyKey := CanonicalKey(otherAxis, concatAxis, property)
	emptyVal, hasEmpty := opts.Empty[emptyKey]

	dtype := ElemType(-1)
	present := make([]bool, len(opts.Sources))
	var otherLen int
	for i, s := range opts.Sources {
		if !s.HasMatrix(otherAxis, concatAxis, property) {
			continue
		}
		present[i] = true
		m, et, err := s.GetMatrix(otherAxis, concatAxis, property)
		if err != nil {
			return err
		}
		if err := CheckAccess("concat", property, m, Columns, "source "+opts.sourceName(i)); err != nil {
			return err
		}
		if dtype == ElemType(-1) {
			dtype = et
		} else {
			dtype, err = mergeDtypes(dtype, et)
			if err != nil {
				return err
			}
		}
		otherLen = s.AxisLength(otherAxis)
	}
	if hasEmpty {
		if dtype == ElemType(-1) {
			dtype = emptyVal.Type
		} else {
			var err error
			dtype, err = mergeDtypes(dtype, emptyVal.Type)
			if err != nil {
				return err
			}
		}
	}
	for i := range opts.Sources {
		if !present[i] && !hasEmpty {
			return &MissingDataError{Source: opts.sourceName(i), Property: property}
		}
	}

	denseBytes := DenseBytes(otherLen*total, dtype)
	idxWidthGuess := Sizeof(IndexWidth(total + 1))
	var sparseBytes int64 = int64(total+1) * int64(idxWidthGuess)
	for i, s := range opts.Sources {
		if present[i] {
			m, _, err := s.GetMatrix(otherAxis, concatAxis, property)
			if err != nil {
				return err
			}
			if sm, ok := unwrap(m).(*SparseMatrix); ok {
				sparseBytes += int64(sm.NNZ()) * int64(Sizeof(dtype)+idxWidthGuess)
				continue
			}
			sparseBytes += int64(otherLen) * int64(sizes[i]) * int64(Sizeof(dtype))
		}
	}
	useSparse := SavesFraction(denseBytes, sparseBytes) >= opts.threshold()
	if useSparse && hasEmpty && emptyVal.Numeric() != 0 {
		// A non-zero fill cannot be represented structurally; fall back
		// to dense, as the vector path does.
		useSparse = false
	}

	if useSparse {
		var nnz int
		for i := range opts.Sources {
			if present[i] {
				m, _, _ := opts.Sources[i].GetMatrix(otherAxis, concatAxis, property)
				nnz += matrixNNZ(m)
			}
		}
		idxWidth := IndexWidth(total + 1)
		ptr, ind, val, err := d.GetEmptySparseMatrix(otherAxis, concatAxis, property, dtype, idxWidth, nnz)
		if err != nil {
			return err
		}
		nnzOffset := 0
		colCursor := 0
		for i, s := range opts.Sources {
			if present[i] {
				m, _, _ := s.GetMatrix(otherAxis, concatAxis, property)
				smat := asCSC(m)
				for c := 0; c < sizes[i]; c++ {
					lo, hi := smat.Ptr[c]-1, smat.Ptr[c+1]-1
					ptr[colCursor+c] = nnzOffset + lo + 1
					for k := lo; k < hi; k++ {
						ind[nnzOffset+k] = smat.Ind[k]
						if val != nil {
							val[nnzOffset+k] = smat.valueAt(k)
						}
					}
				}
				nnzOffset += smat.NNZ()
			} else {
				for c := 0; c < sizes[i]; c++ {
					ptr[colCursor+c] = nnzOffset + 1
				}
			}
			colCursor += sizes[i]
		}
		ptr[total] = nnzOffset + 1
		return nil
	}

	dm, err := d.GetEmptyDenseMatrix(otherAxis, concatAxis, property, dtype)
	if err != nil {
		return err
	}
	return dispatchPerSource(len(opts.Sources), func(i int) error {
		if present[i] {
			m, _, err := opts.Sources[i].GetMatrix(otherAxis, concatAxis, property)
			if err != nil {
				return err
			}
			dense := Densify(m)
			_, cols := dense.Dims()
			for c := 0; c < cols; c++ {
				for r := 0; r < otherLen; r++ {
					dm.Set(r, offsets[i]+c, matrixAt(dense, r, c))
				}
			}
		} else {
			fill := emptyVal.Numeric()
			for c := 0; c < sizes[i]; c++ {
				for r := 0; r < otherLen; r++ {
					dm.Set(r, offsets[i]+c, fill)
				}
			}
		}
		return nil
	})
}

func matrixAt(m MatrixExpr, i, j int) float64 {
	switch v := m.(type) {
	case *DenseMatrix:
		return v.At(i, j)
	case *SparseMatrix:
		return v.At(i, j)
	case *Transpose:
		return matrixAt(v.Parent, j, i)
	case *ReadOnlyMatrix:
		return matrixAt(v.Parent, i, j)
	default:
		panic("axisdata: matrixAt: unsupported matrix expression")
	}
}

// asCSC materializes m as a concrete Columns-major compressed sparse
// matrix, resolving any Transpose/ReadOnly wrapper, so that Ptr
// indexes columns and per-column copies into the destination's CSC
// buffers are direct.
func asCSC(m MatrixExpr) *SparseMatrix {
	sm, ok := Materialize(m).(*SparseMatrix)
	if !ok {
		sm = Sparsify(Materialize(m)).(*SparseMatrix)
	}
	if sm.Major == Columns {
		return sm
	}
	rows, cols := sm.Dims()
	return buildSparseMatrix(rows, cols, Columns, sm.triples(), sm.ElemType)
}

// ensureDestAxis adds a non-concatenation axis to d, copying its
// entries from the first source that defines it. Preconditions have
// already verified that all sources defining the axis agree on its
// entry sequence.
func ensureDestAxis(d Writer, opts *ConcatOptions, axis string) error {
	if d.HasAxis(axis) {
		return nil
	}
	for _, s := range opts.Sources {
		if s.HasAxis(axis) {
			return d.AddAxis(axis, s.AxisVector(axis))
		}
	}
	return &ConcatError{Destination: d.Name(), Axis: axis, Detail: "axis not found in any source"}
}

// applyMerge resolves the merge action for every scalar and every
// non-concatenation-axis vector/matrix property.
func applyMerge(d Writer, opts ConcatOptions, names []string) error {
	concatAxisSet := make(map[string]bool, len(opts.Axes))
	for _, a := range opts.Axes {
		concatAxisSet[a] = true
	}

	scalarSet := make(map[string]bool)
	for _, s := range opts.Sources {
		for _, p := range s.ScalarsSet() {
			scalarSet[p] = true
		}
	}
	for property := range scalarSet {
		action := resolveMergeAction(opts.Merge, "", "", property)
		switch action {
		case Skip:
		case LastValue:
			for i := len(opts.Sources) - 1; i >= 0; i-- {
				if opts.Sources[i].HasScalar(property) {
					v, err := opts.Sources[i].GetScalar(property)
					if err != nil {
						return err
					}
					if err := d.SetScalar(property, v); err != nil {
						return err
					}
					break
				}
			}
		case CollectAxis:
			if opts.DatasetAxis == "" {
				return &ShapeError{Detail: "CollectAxis requires a dataset axis"}
			}
			entries := make([]string, len(opts.Sources))
			isString := false
			for i, s := range opts.Sources {
				if s.HasScalar(property) {
					v, err := s.GetScalar(property)
					if err != nil {
						return err
					}
					entries[i] = v.String()
					if v.Type == String {
						isString = true
					}
				}
			}
			if isString {
				if err := setStringVector(d, opts.DatasetAxis, property, entries); err != nil {
					return err
				}
			} else {
				data := make([]float64, len(opts.Sources))
				for i, s := range opts.Sources {
					if s.HasScalar(property) {
						v, _ := s.GetScalar(property)
						data[i] = v.Numeric()
					}
				}
				if err := d.SetVector(opts.DatasetAxis, property, NewDenseVector(Float64, data), Float64); err != nil {
					return err
				}
			}
		}
	}

	for _, s := range opts.Sources {
		for _, axis := range s.AxesSet() {
			if concatAxisSet[axis] || axis == opts.DatasetAxis {
				continue
			}
			for _, property := range s.VectorsSet(axis) {
				action := resolveMergeAction(opts.Merge, axis, "", property)
				switch action {
				case Skip:
				case LastValue:
					for i := len(opts.Sources) - 1; i >= 0; i-- {
						if opts.Sources[i].HasVector(axis, property) {
							v, et, err := opts.Sources[i].GetVector(axis, property)
							if err != nil {
								return err
							}
							if err := ensureDestAxis(d, &opts, axis); err != nil {
								return err
							}
							if err := d.SetVector(axis, property, v, et); err != nil {
								return err
							}
							break
						}
					}
				case CollectAxis:
					if opts.DatasetAxis == "" {
						return &ShapeError{Detail: "CollectAxis requires a dataset axis"}
					}
					if err := collectVectorAxis(d, &opts, axis, property); err != nil {
						return err
					}
				}
			}
		}
	}

	for _, s := range opts.Sources {
		for _, ra := range s.AxesSet() {
			if concatAxisSet[ra] {
				continue
			}
			for _, ca := range s.AxesSet() {
				if concatAxisSet[ca] {
					continue
				}
				for _, property := range s.MatricesSet(ra, ca) {
					action := resolveMergeAction(opts.Merge, ra, ca, property)
					switch action {
					case Skip:
					case CollectAxis:
						return &ShapeError{Detail: "CollectAxis is illegal for matrix properties"}
					case LastValue:
						for i := len(opts.Sources) - 1; i >= 0; i-- {
							if opts.Sources[i].HasMatrix(ra, ca, property) {
								m, et, err := opts.Sources[i].GetMatrix(ra, ca, property)
								if err != nil {
									return err
								}
								if err := ensureDestAxis(d, &opts, ra); err != nil {
									return err
								}
								if err := ensureDestAxis(d, &opts, ca); err != nil {
									return err
								}
								if err := d.SetMatrix(ra, ca, property, m, et); err != nil {
									return err
								}
								break
							}
						}
					}
				}
			}
		}
	}

	return nil
}
