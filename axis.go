package axisdata

// Axis is a named, ordered set of unique, non-empty string entries.
// Its length is immutable once created; the only way to change the
// entries of an axis is to delete it (after deleting every vector and
// matrix that references it) and add it again.
type Axis struct {
	name    string
	entries []string
	index   map[string]int
}

// NewAxis builds an axis from an ordered list of entries, which must
// be unique and non-empty.
func NewAxis(name string, entries []string) (*Axis, error) {
	index := make(map[string]int, len(entries))
	for i, e := range entries {
		if e == "" {
			return nil, &SchemaError{Op: "NewAxis", Axis: name, Detail: "axis entries must be non-empty"}
		}
		if _, dup := index[e]; dup {
			return nil, &SchemaError{Op: "NewAxis", Axis: name, Detail: "duplicate axis entry " + e}
		}
		index[e] = i
	}
	cp := append([]string(nil), entries...)
	return &Axis{name: name, entries: cp, index: index}, nil
}

// Name returns the axis's name.
func (a *Axis) Name() string { return a.name }

// Len returns the number of entries.
func (a *Axis) Len() int { return len(a.entries) }

// Entries returns the ordered entry names. The returned slice must
// not be mutated by the caller.
func (a *Axis) Entries() []string { return a.entries }

// EntryAt returns the entry at 0-based position i.
func (a *Axis) EntryAt(i int) string { return a.entries[i] }

// IndexOf returns the 0-based position of entry, and whether it was
// found.
func (a *Axis) IndexOf(entry string) (int, bool) {
	i, ok := a.index[entry]
	return i, ok
}

// SameEntries reports whether a and b have identical entry sequences,
// used to verify axis identity across chain members and concat
// sources.
func (a *Axis) SameEntries(b *Axis) bool {
	if len(a.entries) != len(b.entries) {
		return false
	}
	for i := range a.entries {
		if a.entries[i] != b.entries[i] {
			return false
		}
	}
	return true
}
