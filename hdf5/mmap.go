package hdf5

import (
	"fmt"

	"golang.org/x/exp/mmap"
)

// readOnlyMap is a memory-mapped, read-only view of an entire backing
// file, used when the store is opened with ModeRead: dataset reads go
// through bytesAt, which copies the requested bytes out of the
// mapping.
type readOnlyMap struct {
	ra *mmap.ReaderAt
}

func openReadOnlyMap(path string) (*readOnlyMap, error) {
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("axisdata/hdf5: mmap open %q: %w", path, err)
	}
	return &readOnlyMap{ra: ra}, nil
}

func (m *readOnlyMap) close() error { return m.ra.Close() }

// bytesAt copies n bytes at offset into a freshly allocated slice.
// golang.org/x/exp/mmap.ReaderAt only exposes ReadAt, not a raw []byte
// view, so a read-only-mapped store pays one copy per access; the
// write-mapped path in mmap_unix.go avoids even that.
func (m *readOnlyMap) bytesAt(offset int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := m.ra.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("axisdata/hdf5: mmap read at %d: %w", offset, err)
	}
	return buf, nil
}

