//go:build unix

package hdf5

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// writableMap is a read-write memory mapping of an entire backing
// file. GetEmptyDenseVector/GetEmptyDenseMatrix slice directly into
// data, so writes the caller makes into the returned buffer land on
// disk the next time the kernel flushes the mapping (or on an
// explicit sync, see (*writableMap).sync) without ever going through
// a Go-level Write call: the returned buffer is a direct view into
// the backing storage.
type writableMap struct {
	f    *os.File
	data []byte
}

func openWritableMap(path string) (*writableMap, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("axisdata/hdf5: open %q: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("axisdata/hdf5: stat %q: %w", path, err)
	}
	size := fi.Size()
	if size == 0 {
		f.Close()
		return nil, fmt.Errorf("axisdata/hdf5: %q is empty, nothing to map", path)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("axisdata/hdf5: mmap %q: %w", path, err)
	}
	return &writableMap{f: f, data: data}, nil
}

// remap unmaps and re-mmaps the file, used after the underlying file
// has grown (a new dataset was appended) so that offsets computed
// against the new size remain valid.
func (m *writableMap) remap() error {
	if err := unix.Munmap(m.data); err != nil {
		return fmt.Errorf("axisdata/hdf5: munmap: %w", err)
	}
	fi, err := m.f.Stat()
	if err != nil {
		return fmt.Errorf("axisdata/hdf5: stat: %w", err)
	}
	data, err := unix.Mmap(int(m.f.Fd()), 0, int(fi.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("axisdata/hdf5: re-mmap: %w", err)
	}
	m.data = data
	return nil
}

// floatsAt returns a []float64 that aliases m.data[offset:offset+n*8]
// directly: writes through the returned slice are writes to the
// mapped file. offset and n*8 must stay within m.data's current
// length; callers that grew the file must remap first.
func (m *writableMap) floatsAt(offset int64, n int) []float64 {
	end := offset + int64(n)*8
	if end > int64(len(m.data)) {
		panic("axisdata/hdf5: floatsAt: out of range of the current mapping")
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&m.data[offset])), n)
}

// bytesAt returns a sub-slice of the mapping, aliased, not copied.
func (m *writableMap) bytesAt(offset int64, n int) []byte {
	return m.data[offset : offset+int64(n)]
}

// sync flushes dirty pages of the mapping to disk.
func (m *writableMap) sync() error {
	return unix.Msync(m.data, unix.MS_SYNC)
}

func (m *writableMap) close() error {
	if err := unix.Munmap(m.data); err != nil {
		m.f.Close()
		return fmt.Errorf("axisdata/hdf5: munmap: %w", err)
	}
	return m.f.Close()
}
