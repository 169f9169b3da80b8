/*
Package hdf5 is the concrete, memory-mapped HDF5-backed implementation
of the axisdata.Reader/Writer trait, built on the pure-Go
github.com/scigolib/hdf5 library. It lays out a data set on disk
exactly as described by the root package's external-interface section:

	<root>/
	  daf                 : uint vector [major, minor]
	  scalars/<name>
	  axes/<name>
	  vectors/<axis>/<name>{dense|sparse|sparse-string}
	  matrices/<rows-axis>/<columns-axis>/<name>{dense|sparse|sparse-string}

Dense datasets are created contiguous (never chunked) so that
GetEmptyDenseVector/GetEmptyDenseMatrix can return a direct, writable
view into the file's mmap'd bytes rather than a heap copy; sparse
buffers are assembled in heap scratch space: a vector's are flushed to
its nzind/nzval datasets by FilledEmptySparseVector, a matrix's to its
colptr/rowval/nzval datasets on the next read of the matrix registry
or on Close.
*/
package hdf5
