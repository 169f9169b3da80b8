/*
Package axisdata implements the core of a scientific data storage
engine for multi-axis annotated tabular data: scalar properties,
vectors indexed by a single named axis, and matrices indexed by an
ordered pair of axes.

A data set owns a name, a set of axes, and mappings from name to
scalar, (axis, name) to vector and (rows-axis, columns-axis, name) to
matrix. Vectors and matrices may be stored densely or in a compressed
sparse form; the layout discipline in this package tracks which axis
of a matrix is contiguous in memory (its major axis) and provides
relayout, sparsify/densify/bestify and copy operations that respect
that discipline.

Storage is abstracted behind the Reader/Writer interfaces in format.go
so that the data model, the chain overlay (chain.go) and the
concatenation engine (concat.go) are independent of any one backend.
The hdf5 subpackage provides the concrete, memory-mapped HDF5-backed
implementation.
*/
package axisdata
