// Package volume provides the dense voxel arrays shared by the labeling and
// expansion units. Arrays are stored row-major with the last axis varying
// fastest, so a rank-4 fluorophore volume is laid out (channel, Z, X, Y) and a
// rank-3 ground-truth volume (Z, X, Y).
package volume

import (
	"fmt"

	"simexm/pkg/simerr"
)

// Voxel is a (Z, X, Y) position in the voxel grid.
type Voxel struct {
	Z, X, Y int
}

// String returns the voxel as "(z, x, y)".
func (v Voxel) String() string {
	return fmt.Sprintf("(%d, %d, %d)", v.Z, v.X, v.Y)
}

// Array is a dense n-dimensional array of unsigned integer counts or labels.
type Array struct {
	shape   []int
	strides []int
	data    []uint32
}

// New allocates a zero-filled array with the given shape.
// It panics if any dimension is negative.
func New(shape ...int) *Array {
	n := 1
	for _, d := range shape {
		if d < 0 {
			panic(fmt.Sprintf("volume: negative dimension in shape %v", shape))
		}
		n *= d
	}
	a := &Array{
		shape: append([]int(nil), shape...),
		data:  make([]uint32, n),
	}
	a.strides = computeStrides(a.shape)
	return a
}

// FromData wraps data with the given shape. The slice is used directly, not
// copied, and its length must equal the product of the dimensions.
func FromData(data []uint32, shape ...int) (*Array, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("%w: negative dimension in shape %v", simerr.ErrInvalidInput, shape)
		}
		n *= d
	}
	if len(data) != n {
		return nil, fmt.Errorf("%w: %d elements do not fit shape %v", simerr.ErrInvalidInput, len(data), shape)
	}
	a := &Array{shape: append([]int(nil), shape...), data: data}
	a.strides = computeStrides(a.shape)
	return a, nil
}

func computeStrides(shape []int) []int {
	strides := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= shape[i]
	}
	return strides
}

// Shape returns a copy of the array dimensions.
func (a *Array) Shape() []int {
	return append([]int(nil), a.shape...)
}

// Dim returns the size of axis i.
func (a *Array) Dim(i int) int {
	return a.shape[i]
}

// Rank returns the number of axes.
func (a *Array) Rank() int {
	return len(a.shape)
}

// Len returns the total number of elements.
func (a *Array) Len() int {
	return len(a.data)
}

// Data returns the backing slice in row-major order.
func (a *Array) Data() []uint32 {
	return a.data
}

// Index converts a multi-index into an offset into Data. It panics if the
// number of indices does not match the rank or an index is out of range.
func (a *Array) Index(idx ...int) int {
	if len(idx) != len(a.shape) {
		panic(fmt.Sprintf("volume: %d indices for rank %d array", len(idx), len(a.shape)))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= a.shape[i] {
			panic(fmt.Sprintf("volume: index %v out of range for shape %v", idx, a.shape))
		}
		off += v * a.strides[i]
	}
	return off
}

// At returns the element at idx.
func (a *Array) At(idx ...int) uint32 {
	return a.data[a.Index(idx...)]
}

// Set stores v at idx.
func (a *Array) Set(v uint32, idx ...int) {
	a.data[a.Index(idx...)] = v
}

// Sum returns the sum of every element.
func (a *Array) Sum() uint64 {
	var total uint64
	for _, v := range a.data {
		total += uint64(v)
	}
	return total
}

// Spatial returns the last three dimensions as (Z, X, Y).
func (a *Array) Spatial() [3]int {
	n := len(a.shape)
	if n < 3 {
		panic(fmt.Sprintf("volume: rank %d array has no spatial axes", n))
	}
	return [3]int{a.shape[n-3], a.shape[n-2], a.shape[n-1]}
}

// Channels returns the size of the leading channel axis of a rank-4 array.
func (a *Array) Channels() int {
	if len(a.shape) != 4 {
		panic(fmt.Sprintf("volume: rank %d array has no channel axis", len(a.shape)))
	}
	return a.shape[0]
}

// ChannelData returns the backing sub-slice of channel c in a rank-4 array.
// Writes through the returned slice modify the array.
func (a *Array) ChannelData(c int) []uint32 {
	n := a.strides[0]
	return a.data[c*n : (c+1)*n]
}

// Channel returns a copy of channel c of a rank-4 array as a rank-3 array.
func (a *Array) Channel(c int) *Array {
	sp := a.Spatial()
	out := New(sp[0], sp[1], sp[2])
	copy(out.data, a.ChannelData(c))
	return out
}

// ChannelSum returns the total of channel c of a rank-4 array.
func (a *Array) ChannelSum(c int) uint64 {
	var total uint64
	for _, v := range a.ChannelData(c) {
		total += uint64(v)
	}
	return total
}

// Contains reports whether v lies inside the spatial extent of the array.
func (a *Array) Contains(v Voxel) bool {
	return InBounds(v, a.Spatial())
}

// InBounds reports whether v lies inside a (Z, X, Y) extent.
func InBounds(v Voxel, dims [3]int) bool {
	return v.Z >= 0 && v.Z < dims[0] &&
		v.X >= 0 && v.X < dims[1] &&
		v.Y >= 0 && v.Y < dims[2]
}

// SpatialIndex returns the offset of voxel v within one spatial block
// (a rank-3 array or a single channel of a rank-4 array).
func (a *Array) SpatialIndex(v Voxel) int {
	sp := a.Spatial()
	return (v.Z*sp[1]+v.X)*sp[2] + v.Y
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	out := New(a.shape...)
	copy(out.data, a.data)
	return out
}

// Equal reports whether both arrays have the same shape and elements.
func (a *Array) Equal(b *Array) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.shape) != len(b.shape) {
		return false
	}
	for i := range a.shape {
		if a.shape[i] != b.shape[i] {
			return false
		}
	}
	for i := range a.data {
		if a.data[i] != b.data[i] {
			return false
		}
	}
	return true
}
