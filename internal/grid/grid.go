// Package grid holds the chunk arithmetic shared by the planner, the decoder
// and the writer. Chunks are addressed row-major: the last axis varies
// fastest.
package grid

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"
)

// ErrDimension reports invalid dimensions, chunk dimensions or ranges.
var ErrDimension = errors.New("invalid dimensions")

// Count returns the number of chunks needed to cover dim elements.
func Count(dim, chunk uint64) uint64 {
	n := dim / chunk
	if dim%chunk != 0 {
		n++
	}
	return n
}

// Shape calculates the number of chunks in each dimension.
// For each dimension i, the number of chunks is ceil(dims[i] / chunks[i]).
func Shape(dims, chunks []uint64) []uint64 {
	counts := make([]uint64, len(dims))
	for i := range dims {
		counts[i] = Count(dims[i], chunks[i])
	}
	return counts
}

// NumChunks returns the total number of chunks of an array.
func NumChunks(dims, chunks []uint64) uint64 {
	return Product(Shape(dims, chunks))
}

// Product multiplies all entries of shape. The product of no entries is 1.
func Product(shape []uint64) uint64 {
	n := uint64(1)
	for _, s := range shape {
		n *= s
	}
	return n
}

// Range returns the half-open element range covered by chunk coord on an
// axis of dim elements. The last chunk is clamped to the array edge.
func Range(coord, dim, chunk uint64) (start, end uint64) {
	start = coord * chunk
	end = min(start+chunk, dim)
	return start, end
}

// Index composes chunk coordinates into a linear row-major chunk index.
func Index(coords, counts []uint64) uint64 {
	var idx uint64
	for i := range coords {
		idx = idx*counts[i] + coords[i]
	}
	return idx
}

// Coords decomposes a linear chunk index into coords, which must have the
// same length as counts.
func Coords(index uint64, counts, coords []uint64) {
	for i := len(counts) - 1; i >= 0; i-- {
		coords[i] = index % counts[i]
		index /= counts[i]
	}
}

// Strides computes the C-order strides for a given shape.
func Strides(shape []uint64) []uint64 {
	s := make([]uint64, len(shape))
	stride := uint64(1)
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = stride
		stride *= shape[i]
	}
	return s
}

// Validate checks the dimensions and chunk dimensions of an array.
func Validate(dims, chunks []uint64) error {
	if len(dims) == 0 {
		return fmt.Errorf("%w: an array needs at least one dimension", ErrDimension)
	}
	if len(dims) != len(chunks) {
		return fmt.Errorf("%w: %d dimensions but %d chunk dimensions", ErrDimension, len(dims), len(chunks))
	}
	for i := range dims {
		if dims[i] == 0 {
			return fmt.Errorf("%w: dimension %d is zero", ErrDimension, i)
		}
		if chunks[i] == 0 || chunks[i] > dims[i] {
			return fmt.Errorf("%w: chunk dimension %d is %d, must be in [1, %d]", ErrDimension, i, chunks[i], dims[i])
		}
	}
	// the lookup table holds one entry more than there are chunks
	total := uint64(1)
	for i := range dims {
		hi, lo := bits.Mul64(total, Count(dims[i], chunks[i]))
		if hi != 0 || lo == math.MaxUint64 {
			return fmt.Errorf("%w: too many chunks at dimension %d", ErrDimension, i)
		}
		total = lo
	}
	return nil
}

// Key renders chunk coordinates for diagnostics, e.g. [1, 4] -> "1.4".
func Key(coords []uint64) string {
	if len(coords) == 1 {
		return strconv.FormatUint(coords[0], 10)
	}
	var sb strings.Builder
	for i, c := range coords {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(strconv.FormatUint(c, 10))
	}
	return sb.String()
}

// Iterate visits every coordinate in [start, end) in row-major order. The
// slice passed to fn is reused between calls.
func Iterate(start, end []uint64, fn func(coords []uint64) error) error {
	for i := range start {
		if start[i] >= end[i] {
			return nil
		}
	}
	coords := make([]uint64, len(start))
	copy(coords, start)
	for {
		if err := fn(coords); err != nil {
			return err
		}
		i := len(start) - 1
		for ; i >= 0; i-- {
			coords[i]++
			if coords[i] < end[i] {
				break
			}
			coords[i] = start[i]
		}
		if i < 0 {
			return nil
		}
	}
}
