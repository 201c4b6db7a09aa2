package omfile

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/yudeqang/om-file-format/internal/grid"
	"github.com/yudeqang/om-file-format/internal/plan"
)

var tracer = otel.Tracer("github.com/yudeqang/om-file-format")

// Range is the half-open element range [Start, End) of one axis.
type Range struct {
	Start uint64
	End   uint64
}

// Array reads an array variable with elements of type T.
type Array[T Element] struct {
	r      *Reader
	opts   *options
	kernel kernel[T]
	lut    lookupTable
}

// AsArray opens r as an array of T. The element type must match the stored
// type exactly.
func AsArray[T Element](r *Reader, opts ...Option) (*Array[T], error) {
	want := DataTypeOf[T]().Array()
	if r.v.Type != want {
		return nil, fmt.Errorf("%w: %q is %s, not %s", ErrTypeMismatch, r.v.Name, r.v.Type, want)
	}
	if err := grid.Validate(r.v.Dimensions, r.v.Chunks); err != nil {
		return nil, fmt.Errorf("%w: array %q: %w", ErrFormat, r.v.Name, err)
	}
	o := r.opts.with(opts)
	k, err := newKernel[T](r.v.Compression, r.v.ScaleFactor, r.v.AddOffset, o)
	if err != nil {
		return nil, err
	}
	lut, err := newLookupTable(r.v, r.legacy)
	if err != nil {
		return nil, err
	}
	return &Array[T]{r: r, opts: o, kernel: k, lut: lut}, nil
}

// Name returns the variable name.
func (a *Array[T]) Name() string { return a.r.v.Name }

// Dimensions returns the array shape.
func (a *Array[T]) Dimensions() []uint64 { return a.r.v.Dimensions }

// ChunkDimensions returns the nominal chunk shape.
func (a *Array[T]) ChunkDimensions() []uint64 { return a.r.v.Chunks }

// Compression returns the compression of the array.
func (a *Array[T]) Compression() Compression { return a.r.v.Compression }

// ScaleFactor returns the scale of the quantized compressions.
func (a *Array[T]) ScaleFactor() float32 { return a.r.v.ScaleFactor }

// AddOffset returns the offset subtracted before scaling.
func (a *Array[T]) AddOffset() float32 { return a.r.v.AddOffset }

// Full returns the ranges covering the whole array.
func (a *Array[T]) Full() []Range {
	ranges := make([]Range, len(a.r.v.Dimensions))
	for i, d := range a.r.v.Dimensions {
		ranges[i] = Range{End: d}
	}
	return ranges
}

// Read decodes the hyper-rectangle given by ranges into a new row-major
// buffer, one chunk at a time.
func (a *Array[T]) Read(ctx context.Context, ranges []Range) ([]T, error) {
	return a.readNew(ctx, ranges, false)
}

// ReadConcurrent is Read with the data reads of every lookup table step
// issued in parallel.
func (a *Array[T]) ReadConcurrent(ctx context.Context, ranges []Range) ([]T, error) {
	return a.readNew(ctx, ranges, true)
}

// ReadInto decodes ranges into dst, a row-major cube of shape cubeDims. The
// first element lands at cubeOffset; the rest of dst is left untouched. Nil
// cubeOffset and cubeDims mean the cube is exactly the requested region.
func (a *Array[T]) ReadInto(ctx context.Context, dst []T, ranges []Range, cubeOffset, cubeDims []uint64) error {
	return a.readInto(ctx, dst, ranges, cubeOffset, cubeDims, false)
}

// ReadConcurrentInto is ReadInto with concurrent data reads.
func (a *Array[T]) ReadConcurrentInto(ctx context.Context, dst []T, ranges []Range, cubeOffset, cubeDims []uint64) error {
	return a.readInto(ctx, dst, ranges, cubeOffset, cubeDims, true)
}

// ReadChunk decodes the chunk at coords. The result has the chunk's own,
// possibly truncated, shape.
func (a *Array[T]) ReadChunk(ctx context.Context, coords []uint64) ([]T, error) {
	dims, chunks := a.r.v.Dimensions, a.r.v.Chunks
	if len(coords) != len(dims) {
		return nil, fmt.Errorf("%w: chunk coordinates of rank %d on an array of rank %d", ErrDimension, len(coords), len(dims))
	}
	ranges := make([]Range, len(dims))
	for i, c := range coords {
		if c >= grid.Count(dims[i], chunks[i]) {
			return nil, fmt.Errorf("%w: chunk %s outside the chunk grid", ErrDimension, grid.Key(coords))
		}
		start, end := grid.Range(c, dims[i], chunks[i])
		ranges[i] = Range{Start: start, End: end}
	}
	return a.Read(ctx, ranges)
}

func (a *Array[T]) readNew(ctx context.Context, ranges []Range, concurrent bool) ([]T, error) {
	req, err := a.request(ranges, nil, nil)
	if err != nil {
		return nil, err
	}
	out := make([]T, grid.Product(req.Count))
	if err := a.decode(ctx, out, req, concurrent); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Array[T]) readInto(ctx context.Context, dst []T, ranges []Range, cubeOffset, cubeDims []uint64, concurrent bool) error {
	req, err := a.request(ranges, cubeOffset, cubeDims)
	if err != nil {
		return err
	}
	if n := grid.Product(cubeShape(req)); uint64(len(dst)) != n {
		return fmt.Errorf("%w: destination holds %d elements, cube needs %d", ErrDimension, len(dst), n)
	}
	return a.decode(ctx, dst, req, concurrent)
}

func (a *Array[T]) request(ranges []Range, cubeOffset, cubeDims []uint64) (plan.Request, error) {
	req := plan.Request{
		Dims:       a.r.v.Dimensions,
		Chunks:     a.r.v.Chunks,
		Offset:     make([]uint64, len(ranges)),
		Count:      make([]uint64, len(ranges)),
		CubeOffset: cubeOffset,
		CubeDims:   cubeDims,
	}
	if len(ranges) != len(req.Dims) {
		return req, fmt.Errorf("%w: %d ranges for an array of rank %d", ErrDimension, len(ranges), len(req.Dims))
	}
	for i, r := range ranges {
		if r.End < r.Start {
			return req, fmt.Errorf("%w: range [%d, %d) of dimension %d is reversed", ErrDimension, r.Start, r.End, i)
		}
		req.Offset[i] = r.Start
		req.Count[i] = r.End - r.Start
	}
	return req, nil
}
