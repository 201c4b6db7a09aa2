package omfile

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yudeqang/om-file-format/internal/codec"
	"github.com/yudeqang/om-file-format/internal/grid"
)

// largeChunk is the compressed chunk size above which the writer warns.
const largeChunk = 4 << 20

// ArrayWriter encodes the chunks of one array in row-major chunk order.
type ArrayWriter[T Element] struct {
	w      *Writer
	kernel kernel[T]

	dims        []uint64
	chunks      []uint64
	counts      []uint64
	numChunks   uint64
	compression Compression
	scale       float32
	offset      float32

	// lut holds the end of every written chunk relative to dataStart.
	lut       []uint64
	dataStart uint64
	next      uint64
	done      bool
}

// maxPreparedChunks bounds the lookup table capacity reserved up front.
const maxPreparedChunks = 1 << 16

// PrepareArray starts an array of shape dims split into chunks. Scale and
// offset are used by the scaled integer compressions. Until Finalize
// returns, no other variable can be written.
func PrepareArray[T Element](w *Writer, dims, chunks []uint64, compression Compression, scale, offset float32) (*ArrayWriter[T], error) {
	if err := grid.Validate(dims, chunks); err != nil {
		return nil, err
	}
	k, err := newKernel[T](compression, scale, offset, w.opts)
	if err != nil {
		return nil, err
	}
	if err := w.ready(); err != nil {
		return nil, err
	}
	w.arrayOpen = true
	n := grid.NumChunks(dims, chunks)
	lut := make([]uint64, 1, min(n, maxPreparedChunks)+1)
	return &ArrayWriter[T]{
		w:           w,
		kernel:      k,
		dims:        append([]uint64(nil), dims...),
		chunks:      append([]uint64(nil), chunks...),
		counts:      grid.Shape(dims, chunks),
		numChunks:   n,
		compression: compression,
		scale:       scale,
		offset:      offset,
		lut:         lut,
		dataStart:   w.position(),
	}, nil
}

// WriteData writes whole rows of chunks. data holds a multiple of
// chunks[0] rows of the array, or the remaining rows of the last chunk row.
func (aw *ArrayWriter[T]) WriteData(data []T) error {
	inner := grid.Product(aw.dims[1:])
	if uint64(len(data))%inner != 0 {
		return fmt.Errorf("%w: %d elements is not a whole number of rows of %d", ErrChunkShape, len(data), inner)
	}
	region := append([]uint64{uint64(len(data)) / inner}, aw.dims[1:]...)
	return aw.WriteRegion(data, region, make([]uint64, len(region)), region)
}

// WriteRegion writes the chunks held in a sub-block of data, a row-major
// array of shape arrayDims. The sub-block starts at arrayOffset, spans
// arrayCount elements and must cover the next chunks in order: whole chunks
// along every axis, except that the last chunk of an axis may be truncated
// by the array edge. The data is checked completely before anything is
// encoded.
func (aw *ArrayWriter[T]) WriteRegion(data []T, arrayDims, arrayOffset, arrayCount []uint64) error {
	if aw.done {
		return fmt.Errorf("%w: array is finalized", ErrWriterState)
	}
	rank := len(aw.dims)
	if len(arrayDims) != rank || len(arrayOffset) != rank || len(arrayCount) != rank {
		return fmt.Errorf("%w: region of rank %d/%d/%d for an array of rank %d", ErrDimension, len(arrayDims), len(arrayOffset), len(arrayCount), rank)
	}
	if n := grid.Product(arrayDims); uint64(len(data)) != n {
		return fmt.Errorf("%w: got %d elements for a region of %d", ErrChunkShape, len(data), n)
	}
	for i := range arrayDims {
		if arrayOffset[i] > arrayDims[i] || arrayCount[i] > arrayDims[i]-arrayOffset[i] {
			return fmt.Errorf("%w: [%d, %d+%d) outside region dimension %d of size %d", ErrDimension, arrayOffset[i], arrayOffset[i], arrayCount[i], i, arrayDims[i])
		}
	}
	if aw.next >= aw.numChunks {
		return fmt.Errorf("%w: all %d chunks are written", ErrChunkShape, aw.numChunks)
	}

	start := make([]uint64, rank)
	grid.Coords(aw.next, aw.counts, start)
	span := make([]uint64, rank)
	partial := -1
	for i := 0; i < rank; i++ {
		first := start[i] * aw.chunks[i]
		end := first + arrayCount[i]
		if arrayCount[i] == 0 || end > aw.dims[i] || (end != aw.dims[i] && end%aw.chunks[i] != 0) {
			return fmt.Errorf("%w: %d elements at chunk %d of dimension %d do not form whole chunks", ErrChunkShape, arrayCount[i], start[i], i)
		}
		span[i] = grid.Count(end, aw.chunks[i]) - start[i]
		if start[i] != 0 || span[i] != aw.counts[i] {
			partial = i
		}
	}
	// Chunks must follow each other in row-major order: axes outer to the
	// innermost partial axis cover one chunk each.
	for i := 0; i < partial; i++ {
		if span[i] != 1 {
			return fmt.Errorf("%w: region spans %d chunks of dimension %d but only part of dimension %d", ErrChunkShape, span[i], i, partial)
		}
	}
	if total := grid.Product(span); aw.next+total > aw.numChunks {
		return fmt.Errorf("%w: region holds %d chunks, %d remain", ErrChunkShape, total, aw.numChunks-aw.next)
	}

	end := make([]uint64, rank)
	for i := range end {
		end[i] = start[i] + span[i]
	}
	srcStrides := grid.Strides(arrayDims)
	shape := make([]uint64, rank)
	srcOffset := make([]uint64, rank)
	zero := make([]uint64, rank)
	return grid.Iterate(start, end, func(coords []uint64) error {
		for i, c := range coords {
			lo, hi := grid.Range(c, aw.dims[i], aw.chunks[i])
			shape[i] = hi - lo
			srcOffset[i] = arrayOffset[i] + lo - start[i]*aw.chunks[i]
		}
		scratch := make([]T, grid.Product(shape))
		grid.CopyND(scratch, grid.Strides(shape), zero, data, srcStrides, srcOffset, shape)
		return aw.writeChunk(coords, scratch, shape)
	})
}

func (aw *ArrayWriter[T]) writeChunk(coords []uint64, chunk []T, shape []uint64) error {
	w := aw.w
	if err := w.reserve(aw.kernel.bound(len(chunk))); err != nil {
		return err
	}
	cols := int(shape[len(shape)-1])
	before := len(w.buf)
	w.buf = aw.kernel.encode(w.buf, chunk, len(chunk)/cols, cols)
	size := uint64(len(w.buf) - before)
	if size > largeChunk {
		w.opts.logger.Info("compressed chunk is very large", "chunk", grid.Key(coords), "bytes", size)
	}
	aw.lut = append(aw.lut, aw.lut[len(aw.lut)-1]+size)
	aw.next++
	return nil
}

// Finalize appends the lookup table once every chunk is written and releases
// the writer for other variables.
func (aw *ArrayWriter[T]) Finalize() (meta ArrayMeta, err error) {
	_, span := tracer.Start(context.Background(), "omfile.ArrayWriter.Finalize")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if aw.done {
		return ArrayMeta{}, fmt.Errorf("%w: array is finalized", ErrWriterState)
	}
	if aw.next != aw.numChunks {
		return ArrayMeta{}, fmt.Errorf("%w: %d of %d chunks written", ErrChunkShape, aw.next, aw.numChunks)
	}
	abs := make([]uint64, len(aw.lut))
	for i, e := range aw.lut {
		abs[i] = aw.dataStart + e
	}
	table, _ := codec.EncodeLUT(abs)

	w := aw.w
	if err := w.reserve(len(table)); err != nil {
		return ArrayMeta{}, err
	}
	lutOffset := w.position()
	w.buf = append(w.buf, table...)
	aw.done = true
	w.arrayOpen = false
	span.SetAttributes(attribute.Int64("chunks", int64(aw.numChunks)), attribute.Int("lutBytes", len(table)))

	return ArrayMeta{
		Type:        DataTypeOf[T]().Array(),
		Compression: aw.compression,
		ScaleFactor: aw.scale,
		AddOffset:   aw.offset,
		Dimensions:  aw.dims,
		Chunks:      aw.chunks,
		LutOffset:   lutOffset,
		LutSize:     uint64(len(table)),
	}, nil
}
