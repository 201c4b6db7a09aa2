package omfile

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/yudeqang/om-file-format/internal/grid"
	"github.com/yudeqang/om-file-format/internal/plan"
)

// decode runs one read: plan the chunks, then walk the merged lookup table
// reads in order. After each index read the chunks whose offsets are now
// known are fetched and decoded before the next index read is issued.
func (a *Array[T]) decode(ctx context.Context, dst []T, req plan.Request, concurrent bool) (err error) {
	ctx, span := tracer.Start(ctx, "omfile.Array.Read", trace.WithAttributes(
		attribute.String("variable", a.r.v.Name),
		attribute.Bool("concurrent", concurrent),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	chunks, err := plan.Chunks(req)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	if len(chunks) == 0 {
		return nil
	}

	// LUT blocks come out sorted and unique because chunk indices increase.
	var blocks []uint64
	for _, c := range chunks {
		for _, b := range [2]uint64{c.Index / lutBlock, (c.Index + 1) / lutBlock} {
			if len(blocks) == 0 || blocks[len(blocks)-1] != b {
				blocks = append(blocks, b)
			}
		}
	}
	spans := make([]plan.Span, len(blocks))
	for i, b := range blocks {
		spans[i] = a.lut.span(b)
	}
	indexReads := plan.Merge(spans, a.opts.ioSizeMax, a.opts.ioSizeMerge)

	entries := make(map[uint64][]uint64, len(blocks))
	offset := func(e uint64) uint64 { return entries[e/lutBlock][e%lutBlock] }
	strides := grid.Strides(cubeShape(req))

	next, dataReads := 0, 0
	for _, ir := range indexReads {
		buf, err := a.r.backend.ReadAt(ctx, ir.Offset, ir.Length)
		if err != nil {
			return backendError("read lookup table", err)
		}
		for k := ir.First; k < ir.Last; k++ {
			e, err := a.lut.decode(blocks[k], ir.Slice(buf, spans[k]))
			if err != nil {
				return err
			}
			entries[blocks[k]] = e
		}

		last := blocks[ir.Last-1]
		end := next
		for end < len(chunks) && (chunks[end].Index+1)/lutBlock <= last {
			end++
		}
		step := chunks[next:end]
		next = end
		if len(step) == 0 {
			continue
		}
		n, err := a.readStep(ctx, dst, strides, step, offset, concurrent)
		dataReads += n
		if err != nil {
			return err
		}
	}

	a.opts.logger.V(1).Info("read array", "name", a.r.v.Name, "chunks", len(chunks),
		"indexReads", len(indexReads), "dataReads", dataReads, "concurrent", concurrent)
	return nil
}

// readStep fetches and decodes the chunks of one index read. Concurrent
// units all run to completion and the first error is returned.
func (a *Array[T]) readStep(ctx context.Context, dst []T, strides []uint64, step []plan.Chunk, offset func(uint64) uint64, concurrent bool) (int, error) {
	spans := make([]plan.Span, len(step))
	for i, c := range step {
		start, end := offset(c.Index), offset(c.Index+1)
		if end < start || (i > 0 && start < spans[i-1].End()) {
			return 0, fmt.Errorf("%w: lookup table of %q is not monotonic at chunk %d", ErrFormat, a.r.v.Name, c.Index)
		}
		spans[i] = plan.Span{Offset: start, Length: end - start}
	}
	reads := plan.Merge(spans, a.opts.ioSizeMax, a.opts.ioSizeMerge)

	unit := func(rd plan.Read) error {
		buf, err := a.r.backend.ReadAt(ctx, rd.Offset, rd.Length)
		if err != nil {
			return backendError("read chunk data", err)
		}
		for k := rd.First; k < rd.Last; k++ {
			if err := a.decodeChunk(dst, strides, step[k], rd.Slice(buf, spans[k])); err != nil {
				return err
			}
		}
		return nil
	}

	if !concurrent || len(reads) == 1 {
		for _, rd := range reads {
			if err := unit(rd); err != nil {
				return len(reads), err
			}
		}
		return len(reads), nil
	}

	var g errgroup.Group
	if a.opts.concurrency > 0 {
		g.SetLimit(a.opts.concurrency)
	}
	for _, rd := range reads {
		g.Go(func() error { return unit(rd) })
	}
	return len(reads), g.Wait()
}

// decodeChunk decompresses one chunk and scatters the requested part of it.
// Destinations of distinct chunks are disjoint, so units may run in parallel.
func (a *Array[T]) decodeChunk(dst []T, strides []uint64, c plan.Chunk, src []byte) error {
	n := grid.Product(c.Shape)
	cols := c.Shape[len(c.Shape)-1]
	scratch := make([]T, n)
	if err := a.kernel.decode(scratch, src, int(n/cols), int(cols)); err != nil {
		return fmt.Errorf("failed to decode chunk %s of %q: %w", grid.Key(c.Coords), a.r.v.Name, err)
	}
	grid.CopyND(dst, strides, c.DstOffset, scratch, grid.Strides(c.Shape), c.SrcOffset, c.Count)
	return nil
}

func cubeShape(req plan.Request) []uint64 {
	if req.CubeDims == nil {
		return req.Count
	}
	return req.CubeDims
}

// WillNeed hints a Prefetcher backend that the chunks of ranges are about to
// be read. It resolves the lookup table to find their byte span. Failures are
// logged and otherwise ignored.
func (a *Array[T]) WillNeed(ctx context.Context, ranges []Range) {
	p, ok := a.r.backend.(Prefetcher)
	if !ok {
		return
	}
	req, err := a.request(ranges, nil, nil)
	if err != nil {
		return
	}
	chunks, err := plan.Chunks(req)
	if err != nil || len(chunks) == 0 {
		return
	}
	first, last := chunks[0].Index, chunks[len(chunks)-1].Index+1

	lo, hi := a.lut.span(first/lutBlock), a.lut.span(last/lutBlock)
	p.Prefetch(lo.Offset, hi.End()-lo.Offset)

	start, err := a.entry(ctx, first)
	if err == nil {
		var end uint64
		if end, err = a.entry(ctx, last); err == nil && end >= start {
			p.Prefetch(start, end-start)
			return
		}
	}
	if err != nil {
		a.opts.logger.V(1).Info("prefetch skipped", "name", a.r.v.Name, "error", err.Error())
	}
}

func (a *Array[T]) entry(ctx context.Context, e uint64) (uint64, error) {
	s := a.lut.span(e / lutBlock)
	buf, err := a.r.backend.ReadAt(ctx, s.Offset, s.Length)
	if err != nil {
		return 0, backendError("read lookup table", err)
	}
	entries, err := a.lut.decode(e/lutBlock, buf)
	if err != nil {
		return 0, err
	}
	return entries[e%lutBlock], nil
}
