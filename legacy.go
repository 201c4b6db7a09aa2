package omfile

import (
	"encoding/binary"
	"fmt"

	"github.com/yudeqang/om-file-format/internal/format"
	"github.com/yudeqang/om-file-format/internal/grid"
)

// WriteLegacy writes data, a row-major dims[0] x dims[1] float array, as a
// version 2 container: the 40 byte header, the uncompressed chunk end
// offsets and the chunk payloads. Such files carry no add offset and no
// variable tree.
func WriteLegacy(w WriteBackend, dims, chunks []uint64, compression Compression, scale float32, data []float32, opts ...Option) error {
	if len(dims) != 2 {
		return fmt.Errorf("%w: legacy files hold 2-D arrays, got rank %d", ErrDimension, len(dims))
	}
	if err := grid.Validate(dims, chunks); err != nil {
		return err
	}
	if n := grid.Product(dims); uint64(len(data)) != n {
		return fmt.Errorf("%w: got %d elements for an array of %d", ErrChunkShape, len(data), n)
	}
	o := newOptions(opts)
	k, err := newKernel[float32](compression, scale, 0, o)
	if err != nil {
		return err
	}

	counts := grid.Shape(dims, chunks)
	numChunks := grid.Product(counts)
	lut := make([]byte, 0, numChunks*8)
	var payload []byte
	srcStrides := grid.Strides(dims)
	shape := make([]uint64, 2)
	srcOffset := make([]uint64, 2)
	zero := make([]uint64, 2)
	err = grid.Iterate(make([]uint64, 2), counts, func(coords []uint64) error {
		for i, c := range coords {
			lo, hi := grid.Range(c, dims[i], chunks[i])
			shape[i] = hi - lo
			srcOffset[i] = lo
		}
		chunk := make([]float32, shape[0]*shape[1])
		grid.CopyND(chunk, grid.Strides(shape), zero, data, srcStrides, srcOffset, shape)
		payload = k.encode(payload, chunk, int(shape[0]), int(shape[1]))
		lut = binary.LittleEndian.AppendUint64(lut, uint64(len(payload)))
		return nil
	})
	if err != nil {
		return err
	}

	h := format.LegacyHeader{
		Version:     2,
		Compression: compression,
		ScaleFactor: scale,
		Dim0:        dims[0],
		Dim1:        dims[1],
		Chunk0:      chunks[0],
		Chunk1:      chunks[1],
	}
	for _, b := range [][]byte{h.AppendBinary(nil), lut, payload} {
		if _, err := w.Write(b); err != nil {
			return backendError("write legacy container", err)
		}
	}
	if err := w.Sync(); err != nil {
		return backendError("sync", err)
	}
	o.logger.V(1).Info("wrote legacy container", "chunks", numChunks, "bytes", format.LegacyHeaderSize+len(lut)+len(payload))
	return nil
}
