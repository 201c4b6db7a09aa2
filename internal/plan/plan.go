// Package plan maps read requests onto chunks and coalesces the byte ranges
// those chunks need into bounded backend reads.
package plan

import (
	"fmt"

	"github.com/yudeqang/om-file-format/internal/grid"
)

// Request describes one read: a hyper-rectangle of an array and where to put
// it inside a destination cube.
type Request struct {
	Dims   []uint64
	Chunks []uint64

	Offset []uint64
	Count  []uint64

	// CubeOffset and CubeDims place the read inside the destination buffer.
	// Both nil means the cube is exactly the requested rectangle.
	CubeOffset []uint64
	CubeDims   []uint64
}

// Chunk is one chunk visit of a plan.
type Chunk struct {
	Index  uint64
	Coords []uint64
	// Shape is the extent of the chunk, smaller than nominal at array edges.
	Shape []uint64
	// SrcOffset is the start of the intersection inside the chunk.
	SrcOffset []uint64
	// DstOffset is the start of the intersection inside the cube.
	DstOffset []uint64
	// Count is the extent of the intersection.
	Count []uint64
}

// Chunks validates req and lists the chunks intersecting the requested
// rectangle in increasing linear index order. The destination rectangles of
// distinct chunks never overlap. A request with a zero count on any axis
// yields an empty plan.
func Chunks(req Request) ([]Chunk, error) {
	rank := len(req.Dims)
	if len(req.Chunks) != rank || len(req.Offset) != rank || len(req.Count) != rank {
		return nil, fmt.Errorf("%w: read of rank %d/%d on an array of rank %d", grid.ErrDimension, len(req.Offset), len(req.Count), rank)
	}
	cubeOffset, cubeDims := req.CubeOffset, req.CubeDims
	if cubeOffset == nil && cubeDims == nil {
		cubeOffset = make([]uint64, rank)
		cubeDims = req.Count
	}
	if len(cubeOffset) != rank || len(cubeDims) != rank {
		return nil, fmt.Errorf("%w: cube of rank %d/%d on an array of rank %d", grid.ErrDimension, len(cubeOffset), len(cubeDims), rank)
	}

	empty := false
	for i := 0; i < rank; i++ {
		if req.Offset[i] > req.Dims[i] || req.Count[i] > req.Dims[i]-req.Offset[i] {
			return nil, fmt.Errorf("%w: range [%d, %d+%d) outside dimension %d of size %d",
				grid.ErrDimension, req.Offset[i], req.Offset[i], req.Count[i], i, req.Dims[i])
		}
		if cubeOffset[i] > cubeDims[i] || req.Count[i] > cubeDims[i]-cubeOffset[i] {
			return nil, fmt.Errorf("%w: %d elements at cube offset %d exceed cube dimension %d of size %d",
				grid.ErrDimension, req.Count[i], cubeOffset[i], i, cubeDims[i])
		}
		if req.Count[i] == 0 {
			empty = true
		}
	}
	if empty {
		return nil, nil
	}

	lower := make([]uint64, rank)
	upper := make([]uint64, rank)
	for i := 0; i < rank; i++ {
		lower[i] = req.Offset[i] / req.Chunks[i]
		upper[i] = grid.Count(req.Offset[i]+req.Count[i], req.Chunks[i])
	}
	counts := grid.Shape(req.Dims, req.Chunks)

	var out []Chunk
	err := grid.Iterate(lower, upper, func(coords []uint64) error {
		c := Chunk{
			Index:     grid.Index(coords, counts),
			Coords:    append([]uint64(nil), coords...),
			Shape:     make([]uint64, rank),
			SrcOffset: make([]uint64, rank),
			DstOffset: make([]uint64, rank),
			Count:     make([]uint64, rank),
		}
		for i := 0; i < rank; i++ {
			start, end := grid.Range(coords[i], req.Dims[i], req.Chunks[i])
			lo := max(start, req.Offset[i])
			hi := min(end, req.Offset[i]+req.Count[i])
			c.Shape[i] = end - start
			c.SrcOffset[i] = lo - start
			c.DstOffset[i] = cubeOffset[i] + lo - req.Offset[i]
			c.Count[i] = hi - lo
		}
		out = append(out, c)
		return nil
	})
	return out, err
}
