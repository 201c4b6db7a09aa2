package omfile

import (
	"context"
	"fmt"
)

// ReadInterpolated bilinearly interpolates a 2-D float field between the
// cells (dim0, dim1) and (dim0+1, dim1+1). f0 weighs the step along axis 0
// and f1 the step along axis 1. A cell past the second-last index is clamped
// to it with a fraction of 1.
func ReadInterpolated(ctx context.Context, a *Array[float32], dim0 uint64, f0 float32, dim1 uint64, f1 float32) (float32, error) {
	dims := a.Dimensions()
	if len(dims) != 2 || dims[0] < 2 || dims[1] < 2 {
		return 0, fmt.Errorf("%w: interpolation needs a 2-D array of at least 2x2, got %v", ErrDimension, dims)
	}
	dim0, f0 = clampCell(dim0, f0, dims[0])
	dim1, f1 = clampCell(dim1, f1, dims[1])

	p, err := a.Read(ctx, []Range{{dim0, dim0 + 2}, {dim1, dim1 + 2}})
	if err != nil {
		return 0, err
	}
	return p[0]*(1-f0)*(1-f1) +
		p[1]*(1-f0)*f1 +
		p[2]*f0*(1-f1) +
		p[3]*f0*f1, nil
}

// ReadInterpolatedSeries interpolates time series. Axis 0 holds a flattened
// y*nx+x location grid and axis 1 is time. The four locations around
// (x+fx, y+fy) are read over dim1 and blended per time step.
func ReadInterpolatedSeries(ctx context.Context, a *Array[float32], x uint64, fx float32, y uint64, fy float32, nx uint64, dim1 Range) ([]float32, error) {
	dims := a.Dimensions()
	if len(dims) != 2 || nx < 2 || dims[0]/nx < 2 {
		return nil, fmt.Errorf("%w: series interpolation needs at least a 2x2 location grid, got %v with nx %d", ErrDimension, dims, nx)
	}
	x, fx = clampCell(x, fx, nx)
	y, fy = clampCell(y, fy, dims[0]/nx)

	top, err := a.Read(ctx, []Range{{y*nx + x, y*nx + x + 2}, dim1})
	if err != nil {
		return nil, err
	}
	bottom, err := a.Read(ctx, []Range{{(y+1)*nx + x, (y+1)*nx + x + 2}, dim1})
	if err != nil {
		return nil, err
	}
	nt := int(dim1.End - dim1.Start)
	out := make([]float32, nt)
	for t := range out {
		out[t] = top[t]*(1-fx)*(1-fy) +
			top[nt+t]*fx*(1-fy) +
			bottom[t]*(1-fx)*fy +
			bottom[nt+t]*fx*fy
	}
	return out, nil
}

func clampCell(i uint64, f float32, n uint64) (uint64, float32) {
	if i > n-2 {
		return n - 2, 1
	}
	return i, f
}
