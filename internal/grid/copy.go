package grid

// CopyND copies an n-dimensional block of the given shape from src to dst.
// Both buffers are flat row-major arrays with independent strides, and the
// offsets are element coordinates inside each of them.
func CopyND[T any](
	dst []T, dstStrides, dstOffset []uint64,
	src []T, srcStrides, srcOffset []uint64,
	shape []uint64,
) {
	if len(shape) == 0 {
		dst[0] = src[0]
		return
	}
	for _, s := range shape {
		if s == 0 {
			return
		}
	}

	var srcStart, dstStart uint64
	for i := range shape {
		srcStart += srcOffset[i] * srcStrides[i]
		dstStart += dstOffset[i] * dstStrides[i]
	}

	last := len(shape) - 1
	var iterate func(dim int, srcIdx, dstIdx uint64)
	iterate = func(dim int, srcIdx, dstIdx uint64) {
		if dim == last {
			n := shape[dim]
			// bulk copy for the innermost contiguous dimension
			if srcStrides[dim] == 1 && dstStrides[dim] == 1 {
				copy(dst[dstIdx:dstIdx+n], src[srcIdx:srcIdx+n])
				return
			}
			for i := uint64(0); i < n; i++ {
				dst[dstIdx+i*dstStrides[dim]] = src[srcIdx+i*srcStrides[dim]]
			}
			return
		}
		for i := uint64(0); i < shape[dim]; i++ {
			iterate(dim+1, srcIdx+i*srcStrides[dim], dstIdx+i*dstStrides[dim])
		}
	}
	iterate(0, srcStart, dstStart)
}
