package omfile

import (
	"errors"
	"fmt"

	"github.com/yudeqang/om-file-format/internal/codec"
	"github.com/yudeqang/om-file-format/internal/format"
	"github.com/yudeqang/om-file-format/internal/grid"
)

var (
	// ErrFormat reports a bad magic number, version, trailer or variable record.
	ErrFormat = format.ErrInvalid
	// ErrDimension reports a read range outside the array, or invalid
	// dimensions or chunk dimensions. It is returned before any I/O.
	ErrDimension = grid.ErrDimension
	// ErrChunkShape reports data handed to a writer that does not line up with
	// whole chunks.
	ErrChunkShape = errors.New("chunk has wrong number of elements")
	// ErrCodec reports a chunk or lookup table block that fails to decompress.
	ErrCodec = codec.ErrCorrupt
	// ErrBackend wraps failures of the storage backend, including short reads.
	ErrBackend = errors.New("backend failure")
	// ErrTypeMismatch reports a read or write with an element type or
	// compression the variable does not hold.
	ErrTypeMismatch = errors.New("element type mismatch")
	// ErrWriterState reports a writer used out of order.
	ErrWriterState = errors.New("invalid writer state")
	// ErrNotFound reports a child variable lookup without a match or a
	// missing blob object.
	ErrNotFound = errors.New("not found")
)

func backendError(op string, err error) error {
	if errors.Is(err, ErrBackend) {
		return err
	}
	return fmt.Errorf("%w: failed to %s: %w", ErrBackend, op, err)
}
