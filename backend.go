package omfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Backend is random access storage holding a container.
//
// ReadAt must be safe to call from several goroutines at different offsets.
// The returned slice may be borrowed from the backend and must not be
// modified. A read that cannot return exactly length bytes fails.
type Backend interface {
	ReadAt(ctx context.Context, offset, length uint64) ([]byte, error)
	Size(ctx context.Context) (uint64, error)
}

// Prefetcher is implemented by backends that accept read-ahead hints.
// Prefetch is best effort and never reports errors.
type Prefetcher interface {
	Prefetch(offset, length uint64)
}

// WriteBackend is append-only storage for a Writer.
type WriteBackend interface {
	io.Writer
	// Sync flushes written bytes to stable storage.
	Sync() error
}

// Memory is an in-memory container. It is a Backend and a WriteBackend, and
// may be read while a single writer appends to it.
type Memory struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemory returns a Memory holding data. The slice is not copied.
func NewMemory(data []byte) *Memory {
	return &Memory{data: data}
}

func (m *Memory) ReadAt(_ context.Context, offset, length uint64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	size := uint64(len(m.data))
	if offset > size || length > size-offset {
		return nil, shortRead(offset, length, size)
	}
	return m.data[offset : offset+length : offset+length], nil
}

func (m *Memory) Size(context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.data)), nil
}

func (m *Memory) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append(m.data, p...)
	return len(p), nil
}

func (m *Memory) Sync() error { return nil }

// Bytes returns the container bytes written so far.
func (m *Memory) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data
}

// ReaderAt adapts an io.ReaderAt of known size, such as an *os.File.
type ReaderAt struct {
	r    io.ReaderAt
	size uint64
}

// NewReaderAt returns a Backend reading size bytes from r.
func NewReaderAt(r io.ReaderAt, size uint64) *ReaderAt {
	return &ReaderAt{r: r, size: size}
}

func (b *ReaderAt) ReadAt(ctx context.Context, offset, length uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, backendError("read", err)
	}
	if offset > b.size || length > b.size-offset {
		return nil, shortRead(offset, length, b.size)
	}
	buf := make([]byte, length)
	n, err := b.r.ReadAt(buf, int64(offset))
	if n == len(buf) {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return nil, backendError(fmt.Sprintf("read %d bytes at offset %d", length, offset), err)
}

func (b *ReaderAt) Size(context.Context) (uint64, error) { return b.size, nil }

func shortRead(offset, length, size uint64) error {
	return fmt.Errorf("%w: read of %d bytes at offset %d exceeds size %d: %w", ErrBackend, length, offset, size, io.ErrUnexpectedEOF)
}
