//go:build linux || darwin || freebsd

package omfile

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Mmap is a read-only memory mapped file. Slices returned by ReadAt borrow
// from the mapping and are invalid after Close.
type Mmap struct {
	mu   sync.RWMutex
	data []byte
	size uint64
}

// MmapFile maps path into memory.
func MmapFile(path string) (*Mmap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, backendError("open file", err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, backendError("stat file", err)
	}
	size := st.Size()
	if size == 0 {
		return &Mmap{}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, backendError("mmap file", err)
	}
	return &Mmap{data: data, size: uint64(size)}, nil
}

func (m *Mmap) ReadAt(_ context.Context, offset, length uint64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.data == nil && m.size > 0 {
		return nil, fmt.Errorf("%w: mapping is closed", ErrBackend)
	}
	if offset > m.size || length > m.size-offset {
		return nil, shortRead(offset, length, m.size)
	}
	return m.data[offset : offset+length : offset+length], nil
}

func (m *Mmap) Size(context.Context) (uint64, error) { return m.size, nil }

// Prefetch asks the kernel to page in the range.
func (m *Mmap) Prefetch(offset, length uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.data == nil || offset >= m.size {
		return
	}
	page := uint64(os.Getpagesize())
	start := offset &^ (page - 1)
	end := min(offset+length, m.size)
	_ = unix.Madvise(m.data[start:end], unix.MADV_WILLNEED)
}

// Close unmaps the file.
func (m *Mmap) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	if err != nil {
		return backendError("munmap file", err)
	}
	return nil
}
