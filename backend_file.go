package omfile

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// File is a Backend over a local file. Reads use pread, so concurrent reads
// need no locking.
type File struct {
	*ReaderAt
	f *os.File
}

// OpenFile opens path for reading.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, backendError("open file", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, backendError("stat file", err)
	}
	return &File{ReaderAt: NewReaderAt(f, uint64(st.Size())), f: f}, nil
}

// Close closes the file.
func (f *File) Close() error {
	return f.f.Close()
}

// AtomicFile is a WriteBackend that writes to a temporary file next to the
// target and renames it into place on Commit.
type AtomicFile struct {
	*os.File
	target string
	done   bool
}

// CreateFile starts writing a new file at path. Unless overwrite is set an
// existing file is an error wrapping os.ErrExist.
func CreateFile(path string, overwrite bool) (*AtomicFile, error) {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return nil, fmt.Errorf("%w: file %s exists already: %w", ErrBackend, path, os.ErrExist)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, backendError("stat file", err)
		}
	}
	tmp := path + "~" + uuid.NewString()
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, backendError("create file", err)
	}
	return &AtomicFile{File: f, target: path}, nil
}

// Commit syncs and closes the temporary file and moves it to the target.
func (a *AtomicFile) Commit() error {
	if a.done {
		return fmt.Errorf("%w: file already committed or aborted", ErrWriterState)
	}
	a.done = true
	tmp := a.File.Name()
	if err := a.File.Sync(); err != nil {
		a.File.Close()
		os.Remove(tmp)
		return backendError("sync file", err)
	}
	if err := a.File.Close(); err != nil {
		os.Remove(tmp)
		return backendError("close file", err)
	}
	if err := os.Rename(tmp, a.target); err != nil {
		os.Remove(tmp)
		return backendError("move file into place", err)
	}
	return nil
}

// Abort discards the temporary file.
func (a *AtomicFile) Abort() error {
	if a.done {
		return nil
	}
	a.done = true
	a.File.Close()
	if err := os.Remove(a.File.Name()); err != nil {
		return backendError("remove temporary file", err)
	}
	return nil
}
