// Package omfile reads and writes OM containers: a tree of typed variables
// whose array leaves are chunked, compressed and located through a
// compressed lookup table.
package omfile

import (
	"context"
	"fmt"

	"github.com/yudeqang/om-file-format/internal/format"
	"github.com/yudeqang/om-file-format/internal/grid"
)

// Reader is one variable of an open container.
type Reader struct {
	backend Backend
	opts    *options
	v       *format.Variable
	legacy  bool
}

// Open reads the header of the container in backend and returns the root
// variable. Version 1 and 2 files expose their single 2-D float array as the
// root.
func Open(ctx context.Context, backend Backend, opts ...Option) (*Reader, error) {
	o := newOptions(opts)
	size, err := backend.Size(ctx)
	if err != nil {
		return nil, backendError("get container size", err)
	}
	if size < format.HeaderSize {
		return nil, fmt.Errorf("%w: container of %d bytes", ErrFormat, size)
	}
	head, err := backend.ReadAt(ctx, 0, format.HeaderSize)
	if err != nil {
		return nil, backendError("read header", err)
	}
	kind, err := format.DetectHeader(head)
	if err != nil {
		return nil, err
	}
	if kind == format.HeaderLegacy {
		return openLegacy(ctx, backend, size, o)
	}

	if size < format.HeaderSize+format.TrailerSize {
		return nil, fmt.Errorf("%w: container of %d bytes has no trailer", ErrFormat, size)
	}
	b, err := backend.ReadAt(ctx, size-format.TrailerSize, format.TrailerSize)
	if err != nil {
		return nil, backendError("read trailer", err)
	}
	offset, length, err := format.ParseTrailer(b)
	if err != nil {
		return nil, err
	}
	if offset > size || length > size-offset {
		return nil, fmt.Errorf("%w: root variable [%d, %d+%d) outside container of %d bytes", ErrFormat, offset, offset, length, size)
	}
	return readVariable(ctx, backend, o, format.Child{Offset: offset, Size: length})
}

func openLegacy(ctx context.Context, backend Backend, size uint64, o *options) (*Reader, error) {
	if size < format.LegacyHeaderSize {
		return nil, fmt.Errorf("%w: legacy container of %d bytes", ErrFormat, size)
	}
	b, err := backend.ReadAt(ctx, 0, format.LegacyHeaderSize)
	if err != nil {
		return nil, backendError("read legacy header", err)
	}
	h, err := format.ParseLegacyHeader(b)
	if err != nil {
		return nil, err
	}
	dims := []uint64{h.Dim0, h.Dim1}
	chunks := []uint64{h.Chunk0, h.Chunk1}
	if err := grid.Validate(dims, chunks); err != nil {
		return nil, fmt.Errorf("%w: legacy header: %w", ErrFormat, err)
	}
	if n := grid.NumChunks(dims, chunks); n > (size-format.LegacyHeaderSize)/8 {
		return nil, fmt.Errorf("%w: legacy lookup table of %d chunks exceeds %d bytes", ErrFormat, n, size)
	}
	v := &format.Variable{
		Type:        TypeFloatArray,
		Compression: h.Compression,
		ScaleFactor: h.ScaleFactor,
		Dimensions:  dims,
		Chunks:      chunks,
		LutOffset:   format.LegacyHeaderSize,
		LutSize:     grid.NumChunks(dims, chunks) * 8,
	}
	return &Reader{backend: backend, opts: o, v: v, legacy: true}, nil
}

func readVariable(ctx context.Context, backend Backend, o *options, c format.Child) (*Reader, error) {
	b, err := backend.ReadAt(ctx, c.Offset, c.Size)
	if err != nil {
		return nil, backendError("read variable", err)
	}
	v, err := format.ParseVariable(b)
	if err != nil {
		return nil, fmt.Errorf("failed to decode variable at offset %d: %w", c.Offset, err)
	}
	return &Reader{backend: backend, opts: o, v: v}, nil
}

// Name returns the variable name. The root of a legacy file has no name.
func (r *Reader) Name() string { return r.v.Name }

// DataType returns the type tag of the variable.
func (r *Reader) DataType() DataType { return r.v.Type }

// Compression returns the compression of an array variable.
func (r *Reader) Compression() Compression { return r.v.Compression }

// Dimensions returns the shape of an array variable and nil otherwise.
func (r *Reader) Dimensions() []uint64 { return r.v.Dimensions }

// IsLegacy reports whether the container uses the version 1 or 2 layout.
func (r *Reader) IsLegacy() bool { return r.legacy }

// NumChildren returns the number of child variables.
func (r *Reader) NumChildren() int { return len(r.v.Children) }

// Child opens the i-th child variable.
func (r *Reader) Child(ctx context.Context, i int) (*Reader, error) {
	if i < 0 || i >= len(r.v.Children) {
		return nil, fmt.Errorf("%w: child %d of %d", ErrDimension, i, len(r.v.Children))
	}
	return readVariable(ctx, r.backend, r.opts, r.v.Children[i])
}

// ChildByName opens the first child variable called name.
func (r *Reader) ChildByName(ctx context.Context, name string) (*Reader, error) {
	for i := range r.v.Children {
		child, err := r.Child(ctx, i)
		if err != nil {
			return nil, err
		}
		if child.Name() == name {
			return child, nil
		}
	}
	return nil, fmt.Errorf("%w: %q has no child %q", ErrNotFound, r.v.Name, name)
}

// ReadString returns the value of a string scalar.
func (r *Reader) ReadString() (string, error) {
	if r.v.Type != TypeString {
		return "", fmt.Errorf("%w: %q is %s, not %s", ErrTypeMismatch, r.v.Name, r.v.Type, TypeString)
	}
	return string(r.v.Value), nil
}

// ReadScalar returns the value of a numeric scalar of type T.
func ReadScalar[T Element](r *Reader) (T, error) {
	var zero T
	if want := DataTypeOf[T](); r.v.Type != want {
		return zero, fmt.Errorf("%w: %q is %s, not %s", ErrTypeMismatch, r.v.Name, r.v.Type, want)
	}
	return decodeScalar[T](r.v.Value), nil
}
