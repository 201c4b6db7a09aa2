package omfile

import (
	"fmt"

	"github.com/yudeqang/om-file-format/internal/format"
)

// VariableRef locates a written variable record. Parents and the trailer
// refer to children through it.
type VariableRef struct {
	Offset uint64
	Size   uint64
}

// ArrayMeta describes a finalized array whose chunks and lookup table are
// already written. Pass it to Writer.WriteArray to emit its record.
type ArrayMeta struct {
	Type        DataType
	Compression Compression
	ScaleFactor float32
	AddOffset   float32
	Dimensions  []uint64
	Chunks      []uint64
	LutOffset   uint64
	LutSize     uint64
}

// Writer appends a container to a WriteBackend. Children are written before
// their parents and the root is passed to WriteTrailer last. A Writer is not
// safe for concurrent use.
type Writer struct {
	backend WriteBackend
	opts    *options

	buf      []byte
	flushed  uint64
	unsynced uint64

	headerDone  bool
	arrayOpen   bool
	trailerDone bool
	closed      bool
}

// NewWriter returns a Writer appending to backend. Nothing is written until
// the first variable or array.
func NewWriter(backend WriteBackend, opts ...Option) *Writer {
	o := newOptions(opts)
	return &Writer{
		backend: backend,
		opts:    o,
		buf:     make([]byte, 0, o.writeBufferSize),
	}
}

// position is the container offset of the next byte.
func (w *Writer) position() uint64 {
	return w.flushed + uint64(len(w.buf))
}

func (w *Writer) ready() error {
	switch {
	case w.closed:
		return fmt.Errorf("%w: trailer already written", ErrWriterState)
	case w.trailerDone:
		return fmt.Errorf("%w: trailer is buffered, retry WriteTrailer", ErrWriterState)
	case w.arrayOpen:
		return fmt.Errorf("%w: an array writer is not finalized", ErrWriterState)
	}
	if !w.headerDone {
		w.buf = format.AppendHeader(w.buf)
		w.headerDone = true
	}
	return nil
}

// reserve makes room for n more bytes, flushing first when the buffer
// cannot take them.
func (w *Writer) reserve(n int) error {
	if cap(w.buf)-len(w.buf) >= n {
		return nil
	}
	if err := w.flush(); err != nil {
		return err
	}
	if cap(w.buf) < n {
		w.buf = make([]byte, 0, n)
	}
	return nil
}

func (w *Writer) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	if _, err := w.backend.Write(w.buf); err != nil {
		return backendError("write", err)
	}
	n := uint64(len(w.buf))
	w.flushed += n
	w.unsynced += n
	w.buf = w.buf[:0]
	w.opts.logger.V(1).Info("flushed write buffer", "bytes", n, "offset", w.flushed)

	if w.opts.fsyncThreshold > 0 && w.unsynced >= w.opts.fsyncThreshold {
		return w.sync()
	}
	return nil
}

func (w *Writer) sync() error {
	if err := w.backend.Sync(); err != nil {
		return backendError("sync", err)
	}
	w.opts.logger.V(1).Info("synced backend", "bytes", w.unsynced)
	w.unsynced = 0
	return nil
}

// align pads with zeros to the next multiple of 8.
func (w *Writer) align() error {
	pad := int((8 - w.position()%8) % 8)
	if err := w.reserve(pad); err != nil {
		return err
	}
	w.buf = append(w.buf, make([]byte, pad)...)
	return nil
}

func (w *Writer) writeRecord(v *format.Variable, children []VariableRef) (VariableRef, error) {
	if err := w.ready(); err != nil {
		return VariableRef{}, err
	}
	if len(children) > 0 {
		v.Children = make([]format.Child, len(children))
		for i, c := range children {
			v.Children[i] = format.Child{Offset: c.Offset, Size: c.Size}
		}
	}
	rec, err := v.AppendBinary(nil)
	if err != nil {
		return VariableRef{}, err
	}
	if err := w.align(); err != nil {
		return VariableRef{}, err
	}
	if err := w.reserve(len(rec)); err != nil {
		return VariableRef{}, err
	}
	ref := VariableRef{Offset: w.position(), Size: uint64(len(rec))}
	w.buf = append(w.buf, rec...)
	return ref, nil
}

// WriteNone writes a valueless variable, typically a group of children.
func (w *Writer) WriteNone(name string, children ...VariableRef) (VariableRef, error) {
	return w.writeRecord(&format.Variable{Type: TypeNone, Name: name}, children)
}

// WriteString writes a string scalar.
func (w *Writer) WriteString(name, value string, children ...VariableRef) (VariableRef, error) {
	return w.writeRecord(&format.Variable{Type: TypeString, Name: name, Value: []byte(value)}, children)
}

// WriteScalar writes a numeric scalar.
func WriteScalar[T Element](w *Writer, name string, value T, children ...VariableRef) (VariableRef, error) {
	return w.writeRecord(&format.Variable{Type: DataTypeOf[T](), Name: name, Value: encodeScalar(value)}, children)
}

// WriteArray writes the record of a finalized array.
func (w *Writer) WriteArray(meta ArrayMeta, name string, children ...VariableRef) (VariableRef, error) {
	if !meta.Type.IsArray() {
		return VariableRef{}, fmt.Errorf("%w: %s is not an array type", ErrTypeMismatch, meta.Type)
	}
	return w.writeRecord(&format.Variable{
		Type:        meta.Type,
		Compression: meta.Compression,
		Name:        name,
		ScaleFactor: meta.ScaleFactor,
		AddOffset:   meta.AddOffset,
		Dimensions:  meta.Dimensions,
		Chunks:      meta.Chunks,
		LutOffset:   meta.LutOffset,
		LutSize:     meta.LutSize,
	}, children)
}

// WriteTrailer writes the trailer pointing at root, flushes and syncs. The
// writer cannot be used afterwards. When the flush or sync fails the call
// can be retried; the trailer already buffered is kept and root is ignored.
func (w *Writer) WriteTrailer(root VariableRef) error {
	if w.closed {
		return fmt.Errorf("%w: trailer already written", ErrWriterState)
	}
	if !w.trailerDone {
		if err := w.ready(); err != nil {
			return err
		}
		if err := w.align(); err != nil {
			return err
		}
		if err := w.reserve(format.TrailerSize); err != nil {
			return err
		}
		w.buf = format.AppendTrailer(w.buf, root.Offset, root.Size)
		w.trailerDone = true
	}
	if err := w.flush(); err != nil {
		return err
	}
	if err := w.sync(); err != nil {
		return err
	}
	w.closed = true
	return nil
}
