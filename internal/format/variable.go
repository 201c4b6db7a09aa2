package format

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	scalarFixedSize = 8
	arrayFixedSize  = 40
	maxNameLength   = math.MaxUint16
)

// Child locates a variable record inside the container.
type Child struct {
	Offset uint64
	Size   uint64
}

// Variable is one record of the metadata tree.
type Variable struct {
	Type        DataType
	Compression Compression
	Name        string
	Children    []Child

	// Value holds the little-endian bytes of a numeric scalar, or the UTF-8
	// text of a string scalar. It is empty for none.
	Value []byte

	ScaleFactor float32
	AddOffset   float32
	Dimensions  []uint64
	Chunks      []uint64
	LutOffset   uint64
	LutSize     uint64
}

// AppendBinary appends the record encoding of v.
//
// Scalars: type, compression, name length (u16), child count (u32), child
// sizes, child offsets, value, name.
// Arrays: the same leading fields followed by lut size, lut offset,
// dimension count, scale factor, add offset, child sizes, child offsets,
// dimensions, chunk dimensions, name.
func (v *Variable) AppendBinary(dst []byte) ([]byte, error) {
	if !v.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type tag %d", ErrInvalid, uint8(v.Type))
	}
	if len(v.Name) > maxNameLength {
		return nil, fmt.Errorf("%w: name of %d bytes is too long", ErrInvalid, len(v.Name))
	}
	compression := v.Compression
	if !v.Type.IsArray() {
		compression = CompressionNone
	}
	dst = append(dst, byte(v.Type), byte(compression))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(v.Name)))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(v.Children)))

	if v.Type.IsArray() {
		if len(v.Dimensions) != len(v.Chunks) {
			return nil, fmt.Errorf("%w: %d dimensions but %d chunk dimensions", ErrInvalid, len(v.Dimensions), len(v.Chunks))
		}
		dst = binary.LittleEndian.AppendUint64(dst, v.LutSize)
		dst = binary.LittleEndian.AppendUint64(dst, v.LutOffset)
		dst = binary.LittleEndian.AppendUint64(dst, uint64(len(v.Dimensions)))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.ScaleFactor))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.AddOffset))
		dst = appendChildren(dst, v.Children)
		for _, d := range v.Dimensions {
			dst = binary.LittleEndian.AppendUint64(dst, d)
		}
		for _, c := range v.Chunks {
			dst = binary.LittleEndian.AppendUint64(dst, c)
		}
		return append(dst, v.Name...), nil
	}

	dst = appendChildren(dst, v.Children)
	switch v.Type {
	case TypeNone:
	case TypeString:
		dst = binary.LittleEndian.AppendUint64(dst, uint64(len(v.Value)))
		dst = append(dst, v.Value...)
	default:
		if len(v.Value) != v.Type.Width() {
			return nil, fmt.Errorf("%w: %s value needs %d bytes, got %d", ErrInvalid, v.Type, v.Type.Width(), len(v.Value))
		}
		dst = append(dst, v.Value...)
	}
	return append(dst, v.Name...), nil
}

func appendChildren(dst []byte, children []Child) []byte {
	for _, c := range children {
		dst = binary.LittleEndian.AppendUint64(dst, c.Size)
	}
	for _, c := range children {
		dst = binary.LittleEndian.AppendUint64(dst, c.Offset)
	}
	return dst
}

// ParseVariable decodes one record. The returned variable does not alias b.
func ParseVariable(b []byte) (*Variable, error) {
	if len(b) < scalarFixedSize {
		return nil, fmt.Errorf("%w: variable record of %d bytes is truncated", ErrInvalid, len(b))
	}
	v := &Variable{
		Type:        DataType(b[0]),
		Compression: Compression(b[1]),
	}
	if !v.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type tag %d", ErrInvalid, b[0])
	}
	if !v.Compression.Valid() {
		return nil, fmt.Errorf("%w: unknown compression tag %d", ErrInvalid, b[1])
	}
	nameLen := int(binary.LittleEndian.Uint16(b[2:]))
	numChildren := uint64(binary.LittleEndian.Uint32(b[4:]))

	r := recordReader{buf: b}
	if v.Type.IsArray() {
		if len(b) < arrayFixedSize {
			return nil, fmt.Errorf("%w: array record of %d bytes is truncated", ErrInvalid, len(b))
		}
		v.LutSize = binary.LittleEndian.Uint64(b[8:])
		v.LutOffset = binary.LittleEndian.Uint64(b[16:])
		rank := binary.LittleEndian.Uint64(b[24:])
		v.ScaleFactor = math.Float32frombits(binary.LittleEndian.Uint32(b[32:]))
		v.AddOffset = math.Float32frombits(binary.LittleEndian.Uint32(b[36:]))
		r.pos = arrayFixedSize
		v.Children = r.children(numChildren)
		v.Dimensions = r.uint64s(rank)
		v.Chunks = r.uint64s(rank)
	} else {
		r.pos = scalarFixedSize
		v.Children = r.children(numChildren)
		switch v.Type {
		case TypeNone:
		case TypeString:
			n := r.uint64s(1)
			if len(n) == 1 {
				v.Value = r.bytes(n[0])
			}
		default:
			v.Value = r.bytes(uint64(v.Type.Width()))
		}
	}
	v.Name = string(r.bytes(uint64(nameLen)))
	if r.err != nil {
		return nil, r.err
	}
	return v, nil
}

// recordReader is a bounds checked cursor. The first failure sticks.
type recordReader struct {
	buf []byte
	pos int
	err error
}

func (r *recordReader) need(n uint64) bool {
	if r.err != nil {
		return false
	}
	if n > uint64(len(r.buf)-r.pos) {
		r.err = fmt.Errorf("%w: variable record truncated at byte %d (need %d more)", ErrInvalid, r.pos, n)
		return false
	}
	return true
}

func (r *recordReader) uint64s(n uint64) []uint64 {
	if n > math.MaxInt32 || !r.need(n*8) {
		if r.err == nil {
			r.err = fmt.Errorf("%w: implausible count %d", ErrInvalid, n)
		}
		return nil
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(r.buf[r.pos:])
		r.pos += 8
	}
	return out
}

func (r *recordReader) children(n uint64) []Child {
	sizes := r.uint64s(n)
	offsets := r.uint64s(n)
	if r.err != nil || n == 0 {
		return nil
	}
	out := make([]Child, n)
	for i := range out {
		out[i] = Child{Offset: offsets[i], Size: sizes[i]}
	}
	return out
}

func (r *recordReader) bytes(n uint64) []byte {
	if !r.need(n) {
		return nil
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:])
	r.pos += int(n)
	return out
}
