package format

import (
	"encoding/binary"
	"fmt"
	"math"
)

// HeaderKind is the result of inspecting the first bytes of a container.
type HeaderKind int

const (
	HeaderInvalid HeaderKind = iota
	// HeaderLegacy is a version 1 or 2 file with a 40 byte header and a single 2-D array.
	HeaderLegacy
	// HeaderModern is a version 3 file whose metadata is located by the trailer.
	HeaderModern
)

// DetectHeader branches on the magic number and version of a container.
func DetectHeader(b []byte) (HeaderKind, error) {
	if len(b) < HeaderSize {
		return HeaderInvalid, fmt.Errorf("%w: header needs %d bytes, got %d", ErrInvalid, HeaderSize, len(b))
	}
	if b[0] != Magic1 || b[1] != Magic2 {
		return HeaderInvalid, fmt.Errorf("%w: bad magic number %d %d", ErrInvalid, b[0], b[1])
	}
	switch v := b[2]; {
	case v == 1 || v == 2:
		return HeaderLegacy, nil
	case v >= Version:
		return HeaderModern, nil
	default:
		return HeaderInvalid, fmt.Errorf("%w: unsupported version %d", ErrInvalid, v)
	}
}

// AppendHeader appends the 3 byte modern header.
func AppendHeader(dst []byte) []byte {
	return append(dst, Magic1, Magic2, Version)
}

// LegacyHeader is the fixed header of version 1 and 2 files.
type LegacyHeader struct {
	Version     uint8
	Compression Compression
	ScaleFactor float32
	Dim0, Dim1  uint64
	Chunk0      uint64
	Chunk1      uint64
}

// ParseLegacyHeader decodes a 40 byte legacy header.
func ParseLegacyHeader(b []byte) (*LegacyHeader, error) {
	if len(b) < LegacyHeaderSize {
		return nil, fmt.Errorf("%w: legacy header needs %d bytes, got %d", ErrInvalid, LegacyHeaderSize, len(b))
	}
	if b[0] != Magic1 || b[1] != Magic2 || (b[2] != 1 && b[2] != 2) {
		return nil, fmt.Errorf("%w: not a legacy header", ErrInvalid)
	}
	h := &LegacyHeader{
		Version:     b[2],
		Compression: Compression(b[3]),
		ScaleFactor: math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
		Dim0:        binary.LittleEndian.Uint64(b[8:]),
		Dim1:        binary.LittleEndian.Uint64(b[16:]),
		Chunk0:      binary.LittleEndian.Uint64(b[24:]),
		Chunk1:      binary.LittleEndian.Uint64(b[32:]),
	}
	// Version 1 files did not record the compression correctly.
	if h.Version == 1 {
		h.Compression = CompressionPforDelta2DInt16
	}
	if !h.Compression.Valid() {
		return nil, fmt.Errorf("%w: unknown compression %d", ErrInvalid, b[3])
	}
	return h, nil
}

// AppendBinary appends the 40 byte encoding of h.
func (h *LegacyHeader) AppendBinary(dst []byte) []byte {
	dst = append(dst, Magic1, Magic2, h.Version, byte(h.Compression))
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(h.ScaleFactor))
	dst = binary.LittleEndian.AppendUint64(dst, h.Dim0)
	dst = binary.LittleEndian.AppendUint64(dst, h.Dim1)
	dst = binary.LittleEndian.AppendUint64(dst, h.Chunk0)
	return binary.LittleEndian.AppendUint64(dst, h.Chunk1)
}

// AppendTrailer appends the 24 byte trailer locating the root variable.
func AppendTrailer(dst []byte, offset, size uint64) []byte {
	dst = append(dst, Magic1, Magic2, Version, 0, 0, 0, 0, 0)
	dst = binary.LittleEndian.AppendUint64(dst, offset)
	return binary.LittleEndian.AppendUint64(dst, size)
}

// ParseTrailer returns the offset and size of the root variable.
func ParseTrailer(b []byte) (offset, size uint64, err error) {
	if len(b) != TrailerSize {
		return 0, 0, fmt.Errorf("%w: trailer needs %d bytes, got %d", ErrInvalid, TrailerSize, len(b))
	}
	if b[0] != Magic1 || b[1] != Magic2 || b[2] < Version {
		return 0, 0, fmt.Errorf("%w: bad trailer magic", ErrInvalid)
	}
	return binary.LittleEndian.Uint64(b[8:]), binary.LittleEndian.Uint64(b[16:]), nil
}
