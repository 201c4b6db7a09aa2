// Package format implements the byte layout of OM containers: the modern and
// legacy headers, the trailer and the variable records that make up the
// metadata tree. All integers are little-endian.
package format

import (
	"errors"
	"fmt"
)

// ErrInvalid reports bytes that do not follow the container layout.
var ErrInvalid = errors.New("not a valid om container")

const (
	Magic1 = 79
	Magic2 = 77

	// Version is the format version written by this package.
	Version = 3

	HeaderSize       = 3
	LegacyHeaderSize = 40
	TrailerSize      = 24
)

// DataType is the type tag stored in every variable record.
type DataType uint8

const (
	TypeNone DataType = iota
	TypeInt8
	TypeUint8
	TypeInt16
	TypeUint16
	TypeInt32
	TypeUint32
	TypeInt64
	TypeUint64
	TypeFloat
	TypeDouble
	TypeString
	TypeInt8Array
	TypeUint8Array
	TypeInt16Array
	TypeUint16Array
	TypeInt32Array
	TypeUint32Array
	TypeInt64Array
	TypeUint64Array
	TypeFloatArray
	TypeDoubleArray
	TypeStringArray
)

var dataTypeNames = [...]string{
	"none", "int8", "uint8", "int16", "uint16", "int32", "uint32", "int64", "uint64",
	"float", "double", "string",
	"int8_array", "uint8_array", "int16_array", "uint16_array", "int32_array", "uint32_array",
	"int64_array", "uint64_array", "float_array", "double_array", "string_array",
}

func (t DataType) String() string {
	if t.Valid() {
		return dataTypeNames[t]
	}
	return fmt.Sprintf("DataType(%d)", uint8(t))
}

func (t DataType) Valid() bool { return t <= TypeStringArray }

func (t DataType) IsArray() bool { return t >= TypeInt8Array && t <= TypeStringArray }

func (t DataType) IsScalar() bool { return t >= TypeInt8 && t <= TypeString }

// Element returns the scalar type of an array type, and t itself otherwise.
func (t DataType) Element() DataType {
	if t.IsArray() {
		return t - (TypeInt8Array - TypeInt8)
	}
	return t
}

// Array returns the array counterpart of a scalar type, and t itself otherwise.
func (t DataType) Array() DataType {
	if t.IsScalar() {
		return t + (TypeInt8Array - TypeInt8)
	}
	return t
}

// Width is the byte width of one element. It is 0 for none and strings.
func (t DataType) Width() int {
	switch t.Element() {
	case TypeInt8, TypeUint8:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat:
		return 4
	case TypeInt64, TypeUint64, TypeDouble:
		return 8
	default:
		return 0
	}
}

// Compression is the compression tag of an array.
type Compression uint8

const (
	// CompressionPforDelta2DInt16 stores float32 values scaled to int16.
	CompressionPforDelta2DInt16 Compression = iota
	// CompressionFpxXor2D stores floats losslessly after a 2-D xor transform.
	CompressionFpxXor2D
	// CompressionPforDelta2D stores integers, or floats scaled to 32/64-bit integers.
	CompressionPforDelta2D
	// CompressionPforDelta2DInt16Logarithmic is the int16 path on log10(1+x).
	CompressionPforDelta2DInt16Logarithmic
	// CompressionNone stores raw little-endian elements.
	CompressionNone
)

var compressionNames = [...]string{
	"pfor_delta2d_int16", "fpx_xor2d", "pfor_delta2d", "pfor_delta2d_int16_logarithmic", "none",
}

func (c Compression) String() string {
	if c.Valid() {
		return compressionNames[c]
	}
	return fmt.Sprintf("Compression(%d)", uint8(c))
}

func (c Compression) Valid() bool { return c <= CompressionNone }
