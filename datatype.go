package omfile

import (
	"encoding/binary"
	"math"

	"github.com/yudeqang/om-file-format/internal/format"
)

// DataType is the type tag of a variable.
type DataType = format.DataType

const (
	TypeNone        = format.TypeNone
	TypeInt8        = format.TypeInt8
	TypeUint8       = format.TypeUint8
	TypeInt16       = format.TypeInt16
	TypeUint16      = format.TypeUint16
	TypeInt32       = format.TypeInt32
	TypeUint32      = format.TypeUint32
	TypeInt64       = format.TypeInt64
	TypeUint64      = format.TypeUint64
	TypeFloat       = format.TypeFloat
	TypeDouble      = format.TypeDouble
	TypeString      = format.TypeString
	TypeInt8Array   = format.TypeInt8Array
	TypeUint8Array  = format.TypeUint8Array
	TypeInt16Array  = format.TypeInt16Array
	TypeUint16Array = format.TypeUint16Array
	TypeInt32Array  = format.TypeInt32Array
	TypeUint32Array = format.TypeUint32Array
	TypeInt64Array  = format.TypeInt64Array
	TypeUint64Array = format.TypeUint64Array
	TypeFloatArray  = format.TypeFloatArray
	TypeDoubleArray = format.TypeDoubleArray
	TypeStringArray = format.TypeStringArray
)

// Compression is the compression kind of an array.
type Compression = format.Compression

const (
	CompressionPforDelta2DInt16            = format.CompressionPforDelta2DInt16
	CompressionFpxXor2D                    = format.CompressionFpxXor2D
	CompressionPforDelta2D                 = format.CompressionPforDelta2D
	CompressionPforDelta2DInt16Logarithmic = format.CompressionPforDelta2DInt16Logarithmic
	CompressionNone                        = format.CompressionNone
)

// Element is the set of numeric element types of scalars and arrays.
type Element interface {
	int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64 | float32 | float64
}

type integer interface {
	int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64
}

// DataTypeOf returns the scalar type tag of T.
func DataTypeOf[T Element]() DataType {
	var zero T
	switch any(zero).(type) {
	case int8:
		return TypeInt8
	case uint8:
		return TypeUint8
	case int16:
		return TypeInt16
	case uint16:
		return TypeUint16
	case int32:
		return TypeInt32
	case uint32:
		return TypeUint32
	case int64:
		return TypeInt64
	case uint64:
		return TypeUint64
	case float32:
		return TypeFloat
	default:
		return TypeDouble
	}
}

func encodeScalar[T Element](v T) []byte {
	switch x := any(v).(type) {
	case int8:
		return []byte{byte(x)}
	case uint8:
		return []byte{x}
	case int16:
		return binary.LittleEndian.AppendUint16(nil, uint16(x))
	case uint16:
		return binary.LittleEndian.AppendUint16(nil, x)
	case int32:
		return binary.LittleEndian.AppendUint32(nil, uint32(x))
	case uint32:
		return binary.LittleEndian.AppendUint32(nil, x)
	case int64:
		return binary.LittleEndian.AppendUint64(nil, uint64(x))
	case uint64:
		return binary.LittleEndian.AppendUint64(nil, x)
	case float32:
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(x))
	default:
		return binary.LittleEndian.AppendUint64(nil, math.Float64bits(any(v).(float64)))
	}
}

func decodeScalar[T Element](b []byte) T {
	var out any
	switch any(*new(T)).(type) {
	case int8:
		out = int8(b[0])
	case uint8:
		out = b[0]
	case int16:
		out = int16(binary.LittleEndian.Uint16(b))
	case uint16:
		out = binary.LittleEndian.Uint16(b)
	case int32:
		out = int32(binary.LittleEndian.Uint32(b))
	case uint32:
		out = binary.LittleEndian.Uint32(b)
	case int64:
		out = int64(binary.LittleEndian.Uint64(b))
	case uint64:
		out = binary.LittleEndian.Uint64(b)
	case float32:
		out = math.Float32frombits(binary.LittleEndian.Uint32(b))
	default:
		out = math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return out.(T)
}
