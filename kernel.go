package omfile

import (
	"fmt"
	"math"

	"github.com/yudeqang/om-file-format/internal/codec"
)

// BlockCodec compresses blocks of fixed width little-endian elements. It is
// the pluggable stage of every compression kind, see WithBlockCodec.
type BlockCodec interface {
	// Name is the name of the codec.
	Name() string
	// Encode appends the compressed form of src to dst.
	Encode(dst, src []byte, width int) []byte
	// Decode decompresses src into dst, which is exactly as long as the
	// uncompressed block. Errors should wrap ErrCodec. It must be safe for
	// concurrent use.
	Decode(dst, src []byte, width int) error
	// Bound returns the largest compressed size of n input bytes.
	Bound(n int) int
}

func defaultCodec(kind Compression) BlockCodec {
	switch kind {
	case CompressionFpxXor2D:
		return codec.Float
	case CompressionNone:
		return codec.Raw
	default:
		return codec.Integer
	}
}

type filter int

const (
	filterNone filter = iota
	filterDelta
	filterXor
)

// kernel converts between one chunk of T and its compressed bytes.
type kernel[T Element] interface {
	decode(dst []T, src []byte, rows, cols int) error
	encode(dst []byte, src []T, rows, cols int) []byte
	bound(n int) int
}

// pipeline stores T as the integer type S: convert, transform, pack, compress.
type pipeline[T Element, S integer] struct {
	codec  BlockCodec
	width  int
	filter filter
	load   func(dst []S, src []T)
	store  func(dst []T, src []S)
}

func (p pipeline[T, S]) decode(dst []T, src []byte, rows, cols int) error {
	raw := make([]byte, len(dst)*p.width)
	if err := p.codec.Decode(raw, src, p.width); err != nil {
		return err
	}
	stored := make([]S, len(dst))
	codec.GetLE(stored, raw, p.width)
	switch p.filter {
	case filterDelta:
		codec.Delta2DDecode(rows, cols, stored)
	case filterXor:
		codec.Xor2DDecode(rows, cols, stored)
	}
	p.store(dst, stored)
	return nil
}

func (p pipeline[T, S]) encode(dst []byte, src []T, rows, cols int) []byte {
	stored := make([]S, len(src))
	p.load(stored, src)
	switch p.filter {
	case filterDelta:
		codec.Delta2DEncode(rows, cols, stored)
	case filterXor:
		codec.Xor2DEncode(rows, cols, stored)
	}
	raw := make([]byte, len(src)*p.width)
	codec.PutLE(raw, stored, p.width)
	return p.codec.Encode(dst, raw, p.width)
}

func (p pipeline[T, S]) bound(n int) int {
	return p.codec.Bound(n * p.width)
}

func same[S integer](dst, src []S) { copy(dst, src) }

func intPipeline[S integer](c BlockCodec, width int, f filter) pipeline[S, S] {
	return pipeline[S, S]{codec: c, width: width, filter: f, load: same[S], store: same[S]}
}

func quantized[F codec.Floating, S codec.Quantized](c BlockCodec, width int, scale, offset float32, logarithmic bool) pipeline[F, S] {
	return pipeline[F, S]{
		codec:  c,
		width:  width,
		filter: filterDelta,
		load:   func(dst []S, src []F) { codec.Quantize(dst, src, scale, offset, logarithmic) },
		store:  func(dst []F, src []S) { codec.Dequantize(dst, src, scale, offset, logarithmic) },
	}
}

func float32Bits(c BlockCodec, f filter) pipeline[float32, uint32] {
	return pipeline[float32, uint32]{
		codec: c, width: 4, filter: f,
		load: func(dst []uint32, src []float32) {
			for i, v := range src {
				dst[i] = math.Float32bits(v)
			}
		},
		store: func(dst []float32, src []uint32) {
			for i, v := range src {
				dst[i] = math.Float32frombits(v)
			}
		},
	}
}

func float64Bits(c BlockCodec, f filter) pipeline[float64, uint64] {
	return pipeline[float64, uint64]{
		codec: c, width: 8, filter: f,
		load: func(dst []uint64, src []float64) {
			for i, v := range src {
				dst[i] = math.Float64bits(v)
			}
		},
		store: func(dst []float64, src []uint64) {
			for i, v := range src {
				dst[i] = math.Float64frombits(v)
			}
		},
	}
}

// newKernel picks the pipeline of an element type and compression kind.
func newKernel[T Element](kind Compression, scale, offset float32, o *options) (kernel[T], error) {
	c, ok := o.codecs[kind]
	if !ok {
		c = defaultCodec(kind)
	}
	var k any
	switch kind {
	case CompressionPforDelta2DInt16, CompressionPforDelta2DInt16Logarithmic:
		if DataTypeOf[T]() == TypeFloat {
			k = quantized[float32, int16](c, 2, scale, offset, kind == CompressionPforDelta2DInt16Logarithmic)
		}
	case CompressionFpxXor2D:
		switch DataTypeOf[T]() {
		case TypeFloat:
			k = float32Bits(c, filterXor)
		case TypeDouble:
			k = float64Bits(c, filterXor)
		}
	case CompressionPforDelta2D:
		k = integerKernel[T](c, filterDelta, scale, offset)
	case CompressionNone:
		k = integerKernel[T](c, filterNone, scale, offset)
	default:
		return nil, fmt.Errorf("%w: unknown compression %s", ErrFormat, kind)
	}
	kt, ok := k.(kernel[T])
	if !ok {
		return nil, fmt.Errorf("%w: compression %s cannot store %s", ErrTypeMismatch, kind, DataTypeOf[T]())
	}
	return kt, nil
}

// integerKernel covers pfor_delta2d and none. Floats under pfor_delta2d are
// scaled into 32 or 64-bit integers; under none they keep their bit pattern.
func integerKernel[T Element](c BlockCodec, f filter, scale, offset float32) any {
	switch DataTypeOf[T]() {
	case TypeInt8:
		return intPipeline[int8](c, 1, f)
	case TypeUint8:
		return intPipeline[uint8](c, 1, f)
	case TypeInt16:
		return intPipeline[int16](c, 2, f)
	case TypeUint16:
		return intPipeline[uint16](c, 2, f)
	case TypeInt32:
		return intPipeline[int32](c, 4, f)
	case TypeUint32:
		return intPipeline[uint32](c, 4, f)
	case TypeInt64:
		return intPipeline[int64](c, 8, f)
	case TypeUint64:
		return intPipeline[uint64](c, 8, f)
	case TypeFloat:
		if f == filterNone {
			return float32Bits(c, filterNone)
		}
		return quantized[float32, int32](c, 4, scale, offset, false)
	default:
		if f == filterNone {
			return float64Bits(c, filterNone)
		}
		return quantized[float64, int64](c, 8, scale, offset, false)
	}
}
