// Package codec implements the block codecs applied to chunk payloads and to
// the chunk lookup table, together with the spatial transforms and the
// float quantisation that run before them.
package codec

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// ErrCorrupt reports a compressed block that cannot be decoded.
var ErrCorrupt = errors.New("corrupt compressed block")

// Codec compresses blocks of fixed width little-endian elements.
type Codec interface {
	// Name is the name of the codec.
	Name() string
	// Encode appends the compressed form of src to dst and returns the result.
	Encode(dst, src []byte, width int) []byte
	// Decode decompresses src into dst, which must be exactly as long as the
	// uncompressed block. It must be safe to call from several goroutines.
	Decode(dst, src []byte, width int) error
	// Bound returns the largest compressed size of n input bytes.
	Bound(n int) int
}

var (
	// Integer zigzags, byte shuffles and s2-compresses integer payloads.
	Integer Codec = zigzagS2{}
	// Float byte shuffles and zstd-compresses float bit patterns.
	Float Codec = shuffleZstd{}
	// Raw stores payloads as they are.
	Raw Codec = raw{}
)

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		panic(err)
	}
	zstdEncoder = enc
	// by default, concurrency is min(4, GOMAXPROCS); the concurrent driver
	// can decode one chunk per processor
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(runtime.GOMAXPROCS(0)))
	if err != nil {
		panic(err)
	}
	zstdDecoder = dec
}

type zigzagS2 struct{}

func (zigzagS2) Name() string { return "zigzag-s2" }

func (zigzagS2) Bound(n int) int { return s2.MaxEncodedLen(n) }

func (zigzagS2) Encode(dst, src []byte, width int) []byte {
	buf := make([]byte, 2*len(src))
	zz, shuffled := buf[:len(src)], buf[len(src):]
	Zigzag(zz, src, width)
	Shuffle(shuffled, zz, width)

	tail := dst[len(dst):cap(dst)]
	got := s2.Encode(tail, shuffled)
	if len(tail) > 0 && len(got) > 0 && &tail[0] == &got[0] {
		return dst[:len(dst)+len(got)]
	}
	return append(dst, got...)
}

func (zigzagS2) Decode(dst, src []byte, width int) error {
	n, err := s2.DecodedLen(src)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if n != len(dst) {
		return fmt.Errorf("%w: block holds %d bytes, expected %d", ErrCorrupt, n, len(dst))
	}
	shuffled := make([]byte, len(dst))
	if _, err := s2.Decode(shuffled, src); err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	Unshuffle(dst, shuffled, width)
	Unzigzag(dst, width)
	return nil
}

type shuffleZstd struct{}

func (shuffleZstd) Name() string { return "shuffle-zstd" }

func (shuffleZstd) Bound(n int) int { return n + n>>7 + 64 }

func (shuffleZstd) Encode(dst, src []byte, width int) []byte {
	shuffled := make([]byte, len(src))
	Shuffle(shuffled, src, width)
	return zstdEncoder.EncodeAll(shuffled, dst)
}

func (shuffleZstd) Decode(dst, src []byte, width int) error {
	out, err := zstdDecoder.DecodeAll(src, make([]byte, 0, len(dst)))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if len(out) != len(dst) {
		return fmt.Errorf("%w: block holds %d bytes, expected %d", ErrCorrupt, len(out), len(dst))
	}
	Unshuffle(dst, out, width)
	return nil
}

type raw struct{}

func (raw) Name() string { return "none" }

func (raw) Bound(n int) int { return n }

func (raw) Encode(dst, src []byte, _ int) []byte { return append(dst, src...) }

func (raw) Decode(dst, src []byte, _ int) error {
	if len(src) != len(dst) {
		return fmt.Errorf("%w: block holds %d bytes, expected %d", ErrCorrupt, len(src), len(dst))
	}
	copy(dst, src)
	return nil
}
