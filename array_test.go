package omfile_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/require"

	omfile "github.com/yudeqang/om-file-format"
	"github.com/yudeqang/om-file-format/internal/codec"
)

func roundTrip[T omfile.Element](t *testing.T, kind omfile.Compression, scale float32, dims, chunks []uint64, data []T) []T {
	t.Helper()
	mem := writeArray(t, dims, chunks, kind, scale, data)
	a := openArray[T](t, mem)
	require.Equal(t, kind, a.Compression())
	require.Equal(t, "data", a.Name())
	out, err := a.Read(context.Background(), a.Full())
	require.NoError(t, err)
	return out
}

func ramp[T omfile.Element](n int, step float64) []T {
	out := make([]T, n)
	for i := range out {
		out[i] = T(float64(i%100) * step)
	}
	return out
}

func TestArray_RoundTripIntegers(t *testing.T) {
	dims, chunks := []uint64{11, 7}, []uint64{3, 4}
	for _, kind := range []omfile.Compression{omfile.CompressionPforDelta2D, omfile.CompressionNone} {
		t.Run(kind.String(), func(t *testing.T) {
			n := 77
			in8 := ramp[int8](n, 1)
			in8[5] = math.MinInt8
			in8[6] = math.MaxInt8
			require.Equal(t, in8, roundTrip(t, kind, 1, dims, chunks, in8))
			u8 := ramp[uint8](n, 2.5)
			u8[3] = math.MaxUint8
			require.Equal(t, u8, roundTrip(t, kind, 1, dims, chunks, u8))
			i16 := ramp[int16](n, -300)
			require.Equal(t, i16, roundTrip(t, kind, 1, dims, chunks, i16))
			u16 := ramp[uint16](n, 600)
			require.Equal(t, u16, roundTrip(t, kind, 1, dims, chunks, u16))
			i32 := ramp[int32](n, -70000)
			i32[0] = math.MinInt32
			require.Equal(t, i32, roundTrip(t, kind, 1, dims, chunks, i32))
			u32 := ramp[uint32](n, 40000000)
			require.Equal(t, u32, roundTrip(t, kind, 1, dims, chunks, u32))
			i64 := ramp[int64](n, -1e15)
			i64[1] = math.MaxInt64
			require.Equal(t, i64, roundTrip(t, kind, 1, dims, chunks, i64))
			u64 := ramp[uint64](n, 1e17)
			u64[2] = math.MaxUint64
			require.Equal(t, u64, roundTrip(t, kind, 1, dims, chunks, u64))
		})
	}
}

func TestArray_RoundTripFloats(t *testing.T) {
	dims, chunks := []uint64{5, 6, 7}, []uint64{2, 3, 7}
	f32 := make([]float32, 210)
	f64 := make([]float64, 210)
	for i := range f32 {
		f32[i] = float32(math.Sin(float64(i)/10)) * 40
		f64[i] = math.Cos(float64(i)/7) * 1e5
	}

	// lossless
	require.Equal(t, f32, roundTrip(t, omfile.CompressionFpxXor2D, 1, dims, chunks, f32))
	require.Equal(t, f64, roundTrip(t, omfile.CompressionFpxXor2D, 1, dims, chunks, f64))
	require.Equal(t, f32, roundTrip(t, omfile.CompressionNone, 1, dims, chunks, f32))
	require.Equal(t, f64, roundTrip(t, omfile.CompressionNone, 1, dims, chunks, f64))

	// scaled
	require.InDeltaSlice(t, f32, roundTrip(t, omfile.CompressionPforDelta2DInt16, 100, dims, chunks, f32), 0.006)
	require.InDeltaSlice(t, f32, roundTrip(t, omfile.CompressionPforDelta2D, 1000, dims, chunks, f32), 0.0006)
	require.InDeltaSlice(t, f64, roundTrip(t, omfile.CompressionPforDelta2D, 1000, dims, chunks, f64), 0.0006)

	positive := make([]float32, len(f32))
	for i, v := range f32 {
		positive[i] = float32(math.Abs(float64(v)))
	}
	logOut := roundTrip(t, omfile.CompressionPforDelta2DInt16Logarithmic, 1000, dims, chunks, positive)
	for i := range positive {
		require.InEpsilon(t, positive[i]+1, logOut[i]+1, 0.003)
	}
}

func TestArray_AddOffset(t *testing.T) {
	mem := omfile.NewMemory(nil)
	w := omfile.NewWriter(mem)
	data := []float32{270.15, 280.5, 290.25, 300.75, 310, 250.05}
	aw, err := omfile.PrepareArray[float32](w, []uint64{6}, []uint64{4}, omfile.CompressionPforDelta2DInt16, 20, 273.15)
	require.NoError(t, err)
	require.NoError(t, aw.WriteData(data))
	meta, err := aw.Finalize()
	require.NoError(t, err)
	require.Equal(t, float32(273.15), meta.AddOffset)
	root, err := w.WriteArray(meta, "temperature")
	require.NoError(t, err)
	require.NoError(t, w.WriteTrailer(root))

	a := openArray[float32](t, mem)
	require.Equal(t, float32(273.15), a.AddOffset())
	require.Equal(t, float32(20), a.ScaleFactor())
	out, err := a.Read(context.Background(), a.Full())
	require.NoError(t, err)
	require.InDeltaSlice(t, data, out, 0.03)
}

func TestArray_NaN(t *testing.T) {
	data := []float32{1, float32(math.NaN()), 3, 4, float32(math.NaN()), 6, 7, 8, 9}
	for _, kind := range []omfile.Compression{
		omfile.CompressionPforDelta2DInt16,
		omfile.CompressionPforDelta2DInt16Logarithmic,
		omfile.CompressionPforDelta2D,
		omfile.CompressionFpxXor2D,
	} {
		t.Run(kind.String(), func(t *testing.T) {
			out := roundTrip(t, kind, 1000, []uint64{3, 3}, []uint64{2, 2}, data)
			for i, v := range data {
				if math.IsNaN(float64(v)) {
					require.True(t, math.IsNaN(float64(out[i])), "element %d", i)
				} else {
					require.False(t, math.IsNaN(float64(out[i])), "element %d", i)
					require.InDelta(t, v, out[i], 0.1)
				}
			}
		})
	}
}

func TestArray_UnsupportedCompression(t *testing.T) {
	w := omfile.NewWriter(omfile.NewMemory(nil))
	_, err := omfile.PrepareArray[int32](w, []uint64{4}, []uint64{2}, omfile.CompressionPforDelta2DInt16, 1, 0)
	require.ErrorIs(t, err, omfile.ErrTypeMismatch)
	_, err = omfile.PrepareArray[float64](w, []uint64{4}, []uint64{2}, omfile.CompressionPforDelta2DInt16Logarithmic, 1, 0)
	require.ErrorIs(t, err, omfile.ErrTypeMismatch)
	_, err = omfile.PrepareArray[uint16](w, []uint64{4}, []uint64{2}, omfile.CompressionFpxXor2D, 1, 0)
	require.ErrorIs(t, err, omfile.ErrTypeMismatch)

	// the writer is still usable
	_, err = omfile.PrepareArray[uint16](w, []uint64{4}, []uint64{2}, omfile.CompressionPforDelta2D, 1, 0)
	require.NoError(t, err)
}

// slice3 cuts ranges out of a row-major 3-D array.
func slice3[T any](full []T, dims []uint64, r []omfile.Range) []T {
	var out []T
	for i := r[0].Start; i < r[0].End; i++ {
		for j := r[1].Start; j < r[1].End; j++ {
			for k := r[2].Start; k < r[2].End; k++ {
				out = append(out, full[(i*dims[1]+j)*dims[2]+k])
			}
		}
	}
	return out
}

func TestArray_SubRangeConsistency(t *testing.T) {
	dims, chunks := []uint64{7, 6, 5}, []uint64{3, 4, 2}
	data := make([]int32, 210)
	for i := range data {
		data[i] = int32(i * 7)
	}
	mem := writeArray(t, dims, chunks, omfile.CompressionPforDelta2D, 1, data)

	ranges := [][]omfile.Range{
		{{0, 7}, {0, 6}, {0, 5}},
		{{3, 4}, {2, 3}, {1, 2}},
		{{6, 7}, {5, 6}, {4, 5}},
		{{2, 3}, {0, 6}, {0, 5}},
		{{0, 7}, {1, 2}, {0, 5}},
		{{0, 7}, {0, 6}, {3, 4}},
		{{1, 6}, {2, 6}, {1, 4}},
		{{2, 2}, {0, 6}, {0, 5}},
	}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 40; i++ {
		r := make([]omfile.Range, 3)
		for d := range r {
			a, b := uint64(rng.Intn(int(dims[d])+1)), uint64(rng.Intn(int(dims[d])+1))
			r[d] = omfile.Range{Start: min(a, b), End: max(a, b)}
		}
		ranges = append(ranges, r)
	}

	ioSizes := [][2]uint64{{0, 0}, {1, 1}, {0, 512}, {64, 8}, {omfile.DefaultIOSizeMax, omfile.DefaultIOSizeMerge}, {1 << 30, 1 << 30}}
	ctx := context.Background()
	for _, io := range ioSizes {
		for _, concurrency := range []int{0, 1, 3} {
			a := openArray[int32](t, mem, omfile.WithIOSize(io[0], io[1]), omfile.WithConcurrency(concurrency))
			for _, r := range ranges {
				name := fmt.Sprintf("io=%v/c=%d/%v", io, concurrency, r)
				expected := slice3(data, dims, r)

				seq, err := a.Read(ctx, r)
				require.NoError(t, err, name)
				require.Equal(t, len(expected), len(seq), name)
				if len(expected) > 0 {
					require.Equal(t, expected, seq, name)
				}

				con, err := a.ReadConcurrent(ctx, r)
				require.NoError(t, err, name)
				require.Equal(t, seq, con, name)
			}
		}
	}
}

func TestArray_ReadIntoCube(t *testing.T) {
	dims := []uint64{5, 5}
	data := make([]float32, 25)
	for i := range data {
		data[i] = float32(i)
	}
	mem := writeArray(t, dims, []uint64{2, 2}, omfile.CompressionFpxXor2D, 1, data)
	a := openArray[float32](t, mem)

	for _, concurrent := range []bool{false, true} {
		// 3x3 read placed at (1, 2) inside a zero padded 5x6 cube
		cube := make([]float32, 30)
		for i := range cube {
			cube[i] = -1
		}
		read := a.ReadInto
		if concurrent {
			read = a.ReadConcurrentInto
		}
		err := read(context.Background(), cube, []omfile.Range{{1, 4}, {2, 5}}, []uint64{1, 2}, []uint64{5, 6})
		require.NoError(t, err)
		require.Equal(t, []float32{
			-1, -1, -1, -1, -1, -1,
			-1, -1, 7, 8, 9, -1,
			-1, -1, 12, 13, 14, -1,
			-1, -1, 17, 18, 19, -1,
			-1, -1, -1, -1, -1, -1,
		}, cube)
	}

	err := a.ReadInto(context.Background(), make([]float32, 29), []omfile.Range{{1, 4}, {2, 5}}, []uint64{1, 2}, []uint64{5, 6})
	require.ErrorIs(t, err, omfile.ErrDimension)
	err = a.ReadInto(context.Background(), make([]float32, 30), []omfile.Range{{1, 4}, {2, 5}}, []uint64{3, 2}, []uint64{5, 6})
	require.ErrorIs(t, err, omfile.ErrDimension)

	// nil cube is the requested region
	out := make([]float32, 4)
	require.NoError(t, a.ReadInto(context.Background(), out, []omfile.Range{{3, 5}, {3, 5}}, nil, nil))
	require.Equal(t, []float32{18, 19, 23, 24}, out)
}

func TestArray_ReadChunk(t *testing.T) {
	data := make([]uint16, 35)
	for i := range data {
		data[i] = uint16(i)
	}
	mem := writeArray(t, []uint64{5, 7}, []uint64{2, 3}, omfile.CompressionPforDelta2D, 1, data)
	a := openArray[uint16](t, mem)
	ctx := context.Background()

	c, err := a.ReadChunk(ctx, []uint64{1, 1})
	require.NoError(t, err)
	require.Equal(t, []uint16{17, 18, 19, 24, 25, 26}, c)

	// edge chunk is truncated
	c, err = a.ReadChunk(ctx, []uint64{2, 2})
	require.NoError(t, err)
	require.Equal(t, []uint16{34}, c)

	_, err = a.ReadChunk(ctx, []uint64{3, 0})
	require.ErrorIs(t, err, omfile.ErrDimension)
	_, err = a.ReadChunk(ctx, []uint64{0})
	require.ErrorIs(t, err, omfile.ErrDimension)
}

func TestArray_ManyChunks(t *testing.T) {
	// 34 x 15 = 510 chunks span several lookup table blocks
	dims, chunks := []uint64{100, 30}, []uint64{3, 2}
	data := make([]float64, 3000)
	for i := range data {
		data[i] = float64(i) / 3
	}
	mem := writeArray(t, dims, chunks, omfile.CompressionFpxXor2D, 1, data)
	ctx := context.Background()

	for _, io := range [][2]uint64{{0, 0}, {128, 32}, {omfile.DefaultIOSizeMax, omfile.DefaultIOSizeMerge}} {
		a := openArray[float64](t, mem, omfile.WithIOSize(io[0], io[1]),
			omfile.WithLogger(testr.NewWithOptions(t, testr.Options{Verbosity: 1})))
		full, err := a.ReadConcurrent(ctx, a.Full())
		require.NoError(t, err)
		require.Equal(t, data, full)

		// a single row crossing every column chunk
		row, err := a.Read(ctx, []omfile.Range{{Start: 64, End: 65}, {Start: 0, End: 30}})
		require.NoError(t, err)
		require.Equal(t, data[64*30:65*30], row)

		// the chunk straddling lookup table blocks 0 and 1
		c, err := a.ReadChunk(ctx, []uint64{4, 3})
		require.NoError(t, err)
		require.Equal(t, []float64{data[12*30+6], data[12*30+7], data[13*30+6], data[13*30+7], data[14*30+6], data[14*30+7]}, c)
	}
}

func TestArray_ReadErrors(t *testing.T) {
	mem := writeArray(t, []uint64{4, 4}, []uint64{2, 2}, omfile.CompressionNone, 1, make([]float32, 16))
	counting := &countingBackend{Backend: mem}
	a := openArray[float32](t, counting)
	opened := counting.reads()
	ctx := context.Background()

	tests := []struct {
		name   string
		ranges []omfile.Range
	}{
		{"past end", []omfile.Range{{0, 5}, {0, 4}}},
		{"offset past end", []omfile.Range{{5, 5}, {0, 4}}},
		{"reversed", []omfile.Range{{3, 2}, {0, 4}}},
		{"rank", []omfile.Range{{0, 4}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Read(ctx, tt.ranges)
			require.ErrorIs(t, err, omfile.ErrDimension)
			_, err = a.ReadConcurrent(ctx, tt.ranges)
			require.ErrorIs(t, err, omfile.ErrDimension)
		})
	}
	require.Equal(t, opened, counting.reads(), "rejected reads touched the backend")

	// empty ranges need no I/O either
	out, err := a.Read(ctx, []omfile.Range{{2, 2}, {0, 4}})
	require.NoError(t, err)
	require.Empty(t, out)
	require.Equal(t, opened, counting.reads())

	r, err := omfile.Open(ctx, mem)
	require.NoError(t, err)
	_, err = omfile.AsArray[float64](r)
	require.ErrorIs(t, err, omfile.ErrTypeMismatch)
}

type countingBackend struct {
	omfile.Backend
	mu sync.Mutex
	n  int
}

func (b *countingBackend) ReadAt(ctx context.Context, offset, length uint64) ([]byte, error) {
	b.mu.Lock()
	b.n++
	b.mu.Unlock()
	return b.Backend.ReadAt(ctx, offset, length)
}

func (b *countingBackend) reads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

// failingBackend fails every read starting at failAt and counts all reads.
type failingBackend struct {
	omfile.Backend
	failAt uint64
	err    error

	mu sync.Mutex
	n  int
}

func (b *failingBackend) ReadAt(ctx context.Context, offset, length uint64) ([]byte, error) {
	b.mu.Lock()
	b.n++
	b.mu.Unlock()
	if offset == b.failAt {
		return nil, b.err
	}
	return b.Backend.ReadAt(ctx, offset, length)
}

func (b *failingBackend) reads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

func TestArray_BackendFailure(t *testing.T) {
	data := make([]int64, 400)
	for i := range data {
		data[i] = int64(i * i)
	}
	mem := writeArray(t, []uint64{20, 20}, []uint64{4, 4}, omfile.CompressionPforDelta2D, 1, data)
	a := openArray[int64](t, mem)
	ctx := context.Background()

	// the first chunk follows the 3 byte header
	diskErr := errors.New("disk on fire")
	r, err := omfile.Open(ctx, &failingBackend{Backend: mem, failAt: 3, err: diskErr})
	require.NoError(t, err)
	broken, err := omfile.AsArray[int64](r, omfile.WithIOSize(0, 0))
	require.NoError(t, err)

	_, err = broken.Read(ctx, broken.Full())
	require.ErrorIs(t, err, omfile.ErrBackend)
	require.ErrorIs(t, err, diskErr)
	_, err = broken.ReadConcurrent(ctx, broken.Full())
	require.ErrorIs(t, err, omfile.ErrBackend)
	require.ErrorIs(t, err, diskErr)

	// the healthy reader is unaffected
	out, err := a.ReadConcurrent(ctx, a.Full())
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestArray_FailedUnitKeepsSiblings(t *testing.T) {
	// 4 chunks of 2x2 that share one lookup table block
	data := make([]int32, 16)
	for i := range data {
		data[i] = int32(i + 1)
	}
	mem := writeArray(t, []uint64{4, 4}, []uint64{2, 2}, omfile.CompressionNone, 1, data)
	ctx := context.Background()

	diskErr := errors.New("bad sector")
	for _, concurrency := range []int{1, 2, 4} {
		t.Run(fmt.Sprintf("concurrency %d", concurrency), func(t *testing.T) {
			b := &failingBackend{Backend: mem, failAt: 3, err: diskErr}
			r, err := omfile.Open(ctx, b)
			require.NoError(t, err)
			a, err := omfile.AsArray[int32](r, omfile.WithIOSize(0, 0), omfile.WithConcurrency(concurrency))
			require.NoError(t, err)

			// sequential reads stop at the failing chunk: one index read
			// and one data read
			before := b.reads()
			_, err = a.Read(ctx, a.Full())
			require.ErrorIs(t, err, diskErr)
			require.Equal(t, 2, b.reads()-before)

			// concurrent reads issue every data read of the step before
			// returning
			before = b.reads()
			out := make([]int32, 16)
			err = a.ReadConcurrentInto(ctx, out, a.Full(), nil, nil)
			require.ErrorIs(t, err, omfile.ErrBackend)
			require.ErrorIs(t, err, diskErr)
			require.Equal(t, 1+4, b.reads()-before)

			// the first chunk is missing, the others are decoded
			for i, v := range out {
				row, col := i/4, i%4
				if row < 2 && col < 2 {
					require.Zero(t, v)
				} else {
					require.Equal(t, data[i], v)
				}
			}
		})
	}
}

// brokenCodec decodes nothing.
type brokenCodec struct{}

func (brokenCodec) Name() string                         { return "broken" }
func (brokenCodec) Encode(dst, src []byte, _ int) []byte { return append(dst, src...) }
func (brokenCodec) Decode(_, _ []byte, _ int) error      { return fmt.Errorf("%w: always", omfile.ErrCodec) }
func (brokenCodec) Bound(n int) int                      { return n }

// countingCodec wraps a codec and counts decodes.
type countingCodec struct {
	omfile.BlockCodec
	mu      sync.Mutex
	decodes int
}

func (c *countingCodec) Decode(dst, src []byte, width int) error {
	c.mu.Lock()
	c.decodes++
	c.mu.Unlock()
	return c.BlockCodec.Decode(dst, src, width)
}

func TestArray_BlockCodec(t *testing.T) {
	data := make([]float32, 36)
	for i := range data {
		data[i] = float32(i) / 4
	}
	mem := writeArray(t, []uint64{6, 6}, []uint64{3, 3}, omfile.CompressionFpxXor2D, 1, data)
	ctx := context.Background()

	r, err := omfile.Open(ctx, mem)
	require.NoError(t, err)
	a, err := omfile.AsArray[float32](r, omfile.WithBlockCodec(omfile.CompressionFpxXor2D, brokenCodec{}))
	require.NoError(t, err)
	_, err = a.Read(ctx, a.Full())
	require.ErrorIs(t, err, omfile.ErrCodec)
	_, err = a.ReadConcurrent(ctx, a.Full())
	require.ErrorIs(t, err, omfile.ErrCodec)

	// a codec replaced on both sides round trips
	counter := &countingCodec{BlockCodec: codec.Integer}
	opt := omfile.WithBlockCodec(omfile.CompressionFpxXor2D, counter)
	mem = writeArray(t, []uint64{6, 6}, []uint64{3, 3}, omfile.CompressionFpxXor2D, 1, data, opt)
	r, err = omfile.Open(ctx, mem, opt)
	require.NoError(t, err)
	a, err = omfile.AsArray[float32](r)
	require.NoError(t, err)
	out, err := a.Read(ctx, a.Full())
	require.NoError(t, err)
	require.Equal(t, data, out)
	require.Equal(t, 4, counter.decodes)
}

// prefetchBackend records prefetch hints.
type prefetchBackend struct {
	*omfile.Memory
	hints [][2]uint64
}

func (b *prefetchBackend) Prefetch(offset, length uint64) {
	b.hints = append(b.hints, [2]uint64{offset, length})
}

func TestArray_WillNeed(t *testing.T) {
	data := make([]int32, 100)
	mem := writeArray(t, []uint64{10, 10}, []uint64{5, 5}, omfile.CompressionNone, 1, data)
	pb := &prefetchBackend{Memory: mem}
	a := openArray[int32](t, pb)
	ctx := context.Background()

	a.WillNeed(ctx, []omfile.Range{{Start: 5, End: 10}, {Start: 0, End: 10}})
	require.Len(t, pb.hints, 2)
	// chunks 2 and 3 hold 25 int32 each, stored raw right after the header
	require.Equal(t, [2]uint64{3 + 2*100, 200}, pb.hints[1])

	// bad ranges are ignored
	a.WillNeed(ctx, []omfile.Range{{Start: 0, End: 11}, {Start: 0, End: 10}})
	require.Len(t, pb.hints, 2)

	// backends without prefetch support are skipped
	openArray[int32](t, mem).WillNeed(ctx, a.Full())
}
