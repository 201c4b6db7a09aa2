package omfile_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	omfile "github.com/yudeqang/om-file-format"
)

func TestReadInterpolatedSeries(t *testing.T) {
	// 5 rows of locations on a grid 2 wide, 5 time steps each
	data := make([]float32, 25)
	for x := 0; x < 5; x++ {
		for y := 0; y < 5; y++ {
			data[x*5+y] = float32(x*5 + y)
		}
	}
	mem := writeArray(t, []uint64{5, 5}, []uint64{2, 2}, omfile.CompressionPforDelta2DInt16, 1, data)
	a := openArray[float32](t, mem)
	ctx := context.Background()
	all := omfile.Range{Start: 0, End: 5}

	tests := []struct {
		fx, fy float32
		want   []float32
	}{
		{0.5, 0.5, []float32{7.5, 8.5, 9.5, 10.5, 11.5}},
		{0.1, 0.2, []float32{2.5, 3.5, 4.5, 5.5, 6.5}},
		{0.9, 0.2, []float32{6.5, 7.5, 8.5, 9.5, 10.5}},
		{0.1, 0.9, []float32{9.5, 10.5, 11.5, 12.5, 13.5}},
		{0.8, 0.9, []float32{13, 14, 15, 16, 17}},
	}
	for _, tt := range tests {
		got, err := omfile.ReadInterpolatedSeries(ctx, a, 0, tt.fx, 0, tt.fy, 2, all)
		require.NoError(t, err)
		require.InDeltaSlice(t, tt.want, got, 1e-4, "fx=%v fy=%v", tt.fx, tt.fy)
	}

	got, err := omfile.ReadInterpolatedSeries(ctx, a, 0, 0.5, 0, 0.5, 2, omfile.Range{Start: 2, End: 4})
	require.NoError(t, err)
	require.InDeltaSlice(t, []float32{9.5, 10.5}, got, 1e-4)

	// x past the grid is clamped onto its last cell
	got, err = omfile.ReadInterpolatedSeries(ctx, a, 5, 0.3, 0, 0, 2, all)
	require.NoError(t, err)
	require.InDeltaSlice(t, []float32{5, 6, 7, 8, 9}, got, 1e-4)

	_, err = omfile.ReadInterpolatedSeries(ctx, a, 0, 0.5, 0, 0.5, 3, all)
	require.ErrorIs(t, err, omfile.ErrDimension)
	_, err = omfile.ReadInterpolatedSeries(ctx, a, 0, 0.5, 0, 0.5, 2, omfile.Range{Start: 0, End: 6})
	require.ErrorIs(t, err, omfile.ErrDimension)
}

func TestReadInterpolated(t *testing.T) {
	data := make([]float32, 9)
	for x := 0; x < 3; x++ {
		for y := 0; y < 3; y++ {
			data[x*3+y] = float32(x*3 + y)
		}
	}
	mem := writeArray(t, []uint64{3, 3}, []uint64{2, 2}, omfile.CompressionFpxXor2D, 1, data)
	a := openArray[float32](t, mem)
	ctx := context.Background()

	tests := []struct {
		name   string
		d0     uint64
		f0     float32
		d1     uint64
		f1     float32
		expect float32
	}{
		{"centre", 0, 0.5, 0, 0.5, 2},
		{"corner", 0, 0, 0, 0, 0},
		{"axis 0 weighs rows", 0, 0.1, 0, 0.2, 0.5},
		{"along axis 1", 1, 0, 1, 0.25, 4.25},
		{"clamped row", 2, 0.7, 0, 0.5, 6.5},
		{"clamped both", 2, 0.1, 2, 0.1, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := omfile.ReadInterpolated(ctx, a, tt.d0, tt.f0, tt.d1, tt.f1)
			require.NoError(t, err)
			require.InDelta(t, tt.expect, got, 1e-5)
		})
	}

	line := writeArray(t, []uint64{4, 1}, []uint64{2, 1}, omfile.CompressionNone, 1, make([]float32, 4))
	_, err := omfile.ReadInterpolated(ctx, openArray[float32](t, line), 0, 0.5, 0, 0.5)
	require.ErrorIs(t, err, omfile.ErrDimension)
}
