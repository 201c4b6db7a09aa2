package omfile

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader(`
io_size_max: 1048576
io_size_merge: 0
concurrency: 8
fsync_threshold: 0
write_buffer_size: 4096
`))
	require.NoError(t, err)

	o := newOptions(cfg.Options())
	require.Equal(t, uint64(1048576), o.ioSizeMax)
	require.Equal(t, uint64(0), o.ioSizeMerge)
	require.Equal(t, 8, o.concurrency)
	require.Equal(t, uint64(0), o.fsyncThreshold)
	require.Equal(t, 4096, o.writeBufferSize)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader(`{"io_size_merge": 2048}`))
	require.NoError(t, err)

	o := newOptions(cfg.Options())
	require.Equal(t, uint64(DefaultIOSizeMax), o.ioSizeMax)
	require.Equal(t, uint64(2048), o.ioSizeMerge)
	require.Equal(t, runtime.GOMAXPROCS(0), o.concurrency)
	require.Equal(t, uint64(DefaultFsyncThreshold), o.fsyncThreshold)
	require.Equal(t, DefaultWriteBufferSize, o.writeBufferSize)

	cfg, err = LoadConfig(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, cfg.Options())
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown field", "io_size: 10\n"},
		{"negative concurrency", "concurrency: -1\n"},
		{"negative buffer", "write_buffer_size: -5\n"},
		{"wrong type", "io_size_max: lots\n"},
		{"malformed", "io_size_max: [1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(strings.NewReader(tt.input))
			require.Error(t, err)
		})
	}
}

func TestOptions_With(t *testing.T) {
	base := newOptions([]Option{WithBlockCodec(CompressionNone, defaultCodec(CompressionFpxXor2D))})
	derived := base.with([]Option{WithIOSize(1, 2), WithBlockCodec(CompressionPforDelta2D, defaultCodec(CompressionNone))})

	require.Equal(t, uint64(DefaultIOSizeMax), base.ioSizeMax)
	require.Len(t, base.codecs, 1)
	require.Equal(t, uint64(1), derived.ioSizeMax)
	require.Equal(t, uint64(2), derived.ioSizeMerge)
	require.Len(t, derived.codecs, 2)

	// buffer sizes below one are ignored
	require.Equal(t, DefaultWriteBufferSize, newOptions([]Option{WithWriteBufferSize(0)}).writeBufferSize)
}
