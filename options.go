package omfile

import (
	"runtime"

	"github.com/go-logr/logr"
)

const (
	// DefaultIOSizeMax bounds the length of one coalesced backend read.
	DefaultIOSizeMax = 65536
	// DefaultIOSizeMerge is the largest gap two reads are merged across.
	DefaultIOSizeMerge = 512
	// DefaultFsyncThreshold is the number of flushed bytes after which the
	// writer syncs the backend.
	DefaultFsyncThreshold = 32 << 20
	// DefaultWriteBufferSize is the initial size of the writer's buffer.
	DefaultWriteBufferSize = 1 << 20
)

// Option configures readers and writers.
type Option func(*options)

type options struct {
	ioSizeMax       uint64
	ioSizeMerge     uint64
	concurrency     int
	logger          logr.Logger
	codecs          map[Compression]BlockCodec
	fsyncThreshold  uint64
	writeBufferSize int
}

func defaultOptions() *options {
	return &options{
		ioSizeMax:       DefaultIOSizeMax,
		ioSizeMerge:     DefaultIOSizeMerge,
		concurrency:     runtime.GOMAXPROCS(0),
		logger:          logr.Discard(),
		fsyncThreshold:  DefaultFsyncThreshold,
		writeBufferSize: DefaultWriteBufferSize,
	}
}

func newOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// with returns a copy of o with opts applied.
func (o *options) with(opts []Option) *options {
	c := *o
	if o.codecs != nil {
		c.codecs = make(map[Compression]BlockCodec, len(o.codecs))
		for k, v := range o.codecs {
			c.codecs[k] = v
		}
	}
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// WithIOSize sets the largest coalesced read and the largest gap merged
// across. Either set to zero issues one read per chunk.
func WithIOSize(maxSize, mergeGap uint64) Option {
	return func(o *options) {
		o.ioSizeMax = maxSize
		o.ioSizeMerge = mergeGap
	}
}

// WithConcurrency limits the number of data reads in flight in concurrent
// reads. Values below one leave it unlimited.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithBlockCodec replaces the codec used for chunk payloads of the given
// compression kind. Readers must use the same codec as the writer.
func WithBlockCodec(kind Compression, c BlockCodec) Option {
	return func(o *options) {
		if o.codecs == nil {
			o.codecs = make(map[Compression]BlockCodec)
		}
		o.codecs[kind] = c
	}
}

// WithFsyncThreshold syncs the write backend every time this many bytes
// have been flushed since the last sync. Zero disables it.
func WithFsyncThreshold(n uint64) Option {
	return func(o *options) {
		o.fsyncThreshold = n
	}
}

// WithWriteBufferSize sets the initial capacity of the write buffer.
func WithWriteBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.writeBufferSize = n
		}
	}
}
