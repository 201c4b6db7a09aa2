package omfile

import (
	"fmt"
	"io"

	"sigs.k8s.io/yaml"
)

// Config is the file form of the reader and writer options.
type Config struct {
	IOSizeMax       *uint64 `json:"io_size_max,omitempty"`
	IOSizeMerge     *uint64 `json:"io_size_merge,omitempty"`
	Concurrency     int     `json:"concurrency,omitempty"`
	FsyncThreshold  *uint64 `json:"fsync_threshold,omitempty"`
	WriteBufferSize int     `json:"write_buffer_size,omitempty"`
}

// LoadConfig reads a YAML or JSON config. Unknown fields are rejected.
func LoadConfig(reader io.Reader) (*Config, error) {
	b, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := yaml.UnmarshalStrict(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("invalid concurrency: %d", cfg.Concurrency)
	}
	if cfg.WriteBufferSize < 0 {
		return nil, fmt.Errorf("invalid write_buffer_size: %d", cfg.WriteBufferSize)
	}
	return &cfg, nil
}

// Options converts the fields that are set into options.
func (c *Config) Options() []Option {
	var opts []Option
	if c.IOSizeMax != nil || c.IOSizeMerge != nil {
		maxSize, mergeGap := uint64(DefaultIOSizeMax), uint64(DefaultIOSizeMerge)
		if c.IOSizeMax != nil {
			maxSize = *c.IOSizeMax
		}
		if c.IOSizeMerge != nil {
			mergeGap = *c.IOSizeMerge
		}
		opts = append(opts, WithIOSize(maxSize, mergeGap))
	}
	if c.Concurrency > 0 {
		opts = append(opts, WithConcurrency(c.Concurrency))
	}
	if c.FsyncThreshold != nil {
		opts = append(opts, WithFsyncThreshold(*c.FsyncThreshold))
	}
	if c.WriteBufferSize > 0 {
		opts = append(opts, WithWriteBufferSize(c.WriteBufferSize))
	}
	return opts
}
