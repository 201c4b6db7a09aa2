// Package dataset reads OM arrays stored in blob buckets as gomlx tensors.
package dataset

import (
	"context"
	"fmt"
	"io"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"gocloud.dev/blob"

	omfile "github.com/yudeqang/om-file-format"
)

// Dataset handles reading an array in batches along its first axis.
type Dataset struct {
	bucket       *blob.Bucket
	array        *omfile.Reader
	dims         []uint64
	opts         []omfile.Option
	CurrentIndex int
}

// Open opens the container key of the bucket at bucketURL. The root variable
// or, failing that, the first array among its children is read.
func Open(ctx context.Context, bucketURL, key string, opts ...omfile.Option) (*Dataset, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket: %w", err)
	}
	array, err := findArray(ctx, omfile.NewBlob(bucket, key), opts)
	if err != nil {
		bucket.Close()
		return nil, err
	}
	return &Dataset{bucket: bucket, array: array, dims: array.Dimensions(), opts: opts}, nil
}

func findArray(ctx context.Context, backend omfile.Backend, opts []omfile.Option) (*omfile.Reader, error) {
	root, err := omfile.Open(ctx, backend, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open container: %w", err)
	}
	if root.DataType().IsArray() {
		return root, nil
	}
	for i := 0; i < root.NumChildren(); i++ {
		child, err := root.Child(ctx, i)
		if err != nil {
			return nil, err
		}
		if child.DataType().IsArray() {
			return child, nil
		}
	}
	return nil, fmt.Errorf("%w: container holds no array", omfile.ErrNotFound)
}

// Dimensions returns the shape of the array.
func (d *Dataset) Dimensions() []uint64 { return d.dims }

// NextBatch reads the next batch of size batchSize.
// Returns io.EOF if there is no more data.
func (d *Dataset) NextBatch(ctx context.Context, batchSize int) (*tensors.Tensor, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("invalid batch size %d", batchSize)
	}
	if uint64(d.CurrentIndex) >= d.dims[0] {
		return nil, io.EOF
	}
	start := uint64(d.CurrentIndex)
	end := min(start+uint64(batchSize), d.dims[0])

	ranges := make([]omfile.Range, len(d.dims))
	ranges[0] = omfile.Range{Start: start, End: end}
	for i := 1; i < len(d.dims); i++ {
		ranges[i] = omfile.Range{End: d.dims[i]}
	}
	t, err := ReadTensor(ctx, d.array, ranges, d.opts...)
	if err != nil {
		return nil, err
	}
	d.CurrentIndex = int(end)
	return t, nil
}

// Reset rewinds the dataset to the first row.
func (d *Dataset) Reset() { d.CurrentIndex = 0 }

// Close closes the bucket.
func (d *Dataset) Close() error {
	return d.bucket.Close()
}

// ReadTensor reads ranges of the array variable r into a tensor of the
// stored element type.
func ReadTensor(ctx context.Context, r *omfile.Reader, ranges []omfile.Range, opts ...omfile.Option) (*tensors.Tensor, error) {
	shape := make([]int, len(ranges))
	for i, rg := range ranges {
		if rg.End < rg.Start {
			return nil, fmt.Errorf("%w: range %d is reversed", omfile.ErrDimension, i)
		}
		shape[i] = int(rg.End - rg.Start)
	}
	switch r.DataType() {
	case omfile.TypeFloatArray:
		data, err := read[float32](ctx, r, ranges, opts)
		if err != nil {
			return nil, err
		}
		return tensors.FromFlatDataAndDimensions(data, shape...), nil
	case omfile.TypeDoubleArray:
		data, err := read[float64](ctx, r, ranges, opts)
		if err != nil {
			return nil, err
		}
		return tensors.FromFlatDataAndDimensions(data, shape...), nil
	case omfile.TypeInt8Array:
		data, err := read[int8](ctx, r, ranges, opts)
		if err != nil {
			return nil, err
		}
		return tensors.FromFlatDataAndDimensions(data, shape...), nil
	case omfile.TypeUint8Array:
		data, err := read[uint8](ctx, r, ranges, opts)
		if err != nil {
			return nil, err
		}
		return tensors.FromFlatDataAndDimensions(data, shape...), nil
	case omfile.TypeInt16Array:
		data, err := read[int16](ctx, r, ranges, opts)
		if err != nil {
			return nil, err
		}
		return tensors.FromFlatDataAndDimensions(data, shape...), nil
	case omfile.TypeUint16Array:
		data, err := read[uint16](ctx, r, ranges, opts)
		if err != nil {
			return nil, err
		}
		return tensors.FromFlatDataAndDimensions(data, shape...), nil
	case omfile.TypeInt32Array:
		data, err := read[int32](ctx, r, ranges, opts)
		if err != nil {
			return nil, err
		}
		return tensors.FromFlatDataAndDimensions(data, shape...), nil
	case omfile.TypeUint32Array:
		data, err := read[uint32](ctx, r, ranges, opts)
		if err != nil {
			return nil, err
		}
		return tensors.FromFlatDataAndDimensions(data, shape...), nil
	case omfile.TypeInt64Array:
		data, err := read[int64](ctx, r, ranges, opts)
		if err != nil {
			return nil, err
		}
		return tensors.FromFlatDataAndDimensions(data, shape...), nil
	case omfile.TypeUint64Array:
		data, err := read[uint64](ctx, r, ranges, opts)
		if err != nil {
			return nil, err
		}
		return tensors.FromFlatDataAndDimensions(data, shape...), nil
	default:
		return nil, fmt.Errorf("%w: unsupported dtype: %s", omfile.ErrTypeMismatch, r.DataType())
	}
}

func read[T omfile.Element](ctx context.Context, r *omfile.Reader, ranges []omfile.Range, opts []omfile.Option) ([]T, error) {
	a, err := omfile.AsArray[T](r, opts...)
	if err != nil {
		return nil, err
	}
	return a.ReadConcurrent(ctx, ranges)
}
