package omfile

import (
	"context"
	"fmt"
	"io"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// Blob is a Backend reading one object of a gocloud bucket with ranged reads.
type Blob struct {
	bucket *blob.Bucket
	key    string
}

// NewBlob returns a Backend for the object key in bucket. The bucket stays
// owned by the caller.
func NewBlob(bucket *blob.Bucket, key string) *Blob {
	return &Blob{bucket: bucket, key: key}
}

func (b *Blob) ReadAt(ctx context.Context, offset, length uint64) ([]byte, error) {
	r, err := b.bucket.NewRangeReader(ctx, b.key, int64(offset), int64(length), nil)
	if err != nil {
		return nil, b.wrap("open range reader", err)
	}
	defer r.Close()

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, b.wrap(fmt.Sprintf("read %d bytes at offset %d", length, offset), err)
	}
	return buf, nil
}

func (b *Blob) Size(ctx context.Context) (uint64, error) {
	attrs, err := b.bucket.Attributes(ctx, b.key)
	if err != nil {
		return 0, b.wrap("read attributes", err)
	}
	return uint64(attrs.Size), nil
}

func (b *Blob) wrap(op string, err error) error {
	if gcerrors.Code(err) == gcerrors.NotFound {
		return fmt.Errorf("%w: %w: object %s: %w", ErrBackend, ErrNotFound, b.key, err)
	}
	return backendError(op+" of "+b.key, err)
}

// BlobWriter is a WriteBackend uploading one object. The object becomes
// visible when Close returns.
type BlobWriter struct {
	w *blob.Writer
}

// NewBlobWriter starts writing the object key. Cancelling ctx before Close
// abandons the upload.
func NewBlobWriter(ctx context.Context, bucket *blob.Bucket, key string) (*BlobWriter, error) {
	w, err := bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return nil, backendError("create object "+key, err)
	}
	return &BlobWriter{w: w}, nil
}

func (b *BlobWriter) Write(p []byte) (int, error) {
	n, err := b.w.Write(p)
	if err != nil {
		return n, backendError("write object", err)
	}
	return n, nil
}

// Sync is a no-op: object stores persist on Close.
func (b *BlobWriter) Sync() error { return nil }

func (b *BlobWriter) Close() error {
	if err := b.w.Close(); err != nil {
		return backendError("close object", err)
	}
	return nil
}
