package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo is one object in the artefact bucket.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobReader reads calibration tables and archived backtest runs.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	// List returns the objects whose path starts with prefix, in no
	// particular order.
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// BlobWriter stores backtest artefacts. Large JSONL archives go through
// PutMultipart; tables and summaries through Put.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}
