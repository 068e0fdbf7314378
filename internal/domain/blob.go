package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage. Series objects are keyed
// deterministically by day, so readers need no listing surface.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver uploads a completed run's snapshot series to cold storage.
type Archiver interface {
	ArchiveRun(ctx context.Context, runID string) (int64, error)
}
