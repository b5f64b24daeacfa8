package storage

import (
	"context"
	"io"
	"time"
)

// ObjectStore abstracts where archive files live so handlers and the worker
// never care whether the backing store is MinIO or a local directory.
type ObjectStore interface {
	// Put writes an object and returns its canonical storage key.
	Put(ctx context.Context, key, contentType string, size int64, body io.Reader) (string, error)
	// Get opens an object for reading. The caller closes the returned reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// PresignedGetURL returns a URL that grants read access until expiry.
	// The filename controls the Content-Disposition of the download.
	PresignedGetURL(ctx context.Context, key, filename string, expiry time.Duration) (string, error)
	// Delete removes an object. Removing a missing object is not an error.
	Delete(ctx context.Context, key string) error
}
