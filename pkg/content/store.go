// Package content provides access to the remote object storage holding
// transcoded video assets.
package content

import (
	"context"
	"errors"
	"io"
)

// Common object store errors.
var (
	// ErrObjectNotFound is returned when the remote object does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrStoreClosed is returned when an operation is attempted on a
	// closed store.
	ErrStoreClosed = errors.New("object store is closed")
)

// ObjectStore reads transcoded assets from remote storage.
//
// Implementations must be safe for concurrent use. Open returns a stream
// positioned at offset so interrupted transfers resume without re-reading
// bytes already on local disk.
type ObjectStore interface {
	// Size returns the size in bytes of the object at key.
	// Returns ErrObjectNotFound if the object does not exist.
	Size(ctx context.Context, key string) (int64, error)

	// Open returns a reader over the object starting at offset.
	// Offset 0 reads from the beginning. The caller must close the reader.
	// Returns ErrObjectNotFound if the object does not exist.
	Open(ctx context.Context, key string, offset int64) (io.ReadCloser, error)

	// HealthCheck verifies the remote storage is reachable.
	HealthCheck(ctx context.Context) error
}
