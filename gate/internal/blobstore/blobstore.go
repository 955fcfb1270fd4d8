// Package blobstore is the object-storage boundary of the gate service. The
// rest of the server treats it as a key-value blob store: keys in, byte
// streams and metadata out.
package blobstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned when a key has no object behind it.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo is the metadata for one stored object.
type ObjectInfo struct {
	Key       string
	Name      string
	Size      int64
	UpdatedAt time.Time
	SHA256    string
}

// Store is a read-only view of the backing object store.
type Store interface {
	// Stat returns metadata for key, or ErrObjectNotFound.
	Stat(ctx context.Context, key string) (*ObjectInfo, error)

	// List returns metadata for every stored object.
	List(ctx context.Context) ([]ObjectInfo, error)

	// Open returns a stream of the object's bytes along with its metadata.
	// The caller owns the returned ReadCloser.
	Open(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error)
}
