// Package storage stores uploaded session files (audio recordings and
// clinical images) behind a provider-neutral interface. Providers register
// themselves with RegisterFactory; import storage/local or storage/s3 for
// side effects to make them available to New.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("storage: object not found")

// FileInfo contains metadata about a stored object.
type FileInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// Storage defines object storage operations. Keys are slash-separated and
// never start with a slash.
type Storage interface {
	// Upload writes reader to key.
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Download returns the object at key; the caller closes it.
	// Missing objects yield ErrNotFound.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes key. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)

	// SignedURL returns a time-limited URL for reading key.
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)

	// List returns objects whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]FileInfo, error)
}

// Verifier is implemented by providers whose signed URLs are served by this
// process rather than by the backend itself.
type Verifier interface {
	// Verify checks the expires and signature query parameters of a
	// signed URL for key.
	Verify(key, expires, signature string) error
}

var (
	ErrInvalidSignature = errors.New("storage: invalid signature")
	ErrURLExpired       = errors.New("storage: signed url expired")
)
