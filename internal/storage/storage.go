// Package storage defines the interface for object storage operations.
// Swap implementations by changing the concrete type injected at startup:
// S3Store talks to AWS S3, MinioStore to any S3-compatible endpoint (MinIO locally).
package storage

import (
	"context"
	"io"
)

// Store is the interface for writing, reading, and enumerating objects.
// Every call names its bucket so one handle can serve requests that override
// the default bucket.
type Store interface {
	// Put streams data to the store under the given key.
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, opts PutOptions) error
	// Head returns metadata for a single object.
	// Returns ErrNotFound if the object does not exist.
	Head(ctx context.Context, bucket, key string) (*ObjectInfo, error)
	// Get opens the object body for reading. The caller must close it.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	// ListPage returns one page of keys.
	ListPage(ctx context.Context, bucket string, in ListInput) (*ListPage, error)
	// Delete removes an object identified by key.
	Delete(ctx context.Context, bucket, key string) error
}

// PutOptions configures a Put.
type PutOptions struct {
	ContentType string
	// ACL is a canned ACL such as "private" or "public-read". Empty leaves the
	// bucket default in place.
	ACL string
}

// ObjectInfo is the metadata of a stored object.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
	ETag        string
}

// ListInput configures a single page request.
type ListInput struct {
	Prefix            string
	StartAfter        string
	ContinuationToken string
	MaxKeys           int
}

// ListPage is one page of a listing.
type ListPage struct {
	Keys []string
	// NextToken resumes listing. Empty when Truncated is false.
	NextToken string
	Truncated bool
}

const (
	// DefaultMaxKeys is the default page size for listings.
	DefaultMaxKeys = 1000
	// MaxAllowedKeys is the largest page S3 will return.
	MaxAllowedKeys = 1000
	// DefaultContentType is used when the uploader does not name one.
	DefaultContentType = "application/octet-stream"
)

// clampMaxKeys applies defaults and limits to page sizes.
func clampMaxKeys(requested int) int {
	if requested <= 0 {
		return DefaultMaxKeys
	}
	if requested > MaxAllowedKeys {
		return MaxAllowedKeys
	}
	return requested
}
