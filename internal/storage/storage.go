package storage

import (
	"context"
	"errors"
	"io"
)

// Wrapper for standard errors so checking them is consistent
var (
	ErrNotFound     = errors.New("storage: object not found")
	ErrAccessDenied = errors.New("storage: access denied")
	ErrUploadFailed = errors.New("storage: upload failed")
)

// Object is the stable reference the remote store hands back for an upload.
type Object struct {
	// Key is the object name inside the bucket. It doubles as the public id
	// used for later deletion.
	Key string
	// URL is the stable public URL for the object.
	URL string
}

// Provider abstracts S3, MinIO, or Google Cloud Storage.
type Provider interface {
	// Put streams one object into the store. size may be -1 when the length
	// is unknown; the provider then falls back to multipart buffering.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error)

	// Remove deletes an object. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}
