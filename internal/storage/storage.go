package storage

import (
	"context"
	"io"
)

// Package storage contains the object half of the remote store: buckets of
// blobs served under public URLs on an S3-compatible backend.

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1 and the implementation
// will buffer/chunk as supported by the backend.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// Storage is the remote object store used by the sync orchestrator.
type Storage interface {
	// EnsureBucket creates a public bucket if it is absent. An existing bucket is not an error.
	EnsureBucket(ctx context.Context, bucket string) error
	// Upload stores r under key and returns its public URL. Failures are
	// reported as ("", false) and logged; callers count them.
	Upload(ctx context.Context, bucket, key string, r io.Reader, opt PutObjectOptions) (string, bool)
	// PublicURL is the URL an object under bucket/key is served from.
	PublicURL(bucket, key string) string
	// IsProviderURL reports whether u follows this provider's public path convention.
	IsProviderURL(u string) bool
}
