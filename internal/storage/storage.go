// Package storage abstracts the blob-storage collaborator: signed URL
// issuance for assets, artifact upload, and time-limited read URLs.
package storage

import (
	"context"
	"time"
)

type Storage interface {
	// SignedURL returns a short-lived GET URL for a storage-backed asset id.
	SignedURL(ctx context.Context, assetID string) (string, error)

	// Upload stores a local file under the given object key.
	Upload(ctx context.Context, localPath, key string) error

	// SignedReadURL returns a time-limited GET URL for an uploaded object.
	SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
