package storage

import (
	"context"
	"time"
)

// Default expiry duration for presigned URLs
const DefaultPresignedURLExpiry = 15 * time.Minute

// FileStorage defines the object storage operations used for exercise images.
type FileStorage interface {
	// GeneratePresignedUploadURL creates a temporary URL that accepts a PUT
	// of the object directly to the storage provider.
	GeneratePresignedUploadURL(ctx context.Context, objectKey string, contentType string, expires time.Duration) (string, error)

	// GeneratePresignedDownloadURL creates a temporary URL for viewing an object.
	GeneratePresignedDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error)

	// ObjectExists reports whether an object has been written under the key.
	ObjectExists(ctx context.Context, objectKey string) (bool, error)

	// DeleteObject removes an object from the storage provider.
	DeleteObject(ctx context.Context, objectKey string) error
}
