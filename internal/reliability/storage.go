// Package reliability provides off-site backups of the application
// databases: staging consistent snapshots, archiving them and shipping the
// archive to S3-compatible object storage.
package reliability

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string
	SizeBytes    int64
	LastModified time.Time
}

// ObjectStorage is the seam between the backup service and the bucket.
// The production implementation is S3Client; tests substitute an in-memory
// store.
type ObjectStorage interface {
	// Upload stores an object under key. Size is the exact body length;
	// S3-compatible stores need it up front.
	Upload(ctx context.Context, key string, body io.Reader, size int64) error

	// List returns the objects whose keys start with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
