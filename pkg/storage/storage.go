// Package storage persists video payloads. Two backends exist: local disk
// (default) and S3. Both stream; neither buffers whole payloads in memory.
package storage

import (
	"context"
	"io"
	"path"

	"github.com/google/uuid"
)

// Store is the binary payload backend consumed by intake, the pipeline and
// the streaming endpoint.
type Store interface {
	// Save streams body to durable storage under key.
	Save(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	// Open returns the full payload. Caller closes.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// OpenRange returns exactly the inclusive byte range [start, end].
	// Caller closes.
	OpenRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error)
	// Stat returns the payload size in bytes.
	Stat(ctx context.Context, key string) (int64, error)
	// Delete removes the payload.
	Delete(ctx context.Context, key string) error
}

// LocalPather is implemented by backends whose payloads live on the local
// filesystem, letting subprocess collaborators (ffprobe) skip a temp copy.
type LocalPather interface {
	LocalPath(key string) (string, bool)
}

// Extension per allowed video MIME type. Keys are generated server-side so
// client-supplied names never reach the filesystem.
var videoExtensions = map[string]string{
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/ogg":       ".ogv",
	"video/quicktime": ".mov",
	"video/x-msvideo": ".avi",
}

// NewKey returns a collision-resistant storage key for a payload of the
// given MIME type: videos/{uuid}{ext}.
func NewKey(mimeType string) string {
	ext := videoExtensions[mimeType]
	return path.Join("videos", uuid.New().String()+ext)
}
