package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Local stores payloads on the local filesystem under a base directory.
type Local struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocal creates a local-disk store rooted at baseDir.
func NewLocal(baseDir string, logger *zap.Logger) (*Local, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Local{baseDir: baseDir, logger: logger}, nil
}

// LocalPath returns the absolute path for a key.
func (l *Local) LocalPath(key string) (string, bool) {
	return filepath.Join(l.baseDir, filepath.FromSlash(key)), true
}

// Save streams body to a file under the base directory. A failed write
// removes the partial file so rejection leaves no residue.
func (l *Local) Save(ctx context.Context, key, contentType string, body io.Reader, size int64) error {
	full, _ := l.LocalPath(key)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		_ = os.Remove(full)
		return fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(full)
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}

// Open returns the full payload.
func (l *Local) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	full, _ := l.LocalPath(key)
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("open payload: %w", err)
	}
	return f, nil
}

// OpenRange returns the inclusive byte range [start, end] of the payload.
func (l *Local) OpenRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error) {
	full, _ := l.LocalPath(key)
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("open payload: %w", err)
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek payload: %w", err)
	}
	return &sectionReadCloser{r: io.LimitReader(f, end-start+1), c: f}, nil
}

// Stat returns the payload size.
func (l *Local) Stat(ctx context.Context, key string) (int64, error) {
	full, _ := l.LocalPath(key)
	info, err := os.Stat(full)
	if err != nil {
		return 0, fmt.Errorf("stat payload: %w", err)
	}
	return info.Size(), nil
}

// Delete removes the payload file.
func (l *Local) Delete(ctx context.Context, key string) error {
	full, _ := l.LocalPath(key)
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("remove payload: %w", err)
	}
	return nil
}

type sectionReadCloser struct {
	r io.Reader
	c io.Closer
}

func (s *sectionReadCloser) Read(p []byte) (int, error) { return s.r.Read(p) }
func (s *sectionReadCloser) Close() error               { return s.c.Close() }
