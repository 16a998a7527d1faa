package mirror

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Store persists mirrored files under slash-separated keys.
type Store interface {
	// Put writes the full content of r under key, replacing any previous
	// object. size is the content length, or -1 when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	// Exists reports whether key has been written.
	Exists(ctx context.Context, key string) (bool, error)
}

// FSStore writes files below a root directory.
// Files appear atomically: content goes to a temp file that is renamed into place.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem store rooted at dir, creating it if needed.
func NewFSStore(dir string) (*FSStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("mirror: filesystem store requires a path")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrapError(err, "init", dir)
	}
	return &FSStore{root: dir}, nil
}

// Put writes r to root/key.
func (s *FSStore) Put(ctx context.Context, key string, r io.Reader, _ int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return wrapError(err, "put", path)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".mirror-*")
	if err != nil {
		return wrapError(err, "put", path)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return wrapError(err, "put", path)
	}
	if err := tmp.Close(); err != nil {
		return wrapError(err, "put", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return wrapError(err, "put", path)
	}
	return nil
}

// Exists reports whether root/key is present.
func (s *FSStore) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, wrapError(err, "stat", s.path(key))
	}
}

func (s *FSStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

var _ Store = (*FSStore)(nil)
