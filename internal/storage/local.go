package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalDir stores objects as files in a single directory.
type LocalDir struct {
	dir string
}

func NewLocalDir(dir string) (*LocalDir, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("images directory is required")
	}
	return &LocalDir{dir: filepath.Clean(dir)}, nil
}

// EnsureBucket creates the directory if it is missing.
func (l *LocalDir) EnsureBucket(ctx context.Context) error {
	return os.MkdirAll(l.dir, 0o755)
}

func (l *LocalDir) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	f, err := os.OpenFile(l.path(key), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(l.path(key))
		return err
	}
	return f.Close()
}

func (l *LocalDir) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(l.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotExist
	}
	return f, err
}

func (l *LocalDir) Delete(ctx context.Context, key string) error {
	err := os.Remove(l.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotExist
	}
	return err
}

// Bucket returns the directory objects are written to.
func (l *LocalDir) Bucket() string {
	return l.dir
}

func (l *LocalDir) path(key string) string {
	return filepath.Join(l.dir, key)
}
