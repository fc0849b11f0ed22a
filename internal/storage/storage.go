package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/feedgraph/apiserver/config"
)

// ErrNotExist is returned when a key has no stored object.
var ErrNotExist = errors.New("object does not exist")

// ErrInvalidKey is returned for keys that could escape the bucket.
var ErrInvalidKey = errors.New("invalid object key")

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Storage wraps an ObjectStorage backend and rejects unsafe keys before
// they reach it.
type Storage struct {
	backend ObjectStorage
}

func NewStorage(backend ObjectStorage) *Storage {
	return &Storage{backend: backend}
}

// Open builds the backend selected by cfg.Images.Backend and makes sure its
// bucket exists.
func Open(ctx context.Context, cfg config.Config) (*Storage, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch cfg.Images.Backend {
	case config.ImagesBackendMinio:
		backend, err = NewMinioClient(cfg.Minio)
	case config.ImagesBackendGCS:
		backend, err = NewGCSClient(ctx, cfg.GCS)
	case config.ImagesBackendLocal, "":
		backend, err = NewLocalDir(cfg.Images.Dir)
	default:
		return nil, fmt.Errorf("unknown images backend %q", cfg.Images.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s storage: %w", cfg.Images.Backend, err)
	}

	s := NewStorage(backend)
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", s.Bucket(), err)
	}
	return s, nil
}

func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	return s.backend.Put(ctx, key, r, size, contentType)
}

// Get opens a reader for a stored object. Missing objects yield ErrNotExist.
func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	return s.backend.Get(ctx, key)
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	return s.backend.Delete(ctx, key)
}

func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

// ValidateKey accepts flat, relative object names only.
func ValidateKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.ContainsRune(key, 0) {
		return ErrInvalidKey
	}
	if key == "." || key == ".." || path.Clean(key) != key {
		return ErrInvalidKey
	}
	return nil
}
