// Package images names, stores and cleans up uploaded post images.
package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"path"
	"strings"
	"time"

	"github.com/feedgraph/apiserver/internal/storage"
)

// Prefix is the URL path under which stored images are served.
const Prefix = "/images/"

const stampLayout = "2006-01-02T15:04:05.000Z"

var acceptedTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
}

// ErrInvalidPath is returned for paths outside Prefix or naming no file.
var ErrInvalidPath = errors.New("invalid image path")

// Objects is the subset of object storage the image helpers need.
type Objects interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Accept reports whether an upload with the given content type is kept.
func Accept(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return acceptedTypes[mediaType]
}

// FileName builds the storage key for an upload: the UTC timestamp with
// colons replaced, a dash, and the original base name.
func FileName(now time.Time, original string) string {
	stamp := strings.ReplaceAll(now.UTC().Format(stampLayout), ":", "-")
	base := path.Base(strings.ReplaceAll(original, `\`, "/"))
	if base == "." || base == "/" || base == ".." {
		base = "upload"
	}
	return stamp + "-" + base
}

// Path returns the public path for a storage key.
func Path(key string) string {
	return Prefix + key
}

// KeyFromPath maps a public path such as "/images/a.png" (the leading
// slash is optional) back to its storage key.
func KeyFromPath(p string) (string, error) {
	key, ok := strings.CutPrefix(strings.TrimPrefix(strings.TrimSpace(p), "/"), strings.TrimPrefix(Prefix, "/"))
	if !ok {
		return "", ErrInvalidPath
	}
	if err := storage.ValidateKey(key); err != nil {
		return "", ErrInvalidPath
	}
	return key, nil
}

// Store writes uploads to object storage.
type Store struct {
	objects Objects
	now     func() time.Time
}

func NewStore(objects Objects) *Store {
	return &Store{objects: objects, now: time.Now}
}

// Save stores the uploaded file and returns its public path.
func (s *Store) Save(ctx context.Context, header *multipart.FileHeader) (string, error) {
	f, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	key := FileName(s.now(), header.Filename)
	if err := s.objects.Put(ctx, key, f, header.Size, header.Header.Get("Content-Type")); err != nil {
		return "", fmt.Errorf("store %s: %w", key, err)
	}
	return Path(key), nil
}

// Open returns a reader for the image stored under key.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.objects.Get(ctx, key)
}
