// Package storage provides the backends base images are fetched from and
// build results are uploaded to.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bitswalk/ldfpkg/src/common/errors"
	"github.com/bitswalk/ldfpkg/src/common/logs"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the storage package
func SetLogger(l *logs.Logger) {
	log = l
}

// Backend defines the interface for storage backends
type Backend interface {
	// Upload uploads data to storage
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download downloads an object from storage
	Download(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error)

	// Delete deletes an object from storage
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)

	// List lists objects with the given prefix
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Ping checks if the storage is accessible
	Ping(ctx context.Context) error

	// Type returns the storage backend type
	Type() string

	// Location returns a human-readable location description
	Location() string
}

// LocalPathResolver is implemented by backends whose objects already are
// files, so callers can use them in place
type LocalPathResolver interface {
	ResolvePath(key string) string
}

// ObjectInfo holds metadata about a storage object
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Config holds the storage configuration
type Config struct {
	// Type is the storage backend type: "s3" or "local"
	Type string

	Local LocalConfig
	S3    S3Config
}

// New creates a new storage backend based on configuration
func New(cfg Config) (Backend, error) {
	switch cfg.Type {
	case "s3":
		return NewS3(cfg.S3)
	case "local", "":
		return NewLocal(cfg.Local)
	}
	return nil, errors.ErrInvalidValue.WithMessagef("Unknown storage type %q", cfg.Type)
}

// Fetch makes the object key available as a file at dst. An existing dst
// is reused. Local backends serve the object in place and dst is ignored;
// the returned path is the one to read.
func Fetch(ctx context.Context, b Backend, key, dst string) (string, error) {
	if r, ok := b.(LocalPathResolver); ok {
		path := r.ResolvePath(key)
		if _, err := os.Stat(path); err != nil {
			return "", errors.ErrStorageNotFound.WithMessagef("%s not found in %s", key, b.Location()).WithCause(err)
		}
		return path, nil
	}

	if _, err := os.Stat(dst); err == nil {
		log.Debug("Using cached object", "key", key, "path", dst)
		return dst, nil
	}

	body, info, err := b.Download(ctx, key)
	if err != nil {
		return "", err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return "", errors.ErrStorageDownloadFailed.WithMessagef("Cannot download %s", key).WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", err
	}

	log.Info("Fetched from storage", "key", key, "size", info.Size, "path", dst)
	return dst, nil
}

// UploadFile stores the file at path under key
func UploadFile(ctx context.Context, b Backend, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.ErrStorageUploadFailed.WithMessagef("Cannot open %s", path).WithCause(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.ErrStorageUploadFailed.WithCause(err)
	}
	if err := b.Upload(ctx, key, f, info.Size(), contentType(path)); err != nil {
		return err
	}
	log.Info("Uploaded to storage", "key", key, "location", b.Location())
	return nil
}

func contentType(path string) string {
	switch filepath.Ext(path) {
	case ".changes", ".dsc", ".build", ".buildinfo":
		return "text/plain; charset=utf-8"
	case ".deb", ".udeb", ".ddeb":
		return "application/vnd.debian.binary-package"
	case ".gz":
		return "application/gzip"
	case ".xz":
		return "application/x-xz"
	}
	return "application/octet-stream"
}

func notFound(key string, err error) error {
	return errors.ErrStorageNotFound.WithMessage(fmt.Sprintf("Object not found: %s", key)).WithCause(err)
}
