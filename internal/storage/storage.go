package storage

import (
	"context"

	"golang.org/x/xerrors"
)

type Storage interface {
	// Put stores data under the given key and returns the storage URL
	Put(ctx context.Context, key string, data []byte) (string, error)
	// Get retrieves data from the given storage URL
	Get(ctx context.Context, url string) ([]byte, error)
}

type Config struct {
	// Backend is "file" or "s3". Empty selects the file backend.
	Backend   string
	Directory string
	Bucket    string
}

// New builds the storage backend named by the config.
func New(ctx context.Context, c Config) (Storage, error) {
	switch c.Backend {
	case "", "file":
		return NewFileStorage(ctx, FileConfig{Directory: c.Directory})
	case "s3":
		return NewS3Storage(ctx, S3Config{Bucket: c.Bucket})
	default:
		return nil, xerrors.Errorf("unknown storage backend: %s", c.Backend)
	}
}
