package storage

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
)

type FileConfig struct {
	Directory string
}

type fileStorage struct {
	config FileConfig
}

// NewFileStorage creates a storage backend rooted at the configured
// directory. Get accepts any readable path so stored URLs round-trip.
func NewFileStorage(ctx context.Context, f FileConfig) (Storage, error) {
	if f.Directory == "" {
		f.Directory = "."
	}

	return &fileStorage{
		config: f,
	}, nil
}

func (f *fileStorage) Put(ctx context.Context, key string, data []byte) (string, error) {
	path := filepath.Join(f.config.Directory, key)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", xerrors.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", xerrors.Errorf("failed to write file: %w", err)
	}

	return path, nil
}

func (f *fileStorage) Get(ctx context.Context, url string) ([]byte, error) {
	data, err := os.ReadFile(url)
	if err != nil {
		return nil, xerrors.Errorf("failed to read file: %w", err)
	}

	return data, nil
}
