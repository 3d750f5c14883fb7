package storage

import (
	"context"
	"log/slog"

	"golang.org/x/xerrors"
)

var UnknownBackendError = xerrors.New("unknown storage backend")

// Storage keeps comparison artifacts. Put overwrites any existing object with
// the same key.
type Storage interface {
	// Put stores data with the given key and returns the storage URL
	Put(ctx context.Context, key string, data []byte) (string, error)
	// Get retrieves data from the given storage URL
	Get(ctx context.Context, url string) ([]byte, error)
}

type Config struct {
	Backend string
	File    FileConfig
	S3      S3Config
}

// New builds the backend named by config.Backend, "file" or "s3".
func New(ctx context.Context, logger *slog.Logger, config Config) (Storage, error) {
	switch config.Backend {
	case "", "file":
		return NewFileStorage(ctx, config.File)
	case "s3":
		return NewS3Storage(ctx, logger, config.S3)
	default:
		return nil, xerrors.Errorf("%q: %w", config.Backend, UnknownBackendError)
	}
}
