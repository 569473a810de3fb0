// Package backend opens the object store selected by configuration.
package backend

import (
	"context"
	"fmt"

	"github.com/duckmesh/arrowscan/internal/config"
	"github.com/duckmesh/arrowscan/internal/storage"
	"github.com/duckmesh/arrowscan/internal/storage/local"
	s3store "github.com/duckmesh/arrowscan/internal/storage/s3"
)

// Store is an object store that can report whether its backend is reachable.
type Store interface {
	storage.ObjectStore
	Ping(ctx context.Context) error
}

func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case config.StorageBackendLocal:
		store, err := local.New(cfg.LocalRoot)
		if err != nil {
			return nil, fmt.Errorf("open local storage: %w", err)
		}
		return store, nil
	case config.StorageBackendS3:
		store, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.S3.Endpoint,
			Region:           cfg.S3.Region,
			Bucket:           cfg.S3.Bucket,
			AccessKeyID:      cfg.S3.AccessKeyID,
			SecretAccessKey:  cfg.S3.SecretAccessKey,
			UseSSL:           cfg.S3.UseSSL,
			Prefix:           cfg.S3.Prefix,
			AutoCreateBucket: cfg.S3.AutoCreateBucket,
		})
		if err != nil {
			return nil, fmt.Errorf("open s3 storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}
