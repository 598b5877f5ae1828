package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/your-org/faceid/internal/config"
)

// OpenIdentityStore connects the configured identity store. Postgres stores
// are migrated before they are returned.
func OpenIdentityStore(ctx context.Context, cfg config.DatabaseConfig) (IdentityStore, error) {
	switch cfg.Driver {
	case "memory":
		slog.Warn("using in-memory identity store; identities are lost on restart")
		return NewMemoryStore(), nil
	case "postgres", "":
		db, err := NewPostgresStoreFromDSN(ctx, cfg.DSN(), cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// OpenAssetStore connects the configured asset backend.
func OpenAssetStore(ctx context.Context, cfg *config.Config) (AssetStore, error) {
	switch cfg.Assets.Backend {
	case "filesystem":
		return NewFileStore(cfg.Assets.Dir)
	case "minio", "":
		s, err := NewMinIOStore(cfg.MinIO)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown asset backend %q", cfg.Assets.Backend)
	}
}

// batchDeleter is implemented by backends that remove many keys per request.
type batchDeleter interface {
	DeleteObjects(ctx context.Context, keys []string) error
}

// DeleteAll removes keys, batching when the backend supports it.
func DeleteAll(ctx context.Context, assets AssetStore, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if bd, ok := assets.(batchDeleter); ok {
		return bd.DeleteObjects(ctx, keys)
	}
	var errs []error
	for _, key := range keys {
		if err := assets.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
