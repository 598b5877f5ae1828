package storage

import (
	"context"
	"testing"

	"github.com/your-org/faceid/internal/config"
)

func TestOpenStores(t *testing.T) {
	ctx := context.Background()

	store, err := OpenIdentityStore(ctx, config.DatabaseConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("OpenIdentityStore(memory) error = %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Errorf("OpenIdentityStore(memory) = %T", store)
	}
	if _, err := OpenIdentityStore(ctx, config.DatabaseConfig{Driver: "sqlite"}); err == nil {
		t.Error("OpenIdentityStore(sqlite) succeeded")
	}

	cfg := &config.Config{Assets: config.AssetsConfig{Backend: "filesystem", Dir: t.TempDir()}}
	assets, err := OpenAssetStore(ctx, cfg)
	if err != nil {
		t.Fatalf("OpenAssetStore(filesystem) error = %v", err)
	}
	if _, ok := assets.(*FileStore); !ok {
		t.Errorf("OpenAssetStore(filesystem) = %T", assets)
	}
	cfg.Assets.Backend = "s3"
	if _, err := OpenAssetStore(ctx, cfg); err == nil {
		t.Error("OpenAssetStore(s3) succeeded")
	}
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	keys := []string{"faces/USR2610180001/a.jpg", "embeddings/USR2610180001/a.f32"}
	for _, key := range keys {
		if err := s.Put(ctx, key, []byte("x"), "application/octet-stream"); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
	}

	// Missing keys are not failures.
	if err := DeleteAll(ctx, s, append(keys, "faces/USR2610180002/gone.jpg")); err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}
	for _, key := range keys {
		if ok, _ := s.Exists(ctx, key); ok {
			t.Errorf("%s still exists", key)
		}
	}
	if err := DeleteAll(ctx, s, nil); err != nil {
		t.Errorf("DeleteAll(nil) error = %v", err)
	}
}
