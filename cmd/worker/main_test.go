package main

import (
	"context"
	"testing"

	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/storage"
)

func TestCleanOrphans(t *testing.T) {
	ctx := context.Background()
	assets, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	refs := []string{"faces/USR2610180001/a.jpg", "embeddings/USR2610180001/a.f32"}
	for _, ref := range refs {
		if err := assets.Put(ctx, ref, []byte("x"), "application/octet-stream"); err != nil {
			t.Fatalf("Put(%s) error = %v", ref, err)
		}
	}

	handler := cleanOrphans(assets)
	err = handler(ctx, models.IdentityEvent{Type: models.EventAssetsOrphaned, Identifier: "USR2610180001", AssetRefs: refs})
	if err != nil {
		t.Fatalf("handler() error = %v", err)
	}
	for _, ref := range refs {
		if ok, _ := assets.Exists(ctx, ref); ok {
			t.Errorf("%s still exists", ref)
		}
	}

	if err := handler(ctx, models.IdentityEvent{Type: models.EventAssetsOrphaned}); err != nil {
		t.Errorf("handler(no refs) error = %v", err)
	}
	// Paths escaping the asset root are refused and the message is retried.
	if err := handler(ctx, models.IdentityEvent{AssetRefs: []string{"../outside"}}); err == nil {
		t.Error("handler(../outside) error = nil")
	}
}
