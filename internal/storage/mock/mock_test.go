package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/your-org/faceid/internal/models"
)

func TestErrorInjection(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	s := NewIdentityStore()
	s.InsertError = boom
	if err := s.Insert(ctx, &models.Identity{Identifier: "USR2610180001"}); !errors.Is(err, boom) {
		t.Fatalf("Insert() error = %v, want boom", err)
	}
	s.InsertError = nil
	if err := s.Insert(ctx, &models.Identity{Identifier: "USR2610180001", Embedding: []float32{1, 0}}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	s.AllError, s.MaxError, s.TakenError, s.DeleteError = boom, boom, boom, boom
	if _, err := s.All(ctx); !errors.Is(err, boom) {
		t.Errorf("All() error = %v", err)
	}
	if _, err := s.MaxIdentifier(ctx, "USR261018"); !errors.Is(err, boom) {
		t.Errorf("MaxIdentifier() error = %v", err)
	}
	if _, err := s.IdentifierTaken(ctx, "USR2610180001"); !errors.Is(err, boom) {
		t.Errorf("IdentifierTaken() error = %v", err)
	}
	if _, err := s.Delete(ctx, "USR2610180001"); !errors.Is(err, boom) {
		t.Errorf("Delete() error = %v", err)
	}

	// Unhooked reads still reach the wrapped store.
	got, err := s.Get(ctx, "USR2610180001")
	if err != nil || got == nil {
		t.Fatalf("Get() = %v, %v", got, err)
	}
}

func TestCorruptOnlyAffectsAll(t *testing.T) {
	ctx := context.Background()
	s := NewIdentityStore()
	if err := s.Insert(ctx, &models.Identity{Identifier: "USR2610180001", Embedding: []float32{1, 0}}); err != nil {
		t.Fatal(err)
	}
	s.Corrupt("USR2610180001", []float32{1})

	all, err := s.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || len(all[0].Embedding) != 1 {
		t.Errorf("All() = %+v, want the corrupted embedding", all)
	}

	got, _ := s.Get(ctx, "USR2610180001")
	if got == nil || len(got.Embedding) != 2 {
		t.Errorf("Get() = %+v, want the stored embedding", got)
	}
}
