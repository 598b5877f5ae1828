package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/storage"
	"github.com/your-org/faceid/internal/storage/mock"
)

var testDay = time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func insertID(t *testing.T, s storage.IdentityStore, id string) {
	t.Helper()
	if err := s.Insert(context.Background(), &models.Identity{Identifier: id, DisplayName: id}); err != nil {
		t.Fatalf("Insert(%s) error = %v", id, err)
	}
}

func TestGeneratorSequence(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	g := NewGenerator("USR", store, WithClock(fixedClock(testDay)))

	first, err := g.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if first != "USR2610180001" {
		t.Fatalf("first identifier = %s, want USR2610180001", first)
	}
	insertID(t, store, first)

	second, err := g.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if second != "USR2610180002" {
		t.Fatalf("second identifier = %s, want USR2610180002", second)
	}

	// Deleting the highest identifier must not free it for reuse.
	insertID(t, store, second)
	if _, err := store.Delete(ctx, second); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	third, err := g.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if third != "USR2610180003" {
		t.Errorf("identifier after deletion = %s, want USR2610180003", third)
	}

	// Other days do not affect the sequence.
	tomorrow := NewGenerator("USR", store, WithClock(fixedClock(testDay.AddDate(0, 0, 1))))
	next, err := tomorrow.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if next != "USR2610190001" {
		t.Errorf("next-day identifier = %s, want USR2610190001", next)
	}
}

func TestGeneratorFallsBackToClock(t *testing.T) {
	ctx := context.Background()
	store := mock.NewIdentityStore()
	store.MaxError = errors.New("connection refused")
	g := NewGenerator("USR", store, WithClock(fixedClock(testDay)))

	// 10:00:00 is second 36000 of the day; 36000 % 9999 + 1 = 6004.
	id, err := g.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if id != "USR2610186004" {
		t.Fatalf("fallback identifier = %s, want USR2610186004", id)
	}

	insertID(t, store, id)
	id, err = g.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if id != "USR2610186005" {
		t.Errorf("fallback identifier after conflict = %s, want USR2610186005", id)
	}
	if ok, reason := g.Validate(id); !ok {
		t.Errorf("fallback identifier failed validation: %s", reason)
	}
}

func TestGeneratorExhaustion(t *testing.T) {
	store := storage.NewMemoryStore()
	insertID(t, store, "USR2610189999")
	g := NewGenerator("USR", store, WithClock(fixedClock(testDay)))

	if _, err := g.Next(context.Background()); !errors.Is(err, ErrSequenceExhausted) {
		t.Errorf("Next() error = %v, want ErrSequenceExhausted", err)
	}
}

func TestGeneratorExistenceCheckFailure(t *testing.T) {
	store := mock.NewIdentityStore()
	store.TakenError = errors.New("timeout")
	g := NewGenerator("USR", store, WithClock(fixedClock(testDay)))

	if _, err := g.Next(context.Background()); err == nil {
		t.Error("Next() error = nil, want existence check failure")
	}
}

func TestGeneratorValidate(t *testing.T) {
	g := NewGenerator("USR", storage.NewMemoryStore())

	tests := []struct {
		id    string
		valid bool
	}{
		{"USR2610180001", true},
		{"USR2402290001", true},  // 2024 is a leap year
		{"USR2502290001", false}, // 2025 is not
		{"USR2613010001", false}, // month 13
		{"USR2610320001", false}, // day 32
		{"USR261018001", false},  // too short
		{"USR26101800001", false},
		{"ABC2610180001", false},
		{"usr2610180001", false},
		{"USR26101800A1", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			ok, reason := g.Validate(tt.id)
			if ok != tt.valid {
				t.Errorf("Validate(%q) = %v (%s), want %v", tt.id, ok, reason, tt.valid)
			}
			if !ok && reason == "" {
				t.Errorf("Validate(%q) returned no reason", tt.id)
			}
		})
	}
}

func TestGeneratedIdentifiersValidate(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	g := NewGenerator("USR", store, WithClock(fixedClock(testDay)))

	for i := 0; i < 20; i++ {
		id, err := g.Next(ctx)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if ok, reason := g.Validate(id); !ok {
			t.Fatalf("generated %s failed validation: %s", id, reason)
		}
		insertID(t, store, id)
	}
}
