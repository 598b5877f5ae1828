// Package mock provides an error-injecting identity store for tests.
package mock

import (
	"context"
	"sync"

	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/storage"
)

// IdentityStore wraps a MemoryStore. A non-nil *Error field makes the
// matching call fail with it; Corrupt overrides embeddings returned by All.
type IdentityStore struct {
	*storage.MemoryStore

	mu      sync.RWMutex
	corrupt map[string][]float32

	// Error injection
	InsertError error
	AllError    error
	MaxError    error
	TakenError  error
	DeleteError error
}

func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		MemoryStore: storage.NewMemoryStore(),
		corrupt:     make(map[string][]float32),
	}
}

// Corrupt makes All report embedding for identifier, as a damaged row would.
func (s *IdentityStore) Corrupt(identifier string, embedding []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corrupt[identifier] = embedding
}

func (s *IdentityStore) Insert(ctx context.Context, identity *models.Identity) error {
	if s.InsertError != nil {
		return s.InsertError
	}
	return s.MemoryStore.Insert(ctx, identity)
}

func (s *IdentityStore) All(ctx context.Context) ([]models.Identity, error) {
	if s.AllError != nil {
		return nil, s.AllError
	}
	out, err := s.MemoryStore.All(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range out {
		if emb, ok := s.corrupt[out[i].Identifier]; ok {
			out[i].Embedding = emb
		}
	}
	return out, nil
}

func (s *IdentityStore) MaxIdentifier(ctx context.Context, prefix string) (string, error) {
	if s.MaxError != nil {
		return "", s.MaxError
	}
	return s.MemoryStore.MaxIdentifier(ctx, prefix)
}

func (s *IdentityStore) IdentifierTaken(ctx context.Context, identifier string) (bool, error) {
	if s.TakenError != nil {
		return false, s.TakenError
	}
	return s.MemoryStore.IdentifierTaken(ctx, identifier)
}

func (s *IdentityStore) Delete(ctx context.Context, identifier string) (bool, error) {
	if s.DeleteError != nil {
		return false, s.DeleteError
	}
	return s.MemoryStore.Delete(ctx, identifier)
}

var _ storage.IdentityStore = (*IdentityStore)(nil)
