package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/your-org/faceid/internal/models"
)

// MemoryStore is an in-process IdentityStore. It backs the "memory" database
// driver and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	identities map[string]models.Identity
	retired    map[string]time.Time
	regLock    chan struct{}
	now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities: make(map[string]models.Identity),
		retired:    make(map[string]time.Time),
		regLock:    make(chan struct{}, 1),
		now:        time.Now,
	}
}

func (s *MemoryStore) Close() {}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Insert(_ context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.identities[identity.Identifier]; ok {
		return fmt.Errorf("insert identity %s: %w", identity.Identifier, ErrIdentifierExists)
	}
	if _, ok := s.retired[identity.Identifier]; ok {
		return fmt.Errorf("insert identity %s: %w", identity.Identifier, ErrIdentifierExists)
	}

	now := s.now()
	identity.CreatedAt = now
	identity.UpdatedAt = now
	stored := *identity
	stored.Embedding = append([]float32(nil), identity.Embedding...)
	s.identities[identity.Identifier] = stored
	return nil
}

func (s *MemoryStore) Get(_ context.Context, identifier string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.identities[identifier]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

func (s *MemoryStore) FindByName(_ context.Context, name string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *models.Identity
	for _, id := range s.identities {
		if id.DisplayName != name {
			continue
		}
		if found == nil || newer(id, *found) {
			id := id
			found = &id
		}
	}
	return found, nil
}

func newer(a, b models.Identity) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.Identifier > b.Identifier
}

func (s *MemoryStore) IdentifierTaken(_ context.Context, identifier string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, active := s.identities[identifier]
	_, retired := s.retired[identifier]
	return active || retired, nil
}

func (s *MemoryStore) MaxIdentifier(_ context.Context, prefix string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	max := ""
	for id := range s.identities {
		if strings.HasPrefix(id, prefix) && id > max {
			max = id
		}
	}
	for id := range s.retired {
		if strings.HasPrefix(id, prefix) && id > max {
			max = id
		}
	}
	return max, nil
}

func (s *MemoryStore) All(_ context.Context) ([]models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Identity, 0, len(s.identities))
	for _, id := range s.identities {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[j], out[i]) })
	return out, nil
}

func (s *MemoryStore) List(_ context.Context, q models.ListQuery) ([]models.Identity, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(q.Search)
	var matched []models.Identity
	for _, id := range s.identities {
		if search != "" &&
			!strings.Contains(strings.ToLower(id.Identifier), search) &&
			!strings.Contains(strings.ToLower(id.DisplayName), search) {
			continue
		}
		id.Embedding = nil
		matched = append(matched, id)
	}
	sort.Slice(matched, func(i, j int) bool { return newer(matched[i], matched[j]) })

	total := len(matched)
	if q.PageSize > 0 {
		start := min(q.Offset(), total)
		end := min(start+q.PageSize, total)
		matched = matched[start:end]
	}
	return matched, total, nil
}

func (s *MemoryStore) Delete(_ context.Context, identifier string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.identities[identifier]; !ok {
		return false, nil
	}
	delete(s.identities, identifier)
	s.retired[identifier] = s.now()
	return true, nil
}

func (s *MemoryStore) Stats(_ context.Context, since time.Time) (models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := models.Stats{TotalIdentities: len(s.identities), RetiredCount: len(s.retired)}
	for _, id := range s.identities {
		if !id.CreatedAt.Before(since) {
			st.RegisteredToday++
		}
		if st.LastRegisteredAt == nil || id.CreatedAt.After(*st.LastRegisteredAt) {
			created := id.CreatedAt
			st.LastRegisteredAt = &created
		}
	}
	return st, nil
}

func (s *MemoryStore) LockRegistrations(ctx context.Context) (func(), error) {
	select {
	case s.regLock <- struct{}{}:
		return func() { <-s.regLock }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("lock registrations: %w", ctx.Err())
	}
}

// SetClock replaces the time source used for CreatedAt stamps.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
