//go:build integration

package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/your-org/faceid/internal/models"
)

func setupPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "faceid",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil || container == nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/faceid?sslmode=disable", host, port.Port())
	store, err := NewPostgresStoreFromDSN(ctx, dsn, 5)
	if err != nil {
		t.Fatalf("NewPostgresStoreFromDSN() error = %v", err)
	}
	t.Cleanup(store.Close)

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	// Applying twice must be a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	return store
}

func TestPostgresStoreLifecycle(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	alice := &models.Identity{
		Identifier:   "USR2610180001",
		DisplayName:  "Alice",
		Embedding:    []float32{0.6, 0.8, 0},
		EmbeddingRef: "embeddings/USR2610180001/a.f32",
		ImageRef:     "faces/USR2610180001/a.jpg",
	}
	if err := store.Insert(ctx, alice); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if alice.CreatedAt.IsZero() {
		t.Error("Insert() did not set CreatedAt")
	}

	if err := store.Insert(ctx, &models.Identity{Identifier: "USR2610180001", DisplayName: "Dup", Embedding: []float32{1, 0, 0}}); !errors.Is(err, ErrIdentifierExists) {
		t.Fatalf("duplicate Insert() error = %v, want ErrIdentifierExists", err)
	}

	got, err := store.Get(ctx, "USR2610180001")
	if err != nil || got == nil {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	if len(got.Embedding) != 3 || got.Embedding[1] != 0.8 {
		t.Errorf("Embedding = %v, want [0.6 0.8 0]", got.Embedding)
	}

	byName, err := store.FindByName(ctx, "Alice")
	if err != nil || byName == nil || byName.Identifier != "USR2610180001" {
		t.Errorf("FindByName() = %v, %v", byName, err)
	}

	max, err := store.MaxIdentifier(ctx, "USR261018")
	if err != nil || max != "USR2610180001" {
		t.Errorf("MaxIdentifier() = %q, %v", max, err)
	}

	all, err := store.All(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("All() = %d rows, %v", len(all), err)
	}

	page, total, err := store.List(ctx, models.ListQuery{Search: "ali", Page: 1, PageSize: 10})
	if err != nil || total != 1 || len(page) != 1 {
		t.Errorf("List() = %d rows, total %d, %v", len(page), total, err)
	}

	deleted, err := store.Delete(ctx, "USR2610180001")
	if err != nil || !deleted {
		t.Fatalf("Delete() = %v, %v", deleted, err)
	}
	if missing, _ := store.Get(ctx, "USR2610180001"); missing != nil {
		t.Error("Get() after Delete returned a row")
	}

	taken, err := store.IdentifierTaken(ctx, "USR2610180001")
	if err != nil || !taken {
		t.Errorf("IdentifierTaken() = %v, %v; want retired identifier taken", taken, err)
	}
	if err := store.Insert(ctx, &models.Identity{Identifier: "USR2610180001", DisplayName: "Again", Embedding: []float32{1, 0, 0}}); !errors.Is(err, ErrIdentifierExists) {
		t.Errorf("Insert() of retired identifier error = %v, want ErrIdentifierExists", err)
	}
	if max, _ := store.MaxIdentifier(ctx, "USR261018"); max != "USR2610180001" {
		t.Errorf("MaxIdentifier() after delete = %q, want retired identifier counted", max)
	}

	st, err := store.Stats(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if st.TotalIdentities != 0 || st.RetiredCount != 1 || st.LastRegisteredAt != nil {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestPostgresRegistrationLockSerializes(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := store.LockRegistrations(ctx)
			if err != nil {
				t.Errorf("LockRegistrations() error = %v", err)
				return
			}
			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()

			time.Sleep(20 * time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("%d holders inside the lock at once, want 1", maxSeen)
	}
}
