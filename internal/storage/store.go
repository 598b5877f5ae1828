package storage

import (
	"context"
	"errors"
	"time"

	"github.com/your-org/faceid/internal/models"
)

var (
	// ErrIdentifierExists is returned by Insert when the identifier is held by
	// an active identity or was retired by a deletion.
	ErrIdentifierExists = errors.New("identifier already exists")
	ErrAssetNotFound    = errors.New("asset not found")
)

// IdentityStore persists identity rows. Lookups that find nothing return nil, nil.
type IdentityStore interface {
	Insert(ctx context.Context, identity *models.Identity) error
	Get(ctx context.Context, identifier string) (*models.Identity, error)
	// FindByName returns the most recently created identity with the display name.
	FindByName(ctx context.Context, name string) (*models.Identity, error)
	// IdentifierTaken reports whether the identifier is active or retired.
	IdentifierTaken(ctx context.Context, identifier string) (bool, error)
	// MaxIdentifier returns the greatest active or retired identifier starting
	// with prefix, or "" when there is none.
	MaxIdentifier(ctx context.Context, prefix string) (string, error)
	// All returns every identity with its embedding, oldest first.
	All(ctx context.Context) ([]models.Identity, error)
	// List returns one page of identities without embeddings and the total match count.
	List(ctx context.Context, q models.ListQuery) ([]models.Identity, int, error)
	// Delete removes the row and retires the identifier. It reports whether a row existed.
	Delete(ctx context.Context, identifier string) (bool, error)
	Stats(ctx context.Context, since time.Time) (models.Stats, error)
	// LockRegistrations blocks until the caller holds the registration lock.
	LockRegistrations(ctx context.Context) (unlock func(), err error)
	Ping(ctx context.Context) error
	Close()
}

// AssetStore holds face images and embedding blobs by key.
type AssetStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get returns ErrAssetNotFound for unknown keys.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete succeeds for keys that do not exist.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// List returns all keys under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
}

// Asset key prefixes.
const (
	FacesPrefix      = "faces/"
	EmbeddingsPrefix = "embeddings/"
)
