package models

import "time"

// Identity is one enrolled face bound to a durable identifier.
type Identity struct {
	Identifier   string    `json:"identifier" db:"identifier"`
	DisplayName  string    `json:"display_name" db:"display_name"`
	Embedding    []float32 `json:"-" db:"embedding"`
	EmbeddingRef string    `json:"embedding_ref" db:"embedding_ref"`
	ImageRef     string    `json:"image_ref" db:"image_ref"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// AssetRefs returns the non-empty asset keys referenced by the identity.
func (i *Identity) AssetRefs() []string {
	refs := make([]string, 0, 2)
	if i.ImageRef != "" {
		refs = append(refs, i.ImageRef)
	}
	if i.EmbeddingRef != "" {
		refs = append(refs, i.EmbeddingRef)
	}
	return refs
}

// IdentitySummary is the short form returned in recognition reports.
type IdentitySummary struct {
	Identifier  string `json:"identifier"`
	DisplayName string `json:"display_name"`
}

// ListQuery filters and paginates identity listings. Search matches the
// identifier or display name as a case-insensitive substring.
type ListQuery struct {
	Search   string
	Page     int
	PageSize int
}

// Offset returns the zero-based row offset for the page.
func (q ListQuery) Offset() int {
	if q.Page <= 1 {
		return 0
	}
	return (q.Page - 1) * q.PageSize
}

type Stats struct {
	TotalIdentities  int        `json:"total_identities"`
	RegisteredToday  int        `json:"registered_today"`
	RetiredCount     int        `json:"retired_identifiers"`
	LastRegisteredAt *time.Time `json:"last_registered_at,omitempty"`
}
