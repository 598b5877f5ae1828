package models

import "time"

type IdentityEventType string

const (
	EventRegistered     IdentityEventType = "registered"
	EventDeleted        IdentityEventType = "deleted"
	EventAssetsOrphaned IdentityEventType = "assets_orphaned"
)

// IdentityEvent is published on the message bus after lifecycle changes.
type IdentityEvent struct {
	Type        IdentityEventType `json:"type"`
	Identifier  string            `json:"identifier"`
	DisplayName string            `json:"display_name,omitempty"`
	AssetRefs   []string          `json:"asset_refs,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}
