package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// API key scopes. Read covers listing and polling, write covers uploads and
// simulations, admin covers key management.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
	ScopeAdmin = "admin"
)

// AllScopes lists every scope a key may carry.
var AllScopes = []string{ScopeRead, ScopeWrite, ScopeAdmin}

// DefaultScopes is granted when a key is created without explicit scopes.
var DefaultScopes = []string{ScopeRead, ScopeWrite}

// ValidScope reports whether s is a known scope.
func ValidScope(s string) bool {
	return slices.Contains(AllScopes, s)
}

// APIKey authenticates a caller as OwnerID. The raw key is returned once at
// creation; only its bcrypt hash and an 8-character lookup prefix are stored.
// Revoked keys keep their row with DeletedAt set.
type APIKey struct {
	ID         uuid.UUID  `db:"id"           json:"id"`
	OwnerID    uuid.UUID  `db:"owner_id"     json:"owner_id"`
	Name       string     `db:"name"         json:"name"`
	KeyHash    string     `db:"key_hash"     json:"-"`
	KeyPrefix  string     `db:"key_prefix"   json:"key_prefix"`
	Scopes     []string   `db:"scopes"       json:"scopes"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	DeletedAt  *time.Time `db:"deleted_at"   json:"-"`
	CreatedAt  time.Time  `db:"created_at"   json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"   json:"updated_at"`
}

// Revoked reports whether the key has been revoked.
func (k *APIKey) Revoked() bool {
	return k.DeletedAt != nil
}
