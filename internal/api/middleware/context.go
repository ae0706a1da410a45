package middleware

import (
	"context"
	"net/http"
	"slices"

	"github.com/google/uuid"
)

// Principal is the caller resolved from an API key. Every job and simulation
// read or write is scoped to OwnerID.
type Principal struct {
	OwnerID   uuid.UUID
	KeyID     uuid.UUID
	KeyPrefix string
	Scopes    []string
}

// HasScope reports whether the key was granted scope.
func (p Principal) HasScope(scope string) bool {
	return slices.Contains(p.Scopes, scope)
}

type principalKey struct{}

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller set by Authenticate.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// GetOwnerID returns the authenticated owner.
func GetOwnerID(r *http.Request) (uuid.UUID, bool) {
	p, ok := PrincipalFrom(r.Context())
	if !ok || p.OwnerID == uuid.Nil {
		return uuid.Nil, false
	}
	return p.OwnerID, true
}
