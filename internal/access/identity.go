// Package access models the caller identity that compiled policies consume
// and enforces the application-level half of the permission model: the
// table-level pre-check and per-field read/write filtering. Row filtering
// itself happens in the database, driven by the session bindings this
// package installs.
//
// Callers are expected to check in this order: authentication, then row
// existence within the caller's scope (answering not-found, never forbidden,
// for rows outside it), then Authorize, then the field filters.
package access

import "context"

// Identity is an authenticated caller. A zero UserID means anonymous.
type Identity struct {
	UserID         int64
	OrganizationID int64
	TeamID         int64
	Roles          []string
}

// Authenticated reports whether the identity carries a user.
func (id *Identity) Authenticated() bool {
	return id != nil && id.UserID != 0
}

// HasRole reports whether the identity holds role.
func (id *Identity) HasRole(role string) bool {
	if id == nil {
		return false
	}
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// PrimaryRole returns the first declared role, which is the one bound to
// the database session.
func (id *Identity) PrimaryRole() string {
	if id == nil || len(id.Roles) == 0 {
		return ""
	}
	return id.Roles[0]
}

type contextKey struct{}

// WithIdentity binds an identity to the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity bound to ctx, or nil for anonymous.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(contextKey{}).(*Identity)
	return id
}
