// Package requestctx carries the authenticated request identity in context.
package requestctx

import "context"

// Role labels the acting user's role within a school.
type Role string

const (
	RoleUnspecified Role = ""
	RoleStudent     Role = "student"
	RoleTeacher     Role = "teacher"
)

// Identity is the acting user resolved from the request credentials.
//
// The economy core trusts these values; authentication happens at the
// transport boundary before any workflow runs.
type Identity struct {
	UserID    string
	Role      Role
	SchoolID  string
	TownClass string
}

// IsTeacher reports whether the identity carries the teacher role.
func (i Identity) IsTeacher() bool {
	return i.Role == RoleTeacher
}

// identityContextKey is the context key for the authenticated identity.
type identityContextKey struct{}

// WithIdentity stores the acting identity in context.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the identity stored in context, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || identity.UserID == "" {
		return Identity{}, false
	}
	return identity, true
}
