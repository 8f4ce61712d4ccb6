package shared

import (
	"context"

	"github.com/google/uuid"
)

// Role names carried in access tokens.
const (
	RoleSuperAdmin   = "super_admin"
	RoleAgencyAdmin  = "admin"
	RoleCollaborator = "collaborator"
)

// Principal identifies the authenticated caller of a request.
type Principal struct {
	UserID   uuid.UUID
	AgencyID uuid.UUID
	Role     string
}

// IsSuperAdmin reports whether the principal may use platform-wide actions.
func (p Principal) IsSuperAdmin() bool {
	return p.Role == RoleSuperAdmin
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

// RequirePrincipal returns the principal or ErrNoPrincipal.
func RequirePrincipal(ctx context.Context) (Principal, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.UserID == uuid.Nil {
		return Principal{}, ErrNoPrincipal
	}
	return p, nil
}
