package auth

import (
	"context"

	"opsdeck.io/internal/account"
)

type ctxKey string

const identityKey ctxKey = "auth_identity"

// ContextWithIdentity stores the verified identity in the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext extracts the verified identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	if !ok || id.Subject == "" {
		return Identity{}, false
	}
	return id, true
}

// IsAdmin reports whether the context identity carries the admin role.
func IsAdmin(ctx context.Context) bool {
	id, ok := IdentityFromContext(ctx)
	return ok && id.Role == account.RoleAdmin
}
