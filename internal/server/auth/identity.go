package auth

import (
	"context"

	"github.com/google/uuid"
)

// Identity is attached to the request context once the bearer token checks out.
type Identity struct {
	AccountID uuid.UUID
	Email     string
	Username  string
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
