package ctxkeys

import (
	"context"

	"github.com/doclane/doclane/internal/model"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	UserKey contextKey = "user"
)

// User returns the authenticated user, or nil for anonymous requests.
// Pipeline code trusts this to be resolved by the auth middleware and
// never re-derives identity.
func User(ctx context.Context) *model.User {
	user, _ := ctx.Value(UserKey).(*model.User)
	return user
}

func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}
