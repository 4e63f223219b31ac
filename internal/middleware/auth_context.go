package middleware

import "context"

type contextKey string

const AuthContextKey contextKey = "auth_context"

// AuthContext holds the authenticated caller's identity, attached to the
// request context by JWTAuth.
type AuthContext struct {
	UserID  int64
	IsAdmin bool
	TokenID string // jti, used for blacklist checks on logout
}

func GetAuthContext(ctx context.Context) (*AuthContext, bool) {
	val, ok := ctx.Value(AuthContextKey).(*AuthContext)
	return val, ok
}

func WithAuthContext(ctx context.Context, ac *AuthContext) context.Context {
	return context.WithValue(ctx, AuthContextKey, ac)
}
