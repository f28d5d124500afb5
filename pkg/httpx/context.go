package httpx

import (
	"context"

	"github.com/aussiebroadwan/learnhub/pkg/jwtx"
)

type ctxKey string

const (
	ctxKeyUserID ctxKey = "user_id"
	ctxKeyClaims ctxKey = "claims"
)

// ContextWithClaims stores verified access-token claims on ctx.
func ContextWithClaims(ctx context.Context, c *jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, ctxKeyUserID, c.Subject)
	return context.WithValue(ctx, ctxKeyClaims, c)
}

// ClaimsFromContext returns the claims stored by AuthnMiddleware.
func ClaimsFromContext(ctx context.Context) (*jwtx.Claims, bool) {
	c, ok := ctx.Value(ctxKeyClaims).(*jwtx.Claims)
	return c, ok
}

// UserIDFromContext returns the authenticated subject, or "".
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserID).(string); ok {
		return v
	}
	return ""
}
