package slogx

import (
	"context"
	"log/slog"
)

// scope is what HTTPMiddleware attaches to a request.
type scope struct {
	logger    *slog.Logger
	requestID string
}

type scopeKey struct{}

func withScope(ctx context.Context, s scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

func scopeFrom(ctx context.Context) scope {
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

// FromContext returns the request logger, or slog.Default outside a request.
func FromContext(ctx context.Context) *slog.Logger {
	if l := scopeFrom(ctx).logger; l != nil {
		return l
	}
	return slog.Default()
}

// RequestID returns the id of the request being served, or "".
func RequestID(ctx context.Context) string {
	return scopeFrom(ctx).requestID
}
