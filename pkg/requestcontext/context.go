// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Producing middleware (login controllers, CSRF
// middleware, config APIs) sets values; the audit logger reads them to enrich
// events without depending on any transport package.
//
// Usage in middleware:
//
//	ctx = requestcontext.WithCorrelationID(ctx, id)
//	ctx = requestcontext.WithClientIP(ctx, ip)
//
// Usage when logging:
//
//	correlation := requestcontext.CorrelationID(ctx)
package requestcontext

import (
	"context"

	"github.com/google/uuid"
)

// Context key types (unexported for encapsulation).
type (
	correlationIDKey struct{}
	clientIPKey      struct{}
	userIDKey        struct{}
)

// CorrelationID retrieves the correlation ID threading causally related
// events. Returns uuid.Nil when not set.
func CorrelationID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(correlationIDKey{}).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// WithCorrelationID injects a correlation ID into the context.
func WithCorrelationID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// ClientIP retrieves the client IP the request originated from.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// WithClientIP injects a client IP into the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// UserID retrieves the acting user's identifier.
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithUserID injects a user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}
