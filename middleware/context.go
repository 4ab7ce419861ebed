package middleware

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/upb/labdesk-api/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	// AuthKey is the context key for the authenticated session
	AuthKey contextKey = "auth"
)

// AuthContext is what RequireAuth leaves on the request.
// Identity is filled by AttachUser and may stay nil.
type AuthContext struct {
	IdentityID uuid.UUID
	Identity   *models.Identity
}

// GetRequestIDFromContext retrieves the chi request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	return middleware.GetReqID(ctx)
}

// AuthFromContext retrieves the auth context, or nil when the request is anonymous
func AuthFromContext(ctx context.Context) *AuthContext {
	if val := ctx.Value(AuthKey); val != nil {
		if auth, ok := val.(*AuthContext); ok {
			return auth
		}
	}
	return nil
}

// WithAuth adds the auth context to the context
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, AuthKey, auth)
}

// GetIdentityIDFromContext returns the authenticated identity ID, or uuid.Nil
func GetIdentityIDFromContext(ctx context.Context) uuid.UUID {
	if auth := AuthFromContext(ctx); auth != nil {
		return auth.IdentityID
	}
	return uuid.Nil
}
