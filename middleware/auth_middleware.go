package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/upb/labdesk-api/models"
	"github.com/upb/labdesk-api/session"
	"github.com/upb/labdesk-api/utils"
	"go.uber.org/zap"
)

// TokenParser validates session tokens
type TokenParser interface {
	Parse(value string) (*session.Claims, error)
	CookieName() string
}

// IdentityLookup loads identities by ID
type IdentityLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	parser       TokenParser
	users        IdentityLookup
	queryTimeout time.Duration
	logger       *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(parser TokenParser, users IdentityLookup, queryTimeout time.Duration, logger *zap.Logger) *AuthMiddleware {
	if queryTimeout <= 0 {
		queryTimeout = 5 * time.Second
	}
	return &AuthMiddleware{
		parser:       parser,
		users:        users,
		queryTimeout: queryTimeout,
		logger:       logger,
	}
}

// RequireAuth is a middleware that requires a valid session token
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		token := m.extractToken(r)
		if token == "" {
			m.logger.Debug("missing session token",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}

		claims, err := m.parser.Parse(token)
		if err != nil {
			m.logger.Warn("session token rejected",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteUnauthorized(w, "Invalid or expired session")
			return
		}

		identityID, err := claims.IdentityID()
		if err != nil {
			m.logger.Warn("session subject is not an identity ID",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteUnauthorized(w, "Invalid or expired session")
			return
		}

		ctx = WithAuth(ctx, &AuthContext{IdentityID: identityID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AttachUser loads the identity for an authenticated request.
// Lookup failures are logged and the request continues without an identity.
func (m *AuthMiddleware) AttachUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		auth := AuthFromContext(ctx)
		if auth == nil {
			next.ServeHTTP(w, r)
			return
		}

		lookupCtx, cancel := context.WithTimeout(ctx, m.queryTimeout)
		identity, err := m.users.GetByID(lookupCtx, auth.IdentityID)
		cancel()

		switch {
		case err != nil:
			m.logger.Warn("failed to load identity",
				zap.String("request_id", GetRequestIDFromContext(ctx)),
				zap.String("identity_id", auth.IdentityID.String()),
				zap.Error(err))
		case identity == nil:
			m.logger.Warn("identity not found for session",
				zap.String("request_id", GetRequestIDFromContext(ctx)),
				zap.String("identity_id", auth.IdentityID.String()))
		}

		attached := &AuthContext{IdentityID: auth.IdentityID, Identity: identity}
		next.ServeHTTP(w, r.WithContext(WithAuth(ctx, attached)))
	})
}

// RequireRole is a middleware that requires a specific role.
// AttachUser must run upstream.
func (m *AuthMiddleware) RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)

			auth := AuthFromContext(ctx)
			if auth == nil {
				_ = utils.WriteUnauthorized(w, "Authentication required")
				return
			}

			if !auth.Identity.HasRole(role) {
				m.logger.Warn("insufficient permissions",
					zap.String("request_id", requestID),
					zap.String("identity_id", auth.IdentityID.String()),
					zap.String("required_role", string(role)))
				_ = utils.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractToken returns the bearer token, falling back to the session cookie.
// A non-Bearer Authorization header is treated as absent; a Bearer header
// with no token wins over the cookie and yields "".
func (m *AuthMiddleware) extractToken(r *http.Request) string {
	if token, ok := extractBearerToken(r); ok {
		return token
	}
	if cookie, err := r.Cookie(m.parser.CookieName()); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

// extractBearerToken extracts the Bearer token from the Authorization header.
// ok reports whether the header uses the Bearer scheme.
func extractBearerToken(r *http.Request) (token string, ok bool) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if authHeader == "" {
		return "", false
	}

	scheme, rest, _ := strings.Cut(authHeader, " ")
	if !strings.EqualFold(scheme, "bearer") {
		return "", false
	}

	return strings.TrimSpace(rest), true
}
