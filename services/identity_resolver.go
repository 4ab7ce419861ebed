package services

import (
	"context"
	"time"

	"github.com/upb/labdesk-api/models"
	"github.com/upb/labdesk-api/repositories"
	"go.uber.org/zap"
)

// IdentityResolver maps verified provider claims to a durable identity
type IdentityResolver struct {
	users        repositories.UserRepository
	queryTimeout time.Duration
	logger       *zap.Logger
}

// NewIdentityResolver creates a new IdentityResolver
func NewIdentityResolver(users repositories.UserRepository, queryTimeout time.Duration, logger *zap.Logger) *IdentityResolver {
	if queryTimeout <= 0 {
		queryTimeout = 5 * time.Second
	}
	return &IdentityResolver{
		users:        users,
		queryTimeout: queryTimeout,
		logger:       logger,
	}
}

// Resolve returns the identity for the claims, creating or refreshing it atomically.
// The upsert is detached from ctx cancellation: once the assertion has been verified the write
// completes even if the client goes away, bounded by the query timeout.
func (r *IdentityResolver) Resolve(ctx context.Context, claims *models.VerifiedClaims) (*models.Identity, error) {
	if claims == nil {
		return nil, ErrInvalidAssertion
	}
	normalized := claims.Normalized()
	if normalized.Email == "" {
		return nil, ErrInvalidAssertion
	}

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.queryTimeout)
	defer cancel()

	identity, err := r.users.Upsert(storeCtx, &normalized)
	if err != nil {
		r.logger.Error("Failed to upsert identity",
			zap.String("email", normalized.Email),
			zap.Error(err),
		)
		return nil, ErrStoreUnavailable.Wrap(err)
	}

	r.logger.Debug("Identity resolved",
		zap.String("identity_id", identity.ID.String()),
		zap.String("role", string(identity.Role)),
	)
	return identity, nil
}
