package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/labdesk-api/models"
	"github.com/upb/labdesk-api/services/providers"
	"github.com/upb/labdesk-api/session"
	"go.uber.org/zap"
)

// ProviderLookup resolves a provider name to its verifier
type ProviderLookup interface {
	Get(name string) (providers.Verifier, error)
}

// SessionIssuer mints session tokens
type SessionIssuer interface {
	Issue(identityID uuid.UUID) (*session.Token, error)
}

// Resolver maps verified claims to an identity
type Resolver interface {
	Resolve(ctx context.Context, claims *models.VerifiedClaims) (*models.Identity, error)
}

// SignInResult is the outcome of a successful sign-in
type SignInResult struct {
	Identity *models.Identity
	Token    *session.Token
}

// SignInService runs the sign-in flow: verify, then resolve, then issue
type SignInService struct {
	providers ProviderLookup
	resolver  Resolver
	issuer    SessionIssuer
	logger    *zap.Logger
}

// NewSignInService creates a new SignInService
func NewSignInService(registry ProviderLookup, resolver Resolver, issuer SessionIssuer, logger *zap.Logger) *SignInService {
	return &SignInService{
		providers: registry,
		resolver:  resolver,
		issuer:    issuer,
		logger:    logger,
	}
}

// SignIn exchanges a provider assertion for an identity and a session token.
// Each step runs only after the previous one succeeded.
func (s *SignInService) SignIn(ctx context.Context, provider, credential string) (*SignInResult, error) {
	verifier, err := s.providers.Get(provider)
	if err != nil {
		return nil, ErrUnknownProvider.Wrap(err)
	}

	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, ErrMissingCredential
	}

	claims, err := verifier.Verify(ctx, credential)
	if err != nil {
		s.logger.Warn("Identity assertion rejected",
			zap.String("provider", verifier.Name()),
			zap.Error(err),
		)
		return nil, classifyVerifyError(err)
	}

	identity, err := s.resolver.Resolve(ctx, claims)
	if err != nil {
		return nil, err
	}

	token, err := s.issuer.Issue(identity.ID)
	if err != nil {
		return nil, WrapInternal("failed to issue session", err)
	}

	s.logger.Info("User signed in",
		zap.String("provider", verifier.Name()),
		zap.String("identity_id", identity.ID.String()),
	)

	return &SignInResult{Identity: identity, Token: token}, nil
}

func classifyVerifyError(err error) error {
	switch {
	case errors.Is(err, providers.ErrUnverifiedIdentity):
		return ErrUnverifiedIdentity.Wrap(err)
	case errors.Is(err, providers.ErrUnavailable):
		return ErrProviderUnavailable.Wrap(err)
	default:
		return ErrInvalidAssertion.Wrap(err)
	}
}
