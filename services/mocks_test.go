package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/upb/labdesk-api/models"
	"github.com/upb/labdesk-api/services/providers"
	"github.com/upb/labdesk-api/session"
)

// MockUserRepository is a mock implementation of repositories.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) FindByProviderIDOrEmail(ctx context.Context, subjectID, email string) (*models.Identity, error) {
	args := m.Called(ctx, subjectID, email)
	if identity := args.Get(0); identity != nil {
		return identity.(*models.Identity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) Upsert(ctx context.Context, claims *models.VerifiedClaims) (*models.Identity, error) {
	args := m.Called(ctx, claims)
	if identity := args.Get(0); identity != nil {
		return identity.(*models.Identity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	args := m.Called(ctx, id)
	if identity := args.Get(0); identity != nil {
		return identity.(*models.Identity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) SetRole(ctx context.Context, id uuid.UUID, role models.Role) error {
	args := m.Called(ctx, id, role)
	return args.Error(0)
}

// MockVerifier is a mock implementation of providers.Verifier
type MockVerifier struct {
	mock.Mock
	name string
}

func (m *MockVerifier) Name() string {
	return m.name
}

func (m *MockVerifier) Verify(ctx context.Context, assertion string) (*models.VerifiedClaims, error) {
	args := m.Called(ctx, assertion)
	if claims := args.Get(0); claims != nil {
		return claims.(*models.VerifiedClaims), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockResolver is a mock implementation of Resolver
type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, claims *models.VerifiedClaims) (*models.Identity, error) {
	args := m.Called(ctx, claims)
	if identity := args.Get(0); identity != nil {
		return identity.(*models.Identity), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockIssuer is a mock implementation of SessionIssuer
type MockIssuer struct {
	mock.Mock
}

func (m *MockIssuer) Issue(identityID uuid.UUID) (*session.Token, error) {
	args := m.Called(identityID)
	if token := args.Get(0); token != nil {
		return token.(*session.Token), args.Error(1)
	}
	return nil, args.Error(1)
}

var _ providers.Verifier = (*MockVerifier)(nil)
