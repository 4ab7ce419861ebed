package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/labdesk-api/models"
)

// MockVerifier is a test implementation of the Verifier interface
type MockVerifier struct {
	name   string
	claims *models.VerifiedClaims
	err    error
}

func NewMockVerifier(name string) *MockVerifier {
	return &MockVerifier{
		name:   name,
		claims: &models.VerifiedClaims{SubjectID: "sub", Email: "ada@example.com"},
	}
}

func (m *MockVerifier) Name() string {
	return m.name
}

func (m *MockVerifier) Verify(ctx context.Context, assertion string) (*models.VerifiedClaims, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.claims, nil
}

func TestNewRegistry(t *testing.T) {
	registry, err := NewRegistry(NewMockVerifier("google"), NewMockVerifier("github"))
	require.NoError(t, err)

	assert.Equal(t, []string{"github", "google"}, registry.Names())
}

func TestRegistry_Get(t *testing.T) {
	google := NewMockVerifier("google")
	registry, err := NewRegistry(google)
	require.NoError(t, err)

	got, err := registry.Get("google")
	require.NoError(t, err)
	assert.Same(t, google, got)

	got, err = registry.Get(" Google ")
	require.NoError(t, err)
	assert.Same(t, google, got)

	_, err = registry.Get("facebook")
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestRegistry_Register(t *testing.T) {
	registry, err := NewRegistry()
	require.NoError(t, err)

	require.NoError(t, registry.Register(NewMockVerifier("google")))
	assert.ErrorIs(t, registry.Register(NewMockVerifier("GOOGLE")), ErrProviderAlreadyRegistered)
	assert.Error(t, registry.Register(nil))
	assert.Error(t, registry.Register(NewMockVerifier("  ")))
}

func TestNewRegistry_Duplicate(t *testing.T) {
	_, err := NewRegistry(NewMockVerifier("google"), NewMockVerifier("google"))
	assert.ErrorIs(t, err, ErrProviderAlreadyRegistered)
}
