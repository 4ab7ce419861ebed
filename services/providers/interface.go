package providers

import (
	"context"
	"errors"

	"github.com/upb/labdesk-api/models"
)

// Verifier validates an identity assertion issued by a third-party provider
type Verifier interface {
	// Name returns the provider name used in the sign-in path (e.g., "google")
	Name() string

	// Verify checks signature, audience, issuer and expiry of the assertion and
	// returns the facts it asserts about the user
	Verify(ctx context.Context, assertion string) (*models.VerifiedClaims, error)
}

// Verifier implementations wrap these so callers can classify failures without
// knowing the concrete provider.
var (
	// ErrInvalidAssertion is returned when the assertion fails signature or claim checks
	ErrInvalidAssertion = errors.New("invalid assertion")

	// ErrUnverifiedIdentity is returned when the provider reports the email as unverified
	ErrUnverifiedIdentity = errors.New("email not verified")

	// ErrUnavailable is returned when the provider's signing keys cannot be retrieved
	ErrUnavailable = errors.New("provider unavailable")
)
