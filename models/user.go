package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the coarse authorization flag carried by an identity
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Identity is the persistent user record resolved from a provider sign-in.
// Email is unique across all identities; ProviderSubjectID is empty when absent.
type Identity struct {
	ID                uuid.UUID `json:"id" db:"id"`
	ProviderSubjectID string    `json:"-" db:"provider_subject_id"`
	Email             string    `json:"email" db:"email"`
	Name              string    `json:"name" db:"name"`
	PictureURI        string    `json:"pictureUri" db:"picture_uri"`
	Role              Role      `json:"role" db:"role"`
	CreatedAt         time.Time `json:"-" db:"created_at"`
	UpdatedAt         time.Time `json:"-" db:"updated_at"`
}

// HasRole reports whether the identity carries role. A nil identity has no role.
func (i *Identity) HasRole(role Role) bool {
	return i != nil && i.Role == role
}

// VerifiedClaims are the facts a provider asserted about the signed-in user
// after signature, audience, expiry and email verification checks passed.
type VerifiedClaims struct {
	SubjectID  string
	Email      string
	Name       string
	PictureURI string
}

// NormalizeEmail lower-cases and trims an email address. Every store keys on the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Normalized returns a copy of the claims with the email normalized
func (c VerifiedClaims) Normalized() VerifiedClaims {
	c.Email = NormalizeEmail(c.Email)
	c.SubjectID = strings.TrimSpace(c.SubjectID)
	return c
}
