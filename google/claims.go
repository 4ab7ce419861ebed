package google

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/upb/labdesk-api/models"
)

// Claims represents the Google ID token payload fields we consume
type Claims struct {
	jwt.RegisteredClaims
	Email         string   `json:"email"`
	EmailVerified flexBool `json:"email_verified"`
	Name          string   `json:"name"`
	Picture       string   `json:"picture"`
}

// flexBool decodes a JSON bool or a "true"/"false" string.
// Set reports whether the claim was present at all.
type flexBool struct {
	Value bool
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler
func (b *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case bool:
		b.Value = v
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("email_verified: %w", err)
		}
		b.Value = parsed
	default:
		return fmt.Errorf("email_verified: unexpected type %T", raw)
	}
	b.Set = true
	return nil
}

// MarshalJSON implements json.Marshaler
func (b flexBool) MarshalJSON() ([]byte, error) {
	if !b.Set {
		return []byte("null"), nil
	}
	return json.Marshal(b.Value)
}

// explicitlyUnverified is true only when the provider said email_verified=false.
// An absent claim is accepted.
func (c *Claims) explicitlyUnverified() bool {
	return c.EmailVerified.Set && !c.EmailVerified.Value
}

// toVerified converts the payload into provider-neutral claims
func (c *Claims) toVerified() *models.VerifiedClaims {
	vc := models.VerifiedClaims{
		SubjectID:  c.Subject,
		Email:      c.Email,
		Name:       c.Name,
		PictureURI: c.Picture,
	}.Normalized()
	return &vc
}
