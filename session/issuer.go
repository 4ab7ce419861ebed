package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const minSecretLength = 32

var (
	// ErrInvalidToken is returned when the session token is malformed, tampered with or foreign
	ErrInvalidToken = errors.New("invalid session token")

	// ErrTokenExpired is returned when the session token has expired
	ErrTokenExpired = errors.New("session token expired")
)

// Config holds configuration for Issuer
type Config struct {
	Secret     string
	TTL        time.Duration
	Issuer     string
	CookieName string
	// Production switches the cookie to Secure with SameSite=None for cross-site clients.
	Production bool
}

// Token is a freshly minted session credential
type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Claims represents the claims carried by a session token
type Claims struct {
	jwt.RegisteredClaims
}

// IdentityID returns the identity the session belongs to
func (c *Claims) IdentityID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: subject is not an identity id", ErrInvalidToken)
	}
	return id, nil
}

// Issuer mints and validates stateless HS256 session tokens and manages the session cookie
type Issuer struct {
	secret     []byte
	ttl        time.Duration
	issuer     string
	cookieName string
	production bool
	now        func() time.Time
}

// NewIssuer creates a new session issuer
func NewIssuer(config Config) (*Issuer, error) {
	if len(config.Secret) < minSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", minSecretLength)
	}
	if config.TTL <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	if config.CookieName == "" {
		return nil, errors.New("session cookie name cannot be empty")
	}

	return &Issuer{
		secret:     []byte(config.Secret),
		ttl:        config.TTL,
		issuer:     config.Issuer,
		cookieName: config.CookieName,
		production: config.Production,
		now:        time.Now,
	}, nil
}

// CookieName returns the name of the session cookie
func (i *Issuer) CookieName() string {
	return i.cookieName
}

// TTL returns the session lifetime
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue mints a session token for the given identity
func (i *Issuer) Issue(identityID uuid.UUID) (*Token, error) {
	if identityID == uuid.Nil {
		return nil, errors.New("identity id cannot be nil")
	}

	// JWT timestamps have second precision
	now := i.now().Truncate(time.Second)
	expiresAt := now.Add(i.ttl)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   identityID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return &Token{
		Value:     value,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// Parse validates a session token and returns its claims
func (i *Issuer) Parse(value string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	claims := &Claims{}
	_, err := jwt.NewParser(opts...).ParseWithClaims(value, claims, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if _, err := claims.IdentityID(); err != nil {
		return nil, err
	}

	return claims, nil
}

// SetCookie writes the session cookie for token
func (i *Issuer) SetCookie(w http.ResponseWriter, token *Token) {
	cookie := i.baseCookie()
	cookie.Value = token.Value
	cookie.MaxAge = int(i.ttl.Seconds())
	http.SetCookie(w, cookie)
}

// ClearCookie instructs the client to drop the session cookie
func (i *Issuer) ClearCookie(w http.ResponseWriter) {
	cookie := i.baseCookie()
	cookie.MaxAge = -1
	http.SetCookie(w, cookie)
}

func (i *Issuer) baseCookie() *http.Cookie {
	cookie := &http.Cookie{
		Name:     i.cookieName,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if i.production {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteNoneMode
	}
	return cookie
}
