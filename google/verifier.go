package google

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/upb/labdesk-api/models"
	"github.com/upb/labdesk-api/services/providers"
)

// ProviderName is the path segment clients use to sign in with Google
const ProviderName = "google"

const keyCacheSize = 32

// DefaultMinRefreshInterval bounds how often a cache miss may trigger a key fetch
const DefaultMinRefreshInterval = time.Minute

var (
	// ErrInvalidAssertion is returned when the ID token fails any signature or claim check
	ErrInvalidAssertion = providers.ErrInvalidAssertion

	// ErrUnverifiedIdentity is returned when Google reports the email as unverified
	ErrUnverifiedIdentity = providers.ErrUnverifiedIdentity

	// ErrKeyFetchFailed is returned when the signing keys cannot be retrieved
	ErrKeyFetchFailed = providers.ErrUnavailable

	errKeyNotFound = errors.New("signing key not found")
)

// JWKS represents the JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// Config holds configuration for Verifier
type Config struct {
	ClientID           string
	JWKSURL            string
	Issuers            []string
	CacheTTL           time.Duration
	HTTPTimeout        time.Duration
	RetryBackoff       time.Duration
	MinRefreshInterval time.Duration
}

// Verifier validates Google Identity Services ID tokens
type Verifier struct {
	clientID           string
	issuers            []string
	jwksURL            string
	retryBackoff       time.Duration
	minRefreshInterval time.Duration
	httpClient         *http.Client
	logger             *zap.Logger

	keys    *expirable.LRU[string, *rsa.PublicKey]
	refresh singleflight.Group

	// outcome of the most recent fetch, guarded by mu
	mu           sync.Mutex
	lastRefresh  time.Time
	lastFetchErr error
	now          func() time.Time
}

// NewVerifier creates a new Google ID token verifier
func NewVerifier(config Config, logger *zap.Logger) *Verifier {
	if config.CacheTTL == 0 {
		config.CacheTTL = 1 * time.Hour
	}
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 5 * time.Second
	}
	if config.RetryBackoff == 0 {
		config.RetryBackoff = 200 * time.Millisecond
	}
	if config.MinRefreshInterval == 0 {
		config.MinRefreshInterval = DefaultMinRefreshInterval
	}

	return &Verifier{
		clientID:     config.ClientID,
		issuers:      config.Issuers,
		jwksURL:      config.JWKSURL,
		retryBackoff:       config.RetryBackoff,
		minRefreshInterval: config.MinRefreshInterval,
		httpClient: &http.Client{
			Timeout: config.HTTPTimeout,
		},
		logger: logger,
		keys:   expirable.NewLRU[string, *rsa.PublicKey](keyCacheSize, nil, config.CacheTTL),
		now:    time.Now,
	}
}

var _ providers.Verifier = (*Verifier)(nil)

// Name returns the provider name
func (v *Verifier) Name() string {
	return ProviderName
}

// Verify checks the assertion and returns the verified claims
func (v *Verifier) Verify(ctx context.Context, assertion string) (*models.VerifiedClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(assertion, claims, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("kid header not found")
		}
		return v.publicKey(ctx, kid)
	})
	if err != nil {
		if errors.Is(err, ErrKeyFetchFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}

	if !slices.Contains(v.issuers, claims.Issuer) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidAssertion, claims.Issuer)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidAssertion)
	}
	if strings.TrimSpace(claims.Email) == "" {
		return nil, fmt.Errorf("%w: missing email", ErrInvalidAssertion)
	}
	if claims.explicitlyUnverified() {
		return nil, ErrUnverifiedIdentity
	}

	return claims.toVerified(), nil
}

// publicKey returns the cached key for kid, refreshing the key set on a miss.
// Misses within minRefreshInterval of the last fetch reuse that fetch's outcome.
func (v *Verifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok := v.keys.Get(kid); ok {
		return key, nil
	}

	if recent, fetchErr := v.recentRefresh(); recent {
		if key, ok := v.keys.Get(kid); ok {
			return key, nil
		}
		if fetchErr != nil {
			return nil, fetchErr
		}
		return nil, fmt.Errorf("%w: kid %s", errKeyNotFound, kid)
	}

	if err := v.refreshKeys(ctx); err != nil {
		return nil, err
	}

	key, ok := v.keys.Get(kid)
	if !ok {
		return nil, fmt.Errorf("%w: kid %s", errKeyNotFound, kid)
	}
	return key, nil
}

// refreshKeys loads the key set into the cache. Concurrent callers share one fetch.
func (v *Verifier) refreshKeys(ctx context.Context) error {
	ch := v.refresh.DoChan("jwks", func() (interface{}, error) {
		// Detached so one caller's cancellation does not fail the others sharing this fetch.
		fetchCtx := context.WithoutCancel(ctx)
		jwks, err := v.FetchJWKS(fetchCtx)
		v.recordRefresh(err)
		if err != nil {
			return nil, err
		}

		loaded := 0
		for i := range jwks.Keys {
			jwk := &jwks.Keys[i]
			if jwk.Kty != "RSA" || jwk.Kid == "" {
				continue
			}
			key, err := jwkToRSAPublicKey(jwk)
			if err != nil {
				v.logger.Warn("Skipping malformed signing key",
					zap.String("kid", jwk.Kid),
					zap.Error(err),
				)
				continue
			}
			v.keys.Add(jwk.Kid, key)
			loaded++
		}

		v.logger.Debug("Refreshed Google signing keys", zap.Int("keys", loaded))
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrKeyFetchFailed, ctx.Err())
	}
}

// recentRefresh reports whether a fetch completed within minRefreshInterval and its error
func (v *Verifier) recentRefresh() (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.lastRefresh.IsZero() || v.now().Sub(v.lastRefresh) >= v.minRefreshInterval {
		return false, nil
	}
	return true, v.lastFetchErr
}

func (v *Verifier) recordRefresh(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastRefresh = v.now()
	v.lastFetchErr = err
}

// FetchJWKS fetches the key set, retrying once on network errors and 5xx responses
func (v *Verifier) FetchJWKS(ctx context.Context) (*JWKS, error) {
	operation := func() (*JWKS, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}

		resp, err := v.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("status code %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, backoff.Permanent(fmt.Errorf("status code %d", resp.StatusCode))
		}

		var jwks JWKS
		if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to decode JWKS: %w", err))
		}
		return &jwks, nil
	}

	jwks, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(v.retryBackoff)),
		backoff.WithMaxTries(2),
		backoff.WithNotify(func(err error, wait time.Duration) {
			v.logger.Warn("Retrying Google key fetch",
				zap.Error(err),
				zap.Duration("backoff", wait),
			)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFetchFailed, err)
	}
	return jwks, nil
}

// CachedKeys returns the number of keys currently cached
func (v *Verifier) CachedKeys() int {
	return v.keys.Len()
}

// jwkToRSAPublicKey converts a JWK to an RSA public key
func jwkToRSAPublicKey(jwk *JWK) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}
	if len(eBytes) == 0 {
		return nil, errors.New("empty exponent")
	}

	var e int
	for _, b := range eBytes {
		e = e*256 + int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
