package routes

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/upb/labdesk-api/app"
	"github.com/upb/labdesk-api/config"
	"github.com/upb/labdesk-api/google"
	"github.com/upb/labdesk-api/models"
	"github.com/upb/labdesk-api/utils"
)

const (
	testClientID = "labdesk-web.apps.googleusercontent.com"
	testKid      = "routes-kid"
	cookieName   = "labdesk_session"
)

type testServer struct {
	t      *testing.T
	deps   *app.Dependencies
	server *httptest.Server
	key    *rsa.PrivateKey
}

func newTestServer(t *testing.T, jwks http.HandlerFunc) *testServer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	if jwks == nil {
		jwks = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(google.JWKS{Keys: []google.JWK{{
				Kid: testKid,
				Kty: "RSA",
				Alg: "RS256",
				Use: "sig",
				N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			}}})
		}
	}
	jwksServer := httptest.NewServer(jwks)
	t.Cleanup(jwksServer.Close)

	cfg := &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{RequestTimeout: 10 * time.Second},
		Database: config.DatabaseConfig{
			Driver:       config.DriverSQLite,
			SQLitePath:   filepath.Join(t.TempDir(), "labdesk.db"),
			QueryTimeout: 5 * time.Second,
		},
		Google: config.GoogleConfig{
			ClientID:     testClientID,
			JWKSURL:      jwksServer.URL,
			Issuers:      []string{"accounts.google.com", "https://accounts.google.com"},
			KeyCacheTTL:  time.Hour,
			HTTPTimeout:  2 * time.Second,
			RetryBackoff: time.Millisecond,
		},
		Session: config.SessionConfig{
			Secret:     "0123456789abcdef0123456789abcdef",
			TTL:        config.Duration(time.Hour),
			Issuer:     "labdesk",
			CookieName: cookieName,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:5173"}},
	}

	ctx := context.Background()
	deps, err := app.NewDependencies(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close(ctx) })

	server := httptest.NewServer(SetupRoutes(deps))
	t.Cleanup(server.Close)

	return &testServer{t: t, deps: deps, server: server, key: key}
}

func (s *testServer) googleToken(mutate func(jwt.MapClaims)) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":            "https://accounts.google.com",
		"aud":            testClientID,
		"sub":            "google-sub-1",
		"email":          "ada@example.com",
		"email_verified": true,
		"name":           "Ada Lovelace",
		"picture":        "https://example.com/p1.png",
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
	}
	if mutate != nil {
		mutate(claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKid
	signed, err := token.SignedString(s.key)
	require.NoError(s.t, err)
	return signed
}

func (s *testServer) do(method, path string, body interface{}, setup func(*http.Request)) *http.Response {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if setup != nil {
		setup(req)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	s.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

type signInBody struct {
	Token string           `json:"token"`
	User  *models.Identity `json:"user"`
}

func (s *testServer) signIn(path, credential string) (*http.Response, signInBody) {
	resp := s.do(http.MethodPost, path, map[string]string{"credential": credential}, nil)
	var body signInBody
	if resp.StatusCode == http.StatusOK {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp, body
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body utils.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Error
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	return nil
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	t.Run("health returns ok", func(t *testing.T) {
		resp := s.do(http.MethodGet, "/health", nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, true, body["ok"])
	})

	t.Run("liveness", func(t *testing.T) {
		resp := s.do(http.MethodGet, "/healthz", nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("readiness pings the store", func(t *testing.T) {
		resp := s.do(http.MethodGet, "/readyz", nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("unknown path is a json 404", func(t *testing.T) {
		resp := s.do(http.MethodGet, "/nope", nil, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "not_found", decodeError(t, resp))
	})
}

func TestSignIn(t *testing.T) {
	s := newTestServer(t, nil)

	for _, prefix := range []string{"/auth", "/api/auth"} {
		t.Run("succeeds under "+prefix, func(t *testing.T) {
			resp, body := s.signIn(prefix+"/google", s.googleToken(nil))
			require.Equal(t, http.StatusOK, resp.StatusCode)

			require.NotNil(t, body.User)
			assert.Equal(t, "ada@example.com", body.User.Email)
			assert.Equal(t, "Ada Lovelace", body.User.Name)
			assert.Equal(t, models.RoleUser, body.User.Role)

			claims, err := s.deps.Sessions.Parse(body.Token)
			require.NoError(t, err)
			assert.Equal(t, body.User.ID.String(), claims.Subject)

			cookie := sessionCookie(resp)
			require.NotNil(t, cookie)
			assert.Equal(t, body.Token, cookie.Value)
			assert.True(t, cookie.HttpOnly)
			assert.Equal(t, "/", cookie.Path)
		})
	}

	t.Run("is idempotent", func(t *testing.T) {
		credential := s.googleToken(nil)
		_, first := s.signIn("/auth/google", credential)
		_, second := s.signIn("/auth/google", credential)

		require.NotNil(t, first.User)
		require.NotNil(t, second.User)
		assert.Equal(t, first.User.ID, second.User.ID)
	})

	t.Run("refreshes profile without touching id or role", func(t *testing.T) {
		_, first := s.signIn("/auth/google", s.googleToken(func(c jwt.MapClaims) {
			c["sub"] = "google-sub-grace"
			c["email"] = "grace@example.com"
			c["picture"] = "https://example.com/p1.png"
		}))
		require.NotNil(t, first.User)
		require.NoError(t, s.deps.Users.SetRole(context.Background(), first.User.ID, models.RoleAdmin))

		_, second := s.signIn("/auth/google", s.googleToken(func(c jwt.MapClaims) {
			c["sub"] = "google-sub-grace"
			c["email"] = "grace@example.com"
			c["picture"] = "https://example.com/p2.png"
		}))
		require.NotNil(t, second.User)

		assert.Equal(t, first.User.ID, second.User.ID)
		assert.Equal(t, "https://example.com/p2.png", second.User.PictureURI)
		assert.Equal(t, models.RoleAdmin, second.User.Role)
	})

	failures := []struct {
		name     string
		path     string
		body     interface{}
		status   int
		code     string
		noCookie bool
	}{
		{
			name:   "unknown provider",
			path:   "/auth/myspace",
			body:   map[string]string{"credential": "x"},
			status: http.StatusNotFound,
			code:   "unknown_provider",
		},
		{
			name:   "missing credential",
			path:   "/auth/google",
			body:   map[string]string{},
			status: http.StatusBadRequest,
			code:   "missing_credential",
		},
		{
			name:   "blank credential",
			path:   "/auth/google",
			body:   map[string]string{"credential": "   "},
			status: http.StatusBadRequest,
			code:   "missing_credential",
		},
		{
			name:   "garbage credential",
			path:   "/auth/google",
			body:   map[string]string{"credential": "not-a-jwt"},
			status: http.StatusUnauthorized,
			code:   "invalid_assertion",
		},
	}

	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(http.MethodPost, tt.path, tt.body, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, decodeError(t, resp))
			assert.Nil(t, sessionCookie(resp))
		})
	}

	t.Run("no body", func(t *testing.T) {
		resp := s.do(http.MethodPost, "/auth/google", nil, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "missing_credential", decodeError(t, resp))
	})

	t.Run("expired assertion", func(t *testing.T) {
		resp, _ := s.signIn("/auth/google", s.googleToken(func(c jwt.MapClaims) {
			c["exp"] = time.Now().Add(-time.Hour).Unix()
		}))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "invalid_assertion", decodeError(t, resp))
	})

	t.Run("wrong audience", func(t *testing.T) {
		resp, _ := s.signIn("/auth/google", s.googleToken(func(c jwt.MapClaims) {
			c["aud"] = "someone-else"
		}))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unverified email", func(t *testing.T) {
		resp, _ := s.signIn("/auth/google", s.googleToken(func(c jwt.MapClaims) {
			c["email_verified"] = false
		}))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "unverified_identity", decodeError(t, resp))
	})
}

func TestSignIn_KeyEndpointDown(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	resp, _ := s.signIn("/auth/google", s.googleToken(nil))

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "provider_unavailable", decodeError(t, resp))
}

func TestMe(t *testing.T) {
	s := newTestServer(t, nil)
	_, signedIn := s.signIn("/api/auth/google", s.googleToken(nil))
	require.NotNil(t, signedIn.User)

	t.Run("bearer token", func(t *testing.T) {
		resp := s.do(http.MethodGet, "/api/auth/me", nil, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+signedIn.Token)
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			User *models.Identity `json:"user"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.NotNil(t, body.User)
		assert.Equal(t, signedIn.User.ID, body.User.ID)
		assert.Equal(t, "ada@example.com", body.User.Email)
	})

	t.Run("session cookie", func(t *testing.T) {
		resp := s.do(http.MethodGet, "/auth/me", nil, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: cookieName, Value: signedIn.Token})
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("no credentials", func(t *testing.T) {
		resp := s.do(http.MethodGet, "/auth/me", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "unauthenticated", decodeError(t, resp))
	})

	t.Run("tampered token", func(t *testing.T) {
		parts := strings.Split(signedIn.Token, ".")
		require.Len(t, parts, 3)
		tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

		resp := s.do(http.MethodGet, "/auth/me", nil, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+tampered)
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("session for a missing identity", func(t *testing.T) {
		orphan, err := s.deps.Sessions.Issue(uuid.New())
		require.NoError(t, err)

		resp := s.do(http.MethodGet, "/auth/me", nil, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+orphan.Value)
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "identity_not_found", decodeError(t, resp))
	})
}

func TestLogout(t *testing.T) {
	s := newTestServer(t, nil)
	_, signedIn := s.signIn("/api/auth/google", s.googleToken(nil))
	require.NotEmpty(t, signedIn.Token)

	resp := s.do(http.MethodPost, "/api/auth/logout", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: cookieName, Value: signedIn.Token})
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["ok"])

	cleared := sessionCookie(resp)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)

	t.Run("without a session still succeeds", func(t *testing.T) {
		resp := s.do(http.MethodPost, "/auth/logout", nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("bearer token keeps working after logout", func(t *testing.T) {
		resp := s.do(http.MethodGet, "/auth/me", nil, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+signedIn.Token)
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, nil)

	t.Run("allowed origin preflight", func(t *testing.T) {
		resp := s.do(http.MethodOptions, "/api/auth/google", nil, func(r *http.Request) {
			r.Header.Set("Origin", "http://localhost:5173")
			r.Header.Set("Access-Control-Request-Method", "POST")
			r.Header.Set("Access-Control-Request-Headers", "Content-Type")
		})

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	})

	t.Run("foreign origin gets no allow header", func(t *testing.T) {
		resp := s.do(http.MethodOptions, "/api/auth/google", nil, func(r *http.Request) {
			r.Header.Set("Origin", "https://evil.example")
			r.Header.Set("Access-Control-Request-Method", "POST")
		})

		assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	})
}

func TestAdminIdentityLookup(t *testing.T) {
	s := newTestServer(t, nil)

	_, caller := s.signIn("/api/auth/google", s.googleToken(nil))
	require.NotNil(t, caller.User)
	_, other := s.signIn("/api/auth/google", s.googleToken(func(c jwt.MapClaims) {
		c["sub"] = "google-sub-2"
		c["email"] = "grace@example.com"
	}))
	require.NotNil(t, other.User)

	bearer := func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+caller.Token) }
	path := "/api/auth/users/" + other.User.ID.String()

	t.Run("anonymous is rejected", func(t *testing.T) {
		resp := s.do(http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("plain user is forbidden", func(t *testing.T) {
		resp := s.do(http.MethodGet, path, nil, bearer)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "forbidden", decodeError(t, resp))
	})

	t.Run("admin reads the identity", func(t *testing.T) {
		require.NoError(t, s.deps.Users.SetRole(context.Background(), caller.User.ID, models.RoleAdmin))

		resp := s.do(http.MethodGet, path, nil, bearer)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			User *models.Identity `json:"user"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, other.User.ID, body.User.ID)
		assert.Equal(t, "grace@example.com", body.User.Email)
	})

	t.Run("admin gets 404 for unknown id", func(t *testing.T) {
		resp := s.do(http.MethodGet, "/auth/users/"+uuid.New().String(), nil, bearer)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "identity_not_found", decodeError(t, resp))
	})
}
