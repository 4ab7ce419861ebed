package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/labdesk-api/handlers"
	"github.com/upb/labdesk-api/middleware"
	"github.com/upb/labdesk-api/models"
	"github.com/upb/labdesk-api/services"
	"github.com/upb/labdesk-api/session"
	"github.com/upb/labdesk-api/utils"
	"go.uber.org/zap"
)

// maxSignInBody bounds the sign-in request; Google ID tokens are a few KB
const maxSignInBody = 64 << 10

// SignInRequest is the body of POST /auth/{provider}
type SignInRequest struct {
	Credential string `json:"credential" validate:"required"`
}

// SignInResponse is returned on a successful sign-in
type SignInResponse struct {
	Token string           `json:"token"`
	User  *models.Identity `json:"user"`
}

// MeResponse is returned by GET /auth/me
type MeResponse struct {
	User *models.Identity `json:"user"`
}

// SignInFlow exchanges a provider credential for an identity and session
type SignInFlow interface {
	SignIn(ctx context.Context, provider, credential string) (*services.SignInResult, error)
}

// CookieWriter sets and clears the session cookie
type CookieWriter interface {
	SetCookie(w http.ResponseWriter, token *session.Token)
	ClearCookie(w http.ResponseWriter)
}

// Handler serves the sign-in, current-user and logout endpoints
type Handler struct {
	signIn  SignInFlow
	cookies CookieWriter
	logger  *zap.Logger
}

// NewHandler creates a new auth handler
func NewHandler(signIn SignInFlow, cookies CookieWriter, logger *zap.Logger) *Handler {
	return &Handler{
		signIn:  signIn,
		cookies: cookies,
		logger:  logger,
	}
}

// HandleSignIn handles POST /auth/{provider}
func (h *Handler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	var req SignInRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSignInBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Debug("failed to decode sign-in request", zap.Error(err))
		_ = utils.WriteBadRequest(w, services.ErrMissingCredential.Code, "Request body must be JSON with a credential", nil)
		return
	}

	if err := utils.ValidateStruct(req); err != nil {
		handlers.HandleValidationError(w, services.ErrMissingCredential.Code, err, h.logger)
		return
	}

	result, err := h.signIn.SignIn(r.Context(), provider, req.Credential)
	if err != nil {
		handlers.HandleServiceError(w, err, h.logger)
		return
	}

	h.cookies.SetCookie(w, result.Token)
	if err := utils.WriteOK(w, SignInResponse{Token: result.Token.Value, User: result.Identity}); err != nil {
		h.logger.Error("failed to write sign-in response", zap.Error(err))
	}
}

// HandleMe handles GET /auth/me. RequireAuth and AttachUser must run upstream.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	auth := middleware.AuthFromContext(r.Context())
	if auth == nil {
		handlers.HandleServiceError(w, services.ErrUnauthenticated, h.logger)
		return
	}
	if auth.Identity == nil {
		handlers.HandleServiceError(w, services.ErrIdentityNotFound, h.logger)
		return
	}

	if err := utils.WriteOK(w, MeResponse{User: auth.Identity}); err != nil {
		h.logger.Error("failed to write me response", zap.Error(err))
	}
}

// HandleLogout handles POST /auth/logout.
// Only the cookie is cleared; bearer tokens stay valid until they expire.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.cookies.ClearCookie(w)
	_ = utils.WriteAck(w)
}
