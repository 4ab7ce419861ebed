package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/labdesk-api/handlers"
	"github.com/upb/labdesk-api/middleware"
	"github.com/upb/labdesk-api/models"
	"github.com/upb/labdesk-api/services"
	"github.com/upb/labdesk-api/utils"
	"go.uber.org/zap"
)

// IdentityResponse is returned by GET /auth/users/{id}
type IdentityResponse struct {
	User *models.Identity `json:"user"`
}

// AdminHandler serves identity lookups for admins.
// RequireAuth, AttachUser and RequireRole(admin) must run upstream.
type AdminHandler struct {
	users        middleware.IdentityLookup
	queryTimeout time.Duration
	logger       *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(users middleware.IdentityLookup, queryTimeout time.Duration, logger *zap.Logger) *AdminHandler {
	if queryTimeout <= 0 {
		queryTimeout = 5 * time.Second
	}
	return &AdminHandler{
		users:        users,
		queryTimeout: queryTimeout,
		logger:       logger,
	}
}

// HandleGetIdentity handles GET /auth/users/{id}
func (h *AdminHandler) HandleGetIdentity(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "invalid_id", "Identity id must be a UUID", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()

	identity, err := h.users.GetByID(ctx, id)
	if err != nil {
		handlers.HandleServiceError(w, services.ErrStoreUnavailable.Wrap(err), h.logger)
		return
	}
	if identity == nil {
		handlers.HandleServiceError(w, services.ErrIdentityNotFound, h.logger)
		return
	}

	h.logger.Info("identity looked up by admin",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("admin_id", middleware.GetIdentityIDFromContext(r.Context()).String()),
		zap.String("identity_id", identity.ID.String()))

	if err := utils.WriteOK(w, IdentityResponse{User: identity}); err != nil {
		h.logger.Error("failed to write identity response", zap.Error(err))
	}
}
