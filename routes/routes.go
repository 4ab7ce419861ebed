package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/labdesk-api/app"
	appmiddleware "github.com/upb/labdesk-api/middleware"
	"github.com/upb/labdesk-api/models"
	"github.com/upb/labdesk-api/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	requestTimeout := deps.Config.Server.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appmiddleware.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	// CORS for the browser client; credentials are required for the session cookie
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/health", deps.HealthHandler.HandleHealth)
	r.Get("/healthz", deps.HealthHandler.HandleLiveness)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	// The browser client calls /api/auth; /auth is kept for direct callers
	authRoutes := authRouter(deps)
	r.Mount("/auth", authRoutes)
	r.Mount("/api/auth", authRoutes)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "not_found", "Endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", nil)
	})

	return r
}

func authRouter(deps *app.Dependencies) chi.Router {
	r := chi.NewRouter()

	r.Post("/logout", deps.AuthHandler.HandleLogout)

	r.Group(func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)
		r.Use(deps.AuthMiddleware.AttachUser)
		r.Get("/me", deps.AuthHandler.HandleMe)

		r.With(deps.AuthMiddleware.RequireRole(models.RoleAdmin)).
			Get("/users/{id}", deps.AdminHandler.HandleGetIdentity)
	})

	r.Post("/{provider}", deps.AuthHandler.HandleSignIn)

	return r
}
