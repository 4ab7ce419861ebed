package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/upb/labdesk-api/auth"
	"github.com/upb/labdesk-api/config"
	"github.com/upb/labdesk-api/google"
	"github.com/upb/labdesk-api/handlers"
	"github.com/upb/labdesk-api/middleware"
	"github.com/upb/labdesk-api/repositories"
	"github.com/upb/labdesk-api/repositories/postgres"
	"github.com/upb/labdesk-api/repositories/sqlite"
	"github.com/upb/labdesk-api/services"
	"github.com/upb/labdesk-api/services/providers"
	"github.com/upb/labdesk-api/session"
	"go.uber.org/zap"
)

// storeFactory is implemented by every store backend's RepositoryFactory
type storeFactory interface {
	NewRepositories() *repositories.Repositories
	Database() repositories.Database
}

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Store  repositories.Database
	Logger *zap.Logger

	// Repositories
	Users repositories.UserRepository

	// Identity and sessions
	Verifiers *providers.Registry
	Sessions  *session.Issuer
	Resolver  *services.IdentityResolver
	SignIn    *services.SignInService

	// HTTP
	AuthMiddleware *middleware.AuthMiddleware
	AuthHandler    *auth.Handler
	AdminHandler   *auth.AdminHandler
	HealthHandler  *handlers.HealthHandler
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initStore(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	if err := deps.initAuth(cfg); err != nil {
		_ = deps.Store.Close()
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// OpenStore opens the store backend selected by DB_DRIVER
func OpenStore(cfg *config.Config, logger *zap.Logger) (*repositories.Repositories, repositories.Database, error) {
	var (
		factory storeFactory
		err     error
	)
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		factory, err = postgres.NewRepositoryFactory(cfg, logger)
	case config.DriverSQLite:
		factory, err = sqlite.NewRepositoryFactory(cfg, logger)
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if err != nil {
		return nil, nil, err
	}
	return factory.NewRepositories(), factory.Database(), nil
}

// initStore opens the identity store and checks it answers.
// The SQLite store is a local development backend and creates its own schema.
func (d *Dependencies) initStore(ctx context.Context, cfg *config.Config) error {
	repos, store, err := OpenStore(cfg, d.Logger)
	if err != nil {
		return err
	}

	if cfg.Database.Driver == config.DriverSQLite {
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return fmt.Errorf("migrate sqlite store: %w", err)
		}
	}

	if err := store.HealthCheck(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("store health check failed: %w", err)
	}

	d.Store = store
	d.Users = repos.Users
	d.HealthHandler = handlers.NewHealthHandler(store, d.Logger)

	d.Logger.Info("store connection established",
		zap.String("connection", cfg.Database.LogString()))
	return nil
}

// initAuth builds the sign-in pipeline and the session guard
func (d *Dependencies) initAuth(cfg *config.Config) error {
	verifier := google.NewVerifier(google.Config{
		ClientID:           cfg.Google.ClientID,
		JWKSURL:            cfg.Google.JWKSURL,
		Issuers:            cfg.Google.Issuers,
		CacheTTL:           cfg.Google.KeyCacheTTL,
		HTTPTimeout:        cfg.Google.HTTPTimeout,
		RetryBackoff:       cfg.Google.RetryBackoff,
		MinRefreshInterval: cfg.Google.MinRefreshInterval,
	}, d.Logger)

	registry, err := providers.NewRegistry(verifier)
	if err != nil {
		return fmt.Errorf("register providers: %w", err)
	}

	issuer, err := session.NewIssuer(session.Config{
		Secret:     cfg.Session.Secret,
		TTL:        cfg.Session.TTL.Std(),
		Issuer:     cfg.Session.Issuer,
		CookieName: cfg.Session.CookieName,
		Production: cfg.IsProduction(),
	})
	if err != nil {
		return fmt.Errorf("create session issuer: %w", err)
	}

	d.Verifiers = registry
	d.Sessions = issuer
	d.Resolver = services.NewIdentityResolver(d.Users, cfg.Database.QueryTimeout, d.Logger)
	d.SignIn = services.NewSignInService(registry, d.Resolver, issuer, d.Logger)
	d.AuthMiddleware = middleware.NewAuthMiddleware(issuer, d.Users, cfg.Database.QueryTimeout, d.Logger)
	d.AuthHandler = auth.NewHandler(d.SignIn, issuer, d.Logger)
	d.AdminHandler = auth.NewAdminHandler(d.Users, cfg.Database.QueryTimeout, d.Logger)

	d.Logger.Info("auth initialized",
		zap.Strings("providers", registry.Names()),
		zap.Duration("session_ttl", issuer.TTL()))
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close store: %w", err))
		} else {
			d.Logger.Info("store connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return errors.Join(errs...)
}
