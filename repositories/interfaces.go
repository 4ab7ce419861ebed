package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/labdesk-api/models"
)

// ErrNotFound is returned by write operations that target a missing record
var ErrNotFound = errors.New("record not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UserRepository persists identities.
// Lookups return (nil, nil) when no record matches.
type UserRepository interface {
	// FindByProviderIDOrEmail returns the identity owning subjectID, else the one owning email
	FindByProviderIDOrEmail(ctx context.Context, subjectID, email string) (*models.Identity, error)

	// Upsert creates or updates the identity for the claims in one atomic operation.
	// A row matched by subject is re-pointed to the claimed email only when no other row owns it;
	// otherwise the row owning the email is updated, gaining the subject if it had none.
	// Role is never modified.
	Upsert(ctx context.Context, claims *models.VerifiedClaims) (*models.Identity, error)

	// GetByID retrieves an identity by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error)

	// SetRole changes the role flag of an identity
	SetRole(ctx context.Context, id uuid.UUID, role models.Role) error
}

// Database is the lifecycle surface shared by every store backend
type Database interface {
	// Migrate creates the schema if it does not exist
	Migrate(ctx context.Context) error

	// HealthCheck verifies the store is reachable and can serve queries
	HealthCheck(ctx context.Context) error

	// Close releases the underlying connection pool
	Close() error
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users UserRepository
}
