package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/labdesk-api/models"
	"github.com/upb/labdesk-api/repositories"
	"go.uber.org/zap"
)

const identityColumns = `id, provider_subject_id, email, name, picture_uri, role, created_at, updated_at`

// upsertIdentityQuery resolves a sign-in in a single statement.
// by_subject re-points the oldest row owning the subject, but only when nobody owns the claimed
// email yet. Otherwise the insert either creates the row or, on an email conflict, refreshes the
// owner's profile and attaches the subject if the row had none.
const upsertIdentityQuery = `
	WITH by_subject AS (
		UPDATE identities
		SET email = $2,
		    name = $3,
		    picture_uri = $4,
		    updated_at = NOW()
		WHERE id = (
			SELECT id FROM identities
			WHERE provider_subject_id = $1
			ORDER BY created_at
			LIMIT 1
		)
		AND NOT EXISTS (SELECT 1 FROM identities WHERE email = $2)
		RETURNING ` + identityColumns + `
	),
	upserted AS (
		INSERT INTO identities (id, provider_subject_id, email, name, picture_uri, role, created_at, updated_at)
		SELECT $5, NULLIF($1, ''), $2, $3, $4, 'user', NOW(), NOW()
		WHERE NOT EXISTS (SELECT 1 FROM by_subject)
		ON CONFLICT (email) DO UPDATE
		SET name = EXCLUDED.name,
		    picture_uri = EXCLUDED.picture_uri,
		    provider_subject_id = COALESCE(identities.provider_subject_id, EXCLUDED.provider_subject_id),
		    updated_at = NOW()
		RETURNING ` + identityColumns + `
	)
	SELECT ` + identityColumns + ` FROM by_subject
	UNION ALL
	SELECT ` + identityColumns + ` FROM upserted
`

// UserRepository implements the repositories.UserRepository interface
type UserRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) repositories.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIdentity(row rowScanner) (*models.Identity, error) {
	identity := &models.Identity{}
	var subject sql.NullString

	err := row.Scan(
		&identity.ID,
		&subject,
		&identity.Email,
		&identity.Name,
		&identity.PictureURI,
		&identity.Role,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	identity.ProviderSubjectID = subject.String
	return identity, nil
}

// FindByProviderIDOrEmail retrieves an identity by provider subject, falling back to email
func (r *UserRepository) FindByProviderIDOrEmail(ctx context.Context, subjectID, email string) (*models.Identity, error) {
	query := `
		SELECT ` + identityColumns + `
		FROM identities
		WHERE (provider_subject_id = $1 AND $1 <> '') OR email = $2
		ORDER BY CASE WHEN provider_subject_id = $1 THEN 0 ELSE 1 END, created_at
		LIMIT 1
	`

	executor := GetExecutor(ctx, r.db)
	identity, err := scanIdentity(executor.QueryRowContext(ctx, query, subjectID, models.NormalizeEmail(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	return identity, nil
}

// Upsert creates or updates the identity described by claims
func (r *UserRepository) Upsert(ctx context.Context, claims *models.VerifiedClaims) (*models.Identity, error) {
	normalized := claims.Normalized()
	if normalized.Email == "" {
		return nil, errors.New("email is required")
	}

	identity, err := r.upsertOnce(ctx, normalized)
	if err != nil && isUniqueViolation(err) {
		// A concurrent sign-in claimed the email between the subject check and the update.
		// Re-running takes the email conflict path.
		r.logger.Debug("identity upsert raced on email, retrying", zap.String("email", normalized.Email))
		identity, err = r.upsertOnce(ctx, normalized)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert identity: %w", err)
	}

	r.logger.Debug("identity upserted",
		zap.String("id", identity.ID.String()),
		zap.String("email", identity.Email),
	)
	return identity, nil
}

func (r *UserRepository) upsertOnce(ctx context.Context, claims models.VerifiedClaims) (*models.Identity, error) {
	executor := GetExecutor(ctx, r.db)
	return scanIdentity(executor.QueryRowContext(ctx, upsertIdentityQuery,
		claims.SubjectID,
		claims.Email,
		claims.Name,
		claims.PictureURI,
		uuid.New(),
	))
}

// GetByID retrieves an identity by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	query := `
		SELECT ` + identityColumns + `
		FROM identities
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	identity, err := scanIdentity(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	return identity, nil
}

// SetRole updates the role flag of an identity
func (r *UserRepository) SetRole(ctx context.Context, id uuid.UUID, role models.Role) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role: %q", role)
	}

	query := `
		UPDATE identities
		SET role = $2,
		    updated_at = NOW()
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id, role)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("identity %s: %w", id, repositories.ErrNotFound)
	}

	r.logger.Info("identity role updated", zap.String("id", id.String()), zap.String("role", string(role)))
	return nil
}
