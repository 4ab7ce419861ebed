package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/labdesk-api/models"
	"github.com/upb/labdesk-api/repositories"
	"go.uber.org/zap"
)

const identityColumns = `id, provider_subject_id, email, name, picture_uri, role, created_at, updated_at`

// UserRepository implements repositories.UserRepository over SQLite
type UserRepository struct {
	db     *DB
	logger *zap.Logger
	now    func() time.Time
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*models.Identity, error) {
	var (
		identity  models.Identity
		id        string
		subject   sql.NullString
		role      string
		createdAt int64
		updatedAt int64
	)

	if err := row.Scan(&id, &subject, &identity.Email, &identity.Name, &identity.PictureURI, &role, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse identity id %q: %w", id, err)
	}

	identity.ID = parsed
	identity.ProviderSubjectID = subject.String
	identity.Role = models.Role(role)
	identity.CreatedAt = fromMillis(createdAt)
	identity.UpdatedAt = fromMillis(updatedAt)
	return &identity, nil
}

func nullableSubject(subject string) sql.NullString {
	return sql.NullString{String: subject, Valid: subject != ""}
}

// FindByProviderIDOrEmail returns the identity owning subjectID, else the one owning email
func (r *UserRepository) FindByProviderIDOrEmail(ctx context.Context, subjectID, email string) (*models.Identity, error) {
	row := r.db.sqlDB.QueryRowContext(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE (provider_subject_id = ?1 AND ?1 <> '') OR email = ?2
		ORDER BY CASE WHEN provider_subject_id = ?1 THEN 0 ELSE 1 END, created_at
		LIMIT 1
	`, subjectID, models.NormalizeEmail(email))

	identity, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find identity: %w", err)
	}
	return identity, nil
}

// Upsert creates or updates the identity for the claims inside one transaction
func (r *UserRepository) Upsert(ctx context.Context, claims *models.VerifiedClaims) (*models.Identity, error) {
	normalized := claims.Normalized()
	if normalized.Email == "" {
		return nil, errors.New("email is required")
	}

	tx, err := r.db.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := toMillis(r.now())

	// Re-point the subject's row to the new email when nobody owns that email yet.
	identity, err := scanIdentity(tx.QueryRowContext(ctx, `
		UPDATE identities
		SET email = ?2, name = ?3, picture_uri = ?4, updated_at = ?5
		WHERE id = (
			SELECT id FROM identities
			WHERE provider_subject_id = ?1
			ORDER BY created_at
			LIMIT 1
		)
		AND NOT EXISTS (SELECT 1 FROM identities WHERE email = ?2)
		RETURNING `+identityColumns,
		normalized.SubjectID, normalized.Email, normalized.Name, normalized.PictureURI, now,
	))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update identity by subject: %w", err)
	}

	if identity == nil {
		identity, err = scanIdentity(tx.QueryRowContext(ctx, `
			INSERT INTO identities (id, provider_subject_id, email, name, picture_uri, role, created_at, updated_at)
			VALUES (?1, ?2, ?3, ?4, ?5, 'user', ?6, ?6)
			ON CONFLICT(email) DO UPDATE SET
				name = excluded.name,
				picture_uri = excluded.picture_uri,
				provider_subject_id = COALESCE(identities.provider_subject_id, excluded.provider_subject_id),
				updated_at = excluded.updated_at
			RETURNING `+identityColumns,
			uuid.NewString(), nullableSubject(normalized.SubjectID), normalized.Email, normalized.Name, normalized.PictureURI, now,
		))
		if err != nil {
			return nil, fmt.Errorf("upsert identity by email: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upsert: %w", err)
	}

	r.logger.Debug("identity upserted",
		zap.String("id", identity.ID.String()),
		zap.String("email", identity.Email),
	)
	return identity, nil
}

// GetByID retrieves an identity by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	row := r.db.sqlDB.QueryRowContext(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE id = ?1
	`, id.String())

	identity, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return identity, nil
}

// SetRole changes the role flag of an identity
func (r *UserRepository) SetRole(ctx context.Context, id uuid.UUID, role models.Role) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role: %q", role)
	}

	result, err := r.db.sqlDB.ExecContext(ctx, `
		UPDATE identities SET role = ?2, updated_at = ?3 WHERE id = ?1
	`, id.String(), string(role), toMillis(r.now()))
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("identity %s: %w", id, repositories.ErrNotFound)
	}

	r.logger.Info("identity role updated", zap.String("id", id.String()), zap.String("role", string(role)))
	return nil
}

var _ repositories.UserRepository = (*UserRepository)(nil)
