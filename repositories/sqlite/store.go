package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/upb/labdesk-api/config"
	"github.com/upb/labdesk-api/repositories"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

const identitySchema = `
	CREATE TABLE IF NOT EXISTS identities (
		id TEXT PRIMARY KEY,
		provider_subject_id TEXT,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		picture_uri TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'admin')),
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_identities_provider_subject_id ON identities(provider_subject_id);
`

// DB is a single-connection SQLite handle used for local development and tests.
// One connection serializes writers, which keeps the upsert transaction atomic.
type DB struct {
	sqlDB  *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the SQLite database at path
func Open(path string, logger *zap.Logger) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	logger.Info("sqlite database opened", zap.String("path", path))

	return &DB{sqlDB: sqlDB, logger: logger}, nil
}

// Migrate creates the identities schema
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.sqlDB.ExecContext(ctx, identitySchema); err != nil {
		return fmt.Errorf("initialize sqlite schema: %w", err)
	}
	db.logger.Info("sqlite schema initialized")
	return nil
}

// HealthCheck verifies the database answers queries
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var result int
	if err := db.sqlDB.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}
	return nil
}

// Close releases the underlying SQLite database.
func (db *DB) Close() error {
	if db == nil || db.sqlDB == nil {
		return nil
	}
	return db.sqlDB.Close()
}

// RepositoryFactory opens the SQLite store and hands out repositories over it
type RepositoryFactory struct {
	db     *DB
	logger *zap.Logger
}

// NewRepositoryFactory opens the SQLite database named by the config
func NewRepositoryFactory(cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := Open(cfg.Database.SQLitePath, logger)
	if err != nil {
		return nil, err
	}
	return &RepositoryFactory{db: db, logger: logger}, nil
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Users: NewUserRepository(f.db, f.logger),
	}
}

// Database returns the lifecycle handle for the store
func (f *RepositoryFactory) Database() repositories.Database {
	return f.db
}
