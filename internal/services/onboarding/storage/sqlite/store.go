// Package sqlite stores wizard session values in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/onboarding.space/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/storage"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed session values.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens a SQLite store at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Get loads one value.
func (s *Store) Get(ctx context.Context, sessionID, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, false, storage.ErrNotConfigured
	}
	var value []byte
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT value FROM session_values WHERE session_id = ? AND key = ?`,
		strings.TrimSpace(sessionID), key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts one value.
func (s *Store) Set(ctx context.Context, sessionID, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ErrNotConfigured
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("key is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO session_values (session_id, key, value, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (session_id, key) DO UPDATE SET
	value = excluded.value,
	updated_at = excluded.updated_at
`,
		strings.TrimSpace(sessionID), key, value, s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Remove deletes keys in one transaction.
func (s *Store) Remove(ctx context.Context, sessionID string, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ErrNotConfigured
	}
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove: %w", err)
	}
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM session_values WHERE session_id = ? AND key = ?`,
			strings.TrimSpace(sessionID), key,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("remove %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove: %w", err)
	}
	return nil
}

// PurgeIdle deletes sessions whose newest value is older than cutoff and
// returns how many rows were removed.
func (s *Store) PurgeIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.sqlDB == nil {
		return 0, storage.ErrNotConfigured
	}
	res, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM session_values WHERE session_id IN (
	SELECT session_id FROM session_values
	GROUP BY session_id
	HAVING MAX(updated_at) < ?
)`, cutoff.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge idle sessions: %w", err)
	}
	return res.RowsAffected()
}
