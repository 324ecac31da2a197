package store

import (
	"context"
	"fmt"
	"time"
)

// migration is one schema step. Steps run in order, once, each in its own
// transaction.
type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{version: 1, statements: []string{
		`CREATE TABLE IF NOT EXISTS buckets (
			workload_type TEXT PRIMARY KEY,
			bucket_id TEXT NOT NULL DEFAULT '',
			remaining INTEGER NOT NULL,
			reset_after_ms INTEGER NOT NULL DEFAULT 0,
			sampled_at INTEGER NOT NULL,
			special INTEGER NOT NULL DEFAULT 0,
			spacing_ms INTEGER NOT NULL DEFAULT 0,
			must_wait INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS exchanges (
			id TEXT PRIMARY KEY,
			workload_type TEXT NOT NULL,
			method TEXT NOT NULL,
			url TEXT NOT NULL,
			status INTEGER NOT NULL DEFAULT 0,
			reconnects INTEGER NOT NULL DEFAULT 0,
			rate_limit_retries INTEGER NOT NULL DEFAULT 0,
			redirects INTEGER NOT NULL DEFAULT 0,
			waited_ms INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			started_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_started ON exchanges(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_type ON exchanges(workload_type, started_at)`,
	}},
	{version: 2, statements: []string{
		`ALTER TABLE exchanges ADD COLUMN label TEXT`,
	}},
}

// Migrate brings the schema to the latest version.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("store migration %d: %w", m.version, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration, 0 for a new database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	var version int
	if err := s.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		m.version, time.Now().Unix()); err != nil {
		return err
	}
	return tx.Commit()
}
