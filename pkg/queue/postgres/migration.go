package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

const currentSchemaVersion = 1

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS jobs (
				id           TEXT PRIMARY KEY,
				workflow_id  TEXT NOT NULL,
				trigger_id   TEXT NOT NULL DEFAULT '',
				status       TEXT NOT NULL,
				priority     INTEGER NOT NULL DEFAULT 0,
				capabilities TEXT[] NOT NULL DEFAULT '{}',
				payload      JSONB NOT NULL DEFAULT '{}',
				result       JSONB,
				error        TEXT NOT NULL DEFAULT '',
				lease_owner  TEXT NOT NULL DEFAULT '',
				lease_expiry TIMESTAMPTZ,
				retry_count  INTEGER NOT NULL DEFAULT 0,
				created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
			);

			CREATE INDEX IF NOT EXISTS idx_jobs_claim
				ON jobs (status, priority DESC, created_at ASC);

			CREATE INDEX IF NOT EXISTS idx_jobs_lease
				ON jobs (status, lease_expiry);
		`,
	}
}

// migrationManager handles jobs-table schema creation and updates.
type migrationManager struct {
	db         *sql.DB
	logger     *slog.Logger
	migrations map[int]string
}

func newMigrationManager(logger *slog.Logger, db *sql.DB) *migrationManager {
	return &migrationManager{
		db:         db,
		logger:     logger,
		migrations: migrations(),
	}
}

func (m *migrationManager) run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "Starting queue schema migrations")

	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS queue_schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current sql.NullInt64

	err = m.db.QueryRowContext(ctx, `SELECT MAX(version) FROM queue_schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	for version := int(current.Int64) + 1; version <= currentSchemaVersion; version++ {
		statement, ok := m.migrations[version]
		if !ok {
			continue
		}

		m.logger.InfoContext(ctx, "Applying queue migration", "version", version)

		tx, err := m.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", version, err)
		}

		_, err = tx.ExecContext(ctx, statement)
		if err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("failed to apply migration %d: %w", version, err)
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO queue_schema_migrations (version) VALUES ($1)`, version)
		if err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}

		err = tx.Commit()
		if err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
	}

	m.logger.InfoContext(ctx, "Queue schema migrations completed", "version", currentSchemaVersion)

	return nil
}
