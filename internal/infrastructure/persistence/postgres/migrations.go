package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Migration is one versioned schema change.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// migrations is the ordered schema history.
var migrations = []Migration{
	{Version: 1, Name: "create_courses", UpSQL: migration001Up, DownSQL: migration001Down},
	{Version: 2, Name: "create_progress", UpSQL: migration002Up, DownSQL: migration002Down},
	{Version: 3, Name: "create_certificates", UpSQL: migration003Up, DownSQL: migration003Down},
	{Version: 4, Name: "add_enrollment_version", UpSQL: migration004Up, DownSQL: migration004Down},
}

const schemaMigrationsDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
)`

// Migrator applies and reverts the embedded migrations. Each step runs in its
// own transaction together with its schema_migrations row.
type Migrator struct {
	conn *Connection
}

// NewMigrator creates a Migrator.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn}
}

// applied returns applied_at by version, creating the tracking table first.
func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	out := make(map[int]time.Time)
	err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, schemaMigrationsDDL); err != nil {
			return fmt.Errorf("create schema_migrations: %w", err)
		}
		rows, err := tx.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
		if err != nil {
			return err
		}
		for rows.Next() {
			var (
				v  int
				at time.Time
			)
			if err := rows.Scan(&v, &at); err != nil {
				rows.Close()
				return err
			}
			out[v] = at
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: read applied migrations: %w", err)
	}
	return out, nil
}

// Migrate applies every pending migration in version order.
func (m *Migrator) Migrate(ctx context.Context) error {
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}
	for _, mig := range migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("postgres: migration %03d %s: %w", mig.Version, mig.Name, err)
		}
	}
	return nil
}

// Rollback reverts the newest applied migration. It is a no-op on an empty
// schema.
func (m *Migrator) Rollback(ctx context.Context) error {
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}
	for i := len(migrations) - 1; i >= 0; i-- {
		mig := migrations[i]
		if _, ok := applied[mig.Version]; !ok {
			continue
		}
		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, mig.Version)
			return err
		})
		if err != nil {
			return fmt.Errorf("postgres: rollback %03d %s: %w", mig.Version, mig.Name, err)
		}
		return nil
	}
	return nil
}

// Status lists every known migration with its applied time, if any.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Migration, len(migrations))
	for i, mig := range migrations {
		if at, ok := applied[mig.Version]; ok {
			mig.IsApplied = true
			mig.AppliedAt = at
		}
		out[i] = mig
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE COURSES
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create course registry tables
-- Version: 001

CREATE TABLE IF NOT EXISTS courses (
    id UUID PRIMARY KEY,
    title VARCHAR(200) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

-- Published content items. Rows are never updated.
CREATE TABLE IF NOT EXISTS content_items (
    id UUID PRIMARY KEY,
    course_id UUID NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    kind VARCHAR(20) NOT NULL,
    title VARCHAR(200) NOT NULL DEFAULT '',
    payload_ref TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT content_items_course_position_key UNIQUE (course_id, position),
    CONSTRAINT valid_kind CHECK (kind IN ('MODULE', 'WORKSHOP')),
    CONSTRAINT valid_position CHECK (position > 0)
);
`

const migration001Down = `
DROP TABLE IF EXISTS content_items;
DROP TABLE IF EXISTS courses;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create enrollment and completion tables
-- Version: 002

CREATE TABLE IF NOT EXISTS enrollments (
    id UUID PRIMARY KEY,
    learner_id VARCHAR(128) NOT NULL,
    course_id UUID NOT NULL REFERENCES courses(id),
    progress_percent SMALLINT NOT NULL DEFAULT 0,
    status VARCHAR(20) NOT NULL DEFAULT 'IN_PROGRESS',
    enrolled_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT enrollments_learner_course_key UNIQUE (learner_id, course_id),
    CONSTRAINT valid_status CHECK (status IN ('IN_PROGRESS', 'COMPLETED')),
    CONSTRAINT valid_percent CHECK (progress_percent BETWEEN 0 AND 100),
    CONSTRAINT completed_iff_full CHECK ((status = 'COMPLETED') = (progress_percent = 100))
);

CREATE INDEX IF NOT EXISTS idx_enrollments_course ON enrollments(course_id);

-- One row per (learner, item). Toggles update the row in place.
CREATE TABLE IF NOT EXISTS completion_records (
    id UUID PRIMARY KEY,
    learner_id VARCHAR(128) NOT NULL,
    item_id UUID NOT NULL REFERENCES content_items(id) ON DELETE CASCADE,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT completion_records_learner_item_key UNIQUE (learner_id, item_id)
);

CREATE INDEX IF NOT EXISTS idx_completion_records_learner_completed
    ON completion_records(learner_id, item_id) WHERE completed;
`

const migration002Down = `
DROP TABLE IF EXISTS completion_records;
DROP TABLE IF EXISTS enrollments;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE CERTIFICATES
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create certificates table
-- Version: 003

-- At most one certificate per enrollment. Rows are never updated or deleted.
CREATE TABLE IF NOT EXISTS certificates (
    id UUID PRIMARY KEY,
    enrollment_id UUID NOT NULL REFERENCES enrollments(id) ON DELETE RESTRICT,
    learner_id VARCHAR(128) NOT NULL,
    course_id UUID NOT NULL REFERENCES courses(id),
    code VARCHAR(40) NOT NULL,
    issued_at TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT certificates_enrollment_key UNIQUE (enrollment_id),
    CONSTRAINT certificates_code_key UNIQUE (code)
);
`

const migration003Down = `
DROP TABLE IF EXISTS certificates;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: ENROLLMENT VERSION
// ══════════════════════════════════════════════════════════════════════════════

// version increments on every progress change. Caches compare it so an older
// snapshot never replaces a newer one.
const migration004Up = `
ALTER TABLE enrollments ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 1;
`

const migration004Down = `
ALTER TABLE enrollments DROP COLUMN IF EXISTS version;
`
