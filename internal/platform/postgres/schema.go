package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied idempotently at startup. The surface is small enough
// that CREATE IF NOT EXISTS beats a migration framework.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS biometric_templates (
		subject_id       TEXT        NOT NULL,
		modality         TEXT        NOT NULL,
		encrypted_vector BYTEA       NOT NULL,
		enrolled_at      TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL,
		sample_count     INTEGER     NOT NULL,
		PRIMARY KEY (subject_id, modality)
	)`,
	`CREATE TABLE IF NOT EXISTS device_fingerprints (
		device_id      TEXT             PRIMARY KEY,
		subject_id     TEXT             NOT NULL,
		component_hash TEXT             NOT NULL UNIQUE,
		components     JSONB            NOT NULL,
		display_name   TEXT             NOT NULL,
		first_seen     TIMESTAMPTZ      NOT NULL,
		last_seen      TIMESTAMPTZ      NOT NULL,
		trust_level    DOUBLE PRECISION NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS device_fingerprints_subject_idx
		ON device_fingerprints (subject_id)`,
	`CREATE TABLE IF NOT EXISTS applied_diffs (
		digest     TEXT        PRIMARY KEY,
		session_id TEXT        NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_events (
		id         BIGSERIAL   PRIMARY KEY,
		ts         TIMESTAMPTZ NOT NULL,
		subject_id TEXT        NOT NULL,
		session_id TEXT,
		category   TEXT        NOT NULL,
		action     TEXT        NOT NULL,
		decision   TEXT        NOT NULL DEFAULT '',
		reason     TEXT        NOT NULL DEFAULT '',
		operator   TEXT        NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS audit_events_subject_idx
		ON audit_events (subject_id, ts)`,
	`CREATE TABLE IF NOT EXISTS mirror_a (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS mirror_b (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// Migrate applies the schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
