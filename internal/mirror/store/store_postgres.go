package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	id "mirrorgate/pkg/domain"
)

// PostgresAppliedStore persists applied diff digests in PostgreSQL.
type PostgresAppliedStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed applied-diff store.
func NewPostgres(db *sql.DB) *PostgresAppliedStore {
	return &PostgresAppliedStore{db: db}
}

func (s *PostgresAppliedStore) MarkApplied(ctx context.Context, digest string, sessionID id.SessionID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO applied_diffs (digest, session_id, applied_at) VALUES ($1, $2, now())
		 ON CONFLICT (digest) DO NOTHING`,
		digest, sessionID.String(),
	)
	if err != nil {
		return fmt.Errorf("mark applied: %w", err)
	}
	return nil
}

func (s *PostgresAppliedStore) WasApplied(ctx context.Context, digest string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM applied_diffs WHERE digest = $1`, digest).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check applied: %w", err)
	}
	return true, nil
}
