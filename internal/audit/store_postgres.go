package audit

import (
	"context"
	"database/sql"
	"fmt"

	id "mirrorgate/pkg/domain"
)

// PostgresStore persists the event trail in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (ts, subject_id, session_id, category, action, decision, reason, operator)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.Timestamp,
		event.SubjectID.String(),
		nullableID(event.SessionID),
		string(event.Category),
		event.Action,
		event.Decision,
		event.Reason,
		event.Operator,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, subject_id, COALESCE(session_id, ''), category, action, decision, reason, operator
		 FROM audit_events WHERE subject_id = $1 ORDER BY ts`,
		subjectID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			event     Event
			subject   string
			sessionID string
		)
		if err := rows.Scan(&event.Timestamp, &subject, &sessionID, &event.Category, &event.Action, &event.Decision, &event.Reason, &event.Operator); err != nil {
			return nil, fmt.Errorf("list audit events: %w", err)
		}
		if event.SubjectID, err = id.ParseSubjectID(subject); err != nil {
			return nil, fmt.Errorf("list audit events: %w", err)
		}
		if sessionID != "" {
			if event.SessionID, err = id.ParseSessionID(sessionID); err != nil {
				return nil, fmt.Errorf("list audit events: %w", err)
			}
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return out, nil
}

func nullableID(sessionID id.SessionID) any {
	if sessionID.IsNil() {
		return nil
	}
	return sessionID.String()
}
