package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresMirror is a mirror whose entries live in a keyed table. Each
// mirror gets its own table name so two mirrors can share one database in
// dev while staying isolated.
type PostgresMirror struct {
	name  string
	table string
	db    *sql.DB
}

// NewPostgresMirror constructs a PostgreSQL-backed mirror over the given
// table. The table needs (key text primary key, value text not null).
func NewPostgresMirror(name, table string, db *sql.DB) *PostgresMirror {
	return &PostgresMirror{name: name, table: table, db: db}
}

func (m *PostgresMirror) Name() string { return m.name }

func (m *PostgresMirror) Snapshot(ctx context.Context) (map[string]string, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`SELECT key, value FROM %s`, m.table))
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", m.name, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", m.name, err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", m.name, err)
	}
	return out, nil
}

func (m *PostgresMirror) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := m.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, m.table), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get from %s: %w", m.name, err)
	}
	return value, true, nil
}

func (m *PostgresMirror) Set(ctx context.Context, key, value string) error {
	_, err := m.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, m.table), key, value)
	if err != nil {
		return fmt.Errorf("set in %s: %w", m.name, err)
	}
	return nil
}

func (m *PostgresMirror) Remove(ctx context.Context, key string) error {
	_, err := m.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, m.table), key)
	if err != nil {
		return fmt.Errorf("remove from %s: %w", m.name, err)
	}
	return nil
}
