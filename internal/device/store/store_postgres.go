package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"mirrorgate/internal/device/models"
	id "mirrorgate/pkg/domain"
	"mirrorgate/pkg/platform/sentinel"
)

// PostgresFingerprintStore persists device fingerprints in PostgreSQL.
// Components are per-signal hashes, so the database never sees raw device
// signals.
type PostgresFingerprintStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed fingerprint store.
func NewPostgres(db *sql.DB) *PostgresFingerprintStore {
	return &PostgresFingerprintStore{db: db}
}

const createFingerprintSQL = `
INSERT INTO device_fingerprints (device_id, subject_id, component_hash, components, display_name, first_seen, last_seen, trust_level)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (component_hash) DO NOTHING`

func (s *PostgresFingerprintStore) Create(ctx context.Context, fp *models.Fingerprint) error {
	comps, err := json.Marshal(fp.Components)
	if err != nil {
		return fmt.Errorf("encode components: %w", err)
	}
	res, err := s.db.ExecContext(ctx, createFingerprintSQL,
		fp.DeviceID.String(),
		fp.SubjectID.String(),
		fp.ComponentHash,
		comps,
		fp.DisplayName,
		fp.FirstSeen,
		fp.LastSeen,
		fp.TrustLevel,
	)
	if err != nil {
		return fmt.Errorf("create fingerprint: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create fingerprint: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("fingerprint %s: %w", fp.ComponentHash, sentinel.ErrConflict)
	}
	return nil
}

const findFingerprintSQL = `
SELECT device_id, subject_id, component_hash, components, display_name, first_seen, last_seen, trust_level
FROM device_fingerprints`

func (s *PostgresFingerprintStore) FindByID(ctx context.Context, deviceID id.DeviceID) (*models.Fingerprint, error) {
	row := s.db.QueryRowContext(ctx, findFingerprintSQL+` WHERE device_id = $1`, deviceID.String())
	fp, err := scanFingerprint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("device %s: %w", deviceID, sentinel.ErrNotFound)
	}
	return fp, err
}

func (s *PostgresFingerprintStore) FindByHash(ctx context.Context, componentHash string) (*models.Fingerprint, error) {
	row := s.db.QueryRowContext(ctx, findFingerprintSQL+` WHERE component_hash = $1`, componentHash)
	fp, err := scanFingerprint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fingerprint %s: %w", componentHash, sentinel.ErrNotFound)
	}
	return fp, err
}

func (s *PostgresFingerprintStore) FindBySubject(ctx context.Context, subjectID id.SubjectID) ([]*models.Fingerprint, error) {
	rows, err := s.db.QueryContext(ctx, findFingerprintSQL+` WHERE subject_id = $1 ORDER BY first_seen`, subjectID.String())
	if err != nil {
		return nil, fmt.Errorf("list fingerprints: %w", err)
	}
	defer rows.Close()

	var out []*models.Fingerprint
	for rows.Next() {
		fp, err := scanFingerprint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list fingerprints: %w", err)
	}
	return out, nil
}

const updateFingerprintSQL = `
UPDATE device_fingerprints
SET last_seen = $2, trust_level = $3
WHERE device_id = $1`

func (s *PostgresFingerprintStore) Update(ctx context.Context, fp *models.Fingerprint) error {
	res, err := s.db.ExecContext(ctx, updateFingerprintSQL, fp.DeviceID.String(), fp.LastSeen, fp.TrustLevel)
	if err != nil {
		return fmt.Errorf("update fingerprint: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update fingerprint: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("device %s: %w", fp.DeviceID, sentinel.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFingerprint(row rowScanner) (*models.Fingerprint, error) {
	var (
		fp        models.Fingerprint
		deviceID  string
		subjectID string
		comps     []byte
	)
	err := row.Scan(&deviceID, &subjectID, &fp.ComponentHash, &comps, &fp.DisplayName, &fp.FirstSeen, &fp.LastSeen, &fp.TrustLevel)
	if err != nil {
		return nil, err
	}
	if fp.DeviceID, err = id.ParseDeviceID(deviceID); err != nil {
		return nil, fmt.Errorf("scan fingerprint: %w", err)
	}
	if fp.SubjectID, err = id.ParseSubjectID(subjectID); err != nil {
		return nil, fmt.Errorf("scan fingerprint: %w", err)
	}
	if err := json.Unmarshal(comps, &fp.Components); err != nil {
		return nil, fmt.Errorf("scan fingerprint: %w", err)
	}
	return &fp, nil
}
