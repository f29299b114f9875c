package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mirrorgate/internal/biometric/models"
	id "mirrorgate/pkg/domain"
	"mirrorgate/pkg/platform/sentinel"
)

// PostgresTemplateStore persists templates in PostgreSQL. Feature vectors
// arrive already sealed; the database only ever sees ciphertext.
type PostgresTemplateStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed template store.
func NewPostgres(db *sql.DB) *PostgresTemplateStore {
	return &PostgresTemplateStore{db: db}
}

const createTemplateSQL = `
INSERT INTO biometric_templates (subject_id, modality, encrypted_vector, enrolled_at, updated_at, sample_count)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (subject_id, modality) DO NOTHING`

func (s *PostgresTemplateStore) Create(ctx context.Context, template *models.Template) error {
	res, err := s.db.ExecContext(ctx, createTemplateSQL,
		template.SubjectID.String(),
		template.Modality.String(),
		template.EncryptedVector,
		template.EnrolledAt,
		template.UpdatedAt,
		template.SampleCount,
	)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("template for %s/%s: %w", template.SubjectID, template.Modality, sentinel.ErrConflict)
	}
	return nil
}

const findTemplateSQL = `
SELECT encrypted_vector, enrolled_at, updated_at, sample_count
FROM biometric_templates
WHERE subject_id = $1 AND modality = $2`

func (s *PostgresTemplateStore) Find(ctx context.Context, subjectID id.SubjectID, modality id.Modality) (*models.Template, error) {
	template := &models.Template{SubjectID: subjectID, Modality: modality}
	err := s.db.QueryRowContext(ctx, findTemplateSQL, subjectID.String(), modality.String()).Scan(
		&template.EncryptedVector,
		&template.EnrolledAt,
		&template.UpdatedAt,
		&template.SampleCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template for %s/%s: %w", subjectID, modality, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find template: %w", err)
	}
	return template, nil
}

const updateTemplateSQL = `
UPDATE biometric_templates
SET encrypted_vector = $3, updated_at = $4, sample_count = $5
WHERE subject_id = $1 AND modality = $2`

func (s *PostgresTemplateStore) Update(ctx context.Context, template *models.Template) error {
	res, err := s.db.ExecContext(ctx, updateTemplateSQL,
		template.SubjectID.String(),
		template.Modality.String(),
		template.EncryptedVector,
		template.UpdatedAt,
		template.SampleCount,
	)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("template for %s/%s: %w", template.SubjectID, template.Modality, sentinel.ErrNotFound)
	}
	return nil
}

// Delete removes a template. Used by subject data-deletion flows.
func (s *PostgresTemplateStore) Delete(ctx context.Context, subjectID id.SubjectID, modality id.Modality) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM biometric_templates WHERE subject_id = $1 AND modality = $2`,
		subjectID.String(), modality.String(),
	)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("template for %s/%s: %w", subjectID, modality, sentinel.ErrNotFound)
	}
	return nil
}
