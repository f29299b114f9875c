//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirrorgate/internal/biometric/models"
	"mirrorgate/internal/platform/postgres"
	id "mirrorgate/pkg/domain"
	"mirrorgate/pkg/platform/sentinel"
	"mirrorgate/pkg/testutil/containers"
)

func TestPostgresTemplateStore_Integration(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	ctx := context.Background()
	require.NoError(t, postgres.Migrate(ctx, pc.DB))
	store := NewPostgres(pc.DB)

	subject := id.NewSubjectID()
	now := time.Now().UTC().Truncate(time.Microsecond)
	template := &models.Template{
		SubjectID:       subject,
		Modality:        id.ModalityVoice,
		EncryptedVector: []byte("sealed-bytes"),
		EnrolledAt:      now,
		UpdatedAt:       now,
		SampleCount:     1,
	}
	require.NoError(t, store.Create(ctx, template))

	t.Run("round trip keeps ciphertext intact", func(t *testing.T) {
		found, err := store.Find(ctx, subject, id.ModalityVoice)
		require.NoError(t, err)
		assert.Equal(t, []byte("sealed-bytes"), found.EncryptedVector)
		assert.Equal(t, 1, found.SampleCount)
	})

	t.Run("per-modality isolation", func(t *testing.T) {
		_, err := store.Find(ctx, subject, id.ModalityFace)
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("duplicate enrollment conflicts", func(t *testing.T) {
		err := store.Create(ctx, template)
		require.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("adaptive update persists", func(t *testing.T) {
		template.EncryptedVector = []byte("resealed-bytes")
		template.SampleCount = 2
		template.UpdatedAt = now.Add(time.Minute)
		require.NoError(t, store.Update(ctx, template))

		found, err := store.Find(ctx, subject, id.ModalityVoice)
		require.NoError(t, err)
		assert.Equal(t, []byte("resealed-bytes"), found.EncryptedVector)
		assert.Equal(t, 2, found.SampleCount)
	})

	t.Run("delete removes the template", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, subject, id.ModalityVoice))
		_, err := store.Find(ctx, subject, id.ModalityVoice)
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}
