//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirrorgate/internal/device/models"
	"mirrorgate/internal/platform/postgres"
	id "mirrorgate/pkg/domain"
	"mirrorgate/pkg/platform/sentinel"
	"mirrorgate/pkg/testutil/containers"
)

func TestPostgresFingerprintStore_Integration(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	ctx := context.Background()
	require.NoError(t, postgres.Migrate(ctx, pc.DB))
	store := NewPostgres(pc.DB)

	newFingerprint := func(subjectID id.SubjectID, hash string) *models.Fingerprint {
		now := time.Now().UTC().Truncate(time.Microsecond)
		return &models.Fingerprint{
			DeviceID:      id.NewDeviceID(),
			SubjectID:     subjectID,
			ComponentHash: hash,
			Components:    map[string]string{"hardware": "aa", "browser": "bb"},
			DisplayName:   "Firefox 126 on Linux",
			FirstSeen:     now,
			LastSeen:      now,
			TrustLevel:    0.10,
		}
	}

	subject := id.NewSubjectID()
	fp := newFingerprint(subject, "hash-1")
	require.NoError(t, store.Create(ctx, fp))

	t.Run("find by id round trips", func(t *testing.T) {
		found, err := store.FindByID(ctx, fp.DeviceID)
		require.NoError(t, err)
		assert.Equal(t, fp.ComponentHash, found.ComponentHash)
		assert.Equal(t, fp.Components, found.Components)
		assert.Equal(t, fp.DisplayName, found.DisplayName)
		assert.InDelta(t, fp.TrustLevel, found.TrustLevel, 1e-9)
	})

	t.Run("find by hash", func(t *testing.T) {
		found, err := store.FindByHash(ctx, "hash-1")
		require.NoError(t, err)
		assert.Equal(t, fp.DeviceID, found.DeviceID)
	})

	t.Run("duplicate hash conflicts", func(t *testing.T) {
		dup := newFingerprint(subject, "hash-1")
		err := store.Create(ctx, dup)
		require.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("list by subject ordered by first seen", func(t *testing.T) {
		second := newFingerprint(subject, "hash-2")
		second.FirstSeen = second.FirstSeen.Add(time.Second)
		require.NoError(t, store.Create(ctx, second))

		listed, err := store.FindBySubject(ctx, subject)
		require.NoError(t, err)
		require.Len(t, listed, 2)
		assert.Equal(t, fp.DeviceID, listed[0].DeviceID)
		assert.Equal(t, second.DeviceID, listed[1].DeviceID)
	})

	t.Run("update trust level", func(t *testing.T) {
		fp.TrustLevel = 0.42
		fp.LastSeen = time.Now().UTC().Truncate(time.Microsecond)
		require.NoError(t, store.Update(ctx, fp))

		found, err := store.FindByID(ctx, fp.DeviceID)
		require.NoError(t, err)
		assert.InDelta(t, 0.42, found.TrustLevel, 1e-9)
	})

	t.Run("missing device", func(t *testing.T) {
		_, err := store.FindByID(ctx, id.NewDeviceID())
		require.ErrorIs(t, err, sentinel.ErrNotFound)

		err = store.Update(ctx, newFingerprint(subject, "hash-3"))
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}
