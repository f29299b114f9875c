package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirrorgate/internal/nonce/models"
	id "mirrorgate/pkg/domain"
	"mirrorgate/pkg/platform/sentinel"
)

func newRedisStore(t *testing.T) *RedisNonceStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client)
}

func TestRedisNonceStore(t *testing.T) {
	ctx := context.Background()

	t.Run("create then find round-trips", func(t *testing.T) {
		s := newRedisStore(t)
		nonce := activeNonce(30 * time.Second)
		require.NoError(t, s.Create(ctx, nonce))

		found, err := s.Find(ctx, nonce.ID)
		require.NoError(t, err)
		assert.Equal(t, nonce.SubjectID, found.SubjectID)
		assert.Equal(t, models.StatusActive, found.Status)
		assert.WithinDuration(t, nonce.ExpiresAt, found.ExpiresAt, time.Millisecond)
	})

	t.Run("duplicate nonce id conflicts", func(t *testing.T) {
		s := newRedisStore(t)
		nonce := activeNonce(30 * time.Second)
		require.NoError(t, s.Create(ctx, nonce))
		require.ErrorIs(t, s.Create(ctx, nonce), sentinel.ErrConflict)
	})

	t.Run("consume succeeds exactly once", func(t *testing.T) {
		s := newRedisStore(t)
		nonce := activeNonce(30 * time.Second)
		require.NoError(t, s.Create(ctx, nonce))

		result, err := s.Consume(ctx, nonce.ID, time.Now())
		require.NoError(t, err)
		assert.Equal(t, models.ConsumeSuccess, result)

		result, err = s.Consume(ctx, nonce.ID, time.Now())
		require.NoError(t, err)
		assert.Equal(t, models.ConsumeAlreadyConsumed, result)
	})

	t.Run("consume past the window reports expired", func(t *testing.T) {
		s := newRedisStore(t)
		nonce := activeNonce(30 * time.Second)
		require.NoError(t, s.Create(ctx, nonce))

		result, err := s.Consume(ctx, nonce.ID, time.Now().Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, models.ConsumeExpired, result)
	})

	t.Run("unknown nonce reports not found", func(t *testing.T) {
		s := newRedisStore(t)
		result, err := s.Consume(ctx, id.NewNonceID(), time.Now())
		require.NoError(t, err)
		assert.Equal(t, models.ConsumeNotFound, result)
	})
}
