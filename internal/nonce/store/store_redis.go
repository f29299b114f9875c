package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"mirrorgate/internal/nonce/models"
	id "mirrorgate/pkg/domain"
	"mirrorgate/pkg/platform/sentinel"
)

const nonceKeyPrefix = "nonce:"

// consumedRetention keeps terminal nonces around after their window so a
// replayed consume reports already_consumed instead of not_found. Both
// outcomes fail closed; the distinction only improves audit signal.
const consumedRetention = 10 * time.Minute

// consumeScript performs the check-and-transition server-side so no two
// callers can both observe "active" and both consume. EVALSHA runs atomically
// on the Redis side; this is the replay barrier in multi-instance
// deployments.
var consumeScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
  return 'not_found'
end
if status == 'consumed' then
  return 'already_consumed'
end
local expires = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
if status == 'expired' or tonumber(ARGV[1]) > expires then
  redis.call('HSET', KEYS[1], 'status', 'expired')
  return 'expired'
end
redis.call('HSET', KEYS[1], 'status', 'consumed')
return 'success'
`)

// RedisNonceStore is the Redis-backed nonce store.
type RedisNonceStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed nonce store.
func NewRedis(client *redis.Client) *RedisNonceStore {
	return &RedisNonceStore{client: client}
}

func nonceKey(nonceID id.NonceID) string {
	return nonceKeyPrefix + nonceID.String()
}

func (s *RedisNonceStore) Create(ctx context.Context, nonce *models.Nonce) error {
	key := nonceKey(nonce.ID)
	ok, err := s.client.HSetNX(ctx, key, "status", string(nonce.Status)).Result()
	if err != nil {
		return fmt.Errorf("create nonce: %w", err)
	}
	if !ok {
		return fmt.Errorf("nonce %s: %w", nonce.ID, sentinel.ErrConflict)
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key,
		"subject_id", nonce.SubjectID.String(),
		"issued_at", nonce.IssuedAt.UnixMilli(),
		"expires_at", nonce.ExpiresAt.UnixMilli(),
	)
	pipe.PExpire(ctx, key, time.Until(nonce.ExpiresAt)+consumedRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create nonce: %w", err)
	}
	return nil
}

func (s *RedisNonceStore) Find(ctx context.Context, nonceID id.NonceID) (*models.Nonce, error) {
	fields, err := s.client.HGetAll(ctx, nonceKey(nonceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("find nonce: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("nonce %s: %w", nonceID, sentinel.ErrNotFound)
	}

	subjectID, err := id.ParseSubjectID(fields["subject_id"])
	if err != nil {
		return nil, fmt.Errorf("find nonce: %w", err)
	}
	issuedAt, err := strconv.ParseInt(fields["issued_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("find nonce: %w", err)
	}
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("find nonce: %w", err)
	}
	return &models.Nonce{
		ID:        nonceID,
		SubjectID: subjectID,
		IssuedAt:  time.UnixMilli(issuedAt),
		ExpiresAt: time.UnixMilli(expiresAt),
		Status:    models.Status(fields["status"]),
	}, nil
}

func (s *RedisNonceStore) Consume(ctx context.Context, nonceID id.NonceID, now time.Time) (models.ConsumeResult, error) {
	raw, err := consumeScript.Run(ctx, s.client, []string{nonceKey(nonceID)}, now.UnixMilli()).Text()
	if err != nil {
		return models.ConsumeNotFound, fmt.Errorf("consume nonce: %w", err)
	}
	switch result := models.ConsumeResult(raw); result {
	case models.ConsumeSuccess, models.ConsumeAlreadyConsumed, models.ConsumeExpired, models.ConsumeNotFound:
		return result, nil
	default:
		return models.ConsumeNotFound, fmt.Errorf("consume nonce: unexpected result %q", raw)
	}
}

// SweepExpired is a no-op for Redis: active keys carry a PExpire and the
// consume script handles in-window expiry, so Redis retires stale nonces on
// its own.
func (s *RedisNonceStore) SweepExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
