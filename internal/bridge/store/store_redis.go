package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mirrorgate/internal/bridge/models"
	id "mirrorgate/pkg/domain"
	"mirrorgate/pkg/platform/sentinel"
)

const sessionKeyPrefix = "bridge:session:"

// terminalRetention keeps settled sessions readable after their window so
// late proof submissions get a terminal-state rejection instead of
// not-found.
const terminalRetention = 10 * time.Minute

// updateScript swaps the stored record only if the current status still
// allows it: a terminal session accepts no transition to a different status.
// Running the check server-side makes settling first-wins across instances.
var updateScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then
  return 'not_found'
end
local status = cjson.decode(cur)['status']
local terminal = status == 'verified' or status == 'failed' or status == 'expired'
if terminal and status ~= ARGV[2] then
  return 'invalid_state'
end
redis.call('SET', KEYS[1], ARGV[1], 'KEEPTTL')
return 'ok'
`)

// RedisSessionStore is the Redis-backed session store.
type RedisSessionStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed session store.
func NewRedis(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

type sessionRecord struct {
	ID              string        `json:"id"`
	SubjectID       string        `json:"subject_id"`
	NonceID         string        `json:"nonce_id"`
	DeviceID        string        `json:"device_id,omitempty"`
	DeviceChallenge string        `json:"device_challenge"`
	BiometricHash   string        `json:"biometric_hash,omitempty"`
	Status          models.Status `json:"status"`
	MirrorDiffRef   string        `json:"mirror_diff_ref,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	ExpiresAt       time.Time     `json:"expires_at"`
}

func sessionKey(sessionID id.SessionID) string {
	return sessionKeyPrefix + sessionID.String()
}

func encode(session *models.Session) ([]byte, error) {
	record := sessionRecord{
		ID:              session.ID.String(),
		SubjectID:       session.SubjectID.String(),
		NonceID:         session.NonceID.String(),
		DeviceChallenge: session.DeviceChallenge,
		BiometricHash:   session.BiometricHash,
		Status:          session.Status,
		MirrorDiffRef:   session.MirrorDiffRef,
		CreatedAt:       session.CreatedAt,
		ExpiresAt:       session.ExpiresAt,
	}
	if !session.DeviceID.IsNil() {
		record.DeviceID = session.DeviceID.String()
	}
	return json.Marshal(record)
}

func decode(data []byte) (*models.Session, error) {
	var record sessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	session := &models.Session{
		DeviceChallenge: record.DeviceChallenge,
		BiometricHash:   record.BiometricHash,
		Status:          record.Status,
		MirrorDiffRef:   record.MirrorDiffRef,
		CreatedAt:       record.CreatedAt,
		ExpiresAt:       record.ExpiresAt,
	}
	var err error
	if session.ID, err = id.ParseSessionID(record.ID); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if session.SubjectID, err = id.ParseSubjectID(record.SubjectID); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if session.NonceID, err = id.ParseNonceID(record.NonceID); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if record.DeviceID != "" {
		if session.DeviceID, err = id.ParseDeviceID(record.DeviceID); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
	}
	return session, nil
}

func (s *RedisSessionStore) Create(ctx context.Context, session *models.Session) error {
	data, err := encode(session)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, sessionKey(session.ID), data, time.Until(session.ExpiresAt)+terminalRetention).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return fmt.Errorf("session %s: %w", session.ID, sentinel.ErrConflict)
	}
	return nil
}

func (s *RedisSessionStore) Find(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session %s: %w", sessionID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return decode(data)
}

func (s *RedisSessionStore) Update(ctx context.Context, session *models.Session) error {
	data, err := encode(session)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	// KEEPTTL inside the script preserves the retention window set at creation.
	result, err := updateScript.Run(ctx, s.client,
		[]string{sessionKey(session.ID)}, data, string(session.Status)).Text()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	switch result {
	case "ok":
		return nil
	case "not_found":
		return fmt.Errorf("session %s: %w", session.ID, sentinel.ErrNotFound)
	case "invalid_state":
		return fmt.Errorf("session %s: %w", session.ID, sentinel.ErrInvalidState)
	default:
		return fmt.Errorf("update session: unexpected result %q", result)
	}
}
