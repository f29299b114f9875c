// Package bridge orchestrates QR-bound pairing sessions. A session binds a
// subject, a single-use nonce and a device challenge inside one time window;
// its nonce stays active until the mirror synchronizer consumes it, except
// that failure or cancellation burns the nonce immediately.
package bridge

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"mirrorgate/internal/aggregator"
	bmodels "mirrorgate/internal/biometric/models"
	"mirrorgate/internal/bridge/metrics"
	"mirrorgate/internal/bridge/models"
	dmodels "mirrorgate/internal/device/models"
	nmodels "mirrorgate/internal/nonce/models"
	"mirrorgate/internal/platform/config"
	id "mirrorgate/pkg/domain"
	dErrors "mirrorgate/pkg/domain-errors"
	"mirrorgate/pkg/platform/sentinel"
	"mirrorgate/pkg/requestcontext"
)

// NonceLedger is the slice of the nonce ledger the bridge needs.
type NonceLedger interface {
	Issue(ctx context.Context, subjectID id.SubjectID) (*nmodels.Nonce, error)
	Consume(ctx context.Context, nonceID id.NonceID) (nmodels.ConsumeResult, error)
}

// Decider is the admission choke point. The bridge never decides on its own.
type Decider interface {
	Decide(ctx context.Context, results []*bmodels.VerificationResult, device *dmodels.Evaluation) aggregator.Decision
}

// TrustRecorder feeds session outcomes back into device trust.
type TrustRecorder interface {
	RecordSuccess(ctx context.Context, deviceID id.DeviceID) error
	RecordFailure(ctx context.Context, deviceID id.DeviceID) error
}

// SessionStore persists bridge sessions.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	Find(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
}

// Service is the bridge session manager.
type Service struct {
	cfg     config.BridgeConfig
	store   SessionStore
	nonces  NonceLedger
	decider Decider
	trust   TrustRecorder
	codec   *qrCodec
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService constructs the bridge session manager.
func NewService(cfg config.BridgeConfig, store SessionStore, nonces NonceLedger, decider Decider, trust TrustRecorder, opts ...Option) (*Service, error) {
	codec, err := newQRCodec(cfg.SigningKey, cfg.SealingKey)
	if err != nil {
		return nil, err
	}
	s := &Service{
		cfg:     cfg,
		store:   store,
		nonces:  nonces,
		decider: decider,
		trust:   trust,
		codec:   codec,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateSession mints a pending session bound to a fresh nonce and a random
// device challenge the client must echo back at proof time.
func (s *Service) CreateSession(ctx context.Context, subjectID id.SubjectID, deviceID id.DeviceID) (*models.Session, error) {
	if subjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject id is required")
	}
	nonce, err := s.nonces.Issue(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	challenge, err := randomChallenge()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "mint device challenge")
	}

	now := requestcontext.Now(ctx)
	session := &models.Session{
		ID:              id.NewSessionID(),
		SubjectID:       subjectID,
		NonceID:         nonce.ID,
		DeviceID:        deviceID,
		DeviceChallenge: challenge,
		Status:          models.StatusPending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.cfg.SessionTTL),
	}
	if err := s.store.Create(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "store session")
	}
	s.metrics.ObserveCreated()
	if s.logger != nil {
		s.logger.InfoContext(ctx, "bridge session created",
			"session_id", session.ID,
			"subject_id", subjectID,
		)
	}
	return session, nil
}

// EncodeQR renders the signed, sealed pairing payload for a session.
func (s *Service) EncodeQR(session *models.Session) (string, error) {
	return s.codec.Encode(session)
}

// DecodeQR opens a pairing payload presented by the completing device.
func (s *Service) DecodeQR(ctx context.Context, payload string) (*QRClaims, error) {
	return s.codec.Decode(payload, requestcontext.Now(ctx))
}

// Outcome is what SubmitProof reports back.
type Outcome struct {
	Session  *models.Session
	Decision aggregator.Decision
}

// SubmitProof settles a pending session against completed verification
// results. The admission decision comes from the Decider; the bridge only
// enforces the session window, the challenge echo and terminal-state
// idempotence. Failure burns the nonce so a later replay cannot complete the
// session; a verified session keeps its nonce active for the synchronizer to
// consume.
func (s *Service) SubmitProof(ctx context.Context, sessionID id.SessionID, challengeEcho string, results []*bmodels.VerificationResult, device *dmodels.Evaluation) (*Outcome, error) {
	session, err := s.find(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return nil, ErrSessionTerminal
	}
	now := requestcontext.Now(ctx)
	if session.Expired(now) {
		s.settle(ctx, session, models.StatusExpired)
		return nil, ErrSessionExpired
	}
	if challengeEcho != session.DeviceChallenge {
		s.settle(ctx, session, models.StatusFailed)
		if s.trust != nil && !session.DeviceID.IsNil() {
			if err := s.trust.RecordFailure(ctx, session.DeviceID); err != nil && s.logger != nil {
				s.logger.WarnContext(ctx, "trust penalty failed", "error", err)
			}
		}
		return nil, ErrChallengeMismatch
	}

	decision := s.decider.Decide(ctx, results, device)
	if !decision.Admit {
		s.settle(ctx, session, models.StatusFailed)
		return &Outcome{Session: session, Decision: decision}, nil
	}

	session.Status = models.StatusVerified
	session.BiometricHash = proofDigest(results)
	if err := s.store.Update(ctx, session); err != nil {
		// A concurrent submission settled first; its terminal state stands.
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, ErrSessionTerminal
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "store session")
	}
	s.metrics.ObserveOutcome(string(models.StatusVerified))
	if s.trust != nil && !session.DeviceID.IsNil() {
		if err := s.trust.RecordSuccess(ctx, session.DeviceID); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "trust bump failed", "error", err)
		}
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "bridge session verified", "session_id", session.ID)
	}
	return &Outcome{Session: session, Decision: decision}, nil
}

// Cancel aborts a pending session at the subject's request. The nonce is
// burned immediately so a proof already in flight cannot complete the
// session afterwards.
func (s *Service) Cancel(ctx context.Context, sessionID id.SessionID) error {
	session, err := s.find(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status.Terminal() {
		return ErrSessionTerminal
	}
	s.settle(ctx, session, models.StatusFailed)
	if s.logger != nil {
		s.logger.InfoContext(ctx, "bridge session cancelled", "session_id", session.ID)
	}
	return nil
}

// Session loads a session by id.
func (s *Service) Session(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	return s.find(ctx, sessionID)
}

func (s *Service) find(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	session, err := s.store.Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load session")
	}
	return session, nil
}

// settle moves a session to a terminal state and burns its nonce. Burn
// failures are logged, not surfaced: the session is already terminal and the
// nonce expires on its own TTL regardless.
func (s *Service) settle(ctx context.Context, session *models.Session, status models.Status) {
	session.Status = status
	if err := s.store.Update(ctx, session); err != nil {
		// Losing the settle race means another submission already reached a
		// terminal state. That state owns the nonce, so it must not be burned
		// here; a verified winner still needs it for the synchronizer.
		if errors.Is(err, sentinel.ErrInvalidState) {
			return
		}
		if s.logger != nil {
			s.logger.WarnContext(ctx, "session settle failed", "session_id", session.ID, "error", err)
		}
	}
	s.metrics.ObserveOutcome(string(status))
	if status != models.StatusVerified {
		if _, err := s.nonces.Consume(ctx, session.NonceID); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "nonce burn failed", "session_id", session.ID, "error", err)
		}
	}
}

func randomChallenge() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// proofDigest folds the proof set into an opaque hash bound to the session.
// Only modality identities and verdicts go in; scores and feature data never
// touch persistent session state.
func proofDigest(results []*bmodels.VerificationResult) string {
	lines := make([]string, 0, len(results))
	for _, result := range results {
		if result == nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s:%t:%d", result.Modality, result.Passed, result.Timestamp.UnixNano()))
	}
	sort.Strings(lines)

	h := sha256.New()
	for _, line := range lines {
		h.Write([]byte(line))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
