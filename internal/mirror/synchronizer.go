// Package mirror computes and applies diffs between two isolated data
// mirrors. An apply is gated on a verified bridge session whose nonce
// consumes successfully, holds both mirrors exclusively for its duration,
// and commits all entries or none.
package mirror

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	bmodels "mirrorgate/internal/bridge/models"
	"mirrorgate/internal/mirror/metrics"
	"mirrorgate/internal/mirror/models"
	nmodels "mirrorgate/internal/nonce/models"
	"mirrorgate/internal/platform/config"
	id "mirrorgate/pkg/domain"
	dErrors "mirrorgate/pkg/domain-errors"
)

// NonceConsumer retires the session's nonce. Only a ConsumeSuccess
// authorizes the apply.
type NonceConsumer interface {
	Consume(ctx context.Context, nonceID id.NonceID) (nmodels.ConsumeResult, error)
}

// SessionRecorder persists the diff reference onto the session after a
// successful apply.
type SessionRecorder interface {
	Update(ctx context.Context, session *bmodels.Session) error
}

// AppliedStore remembers digests of applied diffs for replay detection.
type AppliedStore interface {
	MarkApplied(ctx context.Context, digest string, sessionID id.SessionID) error
	WasApplied(ctx context.Context, digest string) (bool, error)
}

// Synchronizer is the cross-mirror diff engine.
type Synchronizer struct {
	cfg      config.SyncConfig
	mirrorA  Mirror
	mirrorB  Mirror
	nonces   NonceConsumer
	sessions SessionRecorder
	applied  AppliedStore

	// applyMu is the exclusive write lock over both mirrors. Diff
	// computation reads snapshots without it.
	applyMu sync.Mutex

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Synchronizer) { s.metrics = m }
}

// NewSynchronizer constructs the synchronizer over the two mirrors.
func NewSynchronizer(cfg config.SyncConfig, mirrorA, mirrorB Mirror, nonces NonceConsumer, sessions SessionRecorder, applied AppliedStore, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		cfg:      cfg,
		mirrorA:  mirrorA,
		mirrorB:  mirrorB,
		nonces:   nonces,
		sessions: sessions,
		applied:  applied,
		tracer:   otel.Tracer("mirrorgate/mirror"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ComputeDiff takes consistent snapshots of both mirrors and records every
// disagreeing key in stable order. Two-sided conflicts get a resolution from
// the configured policy; under manual they stay unresolved for an operator.
// One-sided drift always resolves toward the side holding the value.
func (s *Synchronizer) ComputeDiff(ctx context.Context, sessionID id.SessionID) (*models.Diff, error) {
	ctx, span := s.tracer.Start(ctx, "mirror.ComputeDiff")
	defer span.End()

	snapA, err := s.mirrorA.Snapshot(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "snapshot mirror a")
	}
	snapB, err := s.mirrorB.Snapshot(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "snapshot mirror b")
	}

	diff := &models.Diff{SessionID: sessionID}
	for _, key := range sortedKeys(snapA, snapB) {
		aValue, aPresent := snapA[key]
		bValue, bPresent := snapB[key]
		if aPresent == bPresent && aValue == bValue {
			continue
		}
		entry := models.Entry{
			Key:      key,
			AValue:   aValue,
			BValue:   bValue,
			APresent: aPresent,
			BPresent: bPresent,
		}
		switch {
		case !entry.Conflict():
			// Drift: only one side holds the key.
			if aPresent {
				entry.Resolution = models.ResolutionUseA
			} else {
				entry.Resolution = models.ResolutionUseB
			}
		case s.cfg.ConflictPolicy == config.ConflictPreferA:
			entry.Resolution = models.ResolutionUseA
		case s.cfg.ConflictPolicy == config.ConflictPreferB:
			entry.Resolution = models.ResolutionUseB
		}
		diff.Entries = append(diff.Entries, entry)
	}

	span.SetAttributes(attribute.Int("entries", len(diff.Entries)))
	return diff, nil
}

// ApplyDiff commits a diff under the authority of a verified session. The
// nonce is consumed before the first write: once writing starts, this session
// can never authorize a second apply. Policy violations surface before the
// nonce is touched so an operator can resolve and retry. Both mirrors are
// held exclusively; a mid-apply failure rolls every already-written entry
// back before the error surfaces.
func (s *Synchronizer) ApplyDiff(ctx context.Context, session *bmodels.Session, diff *models.Diff) (*models.SyncResult, error) {
	ctx, span := s.tracer.Start(ctx, "mirror.ApplyDiff")
	defer span.End()

	if session == nil || session.Status != bmodels.StatusVerified || session.ID != diff.SessionID {
		s.metrics.ObserveApply("session_invalid")
		return nil, ErrSessionInvalid
	}

	digest := diff.Digest()
	replayed, err := s.applied.WasApplied(ctx, digest)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "check applied diffs")
	}
	if replayed {
		// The content already landed; a fresh session replaying it is a
		// no-op, not a duplicate write.
		s.metrics.ObserveApply("replayed")
		return &models.SyncResult{Digest: digest, Replayed: true}, nil
	}

	if err := s.validatePolicy(diff); err != nil {
		s.metrics.ObserveApply("conflict")
		return nil, err
	}

	result, err := s.nonces.Consume(ctx, session.NonceID)
	if err != nil {
		return nil, err
	}
	if result != nmodels.ConsumeSuccess {
		s.metrics.ObserveApply("session_invalid")
		if s.logger != nil {
			s.logger.WarnContext(ctx, "sync refused",
				"session_id", session.ID,
				"nonce_result", result,
			)
		}
		return nil, ErrSessionInvalid
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	if err := s.commit(ctx, diff); err != nil {
		s.metrics.ObserveApply("rolled_back")
		return nil, err
	}

	if err := s.applied.MarkApplied(ctx, digest, session.ID); err != nil {
		// The data landed; losing the replay marker only risks a future
		// no-op being re-applied with identical content.
		if s.logger != nil {
			s.logger.WarnContext(ctx, "applied digest persist failed", "error", err)
		}
	}
	session.MirrorDiffRef = digest
	if err := s.sessions.Update(ctx, session); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "session diff ref persist failed", "error", err)
	}

	s.metrics.ObserveApply("applied")
	if s.logger != nil {
		s.logger.InfoContext(ctx, "mirrors synchronized",
			"session_id", session.ID,
			"entries", len(diff.Entries),
		)
	}
	return &models.SyncResult{Digest: digest, Applied: len(diff.Entries)}, nil
}

// validatePolicy enforces the conflict policy before anything is written.
func (s *Synchronizer) validatePolicy(diff *models.Diff) error {
	for i := range diff.Entries {
		entry := &diff.Entries[i]
		if !entry.Conflict() {
			continue
		}
		switch s.cfg.ConflictPolicy {
		case config.ConflictRejectOnConflict:
			return ErrConflictRejected
		case config.ConflictManual:
			if entry.Resolution == "" {
				return ErrManualResolutionRequired
			}
		}
	}
	return nil
}

// writeRecord remembers one mirror write so commit can undo it.
type writeRecord struct {
	mirror     Mirror
	key        string
	prevValue  string
	prevExists bool
}

func (s *Synchronizer) commit(ctx context.Context, diff *models.Diff) error {
	var done []writeRecord
	for i := range diff.Entries {
		entry := &diff.Entries[i]
		value, exists := entry.ResolvedValue()
		for _, m := range []Mirror{s.mirrorA, s.mirrorB} {
			prev, prevExists, err := m.Get(ctx, entry.Key)
			if err != nil {
				s.rollback(ctx, done)
				return dErrors.Wrap(errors.Join(err, ErrSyncFailed), dErrors.CodeInternal, "read before write")
			}
			if err := s.write(ctx, m, entry.Key, value, exists); err != nil {
				s.rollback(ctx, done)
				return dErrors.Wrap(errors.Join(err, ErrSyncFailed), dErrors.CodeInternal, "apply entry")
			}
			done = append(done, writeRecord{mirror: m, key: entry.Key, prevValue: prev, prevExists: prevExists})
		}
	}
	return nil
}

func (s *Synchronizer) write(ctx context.Context, m Mirror, key, value string, exists bool) error {
	if exists {
		return m.Set(ctx, key, value)
	}
	return m.Remove(ctx, key)
}

// rollback restores every written key to its pre-apply value, newest first.
func (s *Synchronizer) rollback(ctx context.Context, done []writeRecord) {
	for i := len(done) - 1; i >= 0; i-- {
		rec := done[i]
		var err error
		if rec.prevExists {
			err = rec.mirror.Set(ctx, rec.key, rec.prevValue)
		} else {
			err = rec.mirror.Remove(ctx, rec.key)
		}
		if err != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "rollback write failed",
				"mirror", rec.mirror.Name(),
				"key", rec.key,
				"error", err,
			)
		}
	}
}
