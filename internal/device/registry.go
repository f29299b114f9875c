package device

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"mirrorgate/internal/device/metrics"
	"mirrorgate/internal/device/models"
	"mirrorgate/internal/platform/config"
	id "mirrorgate/pkg/domain"
	dErrors "mirrorgate/pkg/domain-errors"
	"mirrorgate/pkg/platform/sentinel"
	"mirrorgate/pkg/requestcontext"
)

// Trust update policy. Growth is deliberately slow; a device earns full trust
// over roughly ninety successful sessions starting from the new-device base.
const (
	newDeviceTrust  = 0.10
	trustGrowth     = 0.01
	failurePenalty  = 0.10
	decayStep       = 0.05
	decayIdlePeriod = 30 * 24 * time.Hour
	decayFloor      = 0.0
	maxTrust        = 1.0
)

// FingerprintStore persists device fingerprints. Implementations return
// sentinel errors for store facts.
type FingerprintStore interface {
	Create(ctx context.Context, fp *models.Fingerprint) error
	FindByID(ctx context.Context, deviceID id.DeviceID) (*models.Fingerprint, error)
	FindBySubject(ctx context.Context, subjectID id.SubjectID) ([]*models.Fingerprint, error)
	FindByHash(ctx context.Context, componentHash string) (*models.Fingerprint, error)
	Update(ctx context.Context, fp *models.Fingerprint) error
}

// Registry evaluates presented devices against a subject's registered
// fingerprints and maintains their trust levels.
type Registry struct {
	cfg     config.DeviceConfig
	store   FingerprintStore
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Registry.
type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry constructs the device trust registry.
func NewRegistry(cfg config.DeviceConfig, store FingerprintStore, opts ...Option) *Registry {
	r := &Registry{cfg: cfg, store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fingerprint derives the presented device's fingerprint from its raw
// signals. Pure computation; nothing is stored until Evaluate registers a new
// device.
func (r *Registry) Fingerprint(signals models.RawSignals) *models.Fingerprint {
	comps := components(signals)
	return &models.Fingerprint{
		Components:    comps,
		ComponentHash: componentHash(comps),
		DisplayName:   ParseUserAgent(signals.UserAgent),
	}
}

// Evaluate matches a presented fingerprint against the subject's registered
// devices. Unrecognized devices are registered with base trust and flagged
// new; they are never trusted on first sight. A fingerprint already bound to
// a different subject demands step-up instead of guessing an owner.
func (r *Registry) Evaluate(ctx context.Context, subjectID id.SubjectID, presented *models.Fingerprint) (*models.Evaluation, error) {
	if subjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject id is required")
	}
	now := requestcontext.Now(ctx)

	owner, err := r.store.FindByHash(ctx, presented.ComponentHash)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "look up fingerprint")
	}
	if owner != nil && owner.SubjectID != subjectID {
		r.metrics.ObserveEvaluation("step_up")
		if r.logger != nil {
			r.logger.WarnContext(ctx, "fingerprint bound to another subject",
				"subject_id", subjectID,
				"device_id", owner.DeviceID,
			)
		}
		return &models.Evaluation{RequiresStepUp: true}, ErrStepUpRequired
	}

	registered, err := r.store.FindBySubject(ctx, subjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load fingerprints")
	}

	var best *models.Fingerprint
	var bestSim float64
	for _, fp := range registered {
		if sim := similarity(presented.Components, fp.Components); sim > bestSim {
			best, bestSim = fp, sim
		}
	}

	if best == nil || bestSim < r.cfg.MatchThreshold {
		fp := &models.Fingerprint{
			DeviceID:      id.NewDeviceID(),
			SubjectID:     subjectID,
			ComponentHash: presented.ComponentHash,
			Components:    presented.Components,
			DisplayName:   presented.DisplayName,
			FirstSeen:     now,
			LastSeen:      now,
			TrustLevel:    newDeviceTrust,
		}
		if err := r.store.Create(ctx, fp); err != nil && !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "register device")
		}
		r.metrics.ObserveEvaluation("new_device")
		if r.logger != nil {
			r.logger.InfoContext(ctx, "new device registered",
				"subject_id", subjectID,
				"device_id", fp.DeviceID,
				"device", fp.DisplayName,
			)
		}
		return &models.Evaluation{
			Trusted:         false,
			TrustLevel:      fp.TrustLevel,
			IsNewDevice:     true,
			MatchedDeviceID: fp.DeviceID,
		}, nil
	}

	trust := decayedTrust(best.TrustLevel, best.LastSeen, now)
	if trust != best.TrustLevel {
		// A sighting ends the idle streak, so the decayed level is persisted
		// with a fresh LastSeen rather than re-decayed on the next evaluation.
		best.TrustLevel = trust
		best.LastSeen = now
		if err := r.store.Update(ctx, best); err != nil && r.logger != nil {
			r.logger.WarnContext(ctx, "trust decay persist failed", "device_id", best.DeviceID, "error", err)
		}
	}

	// A device matching an owned fingerprint is trusted. The accumulated
	// trust level only vetoes: a device docked by failed challenges or worn
	// down by idle decay falls below the floor and loses its standing.
	eval := &models.Evaluation{
		Trusted:         trust >= r.cfg.TrustFloor,
		TrustLevel:      trust,
		MatchedDeviceID: best.DeviceID,
	}
	if eval.Trusted {
		r.metrics.ObserveEvaluation("trusted")
	} else {
		r.metrics.ObserveEvaluation("untrusted")
	}
	return eval, nil
}

// RecordSuccess bumps trust after a fully admitted session.
func (r *Registry) RecordSuccess(ctx context.Context, deviceID id.DeviceID) error {
	return r.adjustTrust(ctx, deviceID, trustGrowth)
}

// RecordFailure docks trust after a failed device challenge.
func (r *Registry) RecordFailure(ctx context.Context, deviceID id.DeviceID) error {
	return r.adjustTrust(ctx, deviceID, -failurePenalty)
}

func (r *Registry) adjustTrust(ctx context.Context, deviceID id.DeviceID, delta float64) error {
	fp, err := r.store.FindByID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return ErrDeviceNotFound
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "load device")
	}
	fp.TrustLevel = math.Min(maxTrust, math.Max(decayFloor, fp.TrustLevel+delta))
	fp.LastSeen = requestcontext.Now(ctx)
	if err := r.store.Update(ctx, fp); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "update trust")
	}
	return nil
}

// decayedTrust applies the documented inactivity assumption: trust drops one
// step per full idle period, never below the floor. Decay is computed lazily
// at evaluation time rather than by a background job.
func decayedTrust(trust float64, lastSeen, now time.Time) float64 {
	if !now.After(lastSeen) {
		return trust
	}
	periods := int(now.Sub(lastSeen) / decayIdlePeriod)
	if periods == 0 {
		return trust
	}
	return math.Max(decayFloor, trust-float64(periods)*decayStep)
}
