// Package biometric implements the per-modality enrollment and verification
// engines. One Engine instance serves one modality; the three instances share
// no mutable state and can verify in parallel.
package biometric

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mirrorgate/internal/biometric/metrics"
	"mirrorgate/internal/biometric/models"
	"mirrorgate/internal/biometric/scoring"
	"mirrorgate/internal/platform/config"
	id "mirrorgate/pkg/domain"
	dErrors "mirrorgate/pkg/domain-errors"
	"mirrorgate/pkg/platform/sentinel"
	"mirrorgate/pkg/requestcontext"
)

// adaptiveUpdateMargin is how far above the similarity threshold a sample
// must land before it may refresh the template. A barely passing sample is
// never folded in, so an attacker cannot walk the template toward their own
// features one marginal pass at a time.
const adaptiveUpdateMargin = 0.05

// TemplateStore persists enrolled templates. Implementations return sentinel
// errors for store facts.
type TemplateStore interface {
	Create(ctx context.Context, template *models.Template) error
	Find(ctx context.Context, subjectID id.SubjectID, modality id.Modality) (*models.Template, error)
	Update(ctx context.Context, template *models.Template) error
}

// Engine enrolls and verifies a single biometric modality.
type Engine struct {
	modality id.Modality
	cfg      config.ModalityThresholds
	floor    float64
	scorer   scoring.Function
	store    TemplateStore
	cipher   *templateCipher
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics attaches the biometric metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithScorer replaces the default cosine scorer.
func WithScorer(fn scoring.Function) Option {
	return func(e *Engine) { e.scorer = fn }
}

// NewEngine constructs the engine for one modality.
func NewEngine(modality id.Modality, cfg config.ModalityThresholds, livenessFloor float64, templateKeyHex string, store TemplateStore, opts ...Option) (*Engine, error) {
	if !modality.IsValid() {
		return nil, fmt.Errorf("unknown modality %q", modality)
	}
	if store == nil {
		return nil, fmt.Errorf("template store is required")
	}
	cipher, err := newTemplateCipher(templateKeyHex)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		modality: modality,
		cfg:      cfg,
		floor:    livenessFloor,
		scorer:   scoring.Cosine{},
		store:    store,
		cipher:   cipher,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Modality returns the channel this engine serves.
func (e *Engine) Modality() id.Modality { return e.modality }

// Enroll creates a template from one or more raw samples. At least one sample
// must clear the modality quality gate; a spoof indicator on any sample
// aborts the enrollment outright.
func (e *Engine) Enroll(ctx context.Context, subjectID id.SubjectID, samples []models.RawSample) (*models.EnrollmentDiagnostics, error) {
	if subjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject id is required")
	}
	if len(samples) == 0 {
		e.observeEnrollment("rejected")
		return nil, ErrInsufficientQuality
	}

	var accepted [][]float64
	for _, sample := range samples {
		if sample.Modality != e.modality {
			e.observeEnrollment("rejected")
			return nil, dErrors.Newf(dErrors.CodeInvalidInput, "sample modality %q does not match engine %q", sample.Modality, e.modality)
		}
		if err := e.checkQuality(sample); err != nil {
			continue
		}
		if _, spoof := e.liveness(sample); spoof {
			e.observeEnrollment("spoof")
			return nil, ErrSpoofDetected
		}
		accepted = append(accepted, sample.Features)
	}
	if len(accepted) == 0 {
		e.observeEnrollment("rejected")
		// Surface the gate error of the first sample so callers learn whether
		// to capture longer or capture better.
		if err := e.checkQuality(samples[0]); err != nil {
			return nil, err
		}
		return nil, ErrInsufficientQuality
	}

	vector, err := meanVector(accepted)
	if err != nil {
		e.observeEnrollment("rejected")
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "inconsistent sample vectors")
	}
	sealed, err := e.cipher.seal(subjectID, e.modality, vector)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "seal template")
	}

	now := requestcontext.Now(ctx)
	template := &models.Template{
		SubjectID:       subjectID,
		Modality:        e.modality,
		EncryptedVector: sealed,
		EnrolledAt:      now,
		UpdatedAt:       now,
		SampleCount:     len(accepted),
	}
	if err := e.store.Create(ctx, template); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			e.observeEnrollment("conflict")
			return nil, ErrAlreadyEnrolled
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "store template")
	}

	e.observeEnrollment("enrolled")
	if e.logger != nil {
		e.logger.InfoContext(ctx, "subject enrolled",
			"subject_id", subjectID,
			"modality", e.modality,
			"samples_accepted", len(accepted),
		)
	}
	return &models.EnrollmentDiagnostics{
		Modality:        e.modality,
		SamplesAccepted: len(accepted),
		SampleCount:     len(samples),
	}, nil
}

// Verify scores a sample against the stored template. A spoof indicator or a
// liveness score under the hard floor marks the result SpoofDetected with
// Passed=false; that is a result, not an error, so the aggregator can weigh
// it alongside the other modalities.
func (e *Engine) Verify(ctx context.Context, subjectID id.SubjectID, sample models.RawSample) (*models.VerificationResult, error) {
	start := time.Now()
	if subjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject id is required")
	}
	if sample.Modality != e.modality {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "sample modality %q does not match engine %q", sample.Modality, e.modality)
	}
	if err := e.checkQuality(sample); err != nil {
		e.observeVerification(start, "rejected")
		return nil, err
	}

	template, err := e.store.Find(ctx, subjectID, e.modality)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			e.observeVerification(start, "not_enrolled")
			return nil, ErrSubjectNotEnrolled
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load template")
	}
	stored, err := e.cipher.open(subjectID, e.modality, template.EncryptedVector)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "open template")
	}

	similarity, err := e.scorer.Score(stored, sample.Features)
	if err != nil {
		e.observeVerification(start, "rejected")
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "score sample")
	}
	liveness, spoofFlag := e.liveness(sample)
	spoof := spoofFlag || liveness < e.floor

	result := &models.VerificationResult{
		Modality:        e.modality,
		SimilarityScore: similarity,
		LivenessScore:   liveness,
		SpoofDetected:   spoof,
		Passed: !spoof &&
			similarity >= e.cfg.SimilarityThreshold &&
			liveness >= e.cfg.LivenessThreshold,
		Timestamp: requestcontext.Now(ctx),
	}

	switch {
	case spoof:
		e.observeVerification(start, "spoof")
	case result.Passed:
		e.observeVerification(start, "passed")
	default:
		e.observeVerification(start, "failed")
	}

	if result.Passed && e.cfg.AdaptiveUpdate {
		e.maybeRefreshTemplate(ctx, template, stored, sample.Features, similarity)
	}

	if e.logger != nil {
		e.logger.InfoContext(ctx, "verification attempt",
			"subject_id", subjectID,
			"modality", e.modality,
			"passed", result.Passed,
		)
	}
	return result, nil
}

// maybeRefreshTemplate folds the new vector into the template after a pass
// with comfortable margin. Refresh failures are logged and swallowed; the
// verification result stands either way.
func (e *Engine) maybeRefreshTemplate(ctx context.Context, template *models.Template, stored, sample []float64, similarity float64) {
	if similarity < e.cfg.SimilarityThreshold+adaptiveUpdateMargin {
		return
	}
	if len(sample) != len(stored) {
		return
	}
	n := float64(template.SampleCount)
	merged := make([]float64, len(stored))
	for i := range stored {
		merged[i] = (stored[i]*n + sample[i]) / (n + 1)
	}
	sealed, err := e.cipher.seal(template.SubjectID, e.modality, merged)
	if err != nil {
		if e.logger != nil {
			e.logger.WarnContext(ctx, "template refresh seal failed", "error", err)
		}
		return
	}
	template.EncryptedVector = sealed
	template.SampleCount++
	template.UpdatedAt = requestcontext.Now(ctx)
	if err := e.store.Update(ctx, template); err != nil {
		if e.logger != nil {
			e.logger.WarnContext(ctx, "template refresh failed",
				"subject_id", template.SubjectID,
				"modality", e.modality,
				"error", err,
			)
		}
	}
}

func (e *Engine) observeEnrollment(outcome string) {
	e.metrics.ObserveEnrollment(e.modality.String(), outcome)
}

func (e *Engine) observeVerification(start time.Time, outcome string) {
	e.metrics.ObserveVerification(e.modality.String(), outcome, time.Since(start))
}

func meanVector(vectors [][]float64) ([]float64, error) {
	dim := len(vectors[0])
	mean := make([]float64, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector dimensions differ: %d vs %d", len(v), dim)
		}
		for i := range v {
			mean[i] += v[i]
		}
	}
	for i := range mean {
		mean[i] /= float64(len(vectors))
	}
	return mean, nil
}
