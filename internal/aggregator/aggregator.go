// Package aggregator combines modality verification results and device trust
// into one admit/deny decision. Nothing else in the system authorizes a
// session; every admit flows through Decide.
package aggregator

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"mirrorgate/internal/aggregator/metrics"
	bmodels "mirrorgate/internal/biometric/models"
	dmodels "mirrorgate/internal/device/models"
	"mirrorgate/internal/platform/config"
	id "mirrorgate/pkg/domain"
	dErrors "mirrorgate/pkg/domain-errors"
	"mirrorgate/pkg/requestcontext"
)

// Reason is the denial category returned to callers. Categories never carry
// scores, and when the presenting device is untrusted they never name the
// failing modality either; both would hand an attacker a gradient to descend.
type Reason string

const (
	ReasonAdmitted           Reason = "admitted"
	ReasonSpoofDetected      Reason = "spoof_detected"
	ReasonModalityFailed     Reason = "modality_failed"
	ReasonIncompleteProof    Reason = "incomplete_proof"
	ReasonVerificationFailed Reason = "verification_failed"
	ReasonStepUpRequired     Reason = "step_up_required"
)

// Decision is the aggregator's verdict.
type Decision struct {
	Admit  bool
	Reason Reason
}

// Verifier is one modality engine.
type Verifier interface {
	Modality() id.Modality
	Verify(ctx context.Context, subjectID id.SubjectID, sample bmodels.RawSample) (*bmodels.VerificationResult, error)
}

// Aggregator runs modality verifications in parallel and decides admission.
type Aggregator struct {
	cfg      config.BiometricConfig
	engines  map[id.Modality]Verifier
	required []id.Modality
	waivable map[id.Modality]bool
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// Option configures an Aggregator.
type Option func(*Aggregator)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// New constructs the aggregator over the given modality engines.
func New(cfg config.BiometricConfig, engines []Verifier, opts ...Option) *Aggregator {
	a := &Aggregator{
		cfg:      cfg,
		engines:  make(map[id.Modality]Verifier, len(engines)),
		waivable: make(map[id.Modality]bool, len(cfg.WaivableModalities)),
		tracer:   otel.Tracer("mirrorgate/aggregator"),
	}
	for _, engine := range engines {
		a.engines[engine.Modality()] = engine
	}
	for _, m := range cfg.RequiredModalities {
		a.required = append(a.required, id.Modality(m))
	}
	for _, m := range cfg.WaivableModalities {
		a.waivable[id.Modality(m)] = true
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// VerifyAll runs every submitted sample through its modality engine in
// parallel. Engines share no mutable state, so the only coordination is the
// errgroup join. A timeout or engine error marks that modality failed rather
// than aborting the attempt; the decision logic treats a missing pass the
// same either way.
func (a *Aggregator) VerifyAll(ctx context.Context, subjectID id.SubjectID, samples []bmodels.RawSample) ([]*bmodels.VerificationResult, error) {
	ctx, span := a.tracer.Start(ctx, "aggregator.VerifyAll",
		trace.WithAttributes(attribute.Int("samples", len(samples))))
	defer span.End()

	results := make([]*bmodels.VerificationResult, len(samples))
	g, gctx := errgroup.WithContext(ctx)
	for i, sample := range samples {
		engine, ok := a.engines[sample.Modality]
		if !ok {
			return nil, dErrors.Newf(dErrors.CodeInvalidInput, "no engine for modality %q", sample.Modality)
		}
		g.Go(func() error {
			vctx, cancel := context.WithTimeout(gctx, a.cfg.VerifyTimeout)
			defer cancel()

			result, err := engine.Verify(vctx, subjectID, sample)
			if err != nil {
				if a.logger != nil {
					a.logger.WarnContext(ctx, "modality verification failed",
						"modality", sample.Modality,
						"error", err,
					)
				}
				results[i] = &bmodels.VerificationResult{
					Modality:  sample.Modality,
					Timestamp: requestcontext.Now(ctx),
				}
				return nil
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Decide applies the admission rule over completed verification results:
// every required modality must have passed, an untrusted device raises the
// liveness bar to the strict floor, and a spoof indicator anywhere denies
// outright. A new device waives nothing.
func (a *Aggregator) Decide(ctx context.Context, results []*bmodels.VerificationResult, device *dmodels.Evaluation) Decision {
	start := time.Now()
	_, span := a.tracer.Start(ctx, "aggregator.Decide")
	defer span.End()

	decision := a.decide(results, device)

	span.SetAttributes(
		attribute.Bool("admit", decision.Admit),
		attribute.String("reason", string(decision.Reason)),
	)
	a.metrics.ObserveDecision(decision.Admit, string(decision.Reason), time.Since(start))
	if a.logger != nil {
		a.logger.InfoContext(ctx, "admission decision",
			"admit", decision.Admit,
			"reason", decision.Reason,
		)
	}
	return decision
}

func (a *Aggregator) decide(results []*bmodels.VerificationResult, device *dmodels.Evaluation) Decision {
	if device == nil || device.RequiresStepUp {
		return Decision{Reason: ReasonStepUpRequired}
	}

	byModality := make(map[id.Modality]*bmodels.VerificationResult, len(results))
	for _, result := range results {
		if result == nil {
			continue
		}
		if result.SpoofDetected {
			return Decision{Reason: ReasonSpoofDetected}
		}
		byModality[result.Modality] = result
	}

	trusted := device.Trusted && !device.IsNewDevice
	for _, modality := range a.required {
		result, ok := byModality[modality]
		if !ok {
			// A trusted device may skip waivable modalities. Voice never
			// appears in the waivable set; config validation enforces that.
			if trusted && a.waivable[modality] {
				continue
			}
			return Decision{Reason: a.denyReason(ReasonIncompleteProof, trusted)}
		}
		if !result.Passed {
			return Decision{Reason: a.denyReason(ReasonModalityFailed, trusted)}
		}
	}

	if !trusted {
		for _, result := range byModality {
			if result.LivenessScore < a.cfg.StrictLivenessFloor {
				return Decision{Reason: ReasonVerificationFailed}
			}
		}
	}
	return Decision{Admit: true, Reason: ReasonAdmitted}
}

// denyReason collapses specific denial categories into the generic one when
// the device is untrusted, so probing from an unknown device learns nothing
// about which check tripped.
func (a *Aggregator) denyReason(specific Reason, trusted bool) Reason {
	if trusted {
		return specific
	}
	return ReasonVerificationFailed
}
