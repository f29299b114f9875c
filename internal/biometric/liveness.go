package biometric

import (
	"math"

	"mirrorgate/internal/biometric/models"
	id "mirrorgate/pkg/domain"
)

// Quality minimums per modality. Samples below these gates never reach
// scoring.
const (
	minVoiceDurationMS = 2000
	minFaceLandmarks   = 5
	minKeystrokes      = 20
	minFeatureDim      = 8
)

// Spoof flags fire at these signal levels regardless of similarity.
const (
	maxSynthesisArtifacts = 0.5
	maxReplayArtifacts    = 0.5
	minHumanTimingCV      = 0.02
)

// checkQuality gates a sample before any scoring happens. It distinguishes
// "too short" (the caller can simply capture longer) from structurally
// insufficient samples.
func (e *Engine) checkQuality(sample models.RawSample) error {
	if len(sample.Features) < minFeatureDim {
		return ErrInsufficientQuality
	}
	for _, f := range sample.Features {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrInsufficientQuality
		}
	}

	switch e.modality {
	case id.ModalityVoice:
		if sample.Voice == nil {
			return ErrInsufficientQuality
		}
		if sample.Voice.DurationMS < minVoiceDurationMS {
			return ErrSampleTooShort
		}
	case id.ModalityFace:
		if sample.Face == nil || sample.Face.LandmarkCount < minFaceLandmarks {
			return ErrInsufficientQuality
		}
	case id.ModalityBehavior:
		if sample.Behavior == nil {
			return ErrInsufficientQuality
		}
		if sample.Behavior.KeystrokeCount < minKeystrokes {
			return ErrSampleTooShort
		}
	}
	return nil
}

// liveness computes the modality-specific liveness score on [0,1] and reports
// whether a hard spoof indicator fired. A spoof indicator is authoritative:
// the aggregator denies regardless of every other score.
func (e *Engine) liveness(sample models.RawSample) (float64, bool) {
	switch e.modality {
	case id.ModalityVoice:
		return voiceLiveness(sample.Voice)
	case id.ModalityFace:
		return faceLiveness(sample.Face)
	case id.ModalityBehavior:
		return behaviorLiveness(sample.Behavior)
	}
	return 0, true
}

// voiceLiveness rewards natural pitch variance and audible breathing, and
// penalizes synthesis or playback artifacts.
func voiceLiveness(s *models.VoiceSignals) (float64, bool) {
	if s == nil {
		return 0, true
	}
	spoof := s.SynthesisArtifacts > maxSynthesisArtifacts
	score := 0.4*clamp01(s.PitchVariance/0.15) +
		0.35*clamp01(s.BreathingPresence) +
		0.25*(1-clamp01(s.SynthesisArtifacts))
	return clamp01(score), spoof
}

// faceLiveness rewards blink and depth evidence; a flat, blink-free capture
// is treated as a photo, and replay artifacts as a screen re-capture.
func faceLiveness(s *models.FaceSignals) (float64, bool) {
	if s == nil {
		return 0, true
	}
	spoof := s.ReplayArtifacts > maxReplayArtifacts
	if !s.BlinkDetected && s.DepthScore < 0.1 {
		spoof = true
	}
	blink := 0.0
	if s.BlinkDetected {
		blink = 1.0
	}
	score := 0.4*blink + 0.4*clamp01(s.DepthScore) + 0.2*(1-clamp01(s.ReplayArtifacts))
	return clamp01(score), spoof
}

// behaviorLiveness scores timing-variance plausibility. Humans are neither
// metronomes nor chaos: the coefficient of variation of keystroke intervals
// has to land in a plausible band.
func behaviorLiveness(s *models.BehaviorSignals) (float64, bool) {
	if s == nil || s.MeanIntervalMS <= 0 {
		return 0, true
	}
	cv := s.IntervalStdDevMS / s.MeanIntervalMS
	spoof := cv < minHumanTimingCV

	var score float64
	switch {
	case cv < 0.05:
		// Robotic uniformity.
		score = cv / 0.05 * 0.3
	case cv < 0.15:
		score = 0.3 + (cv-0.05)/0.10*0.7
	case cv <= 0.8:
		score = 1.0
	case cv <= 1.5:
		// Implausibly erratic; decays toward zero.
		score = 1.0 - (cv-0.8)/0.7
	default:
		score = 0
	}
	return clamp01(score), spoof
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
