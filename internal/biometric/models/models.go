// Package models holds the biometric domain entities shared by the engine,
// its stores, and the HTTP layer.
package models

import (
	"time"

	id "mirrorgate/pkg/domain"
)

// VoiceSignals are the liveness and quality signals extracted from a voice
// sample by the upstream feature extractor.
type VoiceSignals struct {
	DurationMS         int     `json:"duration_ms"`
	PitchVariance      float64 `json:"pitch_variance"`
	BreathingPresence  float64 `json:"breathing_presence"`
	SynthesisArtifacts float64 `json:"synthesis_artifacts"`
}

// FaceSignals are the liveness and quality signals from a face capture.
type FaceSignals struct {
	LandmarkCount   int     `json:"landmark_count"`
	BlinkDetected   bool    `json:"blink_detected"`
	DepthScore      float64 `json:"depth_score"`
	ReplayArtifacts float64 `json:"replay_artifacts"`
}

// BehaviorSignals are the timing signals from a behavioral (keystroke) sample.
type BehaviorSignals struct {
	KeystrokeCount   int     `json:"keystroke_count"`
	MeanIntervalMS   float64 `json:"mean_interval_ms"`
	IntervalStdDevMS float64 `json:"interval_stddev_ms"`
}

// RawSample is a decoded biometric sample: the extracted feature vector plus
// the modality-specific signal block. Concrete ML feature extraction happens
// upstream; the bridge only ever sees vectors and signals, never raw media.
type RawSample struct {
	Modality id.Modality      `json:"modality"`
	Features []float64        `json:"features"`
	Voice    *VoiceSignals    `json:"voice,omitempty"`
	Face     *FaceSignals     `json:"face,omitempty"`
	Behavior *BehaviorSignals `json:"behavior,omitempty"`
}

// Template is an enrolled biometric reference. The feature vector is encrypted
// at rest and never leaves the engine in plaintext. Updates are append-only
// adaptive refreshes after successful verifications.
type Template struct {
	SubjectID       id.SubjectID
	Modality        id.Modality
	EncryptedVector []byte
	EnrolledAt      time.Time
	UpdatedAt       time.Time
	SampleCount     int
}

// VerificationResult is the per-attempt outcome. It is ephemeral: produced,
// aggregated, audited as a category, and dropped.
type VerificationResult struct {
	Modality        id.Modality `json:"modality"`
	SimilarityScore float64     `json:"similarity_score"`
	LivenessScore   float64     `json:"liveness_score"`
	Passed          bool        `json:"passed"`
	SpoofDetected   bool        `json:"spoof_detected"`
	Timestamp       time.Time   `json:"timestamp"`
}

// EnrollmentDiagnostics reports sample quality back to the caller without
// exposing any feature data.
type EnrollmentDiagnostics struct {
	Modality        id.Modality `json:"modality"`
	SamplesAccepted int         `json:"samples_accepted"`
	SampleCount     int         `json:"sample_count"`
}
