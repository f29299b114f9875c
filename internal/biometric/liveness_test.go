package biometric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"mirrorgate/internal/biometric/models"
)

func TestVoiceLiveness(t *testing.T) {
	tests := []struct {
		name      string
		signals   *models.VoiceSignals
		wantSpoof bool
		minScore  float64
		maxScore  float64
	}{
		{
			name:      "natural speech scores high",
			signals:   &models.VoiceSignals{DurationMS: 5000, PitchVariance: 0.2, BreathingPresence: 0.9, SynthesisArtifacts: 0.05},
			wantSpoof: false,
			minScore:  0.8,
			maxScore:  1.0,
		},
		{
			name:      "synthesized speech is a spoof",
			signals:   &models.VoiceSignals{DurationMS: 5000, PitchVariance: 0.2, BreathingPresence: 0.5, SynthesisArtifacts: 0.9},
			wantSpoof: true,
			maxScore:  1.0,
		},
		{
			name:      "monotone playback without breathing scores low",
			signals:   &models.VoiceSignals{DurationMS: 5000, PitchVariance: 0.01, BreathingPresence: 0.0, SynthesisArtifacts: 0.4},
			wantSpoof: false,
			maxScore:  0.45,
		},
		{
			name:      "missing signals are a spoof",
			signals:   nil,
			wantSpoof: true,
			maxScore:  0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, spoof := voiceLiveness(tt.signals)
			assert.Equal(t, tt.wantSpoof, spoof)
			assert.GreaterOrEqual(t, score, tt.minScore)
			assert.LessOrEqual(t, score, tt.maxScore)
		})
	}
}

func TestFaceLiveness(t *testing.T) {
	tests := []struct {
		name      string
		signals   *models.FaceSignals
		wantSpoof bool
		minScore  float64
	}{
		{
			name:      "live capture with blink and depth",
			signals:   &models.FaceSignals{LandmarkCount: 68, BlinkDetected: true, DepthScore: 0.9, ReplayArtifacts: 0.05},
			wantSpoof: false,
			minScore:  0.8,
		},
		{
			name:      "screen re-capture is a spoof",
			signals:   &models.FaceSignals{LandmarkCount: 68, BlinkDetected: true, DepthScore: 0.9, ReplayArtifacts: 0.8},
			wantSpoof: true,
		},
		{
			name:      "flat blink-free capture is a photo",
			signals:   &models.FaceSignals{LandmarkCount: 68, BlinkDetected: false, DepthScore: 0.02, ReplayArtifacts: 0.1},
			wantSpoof: true,
		},
		{
			name:      "no blink but real depth is merely weak",
			signals:   &models.FaceSignals{LandmarkCount: 68, BlinkDetected: false, DepthScore: 0.7, ReplayArtifacts: 0.1},
			wantSpoof: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, spoof := faceLiveness(tt.signals)
			assert.Equal(t, tt.wantSpoof, spoof)
			assert.GreaterOrEqual(t, score, tt.minScore)
		})
	}
}

func TestBehaviorLiveness(t *testing.T) {
	tests := []struct {
		name      string
		signals   *models.BehaviorSignals
		wantSpoof bool
		minScore  float64
		maxScore  float64
	}{
		{
			name:      "human typing rhythm scores full",
			signals:   &models.BehaviorSignals{KeystrokeCount: 80, MeanIntervalMS: 180, IntervalStdDevMS: 60},
			wantSpoof: false,
			minScore:  1.0,
			maxScore:  1.0,
		},
		{
			name:      "metronomic injection is a spoof",
			signals:   &models.BehaviorSignals{KeystrokeCount: 80, MeanIntervalMS: 100, IntervalStdDevMS: 0.5},
			wantSpoof: true,
			maxScore:  0.3,
		},
		{
			name:      "robotic but not perfectly uniform scores low",
			signals:   &models.BehaviorSignals{KeystrokeCount: 80, MeanIntervalMS: 100, IntervalStdDevMS: 3},
			wantSpoof: false,
			maxScore:  0.3,
		},
		{
			name:      "implausibly erratic decays",
			signals:   &models.BehaviorSignals{KeystrokeCount: 80, MeanIntervalMS: 100, IntervalStdDevMS: 120},
			wantSpoof: false,
			maxScore:  0.45,
		},
		{
			name:      "zero mean interval is a spoof",
			signals:   &models.BehaviorSignals{KeystrokeCount: 80, MeanIntervalMS: 0, IntervalStdDevMS: 10},
			wantSpoof: true,
			maxScore:  0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, spoof := behaviorLiveness(tt.signals)
			assert.Equal(t, tt.wantSpoof, spoof)
			assert.GreaterOrEqual(t, score, tt.minScore)
			assert.LessOrEqual(t, score, tt.maxScore)
		})
	}
}

func TestCheckQuality(t *testing.T) {
	voiceEngine := newVoiceEngine(t, defaultThresholds())

	t.Run("short feature vector", func(t *testing.T) {
		sample := liveVoiceSample([]float64{1, 2, 3})
		assert.ErrorIs(t, voiceEngine.checkQuality(sample), ErrInsufficientQuality)
	})

	t.Run("non-finite feature", func(t *testing.T) {
		features := subjectVector(1)
		features[4] = math.Inf(1)
		sample := liveVoiceSample(features)
		assert.ErrorIs(t, voiceEngine.checkQuality(sample), ErrInsufficientQuality)
	})

	t.Run("missing modality signals", func(t *testing.T) {
		sample := liveVoiceSample(subjectVector(1))
		sample.Voice = nil
		assert.ErrorIs(t, voiceEngine.checkQuality(sample), ErrInsufficientQuality)
	})
}
