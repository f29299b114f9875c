package biometric

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirrorgate/internal/biometric/models"
	"mirrorgate/internal/biometric/store"
	"mirrorgate/internal/platform/config"
	id "mirrorgate/pkg/domain"
	dErrors "mirrorgate/pkg/domain-errors"
)

var testKey = strings.Repeat("ab", 32)

func defaultThresholds() config.ModalityThresholds {
	return config.ModalityThresholds{
		SimilarityThreshold: 0.85,
		LivenessThreshold:   0.7,
		AdaptiveUpdate:      true,
	}
}

func newVoiceEngine(t *testing.T, cfg config.ModalityThresholds) *Engine {
	t.Helper()
	engine, err := NewEngine(id.ModalityVoice, cfg, 0.4, testKey, store.NewMemory())
	require.NoError(t, err)
	return engine
}

// subjectVector produces a deterministic per-subject feature vector so tests
// can replay "the same person" and "a different person".
func subjectVector(seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	v := make([]float64, 16)
	for i := range v {
		v[i] = rng.Float64()*2 - 1
	}
	return v
}

func liveVoiceSample(features []float64) models.RawSample {
	return models.RawSample{
		Modality: id.ModalityVoice,
		Features: features,
		Voice: &models.VoiceSignals{
			DurationMS:         5000,
			PitchVariance:      0.2,
			BreathingPresence:  0.9,
			SynthesisArtifacts: 0.05,
		},
	}
}

// replayedVoiceSample is the same clean capture played back through a
// speaker: identical features, but the extractor reports playback artifacts
// and no breathing.
func replayedVoiceSample(features []float64) models.RawSample {
	return models.RawSample{
		Modality: id.ModalityVoice,
		Features: features,
		Voice: &models.VoiceSignals{
			DurationMS:         5000,
			PitchVariance:      0.2,
			BreathingPresence:  0.0,
			SynthesisArtifacts: 0.8,
		},
	}
}

func enroll(t *testing.T, e *Engine, subjectID id.SubjectID, sample models.RawSample) {
	t.Helper()
	_, err := e.Enroll(context.Background(), subjectID, []models.RawSample{sample})
	require.NoError(t, err)
}

func TestEngine_EnrollVerifyRoundTrip(t *testing.T) {
	ctx := context.Background()
	engine := newVoiceEngine(t, defaultThresholds())
	subject := id.NewSubjectID()
	features := subjectVector(1)

	enroll(t, engine, subject, liveVoiceSample(features))

	t.Run("own sample passes", func(t *testing.T) {
		result, err := engine.Verify(ctx, subject, liveVoiceSample(features))
		require.NoError(t, err)
		assert.True(t, result.Passed)
		assert.False(t, result.SpoofDetected)
		assert.InDelta(t, 1.0, result.SimilarityScore, 1e-9)
		assert.GreaterOrEqual(t, result.LivenessScore, 0.7)
	})

	t.Run("a different subject's sample fails", func(t *testing.T) {
		result, err := engine.Verify(ctx, subject, liveVoiceSample(subjectVector(2)))
		require.NoError(t, err)
		assert.False(t, result.Passed)
	})
}

// TestEngine_CrossSubjectRejection runs the property over many random subject
// pairs: a subject's own enrollment vector always verifies, an unrelated
// vector practically never does.
func TestEngine_CrossSubjectRejection(t *testing.T) {
	ctx := context.Background()
	engine := newVoiceEngine(t, defaultThresholds())

	const pairs = 50
	crossPasses := 0
	for i := int64(0); i < pairs; i++ {
		subject := id.NewSubjectID()
		own := subjectVector(100 + i)
		enroll(t, engine, subject, liveVoiceSample(own))

		result, err := engine.Verify(ctx, subject, liveVoiceSample(own))
		require.NoError(t, err)
		require.True(t, result.Passed, "own sample must always pass")

		other, err := engine.Verify(ctx, subject, liveVoiceSample(subjectVector(10000+i)))
		require.NoError(t, err)
		if other.Passed {
			crossPasses++
		}
	}
	// Random 16-dim vectors land near orthogonal; with a 0.85 threshold even
	// one cross-pass would be remarkable.
	assert.LessOrEqual(t, crossPasses, 1, "cross-subject samples passed %d/%d times", crossPasses, pairs)
}

func TestEngine_ReplayRejectedByLiveness(t *testing.T) {
	ctx := context.Background()
	engine := newVoiceEngine(t, defaultThresholds())
	subject := id.NewSubjectID()
	features := subjectVector(7)

	enroll(t, engine, subject, liveVoiceSample(features))

	// Identical features, so similarity is exactly 1.0 — and it still fails.
	result, err := engine.Verify(ctx, subject, replayedVoiceSample(features))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, result.SimilarityScore, 1e-9)
	assert.True(t, result.SpoofDetected)
	assert.False(t, result.Passed)
}

func TestEngine_FailureModes(t *testing.T) {
	ctx := context.Background()
	engine := newVoiceEngine(t, defaultThresholds())
	subject := id.NewSubjectID()

	t.Run("verify before enrollment", func(t *testing.T) {
		_, err := engine.Verify(ctx, subject, liveVoiceSample(subjectVector(3)))
		require.ErrorIs(t, err, ErrSubjectNotEnrolled)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("sample too short", func(t *testing.T) {
		enroll(t, engine, subject, liveVoiceSample(subjectVector(3)))
		short := liveVoiceSample(subjectVector(3))
		short.Voice.DurationMS = 500
		_, err := engine.Verify(ctx, subject, short)
		require.ErrorIs(t, err, ErrSampleTooShort)
	})

	t.Run("enrollment rejects spoofed sample", func(t *testing.T) {
		other := id.NewSubjectID()
		_, err := engine.Enroll(ctx, other, []models.RawSample{replayedVoiceSample(subjectVector(4))})
		require.ErrorIs(t, err, ErrSpoofDetected)
	})

	t.Run("enrollment rejects empty sample set", func(t *testing.T) {
		other := id.NewSubjectID()
		_, err := engine.Enroll(ctx, other, nil)
		require.ErrorIs(t, err, ErrInsufficientQuality)
	})

	t.Run("enrollment surfaces too-short gate", func(t *testing.T) {
		other := id.NewSubjectID()
		short := liveVoiceSample(subjectVector(5))
		short.Voice.DurationMS = 100
		_, err := engine.Enroll(ctx, other, []models.RawSample{short})
		require.ErrorIs(t, err, ErrSampleTooShort)
	})

	t.Run("duplicate enrollment conflicts", func(t *testing.T) {
		other := id.NewSubjectID()
		enroll(t, engine, other, liveVoiceSample(subjectVector(6)))
		_, err := engine.Enroll(ctx, other, []models.RawSample{liveVoiceSample(subjectVector(6))})
		require.ErrorIs(t, err, ErrAlreadyEnrolled)
	})
}

func TestEngine_AdaptiveUpdate(t *testing.T) {
	ctx := context.Background()
	subject := id.NewSubjectID()
	features := subjectVector(9)

	t.Run("comfortable pass refreshes the template", func(t *testing.T) {
		templates := store.NewMemory()
		engine, err := NewEngine(id.ModalityVoice, defaultThresholds(), 0.4, testKey, templates)
		require.NoError(t, err)
		enroll(t, engine, subject, liveVoiceSample(features))

		result, err := engine.Verify(ctx, subject, liveVoiceSample(features))
		require.NoError(t, err)
		require.True(t, result.Passed)

		stored, err := templates.Find(ctx, subject, id.ModalityVoice)
		require.NoError(t, err)
		assert.Equal(t, 2, stored.SampleCount, "identical sample clears the margin and is folded in")
	})

	t.Run("marginal pass does not move the template", func(t *testing.T) {
		// Threshold low enough that a noisy variant passes, but without the
		// margin needed for a refresh.
		cfg := defaultThresholds()
		cfg.SimilarityThreshold = 0.96
		templates := store.NewMemory()
		engine, err := NewEngine(id.ModalityVoice, cfg, 0.4, testKey, templates)
		require.NoError(t, err)
		enroll(t, engine, subject, liveVoiceSample(features))

		noisy := make([]float64, len(features))
		copy(noisy, features)
		for i := range noisy {
			noisy[i] += 0.08
		}
		result, err := engine.Verify(ctx, subject, liveVoiceSample(noisy))
		require.NoError(t, err)

		stored, err := templates.Find(ctx, subject, id.ModalityVoice)
		require.NoError(t, err)
		if result.Passed && result.SimilarityScore < cfg.SimilarityThreshold+adaptiveUpdateMargin {
			assert.Equal(t, 1, stored.SampleCount, "marginal pass must not refresh the template")
		}
	})

	t.Run("disabled adaptive update never refreshes", func(t *testing.T) {
		cfg := defaultThresholds()
		cfg.AdaptiveUpdate = false
		templates := store.NewMemory()
		engine, err := NewEngine(id.ModalityVoice, cfg, 0.4, testKey, templates)
		require.NoError(t, err)
		enroll(t, engine, subject, liveVoiceSample(features))

		_, err = engine.Verify(ctx, subject, liveVoiceSample(features))
		require.NoError(t, err)

		stored, err := templates.Find(ctx, subject, id.ModalityVoice)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.SampleCount)
	})
}

func TestEngine_TemplateSealedAtRest(t *testing.T) {
	ctx := context.Background()
	templates := store.NewMemory()
	engine, err := NewEngine(id.ModalityVoice, defaultThresholds(), 0.4, testKey, templates)
	require.NoError(t, err)

	subject := id.NewSubjectID()
	features := subjectVector(11)
	enroll(t, engine, subject, liveVoiceSample(features))

	stored, err := templates.Find(ctx, subject, id.ModalityVoice)
	require.NoError(t, err)
	assert.False(t, json.Valid(stored.EncryptedVector), "vector must not be stored as plaintext JSON")

	// A cipher keyed differently cannot open the template.
	otherEngine, err := NewEngine(id.ModalityVoice, defaultThresholds(), 0.4, strings.Repeat("cd", 32), templates)
	require.NoError(t, err)
	_, err = otherEngine.Verify(ctx, subject, liveVoiceSample(features))
	require.Error(t, err)
}
