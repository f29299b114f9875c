package handler

import (
	"time"

	"mirrorgate/internal/biometric/models"
)

// EnrollResponse is the HTTP response for POST /biometric/enroll.
type EnrollResponse struct {
	Modality        string `json:"modality"`
	SamplesAccepted int    `json:"samples_accepted"`
	SampleCount     int    `json:"sample_count"`
}

// FromDiagnostics converts enrollment diagnostics to an HTTP response.
func FromDiagnostics(diag *models.EnrollmentDiagnostics) *EnrollResponse {
	return &EnrollResponse{
		Modality:        string(diag.Modality),
		SamplesAccepted: diag.SamplesAccepted,
		SampleCount:     diag.SampleCount,
	}
}

// VerifyResponse is the HTTP response for POST /biometric/verify. It reports
// scores and the verdict; the feature vector never leaves the engine. Bridge
// denials stay category-only, but the direct verify endpoint is the subject
// checking their own enrollment and gets the full result.
type VerifyResponse struct {
	Modality        string    `json:"modality"`
	SimilarityScore float64   `json:"similarity_score"`
	LivenessScore   float64   `json:"liveness_score"`
	Passed          bool      `json:"passed"`
	Timestamp       time.Time `json:"timestamp"`
}

// FromVerification converts a verification result to an HTTP response.
func FromVerification(result *models.VerificationResult) *VerifyResponse {
	return &VerifyResponse{
		Modality:        string(result.Modality),
		SimilarityScore: result.SimilarityScore,
		LivenessScore:   result.LivenessScore,
		Passed:          result.Passed,
		Timestamp:       result.Timestamp,
	}
}
