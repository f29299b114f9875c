package handler

import (
	bmodels "mirrorgate/internal/biometric/models"
	dmodels "mirrorgate/internal/device/models"
	id "mirrorgate/pkg/domain"
	dErrors "mirrorgate/pkg/domain-errors"
)

// maxProofSamples bounds one proof submission: at most one sample per
// modality makes sense, with a little slack for client retries.
const maxProofSamples = 6

// CreateSessionRequest is the HTTP request body for POST /bridge/sessions.
type CreateSessionRequest struct {
	SubjectID string             `json:"subject_id"`
	Device    dmodels.RawSignals `json:"device"`

	parsedSubjectID id.SubjectID
}

// Validate validates and parses the request.
func (r *CreateSessionRequest) Validate() error {
	subjectID, err := id.ParseSubjectID(r.SubjectID)
	if err != nil {
		return err
	}
	r.parsedSubjectID = subjectID
	return nil
}

// ParsedSubjectID returns the validated subject ID.
func (r *CreateSessionRequest) ParsedSubjectID() id.SubjectID { return r.parsedSubjectID }

// ProofRequest is the HTTP request body for POST /bridge/sessions/{id}/proof.
// The qr_payload is the opaque pairing payload scanned from the session's QR
// code; possession of it is the cross-device handshake.
type ProofRequest struct {
	QRPayload string              `json:"qr_payload"`
	Samples   []bmodels.RawSample `json:"samples"`
	Device    dmodels.RawSignals  `json:"device"`
}

// Validate validates the request.
func (r *ProofRequest) Validate() error {
	if r.QRPayload == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "qr_payload is required")
	}
	if len(r.Samples) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "at least one sample is required")
	}
	if len(r.Samples) > maxProofSamples {
		return dErrors.Newf(dErrors.CodeInvalidInput, "at most %d samples per proof", maxProofSamples)
	}
	for _, sample := range r.Samples {
		if _, err := id.ParseModality(string(sample.Modality)); err != nil {
			return err
		}
	}
	return nil
}
