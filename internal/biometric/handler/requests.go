package handler

import (
	"mirrorgate/internal/biometric/models"
	id "mirrorgate/pkg/domain"
	dErrors "mirrorgate/pkg/domain-errors"
)

// maxEnrollSamples bounds one enrollment request. The engine needs a handful
// of samples to build a stable template; more is noise.
const maxEnrollSamples = 16

// EnrollRequest is the HTTP request body for POST /biometric/enroll.
type EnrollRequest struct {
	SubjectID string             `json:"subject_id"`
	Modality  string             `json:"modality"`
	Samples   []models.RawSample `json:"samples"`

	parsedSubjectID id.SubjectID
	parsedModality  id.Modality
}

// Validate validates and parses the request.
func (r *EnrollRequest) Validate() error {
	subjectID, err := id.ParseSubjectID(r.SubjectID)
	if err != nil {
		return err
	}
	r.parsedSubjectID = subjectID

	modality, err := id.ParseModality(r.Modality)
	if err != nil {
		return err
	}
	r.parsedModality = modality

	if len(r.Samples) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "at least one sample is required")
	}
	if len(r.Samples) > maxEnrollSamples {
		return dErrors.Newf(dErrors.CodeInvalidInput, "at most %d samples per enrollment", maxEnrollSamples)
	}
	for _, sample := range r.Samples {
		if sample.Modality != modality {
			return dErrors.New(dErrors.CodeInvalidInput, "sample modality does not match request modality")
		}
	}
	return nil
}

// ParsedSubjectID returns the validated subject ID.
func (r *EnrollRequest) ParsedSubjectID() id.SubjectID { return r.parsedSubjectID }

// ParsedModality returns the validated modality.
func (r *EnrollRequest) ParsedModality() id.Modality { return r.parsedModality }

// VerifyRequest is the HTTP request body for POST /biometric/verify.
type VerifyRequest struct {
	SubjectID string           `json:"subject_id"`
	Sample    models.RawSample `json:"sample"`

	parsedSubjectID id.SubjectID
}

// Validate validates and parses the request.
func (r *VerifyRequest) Validate() error {
	subjectID, err := id.ParseSubjectID(r.SubjectID)
	if err != nil {
		return err
	}
	r.parsedSubjectID = subjectID

	if _, err := id.ParseModality(string(r.Sample.Modality)); err != nil {
		return err
	}
	return nil
}

// ParsedSubjectID returns the validated subject ID.
func (r *VerifyRequest) ParsedSubjectID() id.SubjectID { return r.parsedSubjectID }
