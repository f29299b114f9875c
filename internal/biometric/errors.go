package biometric

import dErrors "mirrorgate/pkg/domain-errors"

// Failure modes of enrollment and verification. These are coded domain errors
// so handlers can surface the category without extra translation; messages
// deliberately carry no score information.
var (
	ErrSubjectNotEnrolled  = dErrors.New(dErrors.CodeNotFound, "subject not enrolled for modality")
	ErrAlreadyEnrolled     = dErrors.New(dErrors.CodeConflict, "subject already enrolled for modality")
	ErrInsufficientQuality = dErrors.New(dErrors.CodeInvalidInput, "sample quality below enrollment minimum")
	ErrSampleTooShort      = dErrors.New(dErrors.CodeInvalidInput, "sample too short")
	ErrSpoofDetected       = dErrors.New(dErrors.CodeForbidden, "liveness check failed")
)
