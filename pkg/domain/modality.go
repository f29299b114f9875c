package domain

import dErrors "mirrorgate/pkg/domain-errors"

// Modality is one biometric channel. The bridge recognizes exactly three.
type Modality string

const (
	ModalityVoice    Modality = "voice"
	ModalityFace     Modality = "face"
	ModalityBehavior Modality = "behavior"
)

// Modalities lists every recognized modality in priority order. Voice is the
// primary modality and can never be waived by device trust.
func Modalities() []Modality {
	return []Modality{ModalityVoice, ModalityFace, ModalityBehavior}
}

// IsValid reports whether the modality is one of the recognized channels.
func (m Modality) IsValid() bool {
	switch m {
	case ModalityVoice, ModalityFace, ModalityBehavior:
		return true
	}
	return false
}

func (m Modality) String() string { return string(m) }

// ParseModality validates a raw string at the API boundary.
func ParseModality(raw string) (Modality, error) {
	m := Modality(raw)
	if !m.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown modality")
	}
	return m, nil
}
