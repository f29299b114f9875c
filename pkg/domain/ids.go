// Package domain holds the typed identifiers and small value types shared by
// every feature package. IDs are distinct types over uuid.UUID so a subject ID
// can never be passed where a session ID is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "mirrorgate/pkg/domain-errors"
)

// Typed identifiers. Keeping them distinct is a compile-time guard against
// cross-entity mixups at trust boundaries.
type (
	// SubjectID identifies an enrolled human subject.
	SubjectID uuid.UUID

	// SessionID identifies a bridge session.
	SessionID uuid.UUID

	// NonceID identifies a single-use bridge nonce.
	NonceID uuid.UUID

	// DeviceID identifies a stored device fingerprint record.
	DeviceID uuid.UUID
)

// maxIDInputLen bounds parse input before uuid.Parse sees it. UUIDs are 36
// characters; anything much longer is garbage or an attack payload.
const maxIDInputLen = 64

func parseUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is required")
	}
	if len(raw) > maxIDInputLen {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is too long")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is not a valid uuid")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil uuid")
	}
	return parsed, nil
}

// ParseSubjectID validates and converts a raw string into a SubjectID.
func ParseSubjectID(raw string) (SubjectID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return SubjectID{}, err
	}
	return SubjectID(parsed), nil
}

// ParseSessionID validates and converts a raw string into a SessionID.
func ParseSessionID(raw string) (SessionID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return SessionID{}, err
	}
	return SessionID(parsed), nil
}

// ParseNonceID validates and converts a raw string into a NonceID.
func ParseNonceID(raw string) (NonceID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return NonceID{}, err
	}
	return NonceID(parsed), nil
}

// ParseDeviceID validates and converts a raw string into a DeviceID.
func ParseDeviceID(raw string) (DeviceID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return DeviceID{}, err
	}
	return DeviceID(parsed), nil
}

// NewSubjectID returns a fresh random SubjectID.
func NewSubjectID() SubjectID { return SubjectID(uuid.New()) }

// NewSessionID returns a fresh random SessionID.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

// NewNonceID returns a fresh random NonceID.
func NewNonceID() NonceID { return NonceID(uuid.New()) }

// NewDeviceID returns a fresh random DeviceID.
func NewDeviceID() DeviceID { return DeviceID(uuid.New()) }

func (id SubjectID) String() string { return uuid.UUID(id).String() }
func (id SessionID) String() string { return uuid.UUID(id).String() }
func (id NonceID) String() string   { return uuid.UUID(id).String() }
func (id DeviceID) String() string  { return uuid.UUID(id).String() }

func (id SubjectID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id NonceID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id DeviceID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

// Text marshalling keeps the canonical string form in JSON payloads and
// structured logs. The nil ID round-trips as an empty string so optional ID
// fields survive encode/decode; API boundaries still reject it through the
// Parse functions.
func (id SubjectID) MarshalText() ([]byte, error) { return marshalID(uuid.UUID(id)) }
func (id SessionID) MarshalText() ([]byte, error) { return marshalID(uuid.UUID(id)) }
func (id NonceID) MarshalText() ([]byte, error)   { return marshalID(uuid.UUID(id)) }
func (id DeviceID) MarshalText() ([]byte, error)  { return marshalID(uuid.UUID(id)) }

func marshalID(u uuid.UUID) ([]byte, error) {
	if u == uuid.Nil {
		return nil, nil
	}
	return []byte(u.String()), nil
}

func (id *SubjectID) UnmarshalText(raw []byte) error {
	if len(raw) == 0 {
		*id = SubjectID{}
		return nil
	}
	parsed, err := ParseSubjectID(string(raw))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *SessionID) UnmarshalText(raw []byte) error {
	if len(raw) == 0 {
		*id = SessionID{}
		return nil
	}
	parsed, err := ParseSessionID(string(raw))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *NonceID) UnmarshalText(raw []byte) error {
	if len(raw) == 0 {
		*id = NonceID{}
		return nil
	}
	parsed, err := ParseNonceID(string(raw))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *DeviceID) UnmarshalText(raw []byte) error {
	if len(raw) == 0 {
		*id = DeviceID{}
		return nil
	}
	parsed, err := ParseDeviceID(string(raw))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
