// Package models defines bridge session records.
package models

import (
	"time"

	id "mirrorgate/pkg/domain"
)

// Status is the session lifecycle state. Pending is the only non-terminal
// state; verified, failed and expired reject further proof submissions.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusFailed   Status = "failed"
	StatusExpired  Status = "expired"
)

// Terminal reports whether the status accepts no further transitions.
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusFailed || s == StatusExpired
}

// Session binds a subject, a single-use nonce, a device challenge and a set
// of biometric proofs inside one time window.
type Session struct {
	ID              id.SessionID
	SubjectID       id.SubjectID
	NonceID         id.NonceID
	DeviceID        id.DeviceID
	DeviceChallenge string
	// BiometricHash digests the accepted proof set. Raw samples and scores
	// are never stored on the session.
	BiometricHash string
	Status        Status
	MirrorDiffRef string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Expired reports whether the session window has closed at the given time.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
