// Package sentinel holds the sentinel errors stores return for infrastructure
// facts. Services translate these into coded domain errors; handlers never see
// them directly.
package sentinel

import "errors"

// These represent factual states about stored resources, not validation
// failures:
//   - ErrNotFound: template, fingerprint, nonce, or session does not exist
//   - ErrExpired: nonce or session lived past its TTL
//   - ErrAlreadyUsed: nonce already consumed, or diff already applied
//   - ErrInvalidState: entity in a terminal state for the requested transition
//   - ErrConflict: write raced another owner (fingerprint claimed by another subject)
//   - ErrUnavailable: backing store temporarily unreachable
//
// For validation errors use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
