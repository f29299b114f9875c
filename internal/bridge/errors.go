package bridge

import (
	dErrors "mirrorgate/pkg/domain-errors"
)

var (
	// ErrSessionNotFound reports an unknown session id.
	ErrSessionNotFound = dErrors.New(dErrors.CodeNotFound, "session not found")

	// ErrSessionTerminal rejects proof against a session already verified,
	// failed or expired. Terminal states are idempotent: resubmission never
	// reopens them.
	ErrSessionTerminal = dErrors.New(dErrors.CodeConflict, "session is in a terminal state")

	// ErrSessionExpired reports a session whose window closed before proof
	// arrived.
	ErrSessionExpired = dErrors.New(dErrors.CodeExpired, "session expired")

	// ErrChallengeMismatch fires when the echoed device challenge does not
	// match the one minted at session creation: the completing device is not
	// the device that requested pairing.
	ErrChallengeMismatch = dErrors.New(dErrors.CodeForbidden, "device challenge mismatch")

	// ErrNonceUnavailable reports that the session's nonce could not be
	// issued or was already retired.
	ErrNonceUnavailable = dErrors.New(dErrors.CodeConflict, "nonce unavailable")
)
