package mirror

import (
	dErrors "mirrorgate/pkg/domain-errors"
)

var (
	// ErrSessionInvalid rejects an apply whose session is not verified or
	// whose nonce was already consumed or expired. Fail-closed: nothing is
	// written.
	ErrSessionInvalid = dErrors.New(dErrors.CodeForbidden, "session invalid for sync")

	// ErrManualResolutionRequired blocks auto-apply under the manual policy
	// until an operator resolves every two-sided conflict.
	ErrManualResolutionRequired = dErrors.New(dErrors.CodeConflict, "conflicts require manual resolution")

	// ErrConflictRejected reports conflicting keys under reject_on_conflict.
	ErrConflictRejected = dErrors.New(dErrors.CodeConflict, "mirrors disagree and policy rejects conflicts")

	// ErrSyncFailed reports a mid-apply failure after rollback completed.
	ErrSyncFailed = dErrors.New(dErrors.CodeInternal, "sync failed and was rolled back")
)
