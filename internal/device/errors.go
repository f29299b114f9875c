package device

import (
	dErrors "mirrorgate/pkg/domain-errors"
)

var (
	// ErrStepUpRequired fires when a presented fingerprint is already bound to
	// a different subject. Shared-device ambiguity is never resolved silently.
	ErrStepUpRequired = dErrors.New(dErrors.CodeForbidden, "device requires step-up authentication")

	// ErrDeviceNotFound reports an unknown device id on trust updates.
	ErrDeviceNotFound = dErrors.New(dErrors.CodeNotFound, "device not registered")
)
