package twitchmon

import "errors"

var (
	// Store errors.
	ErrNoStore = errors.New("twitchmon: no store configured")

	// Not found errors.
	ErrInstanceNotFound = errors.New("twitchmon: instance not found")
	ErrLeaseNotHeld     = errors.New("twitchmon: lease not held by this instance")

	// Conflict errors.
	ErrLeaseHeld = errors.New("twitchmon: lease already held")
)
