package session

import "errors"

var (
	// ErrInvalidConfig flags a non-positive maxSessions or negative key.
	ErrInvalidConfig = errors.New("session: invalid config")

	// ErrKeyExceedsMax flags a session key at or beyond the group's
	// slot bound.
	ErrKeyExceedsMax = errors.New("session: key exceeds max sessions")

	// ErrOwnershipMismatch flags a request for an existing session ID
	// under a different owner. Session IDs are deterministic, so a
	// cross-user collision is a hijack attempt, not a race to tolerate.
	ErrOwnershipMismatch = errors.New("session: ownership mismatch")
)
