package interfaces

import "errors"

// Shared error taxonomy for the monitoring pipeline. None of these are fatal
// to the process; each is scoped to one session or one connection.
var (
	// ErrSessionNotFound means the event store has no record of the session.
	// Terminates the current collection cycle only.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStoreUnavailable means the event store could not be reached. The
	// cycle is skipped and the previous cached snapshot remains valid until
	// its TTL expires.
	ErrStoreUnavailable = errors.New("event store unavailable")

	// ErrSnapshotNotFound means no cached snapshot exists for the pair.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)
