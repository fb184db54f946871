package tracker

import "errors"

var (
	// ErrStopped is returned when the Tracker has been stopped.
	ErrStopped = errors.New("tracker: stopped")

	// ErrCompacted indicates that a requested index is unavailable
	// because it predates the last snapshot.
	ErrCompacted = errors.New("tracker: requested index is unavailable (already compacted)")

	// ErrUnavailable is returned when the requested log entries aren't
	// available yet.
	ErrUnavailable = errors.New("tracker: requested entry at index is unavailable")

	// ErrSnapshotTemporarilyUnavailable is returned by a SnapshotSender when
	// the required snapshot cannot be produced right now. The driver retries
	// on a later tick.
	ErrSnapshotTemporarilyUnavailable = errors.New("tracker: snapshot is temporarily unavailable")

	// ErrFollowerExists is returned when adding a follower that already has
	// a live replication session.
	ErrFollowerExists = errors.New("tracker: follower already tracked")

	// ErrFollowerNotFound is returned when operating on a follower that is
	// not in the current configuration.
	ErrFollowerNotFound = errors.New("tracker: follower not tracked")
)
