package tracker

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/exp/maps"

	"github.com/raftwork/replication/tracker/trackerpb"
)

// Progress is a follower's replication state in the leader's view.
//
// A Progress is bound to exactly one replication session for its whole
// lifetime. It is created when the follower enters the configuration and
// destroyed when the follower leaves; a rejoin always allocates a fresh
// record bound to a fresh session id, never reuses this one.
type Progress struct {
	// State is either PROBE, REPLICATE, or SNAPSHOT.
	State trackerpb.ProgressState

	// MatchIndex is the highest log index confirmed durable on this
	// follower. Non-decreasing for the lifetime of the record.
	MatchIndex uint64

	// NextIndex is the starting index of entries for the next append.
	// Invariant: NextIndex > MatchIndex, except transiently right after a
	// snapshot-install transition.
	NextIndex uint64

	// SessionID is the replication session this record belongs to, copied
	// from the session registry at creation time. Responses carrying any
	// other id are never applied here.
	SessionID uint64

	// PendingSnapshotIndex is used in SNAPSHOT state. It is the last index
	// of the snapshot being transferred. While it is set, the leader stops
	// replicating to this follower.
	PendingSnapshotIndex uint64

	// Paused is used in PROBE state. When true, the leader holds off
	// sending the next probe until the pacing tick resumes it.
	Paused bool

	// Active is true if this follower has recently answered anything.
	// Snapshots are not started toward inactive followers.
	Active bool

	// sentIndex is the highest log index ever sent to this follower within
	// this session. A success response acking above it is a protocol
	// anomaly, not progress.
	sentIndex uint64

	// inflights is the bounded window of unacknowledged appends to this
	// follower. When it's full, no more appends should be sent.
	inflights *inflights
}

func (pr *Progress) resetState(state trackerpb.ProgressState) {
	pr.State = state
	pr.PendingSnapshotIndex = 0
	pr.Paused = false
	pr.inflights.freeAll()
}

func (pr *Progress) becomeProbe() {
	if pr.State == trackerpb.ProgressStateSnapshot { // snapshot was sent
		pendingIndex := pr.PendingSnapshotIndex
		pr.resetState(trackerpb.ProgressStateProbe)
		pr.NextIndex = max(pr.MatchIndex+1, pendingIndex+1)
		return
	}
	pr.resetState(trackerpb.ProgressStateProbe)
	pr.NextIndex = pr.MatchIndex + 1 // probe next index
}

func (pr *Progress) becomeReplicate() {
	pr.resetState(trackerpb.ProgressStateReplicate)
	pr.NextIndex = pr.MatchIndex + 1
}

func (pr *Progress) becomeSnapshot(snapshotIndex uint64) {
	pr.resetState(trackerpb.ProgressStateSnapshot)
	pr.PendingSnapshotIndex = snapshotIndex
	pr.NextIndex = snapshotIndex + 1
}

func (pr *Progress) pause() {
	pr.Paused = true
}

func (pr *Progress) resume() {
	pr.Paused = false
}

// isPaused returns true if no more appends should go to this follower
// right now: an outstanding probe, a saturated inflight window, or an
// ongoing snapshot transfer.
func (pr *Progress) isPaused() bool {
	switch pr.State {
	case trackerpb.ProgressStateProbe:
		return pr.Paused
	case trackerpb.ProgressStateReplicate:
		return pr.inflights.full()
	case trackerpb.ProgressStateSnapshot:
		return true
	default:
		panic(fmt.Sprintf("unexpected Progress.State %q", pr.State))
	}
}

// optimisticUpdate bumps NextIndex right after a pipelined send, without
// waiting for the acknowledgment.
func (pr *Progress) optimisticUpdate(lastEntryIndex uint64) {
	pr.NextIndex = lastEntryIndex + 1
}

// maybeUpdate applies a validated acknowledgment up to ackedIndex, and
// returns false if the index comes from an outdated message. MatchIndex
// only ever moves forward (max semantics), so responses reordered within
// one session cannot regress it.
func (pr *Progress) maybeUpdate(ackedIndex uint64) bool {
	upToDate := false
	if pr.MatchIndex < ackedIndex {
		pr.MatchIndex = ackedIndex
		upToDate = true
		pr.resume()
	}

	if pr.NextIndex <= ackedIndex {
		pr.NextIndex = ackedIndex + 1
	}

	return upToDate
}

// maybeDecrease applies a validated rejection. It returns false if the
// rejection is outdated: a reject at an index already confirmed durable
// would regress known-good progress, and a probe reject must refer to the
// one outstanding probe index. Otherwise NextIndex is lowered toward the
// follower's hint and the record is cleared for the next probe.
func (pr *Progress) maybeDecrease(rejectedIndex, rejectHint uint64) bool {
	if pr.State == trackerpb.ProgressStateReplicate {
		if rejectedIndex <= pr.MatchIndex {
			return false
		}

		pr.NextIndex = pr.MatchIndex + 1
		return true
	}

	// only the one outstanding probe can be rejected
	if pr.NextIndex-1 != rejectedIndex {
		return false
	}

	pr.NextIndex = min(rejectedIndex, rejectHint+1)
	if pr.NextIndex < 1 {
		pr.NextIndex = 1
	}

	pr.resume()
	return true
}

// maybeSent records that entries up to lastIndex were handed to the
// transport within this session.
func (pr *Progress) maybeSent(lastIndex uint64) {
	if pr.sentIndex < lastIndex {
		pr.sentIndex = lastIndex
	}
}

// needSnapshotAbort returns true if the ongoing snapshot transfer became
// pointless because the follower already caught up past it.
func (pr *Progress) needSnapshotAbort() bool {
	return pr.State == trackerpb.ProgressStateSnapshot && pr.MatchIndex >= pr.PendingSnapshotIndex
}

func (pr *Progress) snapshotFailed() {
	pr.PendingSnapshotIndex = 0 // reset because it failed
}

func (pr *Progress) String() string {
	return fmt.Sprintf("[state=%q | session=%d | match index=%d | next index=%d | paused(waiting)=%v | pending snapshot index=%d | inflight=%d]",
		pr.State,
		pr.SessionID,
		pr.MatchIndex,
		pr.NextIndex,
		pr.isPaused(),
		pr.PendingSnapshotIndex,
		pr.inflights.count(),
	)
}

// ProgressMap is the per-follower Progress table, keyed by follower id.
type ProgressMap map[uint64]*Progress

// String prints the ProgressMap in sorted key order, one Progress per line.
func (m ProgressMap) String() string {
	ids := maps.Keys(m)
	slices.Sort(ids)
	var buf strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&buf, "%x: %s\n", id, m[id])
	}
	return buf.String()
}

// BasicProgress is the read-only subset of Progress handed to callers.
type BasicProgress struct {
	State      trackerpb.ProgressState
	MatchIndex uint64
	NextIndex  uint64
	SessionID  uint64
}
