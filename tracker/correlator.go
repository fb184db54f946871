package tracker

import (
	"go.uber.org/zap"

	"github.com/raftwork/replication/tracker/trackerpb"
)

// Step is the single entry point for append responses. It validates the
// response against the follower's *current* Progress, not against any
// state captured at send time, and only then mutates anything.
//
// Two checks guard every mutation, in order:
//
//  1. membership: a response from a follower with no live Progress is
//     dropped. This alone does not protect against a rapid remove-then-
//     re-add of the same follower id, which is why it is complementary to,
//     not a replacement for, the session check.
//  2. session: a response whose echoed session id differs from the current
//     record's id was produced by a retired session. Raft's term does not
//     change on membership mutations, so without this check a delayed
//     response from before a removal could be misapplied to the record
//     created by the re-add.
//
// A stale response is an expected outcome of network delay across a
// rejoin: counted, logged at debug, never escalated.
//
// Step returns true iff the response was applied to the Progress.
func (t *Tracker) Step(resp trackerpb.AppendEntriesResponse) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return false
	}

	pr, ok := t.progresses[resp.From]
	if !ok {
		t.lg.Debug("no progress for responding follower; dropping",
			zap.Uint64("follower-id", resp.From),
		)
		return false
	}

	if resp.SessionID != pr.SessionID {
		t.metrics.StaleResponses.Inc()
		t.lg.Debug("dropping response from retired replication session",
			zap.Uint64("follower-id", resp.From),
			zap.Uint64("response-session-id", resp.SessionID),
			zap.Uint64("current-session-id", pr.SessionID),
		)
		return false
	}

	pr.Active = true

	if resp.Success {
		return t.stepSuccessLocked(resp, pr)
	}
	return t.stepRejectLocked(resp, pr)
}

func (t *Tracker) stepSuccessLocked(resp trackerpb.AppendEntriesResponse, pr *Progress) bool {
	if resp.MatchIndex > pr.sentIndex {
		// acking an index never sent in this session: a misbehaving or
		// buggy peer, tolerated but not applied
		t.metrics.ProtocolAnomalies.Inc()
		t.lg.Warn("response acks an index never sent in this session",
			zap.Uint64("follower-id", resp.From),
			zap.Uint64("acked-index", resp.MatchIndex),
			zap.Uint64("highest-sent-index", pr.sentIndex),
		)
		return false
	}

	wasPaused := pr.isPaused()
	if !pr.maybeUpdate(resp.MatchIndex) {
		// an ack at or below MatchIndex within the same session is a
		// duplicate; already known, idempotent-ignored
		return false
	}

	switch pr.State {
	case trackerpb.ProgressStateProbe:
		// the probe landed; this session found the follower's log position
		pr.becomeReplicate()

	case trackerpb.ProgressStateReplicate:
		pr.inflights.freeTo(resp.MatchIndex)

	case trackerpb.ProgressStateSnapshot:
		if pr.needSnapshotAbort() {
			pr.becomeProbe()
			t.lg.Info("follower caught up past pending snapshot; aborting transfer",
				zap.Uint64("follower-id", resp.From),
				zap.Stringer("progress", pr),
			)
		}
	}

	if t.maybeCommitLocked() {
		// a new commit index is worth announcing to everyone
		t.broadcastAppendLocked()
	} else if wasPaused {
		// now resumed, so send immediately
		t.sendAppendOrSnapshotLocked(resp.From)
	}
	return true
}

func (t *Tracker) stepRejectLocked(resp trackerpb.AppendEntriesResponse, pr *Progress) bool {
	t.lg.Debug("append rejected by follower",
		zap.Uint64("follower-id", resp.From),
		zap.Uint64("rejected-index", resp.RejectedIndex),
		zap.Uint64("reject-hint", resp.RejectHint),
	)

	if !pr.maybeDecrease(resp.RejectedIndex, resp.RejectHint) {
		// a reject referring to an index already confirmed durable in this
		// session cannot be honored; moving backward past known-good state
		// is the regression this guard exists for
		t.metrics.RejectedRetreats.Inc()
		t.lg.Debug("dropping outdated rejection",
			zap.Uint64("follower-id", resp.From),
			zap.Uint64("rejected-index", resp.RejectedIndex),
			zap.Stringer("progress", pr),
		)
		return false
	}

	if pr.State == trackerpb.ProgressStateReplicate {
		pr.becomeProbe()
	}

	t.lg.Debug("decreased follower progress after rejection",
		zap.Uint64("follower-id", resp.From),
		zap.Stringer("progress", pr),
	)

	t.sendAppendOrSnapshotLocked(resp.From) // retry with the lower index
	return true
}
