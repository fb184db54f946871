package tracker

import (
	"go.uber.org/zap"

	"github.com/raftwork/replication/tracker/trackerpb"
)

// SendAppend builds and queues the next append for one follower, or starts
// a snapshot transfer if the needed entries were compacted away. It is a
// no-op while the follower is paused: an outstanding probe, a full
// inflight window, or an ongoing snapshot.
func (t *Tracker) SendAppend(followerID uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return ErrStopped
	}
	if _, ok := t.progresses[followerID]; !ok {
		return ErrFollowerNotFound
	}

	t.sendAppendOrSnapshotLocked(followerID)
	return nil
}

// BroadcastAppend queues appends toward every follower that can accept
// one. Called after new entries are appended to the leader's log.
func (t *Tracker) BroadcastAppend() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return ErrStopped
	}

	t.broadcastAppendLocked()
	return nil
}

func (t *Tracker) broadcastAppendLocked() {
	for id := range t.progresses {
		t.sendAppendOrSnapshotLocked(id)
	}
}

func (t *Tracker) sendAppendOrSnapshotLocked(followerID uint64) {
	pr := t.progresses[followerID]
	if pr.isPaused() {
		t.lg.Debug("skipping append to paused follower",
			zap.Uint64("follower-id", followerID),
			zap.Stringer("progress", pr),
		)
		return
	}

	prevLogIndex := pr.NextIndex - 1
	prevLogTerm, errTerm := t.storage.Term(prevLogIndex)
	entries, errEntries := t.storage.Entries(pr.NextIndex, t.maxEntriesPerMessage)

	if errTerm != nil || errEntries != nil {
		// the entries this follower needs were compacted out of the log
		t.startSnapshotLocked(followerID, pr, errTerm, errEntries)
		return
	}

	req := trackerpb.AppendEntriesRequest{
		Term:              t.term,
		LeaderID:          t.leaderID,
		To:                followerID,
		PrevLogIndex:      prevLogIndex,
		PrevLogTerm:       prevLogTerm,
		Entries:           entries,
		LeaderCommitIndex: t.committedIndex,
		SessionID:         pr.SessionID,
	}

	if len(entries) > 0 {
		lastEntryIndex := entries[len(entries)-1].Index
		switch pr.State {
		case trackerpb.ProgressStateProbe:
			// one probe at a time; Tick or a response resumes
			pr.pause()

		case trackerpb.ProgressStateReplicate:
			pr.optimisticUpdate(lastEntryIndex)
			pr.inflights.add(lastEntryIndex)

		default:
			t.lg.Panic("cannot send append in unhandled state",
				zap.Uint64("follower-id", followerID),
				zap.Stringer("progress", pr),
			)
		}
		pr.maybeSent(lastEntryIndex)
	}

	t.outbound = append(t.outbound, req)
}

func (t *Tracker) startSnapshotLocked(followerID uint64, pr *Progress, errTerm, errEntries error) {
	t.lg.Info("follower needs snapshot",
		zap.Uint64("follower-id", followerID),
		zap.NamedError("term-error", errTerm),
		zap.NamedError("entries-error", errEntries),
	)

	if !pr.Active {
		t.lg.Info("not snapshotting to inactive follower",
			zap.Uint64("follower-id", followerID),
		)
		return
	}
	if t.snapshots == nil {
		t.lg.Warn("no snapshot sender configured; follower stays behind",
			zap.Uint64("follower-id", followerID),
		)
		return
	}

	snapshotIndex, err := t.snapshots.StartSnapshotTransfer(followerID)
	if err != nil {
		if err == ErrSnapshotTemporarilyUnavailable {
			t.lg.Debug("snapshot temporarily unavailable",
				zap.Uint64("follower-id", followerID),
			)
			return
		}
		t.lg.Error("failed to start snapshot transfer",
			zap.Uint64("follower-id", followerID),
			zap.Error(err),
		)
		return
	}

	pr.becomeSnapshot(snapshotIndex)
	pr.maybeSent(snapshotIndex)
	t.metrics.SnapshotsStarted.Inc()

	t.lg.Info("stopped appends, sending snapshot",
		zap.Uint64("follower-id", followerID),
		zap.Uint64("snapshot-index", snapshotIndex),
		zap.Stringer("progress", pr),
	)
}

// Tick is the pacing heartbeat of the driver. It resumes paused probes,
// unsticks saturated pipelines by freeing their oldest inflight slot, and
// re-sends to any follower that still has log to catch up on. A request
// that timed out without a reply needs no explicit cancellation; this
// retry path covers it.
func (t *Tracker) Tick() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return ErrStopped
	}

	lastIndex, err := t.storage.LastIndex()
	if err != nil {
		return err
	}

	for id, pr := range t.progresses {
		pr.resume()

		if pr.State == trackerpb.ProgressStateReplicate && pr.inflights.full() {
			// even if the acks for the freed slot were lost, a later ack
			// releases everything up to its index
			pr.inflights.freeFirstOne()
		}

		if lastIndex > pr.MatchIndex {
			t.sendAppendOrSnapshotLocked(id)
		}
	}
	return nil
}

// ReportSnapshot tells the tracker that the snapshot transfer to the
// follower finished (ok) or failed. Either way the follower goes back to
// PROBE, paused until the next tick; on success the snapshot index becomes
// the new confirmed baseline.
func (t *Tracker) ReportSnapshot(followerID uint64, ok bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return ErrStopped
	}
	pr, found := t.progresses[followerID]
	if !found {
		return ErrFollowerNotFound
	}
	if pr.State != trackerpb.ProgressStateSnapshot {
		return nil
	}

	if ok {
		if pr.MatchIndex < pr.PendingSnapshotIndex {
			pr.MatchIndex = pr.PendingSnapshotIndex
		}
		pr.becomeProbe() // NextIndex = PendingSnapshotIndex + 1
		pr.pause()
		t.lg.Info("snapshot delivered",
			zap.Uint64("follower-id", followerID),
			zap.Stringer("progress", pr),
		)
		return nil
	}

	pr.snapshotFailed()
	pr.becomeProbe()
	pr.pause()
	t.lg.Info("snapshot transfer failed",
		zap.Uint64("follower-id", followerID),
		zap.Stringer("progress", pr),
	)
	return nil
}

// ReportUnreachable tells the tracker the transport could not reach the
// follower. An optimistic pipeline against an unreachable follower only
// piles up inflight bookkeeping, so drop back to PROBE.
func (t *Tracker) ReportUnreachable(followerID uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return ErrStopped
	}
	pr, found := t.progresses[followerID]
	if !found {
		return ErrFollowerNotFound
	}

	if pr.State == trackerpb.ProgressStateReplicate {
		pr.becomeProbe()
	}
	t.lg.Debug("follower unreachable",
		zap.Uint64("follower-id", followerID),
		zap.Stringer("progress", pr),
	)
	return nil
}
