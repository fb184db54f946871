package tracker

import (
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/raftwork/replication/tracker/trackerpb"
)

// Tracker is the single-writer replication core of one leader incarnation.
//
// All mutations of the progress table, the session registry and the
// inflight windows are serialized through the Tracker's lock. Sends and
// network waits happen outside; response processing funnels back through
// Step, which is why looking up the *current* record at response time is
// meaningful instead of racy.
//
// Nothing here is persisted. A new leader builds a fresh Tracker, which
// implicitly invalidates every session of the previous incarnation.
type Tracker struct {
	mu sync.Mutex

	lg      *zap.Logger
	metrics *Metrics

	leaderID uint64
	term     uint64

	maxEntriesPerMessage uint64
	maxInflightMessages  int

	storage   LogStorage
	snapshots SnapshotSender

	sessions   sessionRegistry
	progresses ProgressMap

	// committedIndex is the quorum commit index, recomputed from match
	// indexes only. Session bookkeeping never feeds into it.
	committedIndex uint64

	// outbound accumulates fully formed requests for the transport to
	// drain. The transport owns delivery; the tracker owns pacing.
	outbound []trackerpb.AppendEntriesRequest

	stopped bool
}

// New creates a Tracker for one leader incarnation with the given Config.
func New(c Config) (*Tracker, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	lg := c.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	m := c.Metrics
	if m == nil {
		m = NewMetrics(nil)
	}

	t := &Tracker{
		lg:      lg,
		metrics: m,

		leaderID: c.LeaderID,
		term:     c.Term,

		maxEntriesPerMessage: c.MaxEntriesPerMessage,
		maxInflightMessages:  c.MaxInflightMessages,

		storage:   c.Storage,
		snapshots: c.Snapshots,

		sessions:   newSessionRegistry(),
		progresses: make(ProgressMap),
	}

	lg.Info("replication tracker created",
		zap.Uint64("leader-id", t.leaderID),
		zap.Uint64("term", t.term),
	)
	return t, nil
}

// Stop makes every subsequent operation a no-op returning ErrStopped.
// Called when the leader steps down.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	for id := range t.progresses {
		t.sessions.retire(id)
	}
	t.progresses = make(ProgressMap)
	t.outbound = nil
}

// AddFollower starts a new replication session for the follower and
// creates its Progress in PROBE state. A re-add after a removal always
// mints a fresh session id; the old record is gone and stays gone.
func (t *Tracker) AddFollower(followerID uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return ErrStopped
	}

	if _, ok := t.progresses[followerID]; ok {
		// two live sessions for one follower id is a caller bug;
		// self-heal by keeping the existing session
		t.lg.Error("follower already has a live replication session",
			zap.Uint64("follower-id", followerID),
		)
		return ErrFollowerExists
	}

	sid, err := t.sessions.register(followerID)
	if err != nil {
		// registry disagrees with the progress table; drop the older
		// session and retry once
		t.lg.Error("session registry out of sync; retiring stale session",
			zap.Uint64("follower-id", followerID),
			zap.Error(err),
		)
		t.sessions.retire(followerID)
		sid, err = t.sessions.register(followerID)
		if err != nil {
			return err
		}
	}

	lastIndex, err := t.storage.LastIndex()
	if err != nil {
		t.sessions.retire(followerID)
		return err
	}

	pr := &Progress{
		State:     trackerpb.ProgressStateProbe,
		NextIndex: lastIndex + 1,
		SessionID: sid,
		sentIndex: lastIndex,
		inflights: newInflights(t.maxInflightMessages),
	}
	t.progresses[followerID] = pr

	t.lg.Info("follower added",
		zap.Uint64("follower-id", followerID),
		zap.Uint64("session-id", sid),
		zap.Uint64("next-index", pr.NextIndex),
	)
	return nil
}

// RemoveFollower retires the follower's session and destroys its Progress.
// Outstanding requests are implicitly cancelled: any late response still
// carrying the retired session id is dropped by Step.
func (t *Tracker) RemoveFollower(followerID uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return ErrStopped
	}

	pr, ok := t.progresses[followerID]
	if !ok {
		return ErrFollowerNotFound
	}

	t.sessions.retire(followerID)
	delete(t.progresses, followerID)

	t.lg.Info("follower removed",
		zap.Uint64("follower-id", followerID),
		zap.Uint64("session-id", pr.SessionID),
	)
	return nil
}

// Members returns the follower ids currently tracked, sorted.
func (t *Tracker) Members() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]uint64, 0, len(t.progresses))
	for id := range t.progresses {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Status returns a read-only snapshot of one follower's Progress.
func (t *Tracker) Status(followerID uint64) (BasicProgress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pr, ok := t.progresses[followerID]
	if !ok {
		return BasicProgress{}, false
	}
	return BasicProgress{
		State:      pr.State,
		MatchIndex: pr.MatchIndex,
		NextIndex:  pr.NextIndex,
		SessionID:  pr.SessionID,
	}, true
}

// CommittedIndex returns the current quorum commit index.
func (t *Tracker) CommittedIndex() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.committedIndex
}

// TakeOutbound drains the mailbox of fully formed append requests. The
// caller hands them to the transport; delivery order per follower must be
// preserved, everything else is the transport's business.
func (t *Tracker) TakeOutbound() []trackerpb.AppendEntriesRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.outbound
	t.outbound = nil
	return out
}

// QuorumMatchIndex computes the highest log index confirmed durable on a
// majority of the cluster: the tracked followers plus the leader itself.
// It reads match indexes only, never session ids, so Raft safety does
// not depend on session bookkeeping being right.
func (t *Tracker) QuorumMatchIndex() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.quorumMatchIndexLocked()
}

func (t *Tracker) quorumMatchIndexLocked() uint64 {
	lastIndex, err := t.storage.LastIndex()
	if err != nil {
		t.lg.Warn("cannot read leader last index", zap.Error(err))
		lastIndex = 0
	}

	matchIndexes := make([]uint64, 0, len(t.progresses)+1)
	matchIndexes = append(matchIndexes, lastIndex) // the leader's own log
	for id := range t.progresses {
		matchIndexes = append(matchIndexes, t.progresses[id].MatchIndex)
	}

	slices.SortFunc(matchIndexes, func(a, b uint64) int {
		switch { // descending
		case a > b:
			return -1
		case a < b:
			return 1
		default:
			return 0
		}
	})

	quorum := len(matchIndexes)/2 + 1
	return matchIndexes[quorum-1]
}

// maybeCommitLocked advances the commit index to the quorum match index if
// that moves it forward and the entry there is from the current term.
// Returns true iff the commit index advanced.
func (t *Tracker) maybeCommitLocked() bool {
	indexToCommit := t.quorumMatchIndexLocked()
	if indexToCommit <= t.committedIndex {
		return false
	}

	term, err := t.storage.Term(indexToCommit)
	if err != nil || term != t.term {
		// an entry from an older term never commits by counting replicas
		return false
	}

	t.committedIndex = indexToCommit
	t.lg.Debug("commit index advanced", zap.Uint64("committed-index", indexToCommit))
	return true
}
