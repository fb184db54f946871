// Package trackerpb defines the message and state types shared between the
// replication tracker and its transport collaborator. Encoding is left to
// the transport; these are plain wire-shape structs.
package trackerpb

import "fmt"

// ProgressState is the pacing state of a tracked follower.
type ProgressState int

const (
	// ProgressStateProbe is the initial state of every replication session.
	// The leader sends at most one outstanding append at a time, to discover
	// the follower's true log position.
	ProgressStateProbe ProgressState = iota

	// ProgressStateReplicate is the optimistic pipelining state. The leader
	// keeps multiple appends in flight, bounded by the inflight window.
	ProgressStateReplicate

	// ProgressStateSnapshot means the follower needs log entries that were
	// already compacted out of the leader's log, and a snapshot transfer is
	// in progress. Replication is paused until the transfer is reported.
	ProgressStateSnapshot
)

func (st ProgressState) String() string {
	switch st {
	case ProgressStateProbe:
		return "PROBE"
	case ProgressStateReplicate:
		return "REPLICATE"
	case ProgressStateSnapshot:
		return "SNAPSHOT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(st))
	}
}

// Entry is a single replicated log entry.
type Entry struct {
	Index uint64
	Term  uint64
	Data  []byte
}

// AppendEntriesRequest is the append message from leader to follower.
//
// SessionID is the replication-session identifier current for the target
// follower at send time. It is the one field this subsystem adds to the
// classic Raft append envelope; the follower echoes it back unchanged.
type AppendEntriesRequest struct {
	Term     uint64
	LeaderID uint64
	To       uint64

	PrevLogIndex uint64
	PrevLogTerm  uint64
	Entries      []Entry

	LeaderCommitIndex uint64

	SessionID uint64
}

// AppendEntriesResponse is the follower's answer to an append request.
//
// On Success, MatchIndex is the highest log index now known durable on the
// follower. On rejection, RejectedIndex is the PrevLogIndex of the request
// being rejected and RejectHint is the follower's own last log index, which
// the leader may use to narrow the next probe.
type AppendEntriesResponse struct {
	Term uint64
	From uint64

	Success    bool
	MatchIndex uint64

	RejectedIndex uint64
	RejectHint    uint64

	// SessionID is echoed back unchanged from the request that produced
	// this response.
	SessionID uint64
}
