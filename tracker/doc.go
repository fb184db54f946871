// Package tracker implements a Raft leader's per-follower replication
// progress tracking with replication-session isolation.
//
// The leader keeps one Progress per follower in the current configuration.
// Each Progress is bound to a replication session: a monotonically
// increasing id minted every time the follower (re)enters the
// configuration. Outgoing append requests are stamped with the session id,
// and responses are only applied when the echoed id matches the current
// record, so a delayed reply from before a remove/re-add can never corrupt
// the fresh record.
//
// The main goal is to decouple the tracking core from election, storage and
// transport. Those remain external collaborators behind small interfaces.
package tracker
