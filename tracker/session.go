package tracker

// sessionRegistry hands out the generation of each follower's replication
// relationship with the leader. Ids come from a plain counter scoped to the
// leader incarnation: strict monotonicity keeps ordering obvious in logs,
// and nothing is persisted because a new leader starts a fresh registry.
//
// The registry is owned by the Tracker and only touched under its lock.
type sessionRegistry struct {
	// nextSessionID is the next id to hand out. Starts at 1 so that 0 can
	// never match a live record.
	nextSessionID uint64

	// live maps follower id to its current session id. A follower missing
	// from the map has no live session.
	live map[uint64]uint64
}

func newSessionRegistry() sessionRegistry {
	return sessionRegistry{
		nextSessionID: 1,
		live:          make(map[uint64]uint64),
	}
}

// register allocates a fresh session id for the follower. It fails if the
// follower already holds a live session; that is a caller bug, and the
// Tracker decides whether to panic or self-heal.
func (sr *sessionRegistry) register(followerID uint64) (uint64, error) {
	if _, ok := sr.live[followerID]; ok {
		return 0, ErrFollowerExists
	}

	sid := sr.nextSessionID
	sr.nextSessionID++
	sr.live[followerID] = sid
	return sid, nil
}

// retire drops the follower's live session. The id is never reused; any
// response still carrying it will fail the session check from now on.
func (sr *sessionRegistry) retire(followerID uint64) {
	delete(sr.live, followerID)
}

// current returns the follower's live session id, if any.
func (sr *sessionRegistry) current(followerID uint64) (uint64, bool) {
	sid, ok := sr.live[followerID]
	return sid, ok
}
