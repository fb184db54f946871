package tracker

// inflights is the sliding window of unacknowledged append messages to one
// follower. The buffer stores the last log entry index of each message.
//
// When it's full, no more appends may be sent to this follower; this is the
// backpressure bound of the Replicate state. Whenever the leader sends an
// append it adds the index of the last entry in the message, and when a
// validated acknowledgment arrives it frees every slot up to the acked
// index. Session validation happens before any free, so a stale ack can
// never release slots that belong to the current session.
type inflights struct {
	// buffer contains the last entry indexes of each message.
	buffer []uint64

	// bufferSize is the capacity of the window.
	bufferSize int

	// bufferStart is the starting index in the buffer.
	bufferStart int

	// bufferCount is the number of inflights in the buffer.
	bufferCount int
}

func newInflights(size int) *inflights {
	return &inflights{
		// buffer grows on demand, to handle processes tracking
		// thousands of followers
		bufferSize: size,
	}
}

func (ins *inflights) full() bool {
	return ins.bufferCount == ins.bufferSize
}

func (ins *inflights) count() int {
	return ins.bufferCount
}

// tryReserve reports whether n more messages fit in the window.
func (ins *inflights) tryReserve(n int) bool {
	return ins.bufferCount+n <= ins.bufferSize
}

// grow the inflight buffer by doubling, up to the window capacity.
func (ins *inflights) growBuffer() {
	newSize := len(ins.buffer) * 2
	if newSize == 0 {
		newSize = 1
	} else if newSize > ins.bufferSize {
		newSize = ins.bufferSize
	}
	newBuffer := make([]uint64, newSize)
	copy(newBuffer, ins.buffer)
	ins.buffer = newBuffer
}

// add records one more message in flight. Indexes must be added in
// increasing order.
func (ins *inflights) add(inflight uint64) {
	if ins.full() {
		panic("cannot add into a full inflights window")
	}

	next := ins.bufferStart + ins.bufferCount
	next = next % ins.bufferSize // rotate
	if next >= len(ins.buffer) {
		ins.growBuffer()
	}

	ins.buffer[next] = inflight
	ins.bufferCount++
}

// freeAll drains the window entirely. Called whenever the record goes back
// to Probe or changes session; whatever was in flight is abandoned
// bookkeeping, since a late response for it fails the session check anyway.
func (ins *inflights) freeAll() {
	ins.bufferStart = 0
	ins.bufferCount = 0
}

// freeTo frees inflight messages with last entry index <= 'to'.
func (ins *inflights) freeTo(to uint64) {
	if ins.bufferCount == 0 || ins.buffer[ins.bufferStart] > to {
		return
	}

	var (
		cnt   int
		start = ins.bufferStart
	)
	for cnt = 0; cnt < ins.bufferCount; cnt++ {
		if ins.buffer[start] > to {
			// found the first larger inflight
			break
		}

		start++
		start = start % ins.bufferSize
	}

	// free 'cnt' inflights and set new start index
	ins.bufferCount -= cnt
	ins.bufferStart = start

	if ins.bufferCount == 0 {
		// window is empty, reset the start index so that we don't grow the
		// buffer unnecessarily
		ins.bufferStart = 0
	}
}

func (ins *inflights) freeFirstOne() {
	if ins.bufferCount == 0 {
		return
	}
	ins.freeTo(ins.buffer[ins.bufferStart])
}
