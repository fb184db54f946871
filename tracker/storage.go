package tracker

import (
	"fmt"
	"sync"

	"github.com/raftwork/replication/tracker/trackerpb"
)

// LogStorage is the read-only view the tracker needs of the leader's log.
// The storage engine itself (persistence, compaction policy) is an
// external collaborator.
type LogStorage interface {
	// Term returns the term of the entry at the given index. It returns
	// ErrCompacted if the index predates the first retained entry.
	Term(index uint64) (uint64, error)

	// Entries returns up to maxNum entries starting at the given index.
	// It returns ErrCompacted if the start index was compacted away, and
	// ErrUnavailable if no entry at the index exists yet.
	Entries(index, maxNum uint64) ([]trackerpb.Entry, error)

	// FirstIndex returns the index of the first retained entry.
	FirstIndex() (uint64, error)

	// LastIndex returns the index of the last entry in the log.
	LastIndex() (uint64, error)
}

// SnapshotSender starts snapshot byte transfers toward followers whose
// next index fell below the leader's first retained entry. The transfer
// mechanics are an external collaborator; the tracker only needs the last
// index covered by the snapshot being sent.
type SnapshotSender interface {
	// StartSnapshotTransfer begins a transfer to the follower and returns
	// the snapshot's last log index. It may return
	// ErrSnapshotTemporarilyUnavailable, in which case the tracker retries
	// on a later tick.
	StartSnapshotTransfer(followerID uint64) (uint64, error)
}

// MemoryStorage implements LogStorage backed by an in-memory slice. It is
// what the tests replicate against, and a reasonable starting point for
// embedders before wiring a real log engine.
type MemoryStorage struct {
	mu sync.Mutex

	// entries[i]'s log index == i + compactedIndex;
	// entries[0] is a dummy entry at the compaction boundary
	entries        []trackerpb.Entry
	compactedIndex uint64
}

// NewMemoryStorage creates an empty in-memory log.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		// populate with one dummy entry at term 0
		entries: make([]trackerpb.Entry, 1),
	}
}

func (ms *MemoryStorage) firstIndex() uint64 {
	return ms.compactedIndex + 1
}

func (ms *MemoryStorage) lastIndex() uint64 {
	return ms.compactedIndex + uint64(len(ms.entries)) - 1
}

// FirstIndex implements LogStorage.
func (ms *MemoryStorage) FirstIndex() (uint64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.firstIndex(), nil
}

// LastIndex implements LogStorage.
func (ms *MemoryStorage) LastIndex() (uint64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.lastIndex(), nil
}

// Term implements LogStorage.
func (ms *MemoryStorage) Term(index uint64) (uint64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if index < ms.compactedIndex {
		return 0, ErrCompacted
	}
	if index > ms.lastIndex() {
		return 0, ErrUnavailable
	}

	return ms.entries[index-ms.compactedIndex].Term, nil
}

// Entries implements LogStorage.
func (ms *MemoryStorage) Entries(index, maxNum uint64) ([]trackerpb.Entry, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if index <= ms.compactedIndex {
		return nil, ErrCompacted
	}
	if index > ms.lastIndex() {
		return nil, nil // nothing new to replicate
	}

	if maxNum == 0 {
		maxNum = 1
	}
	end := index + maxNum
	if end > ms.lastIndex()+1 {
		end = ms.lastIndex() + 1
	}

	entries := ms.entries[index-ms.compactedIndex : end-ms.compactedIndex]

	// copy, so appends after this call cannot alias into the result
	out := make([]trackerpb.Entry, len(entries))
	copy(out, entries)
	return out, nil
}

// Append adds entries to the log. Entries must be contiguous with the
// existing log; overlapping prefixes are truncated and rewritten.
func (ms *MemoryStorage) Append(entries ...trackerpb.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	firstLogIndex := ms.firstIndex()
	lastEntryIndex := entries[len(entries)-1].Index
	if firstLogIndex > lastEntryIndex { // no new entry
		return nil
	}

	// truncate already-compacted prefix
	if firstLogIndex > entries[0].Index {
		entries = entries[firstLogIndex-entries[0].Index:]
	}

	offset := entries[0].Index - ms.compactedIndex
	switch {
	case uint64(len(ms.entries)) > offset:
		ms.entries = append(ms.entries[:offset], entries...)
	case uint64(len(ms.entries)) == offset:
		ms.entries = append(ms.entries, entries...)
	default:
		return fmt.Errorf("log gap: last index %d, appending from %d", ms.lastIndex(), entries[0].Index)
	}

	return nil
}

// Compact discards all entries up to and including compactIndex.
func (ms *MemoryStorage) Compact(compactIndex uint64) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if compactIndex <= ms.compactedIndex {
		return ErrCompacted
	}
	if compactIndex > ms.lastIndex() {
		return fmt.Errorf("compact index %d out of bound (last index %d)", compactIndex, ms.lastIndex())
	}

	offset := compactIndex - ms.compactedIndex
	newEntries := make([]trackerpb.Entry, 1, 1+uint64(len(ms.entries))-offset)
	newEntries[0].Index = compactIndex
	newEntries[0].Term = ms.entries[offset].Term
	newEntries = append(newEntries, ms.entries[offset+1:]...)

	ms.entries = newEntries
	ms.compactedIndex = compactIndex
	return nil
}
