package tracker

import (
	"testing"

	"github.com/raftwork/replication/tracker/trackerpb"
)

func Test_Progress_becomeProbe(t *testing.T) {
	tests := []struct {
		pr          *Progress
		wMatchIndex uint64
		wNextIndex  uint64
	}{
		{
			&Progress{State: trackerpb.ProgressStateReplicate, MatchIndex: 1, NextIndex: 5, inflights: newInflights(256)},
			1,
			2, // pr.NextIndex = pr.MatchIndex + 1
		},

		{ // snapshot finish
			&Progress{State: trackerpb.ProgressStateSnapshot, MatchIndex: 1, NextIndex: 5, PendingSnapshotIndex: 10, inflights: newInflights(256)},
			1,
			11, // pr.NextIndex = max(pr.MatchIndex+1, pendingIndex+1)
		},

		{ // snapshot failure
			&Progress{State: trackerpb.ProgressStateSnapshot, MatchIndex: 1, NextIndex: 5, PendingSnapshotIndex: 0, inflights: newInflights(256)},
			1,
			2, // pr.NextIndex = max(pr.MatchIndex+1, pendingIndex+1)
		},
	}

	for i, tt := range tests {
		tt.pr.becomeProbe()
		if tt.pr.State != trackerpb.ProgressStateProbe {
			t.Fatalf("#%d: progress state expected %q, got %q", i, trackerpb.ProgressStateProbe, tt.pr.State)
		}
		if tt.pr.MatchIndex != tt.wMatchIndex {
			t.Fatalf("#%d: progress match index expected %d, got %d", i, tt.wMatchIndex, tt.pr.MatchIndex)
		}
		if tt.pr.NextIndex != tt.wNextIndex {
			t.Fatalf("#%d: progress next index expected %d, got %d", i, tt.wNextIndex, tt.pr.NextIndex)
		}
	}
}

func Test_Progress_becomeReplicate(t *testing.T) {
	pr := &Progress{State: trackerpb.ProgressStateProbe, MatchIndex: 1, NextIndex: 5, inflights: newInflights(256)}
	pr.becomeReplicate() // pr.NextIndex = pr.MatchIndex + 1

	if pr.State != trackerpb.ProgressStateReplicate {
		t.Fatalf("progress state expected %q, got %q", trackerpb.ProgressStateReplicate, pr.State)
	}

	if pr.MatchIndex != 1 {
		t.Fatalf("progress match index expected 1, got %d", pr.MatchIndex)
	}

	if w := pr.MatchIndex + 1; pr.NextIndex != w {
		t.Fatalf("progress next index expected %d, got %d", w, pr.NextIndex)
	}
}

func Test_Progress_becomeSnapshot(t *testing.T) {
	pr := &Progress{State: trackerpb.ProgressStateReplicate, MatchIndex: 40, NextIndex: 45, inflights: newInflights(256)}
	pr.inflights.add(44)

	pr.becomeSnapshot(100)

	if pr.State != trackerpb.ProgressStateSnapshot {
		t.Fatalf("progress state expected %q, got %q", trackerpb.ProgressStateSnapshot, pr.State)
	}
	if pr.PendingSnapshotIndex != 100 {
		t.Fatalf("pending snapshot index expected 100, got %d", pr.PendingSnapshotIndex)
	}
	if pr.NextIndex != 101 {
		t.Fatalf("progress next index expected 101, got %d", pr.NextIndex)
	}
	if n := pr.inflights.count(); n != 0 {
		t.Fatalf("inflight window expected drained, got %d", n)
	}
}

func Test_Progress_maybeUpdate(t *testing.T) {
	tests := []struct {
		pr         *Progress
		ackedIndex uint64

		wMatchIndex, wNextIndex uint64
		wOk                     bool
	}{
		{ // never decrease match index
			&Progress{MatchIndex: 3, NextIndex: 5, inflights: newInflights(256)},
			2,
			3, 5, false,
		},

		{ // increase match index, next index stays
			&Progress{MatchIndex: 3, NextIndex: 5, inflights: newInflights(256)},
			4,
			4, 5, true,
		},

		{ // increase match index, next index follows
			&Progress{MatchIndex: 3, NextIndex: 5, inflights: newInflights(256)},
			5,
			5, 6, true,
		},

		{ // duplicate at match index is idempotent
			&Progress{MatchIndex: 3, NextIndex: 5, inflights: newInflights(256)},
			3,
			3, 5, false,
		},
	}

	for i, tt := range tests {
		ok := tt.pr.maybeUpdate(tt.ackedIndex)
		if ok != tt.wOk {
			t.Fatalf("#%d: ok expected %v, got %v", i, tt.wOk, ok)
		}
		if tt.pr.MatchIndex != tt.wMatchIndex {
			t.Fatalf("#%d: progress match index expected %d, got %d", i, tt.wMatchIndex, tt.pr.MatchIndex)
		}
		if tt.pr.NextIndex != tt.wNextIndex {
			t.Fatalf("#%d: progress next index expected %d, got %d", i, tt.wNextIndex, tt.pr.NextIndex)
		}
	}
}

func Test_Progress_maybeDecrease(t *testing.T) {
	tests := []struct {
		pr                        *Progress
		rejectedIndex, rejectHint uint64

		wOk        bool
		wNextIndex uint64
	}{
		{ // replicate state, rejected index below match: stale, refused
			&Progress{State: trackerpb.ProgressStateReplicate, MatchIndex: 5, NextIndex: 10, inflights: newInflights(256)},
			4, 4,
			false, 10,
		},

		{ // replicate state, rejected index at match: stale, refused
			&Progress{State: trackerpb.ProgressStateReplicate, MatchIndex: 5, NextIndex: 10, inflights: newInflights(256)},
			5, 5,
			false, 10,
		},

		{ // replicate state, genuine reject: back to match+1
			&Progress{State: trackerpb.ProgressStateReplicate, MatchIndex: 5, NextIndex: 10, inflights: newInflights(256)},
			9, 9,
			true, 6,
		},

		{ // probe state, reject not for the outstanding probe: refused
			&Progress{State: trackerpb.ProgressStateProbe, MatchIndex: 0, NextIndex: 10, inflights: newInflights(256)},
			5, 5,
			false, 10,
		},

		{ // probe state, genuine reject with useful hint
			&Progress{State: trackerpb.ProgressStateProbe, MatchIndex: 0, NextIndex: 10, inflights: newInflights(256)},
			9, 2,
			true, 3, // min(rejected, hint+1)
		},

		{ // probe state, next index floors at 1
			&Progress{State: trackerpb.ProgressStateProbe, MatchIndex: 0, NextIndex: 1, inflights: newInflights(256)},
			0, 0,
			true, 1,
		},
	}

	for i, tt := range tests {
		ok := tt.pr.maybeDecrease(tt.rejectedIndex, tt.rejectHint)
		if ok != tt.wOk {
			t.Fatalf("#%d: ok expected %v, got %v", i, tt.wOk, ok)
		}
		if tt.pr.NextIndex != tt.wNextIndex {
			t.Fatalf("#%d: progress next index expected %d, got %d", i, tt.wNextIndex, tt.pr.NextIndex)
		}
	}
}

func Test_Progress_isPaused(t *testing.T) {
	full := newInflights(1)
	full.add(1)

	tests := []struct {
		pr *Progress
		w  bool
	}{
		{&Progress{State: trackerpb.ProgressStateProbe, Paused: false, inflights: newInflights(256)}, false},
		{&Progress{State: trackerpb.ProgressStateProbe, Paused: true, inflights: newInflights(256)}, true},
		{&Progress{State: trackerpb.ProgressStateReplicate, inflights: newInflights(256)}, false},
		{&Progress{State: trackerpb.ProgressStateReplicate, inflights: full}, true},
		{&Progress{State: trackerpb.ProgressStateSnapshot, inflights: newInflights(256)}, true},
	}

	for i, tt := range tests {
		if g := tt.pr.isPaused(); g != tt.w {
			t.Fatalf("#%d: paused expected %v, got %v", i, tt.w, g)
		}
	}
}

func Test_Progress_needSnapshotAbort(t *testing.T) {
	tests := []struct {
		pr *Progress
		w  bool
	}{
		{&Progress{State: trackerpb.ProgressStateSnapshot, MatchIndex: 99, PendingSnapshotIndex: 100, inflights: newInflights(256)}, false},
		{&Progress{State: trackerpb.ProgressStateSnapshot, MatchIndex: 100, PendingSnapshotIndex: 100, inflights: newInflights(256)}, true},
		{&Progress{State: trackerpb.ProgressStateReplicate, MatchIndex: 100, PendingSnapshotIndex: 100, inflights: newInflights(256)}, false},
	}

	for i, tt := range tests {
		if g := tt.pr.needSnapshotAbort(); g != tt.w {
			t.Fatalf("#%d: abort expected %v, got %v", i, tt.w, g)
		}
	}
}
