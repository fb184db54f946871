package tracker

import (
	"testing"

	"github.com/raftwork/replication/tracker/trackerpb"
)

func Test_MemoryStorage_term(t *testing.T) {
	ms := NewMemoryStorage()
	if err := ms.Append(
		trackerpb.Entry{Index: 1, Term: 1},
		trackerpb.Entry{Index: 2, Term: 2},
		trackerpb.Entry{Index: 3, Term: 3},
	); err != nil {
		t.Fatal(err)
	}
	if err := ms.Compact(2); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		index uint64

		wTerm uint64
		wErr  error
	}{
		{1, 0, ErrCompacted},
		{2, 2, nil}, // compaction boundary keeps its term
		{3, 3, nil},
		{4, 0, ErrUnavailable},
	}

	for i, tt := range tests {
		term, err := ms.Term(tt.index)
		if err != tt.wErr {
			t.Fatalf("#%d: error expected %v, got %v", i, tt.wErr, err)
		}
		if term != tt.wTerm {
			t.Fatalf("#%d: term expected %d, got %d", i, tt.wTerm, term)
		}
	}
}

func Test_MemoryStorage_entries(t *testing.T) {
	ms := NewMemoryStorage()
	for idx := uint64(1); idx <= 10; idx++ {
		if err := ms.Append(trackerpb.Entry{Index: idx, Term: 5}); err != nil {
			t.Fatal(err)
		}
	}
	if err := ms.Compact(3); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		index  uint64
		maxNum uint64

		wLen int
		wErr error
	}{
		{3, 10, 0, ErrCompacted},
		{4, 10, 7, nil},
		{4, 3, 3, nil},
		{4, 0, 1, nil}, // zero means one entry per message
		{10, 10, 1, nil},
		{11, 10, 0, nil}, // nothing new to replicate
	}

	for i, tt := range tests {
		entries, err := ms.Entries(tt.index, tt.maxNum)
		if err != tt.wErr {
			t.Fatalf("#%d: error expected %v, got %v", i, tt.wErr, err)
		}
		if len(entries) != tt.wLen {
			t.Fatalf("#%d: length expected %d, got %d", i, tt.wLen, len(entries))
		}
		if tt.wLen > 0 && entries[0].Index != tt.index {
			t.Fatalf("#%d: first index expected %d, got %d", i, tt.index, entries[0].Index)
		}
	}
}

func Test_MemoryStorage_indexes(t *testing.T) {
	ms := NewMemoryStorage()

	first, _ := ms.FirstIndex()
	last, _ := ms.LastIndex()
	if first != 1 || last != 0 {
		t.Fatalf("empty log expected first=1 last=0, got first=%d last=%d", first, last)
	}

	for idx := uint64(1); idx <= 5; idx++ {
		if err := ms.Append(trackerpb.Entry{Index: idx, Term: 1}); err != nil {
			t.Fatal(err)
		}
	}
	if err := ms.Compact(2); err != nil {
		t.Fatal(err)
	}

	first, _ = ms.FirstIndex()
	last, _ = ms.LastIndex()
	if first != 3 || last != 5 {
		t.Fatalf("expected first=3 last=5, got first=%d last=%d", first, last)
	}

	if err := ms.Compact(2); err != ErrCompacted {
		t.Fatalf("error expected %v, got %v", ErrCompacted, err)
	}
}

func Test_MemoryStorage_truncateAndAppend(t *testing.T) {
	ms := NewMemoryStorage()
	for idx := uint64(1); idx <= 5; idx++ {
		if err := ms.Append(trackerpb.Entry{Index: idx, Term: 1}); err != nil {
			t.Fatal(err)
		}
	}

	// overwrite a conflicting suffix with entries from a newer term
	if err := ms.Append(
		trackerpb.Entry{Index: 4, Term: 2},
		trackerpb.Entry{Index: 5, Term: 2},
		trackerpb.Entry{Index: 6, Term: 2},
	); err != nil {
		t.Fatal(err)
	}

	last, _ := ms.LastIndex()
	if last != 6 {
		t.Fatalf("last index expected 6, got %d", last)
	}

	term, err := ms.Term(4)
	if err != nil {
		t.Fatal(err)
	}
	if term != 2 {
		t.Fatalf("term at 4 expected 2, got %d", term)
	}

	// a gap is a programming error at the storage boundary
	if err := ms.Append(trackerpb.Entry{Index: 9, Term: 2}); err == nil {
		t.Fatal("expected error on gapped append")
	}
}
