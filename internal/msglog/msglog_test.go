package msglog

import (
	"testing"
	"time"
)

func TestPushAssignsMonotoneIDs(t *testing.T) {
	l := New()
	id1 := l.Push("alice", "a", time.Now())
	id2 := l.Push("bob", "b", time.Now())
	id3 := l.Push("alice", "c", time.Now())
	if id1 != 1 || id2 != 2 || id3 != 3 {
		t.Fatalf("got ids %d %d %d, want 1 2 3", id1, id2, id3)
	}
}

func TestForEachAfter(t *testing.T) {
	l := New()
	l.Push("alice", "a", time.Now())
	l.Push("bob", "b", time.Now())
	l.Push("alice", "c", time.Now())

	var got []uint64
	l.ForEachAfter(1, func(e Entry) { got = append(got, e.ID) })
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("got %v, want [2 3]", got)
	}
}

func TestForEachAfterEmptyWhenCaughtUp(t *testing.T) {
	l := New()
	l.Push("alice", "a", time.Now())
	var calls int
	l.ForEachAfter(1, func(Entry) { calls++ })
	if calls != 0 {
		t.Fatalf("expected no visits, got %d", calls)
	}
}
