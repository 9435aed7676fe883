package version

import "testing"

func TestUncommittedRoundTrip(t *testing.T) {
	v := New([]byte("hello"), 42, nil)
	s := v.Stamp()
	if s.IsCommitted() {
		t.Fatal("freshly created version should be uncommitted")
	}
	if s.Owner() != 42 {
		t.Fatalf("owner = %d, want 42", s.Owner())
	}
}

func TestCommitTransition(t *testing.T) {
	v := New([]byte("hello"), 42, nil)
	v.CommitTo(100)
	s := v.Stamp()
	if !s.IsCommitted() {
		t.Fatal("expected committed stamp")
	}
	if s.LSN() != 100 {
		t.Fatalf("LSN = %d, want 100", s.LSN())
	}
}

func TestMarkAborted(t *testing.T) {
	v := New([]byte("x"), 7, nil)
	v.MarkAborted()
	if !v.Stamp().IsAborted() {
		t.Fatal("expected aborted stamp")
	}
}

func TestChainLinkage(t *testing.T) {
	v1 := New([]byte("v1"), 1, nil)
	v1.CommitTo(10)
	v2 := New([]byte("v2"), 2, v1)
	if v2.Prev() != v1 {
		t.Fatal("v2.Prev() should point at v1")
	}
	if v2.Prev().Stamp().LSN() != 10 {
		t.Fatal("v1's committed stamp should be visible through v2.Prev()")
	}
}

func TestTruncateDropsPrev(t *testing.T) {
	v1 := New([]byte("v1"), 1, nil)
	v1.CommitTo(10)
	v2 := New([]byte("v2"), 2, v1)
	v2.Truncate()
	if v2.Prev() != nil {
		t.Fatal("Truncate should sever Prev")
	}
}
