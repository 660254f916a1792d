package session

import "testing"

func TestSnapshotAndDiffHeap(t *testing.T) {
	m := testManager(t)
	s, _ := m.GetSession(DefaultSessionID)

	before := s.SnapshotHeap()

	if out := s.Execute("a = 1", nil); !out.Complete {
		t.Fatalf("execute: %+v", out)
	}
	mid := s.SnapshotHeap()

	if out := s.Execute("a = 2\nb = 3", nil); !out.Complete {
		t.Fatalf("execute: %+v", out)
	}
	after := s.SnapshotHeap()

	diff1 := DiffHeap(before, mid)
	if !containsStr(diff1.Added, "a") {
		t.Errorf("diff1.Added = %v, want to contain a", diff1.Added)
	}

	diff2 := DiffHeap(mid, after)
	if !containsStr(diff2.Added, "b") {
		t.Errorf("diff2.Added = %v, want to contain b", diff2.Added)
	}
	if !containsStr(diff2.ReprChanged, "a") {
		t.Errorf("diff2.ReprChanged = %v, want to contain a", diff2.ReprChanged)
	}

	if err := s.DeleteVariable("b"); err != nil {
		t.Fatal(err)
	}
	removed := s.SnapshotHeap()
	diff3 := DiffHeap(after, removed)
	if !containsStr(diff3.Removed, "b") {
		t.Errorf("diff3.Removed = %v, want to contain b", diff3.Removed)
	}
}

func containsStr(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
