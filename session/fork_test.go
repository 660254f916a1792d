package session

import "testing"

// TestForkSharesNothing exercises spec's "fork(new_id)" semantics: after
// forking, mutating the original session's variable does not affect the
// fork's copy, and vice versa.
func TestForkSharesNothing(t *testing.T) {
	m := testManager(t)
	s, _ := m.GetSession(DefaultSessionID)
	if out := s.Execute("x = 1", nil); !out.Complete {
		t.Fatalf("execute: %+v", out)
	}

	if err := m.Fork(DefaultSessionID, "forked"); err != nil {
		t.Fatalf("fork: %v", err)
	}

	if out := s.Execute("x = 2", nil); !out.Complete {
		t.Fatalf("execute: %+v", out)
	}

	forked, err := m.GetSession("forked")
	if err != nil {
		t.Fatal(err)
	}
	repr, err := forked.GetVariable("x")
	if err != nil {
		t.Fatal(err)
	}
	if repr != "1" {
		t.Errorf("forked x = %s, want 1 (unaffected by source mutation)", repr)
	}

	if out := forked.Execute("x = 99", nil); !out.Complete {
		t.Fatalf("execute on fork: %+v", out)
	}
	srcRepr, err := s.GetVariable("x")
	if err != nil {
		t.Fatal(err)
	}
	if srcRepr != "2" {
		t.Errorf("source x = %s, want 2 (unaffected by fork mutation)", srcRepr)
	}
}

func TestForkDuplicateIDFails(t *testing.T) {
	m := testManager(t)
	if err := m.CreateSession("existing", nil); err != nil {
		t.Fatal(err)
	}
	if err := m.Fork(DefaultSessionID, "existing"); err == nil {
		t.Fatal("expected fork into an existing id to fail")
	}
}
