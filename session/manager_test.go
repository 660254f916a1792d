package session

import "testing"

func TestDefaultSessionAlwaysExistsAndProtected(t *testing.T) {
	m := testManager(t)
	if _, err := m.GetSession(""); err != nil {
		t.Fatalf("default session missing: %v", err)
	}
	if err := m.DestroySession(DefaultSessionID); err == nil {
		t.Fatal("expected destroying the default session to fail")
	}
}

func TestCreateSessionDuplicateIDFails(t *testing.T) {
	m := testManager(t)
	if err := m.CreateSession("a", nil); err != nil {
		t.Fatalf("create a: %v", err)
	}
	if err := m.CreateSession("a", nil); err == nil {
		t.Fatal("expected duplicate session id to fail")
	}
}

func TestDestroySessionThenNotFound(t *testing.T) {
	m := testManager(t)
	if err := m.CreateSession("gone", nil); err != nil {
		t.Fatal(err)
	}
	if err := m.DestroySession("gone"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetSession("gone"); err == nil {
		t.Fatal("expected destroyed session to be not-found")
	}
}

func TestListSessionsIncludesDefault(t *testing.T) {
	m := testManager(t)
	found := false
	for _, id := range m.ListSessions() {
		if id == DefaultSessionID {
			found = true
		}
	}
	if !found {
		t.Fatal("default session not in ListSessions")
	}
}
