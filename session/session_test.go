package session

import (
	"math/big"
	"strconv"
	"testing"

	"github.com/ouros-lang/ouros/heap"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Storage.Dir = t.TempDir()
	return NewManager(cfg)
}

// TestExecuteBasicInput exercises spec's S1 scenario: `x * 2 + y` with
// declared inputs x, y run with {x:5, y:3} completes with 13.
func TestExecuteBasicInput(t *testing.T) {
	m := testManager(t)
	s, err := m.GetSession(DefaultSessionID)
	if err != nil {
		t.Fatal(err)
	}

	x := heap.HeapRef(heap.KindInt, s.VM.Heap.NewInt(big.NewInt(5)))
	y := heap.HeapRef(heap.KindInt, s.VM.Heap.NewInt(big.NewInt(3)))
	out := s.Execute("x * 2 + y", map[string]heap.Value{"x": x, "y": y})
	if !out.Complete {
		t.Fatalf("expected completion, got %+v", out)
	}
	if out.Result != "13" {
		t.Errorf("result = %q, want 13", out.Result)
	}
}

// TestExecuteRecursiveFib exercises spec's S6 scenario's logic (minus
// the dump/load round trip, covered separately in persist_test.go):
// fib(10) completes to 55.
func TestExecuteRecursiveFib(t *testing.T) {
	m := testManager(t)
	s, _ := m.GetSession(DefaultSessionID)
	code := "def fib(n):\n    if n <= 1: return n\n    return fib(n-1) + fib(n-2)\nfib(x)\n"
	x := heap.HeapRef(heap.KindInt, s.VM.Heap.NewInt(big.NewInt(10)))
	out := s.Execute(code, map[string]heap.Value{"x": x})
	if !out.Complete {
		t.Fatalf("expected completion, got %+v", out)
	}
	if out.Result != "55" {
		t.Errorf("result = %q, want 55", out.Result)
	}
}

// TestRewind exercises spec's S7 scenario exactly: three sequential
// executes binding x, then rewind(1) restores the prior value.
func TestRewind(t *testing.T) {
	m := testManager(t)
	s, _ := m.GetSession(DefaultSessionID)

	for _, n := range []int64{1, 2, 3} {
		out := s.Execute("x = "+strconv.FormatInt(n, 10), nil)
		if !out.Complete {
			t.Fatalf("execute x=%d: %+v", n, out)
		}
	}
	repr, err := s.GetVariable("x")
	if err != nil {
		t.Fatal(err)
	}
	if repr != "3" {
		t.Fatalf("x = %s, want 3", repr)
	}

	if err := s.Rewind(1); err != nil {
		t.Fatal(err)
	}
	repr, err = s.GetVariable("x")
	if err != nil {
		t.Fatal(err)
	}
	if repr != "2" {
		t.Fatalf("after rewind(1), x = %s, want 2", repr)
	}
}

// TestExternalCallSuspendAndResume exercises spec's S2 scenario: a call
// to a declared external function suspends the session, and resuming
// with a value lets execution continue to completion.
func TestExternalCallSuspendAndResume(t *testing.T) {
	m := testManager(t)
	if err := m.CreateSession("s2", []string{"fetch"}); err != nil {
		t.Fatal(err)
	}
	s, err := m.GetSession("s2")
	if err != nil {
		t.Fatal(err)
	}

	url := heap.HeapRef(heap.KindStr, s.VM.Heap.NewString("https://x"))
	out := s.Execute("data = fetch(url)\nlen(data)\n", map[string]heap.Value{"url": url})
	if out.Call == nil {
		t.Fatalf("expected an external-call suspension, got %+v", out)
	}
	if out.Call.Name != "fetch" {
		t.Errorf("call name = %q, want fetch", out.Call.Name)
	}

	hello := heap.HeapRef(heap.KindStr, s.VM.Heap.NewString("hello world"))
	resumed := s.ResumeCall(hello)
	if !resumed.Complete {
		t.Fatalf("expected completion after resume, got %+v", resumed)
	}
	if resumed.Result != "11" {
		t.Errorf("result = %q, want 11", resumed.Result)
	}
}
