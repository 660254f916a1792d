package session

import (
	"math/big"
	"os"
	"testing"

	"github.com/ouros-lang/ouros/heap"
)

// TestSaveLoadRoundTrip exercises spec's S6 "dump + load before run gives
// the same result" property at the session-manager level: fib(10) saved
// mid-history, reloaded under a new id, still reports 55 for x.
func TestSaveLoadRoundTrip(t *testing.T) {
	m := testManager(t)
	if err := m.CreateSession("fib", nil); err != nil {
		t.Fatal(err)
	}
	s, _ := m.GetSession("fib")
	x := heap.HeapRef(heap.KindInt, s.VM.Heap.NewInt(big.NewInt(10)))
	code := "def fib(n):\n    if n <= 1: return n\n    return fib(n-1) + fib(n-2)\nresult = fib(x)\n"
	out := s.Execute(code, map[string]heap.Value{"x": x})
	if !out.Complete {
		t.Fatalf("execute: %+v", out)
	}

	if err := m.SaveSession("fib"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := m.LoadSession("fib-reloaded"); err != nil {
		t.Fatalf("load: %v", err)
	}

	reloaded, err := m.GetSession("fib-reloaded")
	if err != nil {
		t.Fatal(err)
	}
	repr, err := reloaded.GetVariable("result")
	if err != nil {
		t.Fatal(err)
	}
	if repr != "55" {
		t.Errorf("result = %s, want 55", repr)
	}
}

func TestLoadCorruptFileFails(t *testing.T) {
	m := testManager(t)
	if err := os.MkdirAll(m.cfg.Storage.Dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := m.cfg.Storage.path("corrupt")
	if err := os.WriteFile(path, []byte("not a real snapshot"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := m.LoadSession("corrupt"); err == nil {
		t.Fatal("expected load of a corrupt file to fail")
	}
}
