package session

import (
	"math/big"
	"testing"

	"github.com/ouros-lang/ouros/heap"
)

// TestTransferVariableDataKind exercises spec's "transfer_variable" path
// for a plain data value: an int copied from one session into another is
// independent afterward (mutating the source doesn't affect the copy).
func TestTransferVariableDataKind(t *testing.T) {
	m := testManager(t)
	if err := m.CreateSession("src", nil); err != nil {
		t.Fatal(err)
	}
	if err := m.CreateSession("dst", nil); err != nil {
		t.Fatal(err)
	}
	src, _ := m.GetSession("src")
	if out := src.Execute("x = 42", nil); !out.Complete {
		t.Fatalf("execute: %+v", out)
	}

	if err := m.TransferVariable("src", "dst", "x", "y"); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	dst, _ := m.GetSession("dst")
	repr, err := dst.GetVariable("y")
	if err != nil {
		t.Fatal(err)
	}
	if repr != "42" {
		t.Errorf("dst y = %s, want 42", repr)
	}

	if out := src.Execute("x = 7", nil); !out.Complete {
		t.Fatalf("execute: %+v", out)
	}
	repr, err = dst.GetVariable("y")
	if err != nil {
		t.Fatal(err)
	}
	if repr != "42" {
		t.Errorf("dst y changed to %s after source mutation, want still 42", repr)
	}
}

// TestTransferVariableDefaultsTargetName exercises the targetName == ""
// case of TransferVariable, which keeps the source name.
func TestTransferVariableDefaultsTargetName(t *testing.T) {
	m := testManager(t)
	if err := m.CreateSession("src", nil); err != nil {
		t.Fatal(err)
	}
	if err := m.CreateSession("dst", nil); err != nil {
		t.Fatal(err)
	}
	src, _ := m.GetSession("src")
	if out := src.Execute("shared = 9", nil); !out.Complete {
		t.Fatalf("execute: %+v", out)
	}
	if err := m.TransferVariable("src", "dst", "shared", ""); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	dst, _ := m.GetSession("dst")
	repr, err := dst.GetVariable("shared")
	if err != nil {
		t.Fatal(err)
	}
	if repr != "9" {
		t.Errorf("dst shared = %s, want 9", repr)
	}
}

// TestTransferVariableRejectsFunction exercises the UnsupportedTransferError
// path: a function value is bound to heap identity (closures, code object)
// and cannot be copied across sessions.
func TestTransferVariableRejectsFunction(t *testing.T) {
	m := testManager(t)
	if err := m.CreateSession("src", nil); err != nil {
		t.Fatal(err)
	}
	if err := m.CreateSession("dst", nil); err != nil {
		t.Fatal(err)
	}
	src, _ := m.GetSession("src")
	if out := src.Execute("def f(): return 1", nil); !out.Complete {
		t.Fatalf("execute: %+v", out)
	}

	err := m.TransferVariable("src", "dst", "f", "")
	if err == nil {
		t.Fatal("expected transferring a function to fail")
	}
	if _, ok := err.(*UnsupportedTransferError); !ok {
		t.Errorf("err = %T, want *UnsupportedTransferError", err)
	}
}

func TestTransferVariableUnknownName(t *testing.T) {
	m := testManager(t)
	if err := m.CreateSession("src", nil); err != nil {
		t.Fatal(err)
	}
	if err := m.CreateSession("dst", nil); err != nil {
		t.Fatal(err)
	}
	err := m.TransferVariable("src", "dst", "nope", "")
	if _, ok := err.(*VariableNotFoundError); !ok {
		t.Errorf("err = %T, want *VariableNotFoundError", err)
	}
}

// TestCallSession exercises spec's "call_session" operation: code runs in
// the source session, and on completion the result is copied into the
// named variable of the target session.
func TestCallSession(t *testing.T) {
	m := testManager(t)
	if err := m.CreateSession("caller", nil); err != nil {
		t.Fatal(err)
	}
	if err := m.CreateSession("callee", nil); err != nil {
		t.Fatal(err)
	}
	caller, _ := m.GetSession("caller")
	n := heap.HeapRef(heap.KindInt, caller.VM.Heap.NewInt(big.NewInt(6)))
	if out := caller.Execute("n = 6", map[string]heap.Value{"n": n}); !out.Complete {
		t.Fatalf("setup execute: %+v", out)
	}

	out := m.CallSession("caller", "callee", "n * 7", "product")
	if !out.Complete {
		t.Fatalf("call_session: %+v", out)
	}
	if out.Result != "42" {
		t.Errorf("result = %q, want 42", out.Result)
	}

	callee, _ := m.GetSession("callee")
	repr, err := callee.GetVariable("product")
	if err != nil {
		t.Fatal(err)
	}
	if repr != "42" {
		t.Errorf("callee product = %s, want 42", repr)
	}
}
