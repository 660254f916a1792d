package wire_test

import (
	"testing"

	"github.com/ouros-lang/ouros/compiler"
	"github.com/ouros-lang/ouros/vm"
	"github.com/ouros-lang/ouros/wire"
)

func runSource(t *testing.T, src string) *vm.VM {
	t.Helper()
	chunk, err := compiler.Compile(src, compiler.CompileOptions{ScriptName: "wiretest"})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	machine := vm.New(vm.DefaultLimits())
	if _, perr := machine.Run(chunk, nil, nil); perr != nil {
		t.Fatalf("run error: %v", perr)
	}
	return machine
}

func roundTrip(t *testing.T, machine *vm.VM, compress bool) *vm.VM {
	t.Helper()
	data, err := wire.Dump(machine, compress)
	if err != nil {
		t.Fatalf("Dump error: %v", err)
	}
	restored, err := wire.Load(data, vm.DefaultLimits(), nil)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return restored
}

func TestDumpLoadRoundTripsSimpleState(t *testing.T) {
	for _, compress := range []bool{false, true} {
		machine := runSource(t, "x = 42\ny = 'hello'\n")
		restored := roundTrip(t, machine, compress)

		before := machine.Heap.Stats()
		after := restored.Heap.Stats()
		if before.LiveObjects != after.LiveObjects {
			t.Errorf("compress=%v: LiveObjects before=%d after=%d", compress, before.LiveObjects, after.LiveObjects)
		}
	}
}

func TestDumpLoadRoundTripsListAndDict(t *testing.T) {
	machine := runSource(t, "xs = [1, 2, 3]\nd = {'a': 1, 'b': 2}\n")
	restored := roundTrip(t, machine, false)

	before := machine.Heap.Stats()
	after := restored.Heap.Stats()
	if before.LiveObjects != after.LiveObjects {
		t.Errorf("LiveObjects before=%d after=%d", before.LiveObjects, after.LiveObjects)
	}
}

func TestDumpLoadRoundTripsFunction(t *testing.T) {
	machine := runSource(t, "def f(n):\n    return n * 2\nresult = f(21)\n")
	restored := roundTrip(t, machine, true)

	before := machine.Heap.Stats()
	after := restored.Heap.Stats()
	if before.LiveObjects != after.LiveObjects {
		t.Errorf("LiveObjects before=%d after=%d", before.LiveObjects, after.LiveObjects)
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	_, err := wire.Load([]byte("not a wire dump"), vm.DefaultLimits(), nil)
	if err == nil {
		t.Fatalf("expected an error decoding garbage input")
	}
	if _, ok := err.(*wire.FormatError); !ok {
		t.Errorf("error type = %T, want *wire.FormatError", err)
	}
}

func TestLoadRejectsTruncatedBody(t *testing.T) {
	machine := runSource(t, "x = 1\n")
	data, err := wire.Dump(machine, false)
	if err != nil {
		t.Fatalf("Dump error: %v", err)
	}
	truncated := data[:len(data)/2]
	if _, err := wire.Load(truncated, vm.DefaultLimits(), nil); err == nil {
		t.Errorf("expected an error decoding a truncated dump")
	}
}
