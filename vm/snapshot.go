package vm

import (
	"github.com/ouros-lang/ouros/bytecode"
	"github.com/ouros-lang/ouros/heap"
)

// State is the exported mirror of every private field of VM that package
// wire needs in order to serialize and later reconstruct a VM's run-state
// (spec §4.7's dump/load round-trip requirement covers "suspension
// discriminator" and "pending-dunder stages" among other things, all of
// which live behind this package's own encapsulation otherwise).
type State struct {
	Frames         []*bytecode.Frame
	Suspension     Suspension
	NextCallID     uint64
	PendingCalls   map[uint64]string
	FutureResults  map[uint64]FutureOutcome
	ExternalNames  []string
	Exceptions     map[string]heap.HeapId
	BuiltinClasses map[heap.Kind]heap.HeapId
	GlobalsID      heap.HeapId
	Trace          bool
}

// Snapshot captures vm's mutable run-state, leaving the heap itself to be
// captured separately by the caller (package wire pairs this with
// heap.Heap.Snapshot).
func (vm *VM) Snapshot() State {
	pc := make(map[uint64]string, len(vm.pendingCalls))
	for id, p := range vm.pendingCalls {
		pc[id] = p.name
	}
	fr := make(map[uint64]FutureOutcome, len(vm.futures.results))
	for id, o := range vm.futures.results {
		fr[id] = o
	}
	return State{
		Frames:         vm.Frames.Frames,
		Suspension:     vm.Suspension,
		NextCallID:     vm.nextCallID,
		PendingCalls:   pc,
		FutureResults:  fr,
		ExternalNames:  vm.ExternalNames,
		Exceptions:     vm.Exceptions,
		BuiltinClasses: vm.BuiltinClasses,
		GlobalsID:      vm.GlobalsID,
		Trace:          vm.Trace,
	}
}

// Restore rebuilds a VM around an already-populated heap (produced by
// package wire from the sibling heap.Snapshot of the same session),
// reinstalling it as the heap's dispatch hook and replaying every piece
// of run-state Snapshot captured. The heap is assumed to already carry
// the builtin-class and exception-class objects at the HeapIds named in
// state, exactly as they were at snapshot time.
func Restore(h *heap.Heap, limits Limits, builtins map[string]heap.Value, state State) *VM {
	vm := &VM{
		Heap:           h,
		Tracker:        NewTracker(limits),
		pendingCalls:   make(map[uint64]pendingCall),
		Exceptions:     state.Exceptions,
		GlobalsID:      state.GlobalsID,
		Builtins:       builtins,
		ExternalNames:  state.ExternalNames,
		BuiltinClasses: state.BuiltinClasses,
		Trace:          state.Trace,
	}
	h.Hooks = vm

	if state.GlobalsID != heap.NoHeapId {
		if _, obj, err := h.Read(state.GlobalsID); err == nil && obj.Module != nil {
			vm.Globals = obj.Module
		}
	}

	vm.Frames = bytecode.FrameStack{Frames: state.Frames}
	vm.Suspension = state.Suspension
	vm.nextCallID = state.NextCallID
	for id, name := range state.PendingCalls {
		vm.pendingCalls[id] = pendingCall{name: name}
	}
	vm.futures.results = make(map[uint64]FutureOutcome, len(state.FutureResults))
	for id, o := range state.FutureResults {
		vm.futures.results[id] = o
	}
	return vm
}

// HashValue exposes hashValue so package wire can recompute a dict key's
// hash while replaying a DictObj's items into a freshly restored heap.
func (vm *VM) HashValue(v heap.Value) (int64, *PyError) {
	return vm.hashValue(v)
}

// ValueEq exposes valueEq for the same reason HashValue is exposed.
func (vm *VM) ValueEq(a, b heap.Value) (bool, *PyError) {
	ok, err := vm.valueEq(a, b)
	if err != nil {
		return false, vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	return ok, nil
}
