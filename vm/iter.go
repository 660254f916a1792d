package vm

import (
	"fmt"
	"math/big"

	"github.com/ouros-lang/ouros/bytecode"
	"github.com/ouros-lang/ouros/heap"
)

// GetIter implements spec §4.4.8: native containers get a synthesized
// index-walking iterator; user instances dispatch to __iter__, falling
// back to the sequence protocol (repeated __getitem__ with an
// incrementing integer index, stopping at IndexError) when __iter__ is
// absent but __getitem__ is present.
func (vm *VM) GetIter(obj heap.Value) (heap.Value, *PyError) {
	switch obj.Kind {
	case heap.KindList:
		return vm.newIterator(heap.IterList, obj), nil
	case heap.KindTuple:
		return vm.newIterator(heap.IterSeqIndex, obj), nil
	case heap.KindStr, heap.KindBytes, heap.KindByteArray:
		return vm.newIterator(heap.IterSeqIndex, obj), nil
	case heap.KindRange:
		return vm.newIterator(heap.IterRange, obj), nil
	case heap.KindDict:
		return vm.newIterator(heap.IterDictKeys, obj), nil
	case heap.KindSet, heap.KindFrozenSet:
		return vm.newIterator(heap.IterList, obj), nil
	case heap.KindIterator, heap.KindGenerator:
		vm.Heap.Incref(obj.Id)
		return obj, nil
	}

	classID, ok := vm.ClassOf(obj)
	if !ok {
		return heap.Value{}, vm.NewExceptionMsg("TypeError", fmt.Sprintf("'%s' object is not iterable", vm.TypeName(obj)))
	}
	entry, err := vm.Heap.LookupTypeDunder(classID, "__iter__")
	if err != nil {
		return heap.Value{}, vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	if !entry.Absent {
		return vm.CallValue(entry.Value, []heap.Value{obj}, nil)
	}

	getitemEntry, err := vm.Heap.LookupTypeDunder(classID, "__getitem__")
	if err != nil {
		return heap.Value{}, vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	if !getitemEntry.Absent {
		return vm.newIterator(heap.IterUser, obj), nil
	}

	return heap.Value{}, vm.NewExceptionMsg("TypeError", fmt.Sprintf("'%s' object is not iterable", vm.TypeName(obj)))
}

func (vm *VM) newIterator(flavor heap.IteratorKind, source heap.Value) heap.Value {
	vm.Heap.Incref(idOf(source))
	it := &heap.IteratorObj{Flavor: flavor, Source: idOf(source)}
	return heap.HeapRef(heap.KindIterator, vm.Heap.Alloc(heap.KindIterator, heap.Object{Iterator: it}))
}

// errStopIteration is a sentinel for ordinary exhaustion (not a raised
// Python exception). NextFromIterator does not return it: it reports
// exhaustion through its stop result, which the interpreter's FOR_ITER
// handler translates into a jump rather than propagating an exception.
var errStopIteration = fmt.Errorf("stop iteration")

// NextFromIterator implements one FOR_ITER step. It returns (value,
// false, nil) normally, (_, true, nil) on exhaustion, or (_, _, perr) on
// a genuine error raised along the way.
func (vm *VM) NextFromIterator(iterVal heap.Value) (heap.Value, bool, *PyError) {
	if iterVal.Kind == heap.KindGenerator {
		return vm.resumeGeneratorNext(iterVal)
	}
	if iterVal.Kind != heap.KindIterator {
		return vm.nextViaDunder(iterVal)
	}

	_, obj, err := vm.Heap.Read(iterVal.Id)
	if err != nil {
		return heap.Value{}, false, vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	it := obj.Iterator
	if it.Done {
		return heap.Value{}, true, nil
	}

	switch it.Flavor {
	case heap.IterUser:
		return vm.nextUserSequence(it)
	default:
		return vm.nextNative(it)
	}
}

func (vm *VM) nextNative(it *heap.IteratorObj) (heap.Value, bool, *PyError) {
	_, srcObj, err := vm.Heap.Read(it.Source)
	if err != nil {
		return heap.Value{}, false, vm.NewExceptionMsg("RuntimeError", err.Error())
	}

	switch it.Flavor {
	case heap.IterList, heap.IterSeqIndex:
		if it.Flavor == heap.IterSeqIndex && srcObj.Str != "" {
			runes := []rune(srcObj.Str)
			if it.Index >= len(runes) {
				it.Done = true
				return heap.Value{}, true, nil
			}
			v := heap.HeapRef(heap.KindStr, vm.Heap.InternString(string(runes[it.Index])))
			it.Index++
			return v, false, nil
		}
		if it.Flavor == heap.IterSeqIndex && len(srcObj.Bytes) > 0 {
			if it.Index >= len(srcObj.Bytes) {
				it.Done = true
				return heap.Value{}, true, nil
			}
			b := big.NewInt(int64(srcObj.Bytes[it.Index]))
			it.Index++
			return heap.HeapRef(heap.KindInt, vm.Heap.NewInt(b)), false, nil
		}
		if it.Index >= len(srcObj.Elems) {
			it.Done = true
			return heap.Value{}, true, nil
		}
		v := srcObj.Elems[it.Index]
		it.Index++
		return v, false, nil
	case heap.IterRange:
		return vm.nextRange(it, srcObj)
	case heap.IterDictKeys, heap.IterDictValues, heap.IterDictItems:
		keys, vals := srcObj.Dict.Items()
		if it.Index >= len(keys) {
			it.Done = true
			return heap.Value{}, true, nil
		}
		idx := it.Index
		it.Index++
		switch it.Flavor {
		case heap.IterDictValues:
			return vals[idx], false, nil
		case heap.IterDictItems:
			elems := []heap.Value{keys[idx], vals[idx]}
			return heap.HeapRef(heap.KindTuple, vm.Heap.Alloc(heap.KindTuple, heap.Object{Elems: elems})), false, nil
		default:
			return keys[idx], false, nil
		}
	}
	it.Done = true
	return heap.Value{}, true, nil
}

func (vm *VM) nextRange(it *heap.IteratorObj, srcObj *heap.Object) (heap.Value, bool, *PyError) {
	step := new(big.Int).Mul(big.NewInt(int64(it.Index)), srcObj.Range.Step)
	cur := new(big.Int).Add(srcObj.Range.Start, step)
	stop := srcObj.Range.Stop
	ascending := srcObj.Range.Step.Sign() > 0
	if (ascending && cur.Cmp(stop) >= 0) || (!ascending && cur.Cmp(stop) <= 0) {
		it.Done = true
		return heap.Value{}, true, nil
	}
	it.Index++
	return heap.HeapRef(heap.KindInt, vm.Heap.NewInt(cur)), false, nil
}

func (vm *VM) nextUserSequence(it *heap.IteratorObj) (heap.Value, bool, *PyError) {
	source := heap.HeapRef(heap.KindInstance, it.Source)
	idx := heap.HeapRef(heap.KindInt, vm.Heap.NewInt(big.NewInt(int64(it.Index))))
	v, perr := vm.Subscript(source, idx)
	if perr != nil {
		if vm.IsInstanceOfException(perr.Value, "IndexError") {
			it.Done = true
			return heap.Value{}, true, nil
		}
		return heap.Value{}, false, perr
	}
	it.Index++
	return v, false, nil
}

// nextViaDunder handles a plain user instance with __iter__ returning
// itself; the iterator protocol is then __next__ directly.
func (vm *VM) nextViaDunder(obj heap.Value) (heap.Value, bool, *PyError) {
	classID, ok := vm.ClassOf(obj)
	if !ok {
		return heap.Value{}, false, vm.NewExceptionMsg("TypeError", fmt.Sprintf("'%s' object is not an iterator", vm.TypeName(obj)))
	}
	entry, err := vm.Heap.LookupTypeDunder(classID, "__next__")
	if err != nil {
		return heap.Value{}, false, vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	if entry.Absent {
		return heap.Value{}, false, vm.NewExceptionMsg("TypeError", fmt.Sprintf("'%s' object is not an iterator", vm.TypeName(obj)))
	}
	v, perr := vm.CallValue(entry.Value, []heap.Value{obj}, nil)
	if perr != nil {
		if vm.IsInstanceOfException(perr.Value, "StopIteration") {
			return heap.Value{}, true, nil
		}
		return heap.Value{}, false, perr
	}
	return v, false, nil
}

// resumeGeneratorNext drives a generator object one step via the
// suspension machinery; generators are frames parked between yields, so
// stepping one means resuming that frame until its next YIELD_VALUE or
// RETURN.
func (vm *VM) resumeGeneratorNext(genVal heap.Value) (heap.Value, bool, *PyError) {
	_, obj, err := vm.Heap.Read(genVal.Id)
	if err != nil {
		return heap.Value{}, false, vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	gen := obj.Generator
	if gen.Finished {
		return heap.Value{}, true, nil
	}
	v, finished, perr := vm.StepGenerator(genVal, heap.None)
	if perr != nil {
		return heap.Value{}, false, perr
	}
	if finished {
		return heap.Value{}, true, nil
	}
	return v, false, nil
}

// StepGenerator resumes genVal's parked frame until its next YIELD_VALUE
// or until the frame returns, implementing the "frame value whose
// __next__ resumes the frame" model of spec §9. sendValue is pushed as
// the result of the YIELD_VALUE expression the generator is parked at
// (None for a plain __next__ step, non-None for .send()).
//
// A genuine external-call or future-await suspension reached from inside
// a generator body is not supported: StepGenerator has no way to thread
// that suspension back through FOR_ITER/GET_ITER to the top-level driver,
// so it surfaces as a RuntimeError instead. Only the await handshake at
// the top level of a coroutine's own frame (driven directly, not through
// a for-loop) is suspension-capable.
func (vm *VM) StepGenerator(genVal heap.Value, sendValue heap.Value) (heap.Value, bool, *PyError) {
	_, obj, err := vm.Heap.Read(genVal.Id)
	if err != nil {
		return heap.Value{}, false, vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	gen := obj.Generator
	if gen.Finished {
		return heap.Value{}, true, nil
	}
	frame, ok := gen.Frame.(*bytecode.Frame)
	if !ok {
		return heap.Value{}, false, vm.NewExceptionMsg("RuntimeError", "generator has no frame")
	}

	if err := vm.Tracker.PushFrame(); err != nil {
		return heap.Value{}, false, vm.breachException(err)
	}
	base := vm.Frames.Depth()
	vm.Frames.Push(frame)
	if gen.Started {
		frame.GeneratorYield = false
		frame.Push(sendValue)
	}
	gen.Started = true

	result, perr := vm.runLoop(base)
	if perr != nil {
		gen.Finished = true
		return heap.Value{}, false, perr
	}

	if frame.GeneratorYield {
		yielded := vm.Suspension.Result
		vm.Suspension = Suspension{}
		vm.Frames.Pop() // detach; the frame itself lives on in gen.Frame
		vm.Tracker.PopFrame()
		return yielded, false, nil
	}

	if vm.Suspension.Kind != SuspendComplete {
		// The body reached an external call or future await. Unsupported
		// from inside a for-loop-driven generator step; unwind our own
		// bookkeeping and fail loudly rather than corrupt VM state.
		gen.Finished = true
		vm.Frames.Pop()
		vm.Tracker.PopFrame()
		return heap.Value{}, false, vm.NewExceptionMsg("RuntimeError",
			"external call suspension is not supported inside a generator step")
	}

	gen.Finished = true
	return result, true, nil
}
