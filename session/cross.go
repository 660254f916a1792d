package session

import (
	"math/big"

	"github.com/ouros-lang/ouros/compiler"
	"github.com/ouros-lang/ouros/heap"
	"github.com/ouros-lang/ouros/vm"
)

// TransferVariable reads name from source, re-materializes it in target
// under targetName (or name, if targetName is empty), and binds it there
// (spec §4.8 "transfer_variable... no HeapId escapes"). Sessions are
// locked in a fixed total order by id to match the cross-session
// deadlock-avoidance rule spec §5 states for call_session, which this
// operation shares the same two-session-locking shape with.
func (m *Manager) TransferVariable(sourceID, targetID, name, targetName string) error {
	if targetName == "" {
		targetName = name
	}
	first, second, err := m.sessionPairLocked(sourceID, targetID)
	if err != nil {
		return err
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	if first != second {
		second.mu.Lock()
		defer second.mu.Unlock()
	}

	src, err := m.mustGet(sourceID)
	if err != nil {
		return err
	}
	dst, err := m.mustGet(targetID)
	if err != nil {
		return err
	}

	v, ok := src.VM.Globals.Globals[name]
	if !ok {
		return &VariableNotFoundError{Name: name}
	}
	copied, err := copyValue(src.VM, dst.VM, v)
	if err != nil {
		return err
	}
	incref(dst.VM, copied)
	dst.VM.Globals.Globals[targetName] = copied
	return nil
}

// mustGet looks id up in the session registry, taking m.mu for the
// duration of the map read, and reports a missing id as an error.
func (m *Manager) mustGet(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return s, nil
}

// copyValue re-materializes a "data" value from srcVM's heap into dstVM's
// heap. Heap-identity-bound kinds (functions, classes, instances, ...)
// are rejected: a class object's identity is meaningless in a different
// heap, so isinstance/issubclass against it could never mean what it
// meant in the source session. This is a documented limitation, not an
// oversight — see DESIGN.md.
func copyValue(srcVM, dstVM *vm.VM, v heap.Value) (heap.Value, error) {
	switch v.Kind {
	case heap.KindNone, heap.KindBool, heap.KindEllipsis, heap.KindNotImplemented:
		return v, nil
	}

	_, obj, err := srcVM.Heap.Read(v.Id)
	if err != nil {
		return heap.Value{}, err
	}

	switch v.Kind {
	case heap.KindInt:
		id := dstVM.Heap.NewInt(new(big.Int).Set(obj.Int))
		return heap.HeapRef(heap.KindInt, id), nil
	case heap.KindFloat:
		id := dstVM.Heap.Alloc(heap.KindFloat, heap.Object{Float: obj.Float})
		return heap.HeapRef(heap.KindFloat, id), nil
	case heap.KindComplex:
		id := dstVM.Heap.Alloc(heap.KindComplex, heap.Object{Complex: obj.Complex})
		return heap.HeapRef(heap.KindComplex, id), nil
	case heap.KindStr:
		id := dstVM.Heap.NewString(obj.Str)
		return heap.HeapRef(heap.KindStr, id), nil
	case heap.KindBytes:
		id := dstVM.Heap.Alloc(heap.KindBytes, heap.Object{Bytes: append([]byte(nil), obj.Bytes...)})
		return heap.HeapRef(heap.KindBytes, id), nil
	case heap.KindByteArray:
		id := dstVM.Heap.Alloc(heap.KindByteArray, heap.Object{Bytes: append([]byte(nil), obj.Bytes...)})
		return heap.HeapRef(heap.KindByteArray, id), nil
	case heap.KindTuple, heap.KindList, heap.KindSet, heap.KindFrozenSet:
		elems := make([]heap.Value, len(obj.Elems))
		for i, e := range obj.Elems {
			c, err := copyValue(srcVM, dstVM, e)
			if err != nil {
				return heap.Value{}, err
			}
			incref(dstVM, c)
			elems[i] = c
		}
		id := dstVM.Heap.Alloc(v.Kind, heap.Object{Elems: elems})
		return heap.HeapRef(v.Kind, id), nil
	case heap.KindDict:
		dict := heap.NewDictObj()
		keys, vals := obj.Dict.Items()
		for i, k := range keys {
			ck, err := copyValue(srcVM, dstVM, k)
			if err != nil {
				return heap.Value{}, err
			}
			cv, err := copyValue(srcVM, dstVM, vals[i])
			if err != nil {
				return heap.Value{}, err
			}
			h, perr := dstVM.HashValue(ck)
			if perr != nil {
				return heap.Value{}, perr
			}
			if err := dict.Set(h, ck, cv, func(existing heap.Value) (bool, error) {
				ok, perr := dstVM.ValueEq(existing, ck)
				if perr != nil {
					return false, perr
				}
				return ok, nil
			}); err != nil {
				return heap.Value{}, err
			}
			incref(dstVM, ck)
			incref(dstVM, cv)
		}
		id := dstVM.Heap.Alloc(heap.KindDict, heap.Object{Dict: dict})
		return heap.HeapRef(heap.KindDict, id), nil
	case heap.KindSlice:
		start, err := copyValue(srcVM, dstVM, obj.Slice.Start)
		if err != nil {
			return heap.Value{}, err
		}
		stop, err := copyValue(srcVM, dstVM, obj.Slice.Stop)
		if err != nil {
			return heap.Value{}, err
		}
		step, err := copyValue(srcVM, dstVM, obj.Slice.Step)
		if err != nil {
			return heap.Value{}, err
		}
		id := dstVM.Heap.Alloc(heap.KindSlice, heap.Object{Slice: heap.SliceVal{Start: start, Stop: stop, Step: step}})
		return heap.HeapRef(heap.KindSlice, id), nil
	case heap.KindRange:
		r := heap.RangeVal{Start: new(big.Int).Set(obj.Range.Start), Stop: new(big.Int).Set(obj.Range.Stop), Step: new(big.Int).Set(obj.Range.Step)}
		id := dstVM.Heap.Alloc(heap.KindRange, heap.Object{Range: r})
		return heap.HeapRef(heap.KindRange, id), nil
	}
	return heap.Value{}, &UnsupportedTransferError{Kind: v.Kind.String()}
}

// CallSession runs code in source and writes its result into targetVar
// of target (spec §4.8 "call_session"). Locking follows the same fixed
// id order as TransferVariable; if source == target the single session
// lock suffices for both the run and the variable write.
func (m *Manager) CallSession(sourceID, targetID, code, targetVar string) Outcome {
	first, second, err := m.sessionPairLocked(sourceID, targetID)
	if err != nil {
		return Outcome{Err: &ErrorInfo{ClassName: "RuntimeError", Message: err.Error()}}
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	if first != second {
		second.mu.Lock()
		defer second.mu.Unlock()
	}

	src, err := m.mustGet(sourceID)
	if err != nil {
		return Outcome{Err: &ErrorInfo{ClassName: "RuntimeError", Message: err.Error()}}
	}
	dst, err := m.mustGet(targetID)
	if err != nil {
		return Outcome{Err: &ErrorInfo{ClassName: "RuntimeError", Message: err.Error()}}
	}

	chunk, cerr := compiler.Compile(code, compiler.CompileOptions{
		ScriptName:    src.scriptName,
		ExternalNames: src.externalNames,
	})
	if cerr != nil {
		return Outcome{Err: &ErrorInfo{ClassName: "SyntaxError", Message: cerr.Error()}}
	}
	result, perr := src.VM.Run(chunk, nil, nil)
	src.snapshot()
	if perr != nil {
		return Outcome{Err: src.errorInfo(perr)}
	}
	if src.VM.Suspension.Kind != vm.SuspendComplete {
		return src.toOutcome(result, nil)
	}

	copied, err := copyValue(src.VM, dst.VM, result)
	if err != nil {
		return Outcome{Err: &ErrorInfo{ClassName: "RuntimeError", Message: err.Error()}}
	}
	incref(dst.VM, copied)
	dst.VM.Globals.Globals[targetVar] = copied

	repr, perr := dst.VM.Repr(copied)
	if perr != nil {
		return Outcome{Err: dst.errorInfo(perr)}
	}
	return Outcome{Complete: true, Result: repr}
}
