package vm

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ouros-lang/ouros/bytecode"
	"github.com/ouros-lang/ouros/heap"
)

// Run starts a fresh top-level call: binds args/kwargs into chunk, pushes
// the frame, and drives it to completion, a suspension, or a propagating
// exception. This is the driver-facing entry point (spec §4.6, §6).
func (vm *VM) Run(chunk *bytecode.Chunk, args []heap.Value, kwargs map[string]heap.Value) (heap.Value, *PyError) {
	base := vm.Frames.Depth()
	if _, perr := vm.PushFrame(chunk, args, kwargs); perr != nil {
		return heap.Value{}, perr
	}
	return vm.runLoop(base)
}

// RunFrame drives whatever frame is currently on top of the stack to
// completion at that exact depth, used by CallValue for a synchronous
// dunder/constructor call. If the run suspends at an external call this
// is treated as an error: a user dunder method calling an external
// function is an accepted gap, documented at CallValue.
func (vm *VM) RunFrame() (heap.Value, *PyError) {
	base := vm.Frames.Depth() - 1
	result, perr := vm.runLoop(base)
	if perr == nil && vm.Suspension.Kind != SuspendComplete {
		return heap.Value{}, vm.NewExceptionMsg("RuntimeError", "external call suspension is not supported inside a dunder method")
	}
	return result, perr
}

// Resume continues execution after the driver has answered a suspended
// external call or future await, per spec §4.6 steps 4-6 and §6's
// at-most-once resumption rule.
func (vm *VM) Resume(result heap.Value) (heap.Value, *PyError) {
	if vm.Suspension.Kind != SuspendExternalCall {
		return heap.Value{}, vm.NewExceptionMsg("RuntimeError", "resume called with no pending external call")
	}
	if vm.Suspension.Call.Resumed {
		return heap.Value{}, vm.NewExceptionMsg("RuntimeError", "external call already resumed")
	}
	vm.Suspension.Call.Resumed = true
	f := vm.Frames.Top()
	f.Push(result)
	vm.Suspension = Suspension{}
	return vm.runLoop(0)
}

// ResumeWithException continues after the driver reports that the
// external call itself failed, injecting the failure as a raised
// exception at the CALL_EXTERNAL site rather than a return value.
func (vm *VM) ResumeWithException(exc *PyError) (heap.Value, *PyError) {
	if vm.Suspension.Kind != SuspendExternalCall {
		return heap.Value{}, vm.NewExceptionMsg("RuntimeError", "resume called with no pending external call")
	}
	if vm.Suspension.Call.Resumed {
		return heap.Value{}, vm.NewExceptionMsg("RuntimeError", "external call already resumed")
	}
	vm.Suspension.Call.Resumed = true
	vm.Suspension = Suspension{}
	if !vm.unwind(0, exc) {
		return heap.Value{}, exc
	}
	return vm.runLoop(0)
}

// runLoop is the flat bytecode dispatch loop. It never recurses through Go
// for a CALL of a user function: PushFrame grows vm.Frames and the same
// loop continues on the new top frame, so an external-call suspension at
// any call depth is visible uniformly as "the loop returned without
// reaching baseDepth".
func (vm *VM) runLoop(baseDepth int) (heap.Value, *PyError) {
	for {
		if err := vm.Tracker.CheckSafePoint(); err != nil {
			perr := vm.breachException(err)
			if !vm.unwind(baseDepth, perr) {
				return heap.Value{}, perr
			}
			continue
		}

		f := vm.Frames.Top()
		result, done, suspended, perr := vm.execOne(f)
		if perr != nil {
			if !vm.unwind(baseDepth, perr) {
				return heap.Value{}, perr
			}
			continue
		}
		if suspended {
			return heap.Value{}, nil
		}
		if done {
			vm.PopFrame()
			if vm.Frames.Depth() <= baseDepth {
				return result, nil
			}
			vm.Frames.Top().Push(result)
			continue
		}
	}
}

// unwind searches outward from the top frame for a handler, restoring the
// matched frame's operand stack to its try-time depth and pushing the
// exception value for the handler's bytecode to inspect (spec §4.4.10).
// It reports whether some frame above baseDepth absorbed the exception.
func (vm *VM) unwind(baseDepth int, perr *PyError) bool {
	for {
		if vm.Frames.Depth() <= baseDepth {
			return false
		}
		f := vm.Frames.Top()
		if t, ok := f.PopTry(); ok {
			dropped := f.TruncateTo(t.SavedStack)
			for _, v := range dropped {
				vm.decref(v)
			}
			f.Push(perr.Value)
			f.IP = t.Handler.HandlerPC
			return true
		}
		vm.PopFrame()
	}
}

func nameAt(c *bytecode.Chunk, idx int) string {
	if idx < 0 || idx >= len(c.Constants) {
		return ""
	}
	return c.Constants[idx].Str
}

func u16At(c *bytecode.Chunk, pos int) int {
	return int(binary.BigEndian.Uint16(c.Code[pos : pos+2]))
}

func i16At(c *bytecode.Chunk, pos int) int {
	return int(int16(binary.BigEndian.Uint16(c.Code[pos : pos+2])))
}

// execOne executes the instruction at f.IP. It returns (result, true, _,
// nil) on RETURN_*, (_, _, true, nil) when it initiated a suspension
// (leaving vm.Suspension populated), or (_, false, false, perr) on a
// raised exception; otherwise it advances f.IP itself and returns
// (_, false, false, nil).
func (vm *VM) execOne(f *bytecode.Frame) (heap.Value, bool, bool, *PyError) {
	code := f.Chunk.Code
	op := bytecode.Opcode(code[f.IP])
	opStart := f.IP
	operandPos := opStart + 1

	advance := func() { f.IP = opStart + op.InstructionLen() }

	switch op {
	case bytecode.OpNop:
		advance()
	case bytecode.OpPop:
		vm.decref(f.Pop())
		advance()
	case bytecode.OpDup:
		v := f.Peek()
		vm.Heap.Incref(idOf(v))
		f.Push(v)
		advance()
	case bytecode.OpSwap:
		n := len(f.Stack)
		f.Stack[n-1], f.Stack[n-2] = f.Stack[n-2], f.Stack[n-1]
		advance()
	case bytecode.OpRot:
		c := f.Pop()
		b := f.Pop()
		a := f.Pop()
		f.Push(c)
		f.Push(a)
		f.Push(b)
		advance()

	case bytecode.OpConst:
		idx := u16At(f.Chunk, operandPos)
		f.Push(f.Chunk.Constants[idx].ToValue(vm.Heap))
		advance()
	case bytecode.OpConstNone:
		f.Push(heap.None)
		advance()
	case bytecode.OpConstTrue:
		f.Push(heap.True)
		advance()
	case bytecode.OpConstFalse:
		f.Push(heap.False)
		advance()
	case bytecode.OpConstEllip:
		f.Push(heap.Ellipsis)
		advance()
	case bytecode.OpBuildTuple, bytecode.OpBuildList, bytecode.OpBuildSet:
		n := u16At(f.Chunk, operandPos)
		elems := make([]heap.Value, n)
		copy(elems, f.Stack[len(f.Stack)-n:])
		f.Stack = f.Stack[:len(f.Stack)-n]
		kind := heap.KindTuple
		if op == bytecode.OpBuildList {
			kind = heap.KindList
		} else if op == bytecode.OpBuildSet {
			kind = heap.KindSet
		}
		f.Push(heap.HeapRef(kind, vm.Heap.Alloc(kind, heap.Object{Elems: elems})))
		advance()
	case bytecode.OpBuildDict:
		n := u16At(f.Chunk, operandPos)
		pairs := f.Stack[len(f.Stack)-2*n:]
		f.Stack = f.Stack[:len(f.Stack)-2*n]
		dict := heap.NewDictObj()
		for i := 0; i < n; i++ {
			k, v := pairs[2*i], pairs[2*i+1]
			hv, perr := vm.hashValue(k)
			if perr != nil {
				return heap.Value{}, false, false, perr
			}
			_ = dict.Set(hv, k, v, func(o heap.Value) (bool, error) { return vm.valueEq(k, o) })
		}
		f.Push(heap.HeapRef(heap.KindDict, vm.Heap.Alloc(heap.KindDict, heap.Object{Dict: dict})))
		advance()
	case bytecode.OpBuildSlice:
		step := f.Pop()
		stop := f.Pop()
		start := f.Pop()
		sl := heap.SliceVal{Start: start, Stop: stop, Step: step}
		f.Push(heap.HeapRef(heap.KindSlice, vm.Heap.Alloc(heap.KindSlice, heap.Object{Slice: sl})))
		advance()

	case bytecode.OpLoadLocal:
		slot := u16At(f.Chunk, operandPos)
		v := f.Locals[slot]
		vm.Heap.Incref(idOf(v))
		f.Push(v)
		advance()
	case bytecode.OpStoreLocal:
		slot := u16At(f.Chunk, operandPos)
		old := f.Locals[slot]
		f.Locals[slot] = f.Pop()
		vm.decref(old)
		advance()
	case bytecode.OpDeleteLocal:
		slot := u16At(f.Chunk, operandPos)
		vm.decref(f.Locals[slot])
		f.Locals[slot] = heap.Value{}
		advance()
	case bytecode.OpLoadGlobal:
		name := nameAt(f.Chunk, u16At(f.Chunk, operandPos))
		v, ok := vm.Globals.Globals[name]
		if !ok {
			return heap.Value{}, false, false, vm.NewExceptionMsg("NameError", fmt.Sprintf("name '%s' is not defined", name))
		}
		vm.Heap.Incref(idOf(v))
		f.Push(v)
		advance()
	case bytecode.OpStoreGlobal:
		name := nameAt(f.Chunk, u16At(f.Chunk, operandPos))
		old, had := vm.Globals.Globals[name]
		vm.Globals.Globals[name] = f.Pop()
		if had {
			vm.decref(old)
		}
		advance()
	case bytecode.OpLoadCell:
		idx := int(code[operandPos])
		_, obj, err := vm.Heap.Read(f.Cells[idx])
		if err != nil {
			return heap.Value{}, false, false, vm.NewExceptionMsg("RuntimeError", err.Error())
		}
		v := *obj.Cell
		vm.Heap.Incref(idOf(v))
		f.Push(v)
		advance()
	case bytecode.OpStoreCell:
		idx := int(code[operandPos])
		_, obj, err := vm.Heap.Read(f.Cells[idx])
		if err != nil {
			return heap.Value{}, false, false, vm.NewExceptionMsg("RuntimeError", err.Error())
		}
		old := *obj.Cell
		*obj.Cell = f.Pop()
		vm.decref(old)
		advance()
	case bytecode.OpMakeCell:
		v := f.Pop()
		id := vm.Heap.Alloc(heap.KindCell, heap.Object{Cell: &v})
		f.Cells = append(f.Cells, id)
		vm.Heap.Incref(id)
		f.Push(heap.HeapRef(heap.KindCell, id))
		advance()
	case bytecode.OpLoadCellRef:
		idx := int(code[operandPos])
		id := f.Cells[idx]
		vm.Heap.Incref(id)
		f.Push(heap.HeapRef(heap.KindCell, id))
		advance()
	case bytecode.OpLoadBuiltin:
		name := nameAt(f.Chunk, u16At(f.Chunk, operandPos))
		v, ok := vm.Builtins[name]
		if !ok {
			return heap.Value{}, false, false, vm.NewExceptionMsg("NameError", fmt.Sprintf("name '%s' is not defined", name))
		}
		vm.Heap.Incref(idOf(v))
		f.Push(v)
		advance()

	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpTrueDiv, bytecode.OpFloorDiv,
		bytecode.OpMod, bytecode.OpPow, bytecode.OpLShift, bytecode.OpRShift,
		bytecode.OpBinAnd, bytecode.OpBinOr, bytecode.OpBinXor, bytecode.OpMatMul:
		r := f.Pop()
		l := f.Pop()
		result, perr := vm.BinaryOp(arithSymbol(op), l, r)
		vm.decref(l)
		vm.decref(r)
		if perr != nil {
			return heap.Value{}, false, false, perr
		}
		f.Push(result)
		advance()
	case bytecode.OpUnaryNeg, bytecode.OpUnaryPos, bytecode.OpUnaryInvert:
		v := f.Pop()
		result, perr := vm.unaryOp(op, v)
		vm.decref(v)
		if perr != nil {
			return heap.Value{}, false, false, perr
		}
		f.Push(result)
		advance()

	case bytecode.OpIAdd, bytecode.OpISub, bytecode.OpIMul, bytecode.OpITrueDiv, bytecode.OpIFloorDiv,
		bytecode.OpIMod, bytecode.OpIPow, bytecode.OpILShift, bytecode.OpIRShift,
		bytecode.OpIBinAnd, bytecode.OpIBinOr, bytecode.OpIBinXor:
		r := f.Pop()
		l := f.Pop()
		result, perr := vm.InplaceOp(arithSymbol(op-0x10), l, r)
		vm.decref(l)
		vm.decref(r)
		if perr != nil {
			return heap.Value{}, false, false, perr
		}
		f.Push(result)
		advance()

	case bytecode.OpCmpEq, bytecode.OpCmpNe, bytecode.OpCmpLt, bytecode.OpCmpLe, bytecode.OpCmpGt, bytecode.OpCmpGe:
		r := f.Pop()
		l := f.Pop()
		result, perr := vm.RichCompare(cmpSymbol(op), l, r)
		vm.decref(l)
		vm.decref(r)
		if perr != nil {
			return heap.Value{}, false, false, perr
		}
		f.Push(result)
		advance()
	case bytecode.OpCmpIs:
		r := f.Pop()
		l := f.Pop()
		f.Push(heap.FromBool(l.Equal(r)))
		vm.decref(l)
		vm.decref(r)
		advance()
	case bytecode.OpCmpIsNot:
		r := f.Pop()
		l := f.Pop()
		f.Push(heap.FromBool(!l.Equal(r)))
		vm.decref(l)
		vm.decref(r)
		advance()
	case bytecode.OpCmpIn, bytecode.OpCmpNotIn:
		r := f.Pop()
		l := f.Pop()
		found, perr := vm.containsCheck(r, l)
		vm.decref(l)
		vm.decref(r)
		if perr != nil {
			return heap.Value{}, false, false, perr
		}
		if op == bytecode.OpCmpNotIn {
			found = !found
		}
		f.Push(heap.FromBool(found))
		advance()
	case bytecode.OpNot:
		v := f.Pop()
		truthy, perr := vm.Truthy(v)
		vm.decref(v)
		if perr != nil {
			return heap.Value{}, false, false, perr
		}
		f.Push(heap.FromBool(!truthy))
		advance()
	case bytecode.OpIsTruthy:
		v := f.Peek()
		truthy, perr := vm.Truthy(v)
		if perr != nil {
			return heap.Value{}, false, false, perr
		}
		f.Pop()
		vm.decref(v)
		f.Push(heap.FromBool(truthy))
		advance()

	case bytecode.OpLoadAttr:
		name := nameAt(f.Chunk, u16At(f.Chunk, operandPos))
		obj := f.Pop()
		v, perr := vm.LoadAttr(obj, name)
		vm.decref(obj)
		if perr != nil {
			return heap.Value{}, false, false, perr
		}
		f.Push(v)
		advance()
	case bytecode.OpStoreAttr:
		name := nameAt(f.Chunk, u16At(f.Chunk, operandPos))
		obj := f.Pop()
		val := f.Pop()
		perr := vm.StoreAttr(obj, name, val)
		vm.decref(obj)
		if perr != nil {
			return heap.Value{}, false, false, perr
		}
		advance()
	case bytecode.OpDeleteAttr:
		name := nameAt(f.Chunk, u16At(f.Chunk, operandPos))
		obj := f.Pop()
		perr := vm.DeleteAttr(obj, name)
		vm.decref(obj)
		if perr != nil {
			return heap.Value{}, false, false, perr
		}
		advance()
	case bytecode.OpLoadSubscr:
		key := f.Pop()
		obj := f.Pop()
		v, perr := vm.Subscript(obj, key)
		vm.decref(obj)
		vm.decref(key)
		if perr != nil {
			return heap.Value{}, false, false, perr
		}
		f.Push(v)
		advance()
	case bytecode.OpStoreSubscr:
		val := f.Pop()
		key := f.Pop()
		obj := f.Pop()
		perr := vm.StoreSubscript(obj, key, val)
		vm.decref(obj)
		vm.decref(key)
		vm.decref(val)
		if perr != nil {
			return heap.Value{}, false, false, perr
		}
		advance()
	case bytecode.OpDeleteSubscr:
		key := f.Pop()
		obj := f.Pop()
		perr := vm.DeleteSubscript(obj, key)
		vm.decref(obj)
		if perr != nil {
			return heap.Value{}, false, false, perr
		}
		advance()

	case bytecode.OpJump:
		f.IP = operandPos + 2 + i16At(f.Chunk, operandPos)
	case bytecode.OpJumpIfTrue, bytecode.OpJumpIfFalse:
		v := f.Pop()
		truthy, perr := vm.Truthy(v)
		vm.decref(v)
		if perr != nil {
			return heap.Value{}, false, false, perr
		}
		if truthy == (op == bytecode.OpJumpIfTrue) {
			f.IP = operandPos + 2 + i16At(f.Chunk, operandPos)
		} else {
			advance()
		}
	case bytecode.OpJumpIfTruePop, bytecode.OpJumpIfFalsePop:
		truthy, perr := vm.Truthy(f.Peek())
		if perr != nil {
			return heap.Value{}, false, false, perr
		}
		if truthy == (op == bytecode.OpJumpIfTruePop) {
			f.IP = operandPos + 2 + i16At(f.Chunk, operandPos)
		} else {
			vm.decref(f.Pop())
			advance()
		}
	case bytecode.OpPopJumpIfTrue, bytecode.OpPopJumpIfFalse:
		v := f.Pop()
		truthy, perr := vm.Truthy(v)
		vm.decref(v)
		if perr != nil {
			return heap.Value{}, false, false, perr
		}
		if truthy == (op == bytecode.OpPopJumpIfTrue) {
			f.IP = operandPos + 2 + i16At(f.Chunk, operandPos)
		} else {
			advance()
		}

	case bytecode.OpCall:
		argc := u16At(f.Chunk, operandPos)
		kwargc := u16At(f.Chunk, operandPos+2)
		kwargs := make(map[string]heap.Value, kwargc)
		for i := 0; i < kwargc; i++ {
			val := f.Pop()
			nameVal := f.Pop()
			_, nobj, _ := vm.Heap.Read(nameVal.Id)
			kwargs[nobj.Str] = val
			vm.decref(nameVal)
		}
		args := make([]heap.Value, argc)
		copy(args, f.Stack[len(f.Stack)-argc:])
		f.Stack = f.Stack[:len(f.Stack)-argc]
		callee := f.Pop()

		if callee.Kind == heap.KindFunction {
			_, obj, err := vm.Heap.Read(callee.Id)
			if err != nil {
				return heap.Value{}, false, false, vm.NewExceptionMsg("RuntimeError", err.Error())
			}
			if nf, ok := obj.Function.Code.(NativeFunc); ok {
				result, perr := nf(vm, args, kwargs)
				vm.decref(callee)
				for _, a := range args {
					vm.decref(a)
				}
				if perr != nil {
					return heap.Value{}, false, false, perr
				}
				f.Push(result)
				advance()
				return heap.Value{}, false, false, nil
			}
			chunk, ok := obj.Function.Code.(*bytecode.Chunk)
			if !ok {
				return heap.Value{}, false, false, vm.NewExceptionMsg("RuntimeError", "function has no code")
			}
			if chunk.IsGenerator || chunk.IsCoroutine {
				genVal, perr := vm.NewGeneratorOrCoroutine(chunk, obj.Function.Cells, args, kwargs)
				vm.decref(callee)
				for _, a := range args {
					vm.decref(a)
				}
				if perr != nil {
					return heap.Value{}, false, false, perr
				}
				f.Push(genVal)
				advance()
				return heap.Value{}, false, false, nil
			}
			newFrame, perr := vm.PushFrame(chunk, args, kwargs)
			if perr != nil {
				vm.decref(callee)
				return heap.Value{}, false, false, perr
			}
			newFrame.Cells = obj.Function.Cells
			for _, cellID := range newFrame.Cells {
				vm.Heap.Incref(cellID)
			}
			vm.decref(callee)
			f.IP = opStart + op.InstructionLen()
			return heap.Value{}, false, false, nil
		}

		result, perr := vm.CallValue(callee, args, kwargs)
		vm.decref(callee)
		for _, a := range args {
			vm.decref(a)
		}
		if perr != nil {
			return heap.Value{}, false, false, perr
		}
		f.Push(result)
		advance()

	case bytecode.OpCallExternal:
		nameIdx := u16At(f.Chunk, operandPos)
		argc := u16At(f.Chunk, operandPos+2)
		kwargc := u16At(f.Chunk, operandPos+4)
		kwargs := make(map[string]heap.Value, kwargc)
		for i := 0; i < kwargc; i++ {
			val := f.Pop()
			nameVal := f.Pop()
			_, nobj, _ := vm.Heap.Read(nameVal.Id)
			kwargs[nobj.Str] = val
			vm.decref(nameVal)
		}
		args := make([]heap.Value, argc)
		copy(args, f.Stack[len(f.Stack)-argc:])
		f.Stack = f.Stack[:len(f.Stack)-argc]
		name := ""
		if nameIdx < len(f.Chunk.ExternalNames) {
			name = f.Chunk.ExternalNames[nameIdx]
		}
		f.IP = opStart + op.InstructionLen()
		callID := vm.NextCallID()
		vm.Suspension = Suspension{
			Kind: SuspendExternalCall,
			Call: &ExternalCall{Name: name, Args: args, Kwargs: kwargs, CallID: callID},
		}
		return heap.Value{}, false, true, nil

	case bytecode.OpMakeFunction:
		constIdx := u16At(f.Chunk, operandPos)
		numCells := int(code[operandPos+2])
		cells := make([]heap.HeapId, numCells)
		for i := numCells - 1; i >= 0; i-- {
			cells[i] = f.Pop().Id
		}
		defaultsVal := f.Pop()
		var defaults []heap.Value
		if defaultsVal.Kind == heap.KindTuple {
			_, dobj, _ := vm.Heap.Read(defaultsVal.Id)
			defaults = dobj.Elems
		}
		chunk := f.Chunk.Constants[constIdx].Code
		fn := &heap.FunctionObj{Name: chunk.Name, Code: chunk, Defaults: defaults, Cells: cells}
		id := vm.Heap.Alloc(heap.KindFunction, heap.Object{Function: fn})
		f.Push(heap.HeapRef(heap.KindFunction, id))
		advance()

	case bytecode.OpReturnValue:
		v := f.Pop()
		return v, true, false, nil
	case bytecode.OpReturnNone:
		return heap.None, true, false, nil

	case bytecode.OpYieldValue:
		v := f.Pop()
		f.IP = opStart + op.InstructionLen()
		f.GeneratorYield = true
		vm.Suspension = Suspension{Kind: SuspendComplete, Result: v}
		return heap.Value{}, false, true, nil
	case bytecode.OpGetAwaitable:
		// A future token is already awaitable as-is; any other value is
		// awaited by draining it as an iterator in YIELD_FROM, so
		// GET_AWAITABLE itself is a no-op on the operand already sitting
		// on the stack.
		advance()

	case bytecode.OpYieldFrom:
		top := f.Peek()
		if callID, ok := vm.futureCallID(top); ok {
			if outcome, ready := vm.futures.results[callID]; ready {
				delete(vm.futures.results, callID)
				delete(vm.pendingCalls, callID)
				f.Pop()
				vm.decref(top)
				advance()
				if outcome.Exc != nil {
					return heap.Value{}, false, false, outcome.Exc
				}
				f.Push(outcome.Value)
			} else {
				f.IP = opStart + op.InstructionLen()
				vm.Suspension = Suspension{Kind: SuspendFutureAwait, PendingIDs: []uint64{callID}}
				return heap.Value{}, false, true, nil
			}
		} else {
			val, perr := vm.drainYieldFrom(top)
			f.Pop()
			vm.decref(top)
			if perr != nil {
				return heap.Value{}, false, false, perr
			}
			advance()
			f.Push(val)
		}

	case bytecode.OpGetIter:
		v := f.Pop()
		it, perr := vm.GetIter(v)
		vm.decref(v)
		if perr != nil {
			return heap.Value{}, false, false, perr
		}
		f.Push(it)
		advance()
	case bytecode.OpForIter:
		it := f.Peek()
		val, stop, perr := vm.NextFromIterator(it)
		if perr != nil {
			return heap.Value{}, false, false, perr
		}
		if stop {
			vm.decref(f.Pop())
			f.IP = operandPos + 2 + i16At(f.Chunk, operandPos)
		} else {
			f.Push(val)
			advance()
		}

	case bytecode.OpSetupTry:
		handlerPC := u16At(f.Chunk, operandPos)
		depth := u16At(f.Chunk, operandPos+2)
		f.PushTry(bytecode.TryHandler{HandlerPC: handlerPC, StackDepth: depth})
		advance()
	case bytecode.OpPopTry:
		f.PopTry()
		advance()
	case bytecode.OpRaise:
		mode := code[operandPos]
		var perr *PyError
		switch mode {
		case 0:
			v := f.Pop()
			perr = &PyError{Value: v}
		case 1:
			cause := f.Pop()
			v := f.Pop()
			_, obj, err := vm.Heap.Read(v.Id)
			if err == nil && obj.Exception != nil {
				obj.Exception.Cause = cause.Id
			}
			perr = &PyError{Value: v}
		default:
			v := f.Pop()
			perr = &PyError{Value: v}
		}
		return heap.Value{}, false, false, perr
	case bytecode.OpEndFinally:
		advance()
	case bytecode.OpWithEnter:
		cm := f.Pop()
		v, perr := vm.EnterContext(cm)
		if perr != nil {
			vm.decref(cm)
			return heap.Value{}, false, false, perr
		}
		f.Push(cm)
		f.Push(v)
		advance()
	case bytecode.OpWithExit:
		cm := f.Pop()
		suppress, perr := vm.ExitContext(cm, heap.None, heap.None, heap.None)
		vm.decref(cm)
		if perr != nil {
			return heap.Value{}, false, false, perr
		}
		f.Push(heap.FromBool(suppress))
		advance()
	case bytecode.OpWithExitExc:
		// Stack on entry: [..., cm, exc]. exc is left in place (not popped)
		// so the with-statement's generated reraise path can RAISE it
		// directly when __exit__ does not suppress.
		cm := f.Pop()
		excVal := f.Peek()
		excType := heap.None
		if clsID, ok := vm.ClassOf(excVal); ok {
			excType = heap.HeapRef(heap.KindClass, clsID)
		}
		suppress, perr := vm.ExitContext(cm, excType, excVal, heap.None)
		vm.decref(cm)
		if perr != nil {
			return heap.Value{}, false, false, perr
		}
		f.Push(heap.FromBool(suppress))
		advance()

	case bytecode.OpBuildClass:
		namespaceVal := f.Pop()
		basesVal := f.Pop()
		nameVal := f.Pop()
		_, nsObj, _ := vm.Heap.Read(namespaceVal.Id)
		_, basesObj, _ := vm.Heap.Read(basesVal.Id)
		_, nameObj, _ := vm.Heap.Read(nameVal.Id)
		namespace := make(map[string]heap.Value)
		if nsObj.Dict != nil {
			keys, vals := nsObj.Dict.Items()
			for i, k := range keys {
				_, kobj, _ := vm.Heap.Read(k.Id)
				namespace[kobj.Str] = vals[i]
			}
		}
		cls, perr := vm.BuildClass(nameObj.Str, basesObj.Elems, namespace)
		vm.decref(nameVal)
		vm.decref(basesVal)
		vm.decref(namespaceVal)
		if perr != nil {
			return heap.Value{}, false, false, perr
		}
		f.Push(cls)
		advance()

	default:
		return heap.Value{}, false, false, vm.NewExceptionMsg("SystemError", fmt.Sprintf("unimplemented opcode %s", op))
	}

	return heap.Value{}, false, false, nil
}

func arithSymbol(op bytecode.Opcode) string {
	switch op {
	case bytecode.OpAdd:
		return "+"
	case bytecode.OpSub:
		return "-"
	case bytecode.OpMul:
		return "*"
	case bytecode.OpTrueDiv:
		return "/"
	case bytecode.OpFloorDiv:
		return "//"
	case bytecode.OpMod:
		return "%"
	case bytecode.OpPow:
		return "**"
	case bytecode.OpLShift:
		return "<<"
	case bytecode.OpRShift:
		return ">>"
	case bytecode.OpBinAnd:
		return "&"
	case bytecode.OpBinOr:
		return "|"
	case bytecode.OpBinXor:
		return "^"
	case bytecode.OpMatMul:
		return "@"
	default:
		return "?"
	}
}

func cmpSymbol(op bytecode.Opcode) string {
	switch op {
	case bytecode.OpCmpEq:
		return "=="
	case bytecode.OpCmpNe:
		return "!="
	case bytecode.OpCmpLt:
		return "<"
	case bytecode.OpCmpLe:
		return "<="
	case bytecode.OpCmpGt:
		return ">"
	case bytecode.OpCmpGe:
		return ">="
	default:
		return "?"
	}
}

func (vm *VM) unaryOp(op bytecode.Opcode, v heap.Value) (heap.Value, *PyError) {
	if nativeNumeric(v) {
		switch op {
		case bytecode.OpUnaryPos:
			vm.Heap.Incref(idOf(v))
			return v, nil
		case bytecode.OpUnaryNeg:
			if v.Kind == heap.KindFloat {
				f, _ := vm.asFloat(v)
				return vm.floatValue(-f), nil
			}
			b, _ := vm.asBigInt(v)
			return heap.HeapRef(heap.KindInt, vm.Heap.NewInt(new(big.Int).Neg(b))), nil
		case bytecode.OpUnaryInvert:
			if v.Kind != heap.KindFloat {
				b, _ := vm.asBigInt(v)
				return heap.HeapRef(heap.KindInt, vm.Heap.NewInt(new(big.Int).Not(b))), nil
			}
		}
	}
	return vm.unaryDunder(op, v)
}

func (vm *VM) unaryDunder(op bytecode.Opcode, v heap.Value) (heap.Value, *PyError) {
	name := map[bytecode.Opcode]string{
		bytecode.OpUnaryNeg:    "__neg__",
		bytecode.OpUnaryPos:    "__pos__",
		bytecode.OpUnaryInvert: "__invert__",
	}[op]
	classID, ok := vm.ClassOf(v)
	if !ok {
		return heap.Value{}, vm.NewExceptionMsg("TypeError", fmt.Sprintf("bad operand type for unary %s: '%s'", name, vm.TypeName(v)))
	}
	entry, err := vm.Heap.LookupTypeDunder(classID, name)
	if err != nil {
		return heap.Value{}, vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	if entry.Absent {
		return heap.Value{}, vm.NewExceptionMsg("TypeError", fmt.Sprintf("bad operand type for unary %s: '%s'", name, vm.TypeName(v)))
	}
	return vm.CallValue(entry.Value, []heap.Value{v}, nil)
}

// containsCheck implements `in`/`not in`: __contains__ if present, else
// linear scan via the iteration protocol.
func (vm *VM) containsCheck(container, item heap.Value) (bool, *PyError) {
	classID, ok := vm.ClassOf(container)
	if ok {
		entry, err := vm.Heap.LookupTypeDunder(classID, "__contains__")
		if err != nil {
			return false, vm.NewExceptionMsg("RuntimeError", err.Error())
		}
		if !entry.Absent {
			result, perr := vm.CallValue(entry.Value, []heap.Value{container, item}, nil)
			if perr != nil {
				return false, perr
			}
			return vm.Truthy(result)
		}
	}
	it, perr := vm.GetIter(container)
	if perr != nil {
		return false, perr
	}
	for {
		v, stop, perr := vm.NextFromIterator(it)
		if perr != nil {
			return false, perr
		}
		if stop {
			return false, nil
		}
		eq, err := vm.valueEq(item, v)
		if err != nil {
			return false, vm.NewExceptionMsg("RuntimeError", err.Error())
		}
		if eq {
			return true, nil
		}
	}
}
