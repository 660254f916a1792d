package vm

import (
	"fmt"

	"github.com/ouros-lang/ouros/bytecode"
	"github.com/ouros-lang/ouros/heap"
)

// BindArguments performs positional/keyword/defaults/*args/**kwargs
// binding into a fresh frame's locals, per spec §4.3. Failures return a
// TypeError exactly as enumerated there: too many positional, missing
// required, duplicate keyword, unknown keyword (unless **kwargs absorbs
// it), non-string ** keys.
func (vm *VM) BindArguments(chunk *bytecode.Chunk, args []heap.Value, kwargs map[string]heap.Value) (*bytecode.Frame, *PyError) {
	frame := bytecode.NewFrame(chunk, vm.GlobalsID)

	numParams := len(chunk.ParamNames)
	numDefaults := len(chunk.DefaultValues)
	firstDefaultIdx := numParams - numDefaults

	bound := make([]bool, numParams)

	if len(args) > numParams && chunk.VarargsName == "" {
		return nil, vm.NewExceptionMsg("TypeError",
			fmt.Sprintf("%s() takes %d positional arguments but %d were given", chunk.Name, numParams, len(args)))
	}
	for i := 0; i < numParams && i < len(args); i++ {
		frame.Locals[i] = args[i]
		bound[i] = true
	}

	if chunk.VarargsName != "" {
		extra := []heap.Value{}
		if len(args) > numParams {
			extra = append(extra, args[numParams:]...)
		}
		tupID := vm.Heap.Alloc(heap.KindTuple, heap.Object{Elems: extra})
		slot := vm.slotFor(chunk, chunk.VarargsName)
		if slot >= 0 {
			frame.Locals[slot] = heap.HeapRef(heap.KindTuple, tupID)
		}
	}

	var kwBucket map[string]heap.Value
	if chunk.KwargsName != "" {
		kwBucket = make(map[string]heap.Value)
	}

	for name, v := range kwargs {
		slot := indexOf(chunk.ParamNames, name)
		if slot < 0 {
			if kwBucket != nil {
				kwBucket[name] = v
				continue
			}
			return nil, vm.NewExceptionMsg("TypeError",
				fmt.Sprintf("%s() got an unexpected keyword argument '%s'", chunk.Name, name))
		}
		if bound[slot] {
			return nil, vm.NewExceptionMsg("TypeError",
				fmt.Sprintf("%s() got multiple values for argument '%s'", chunk.Name, name))
		}
		frame.Locals[slot] = v
		bound[slot] = true
	}

	for i := 0; i < numParams; i++ {
		if bound[i] {
			continue
		}
		if i >= firstDefaultIdx {
			frame.Locals[i] = chunk.DefaultValues[i-firstDefaultIdx].ToValue(vm.Heap)
			continue
		}
		return nil, vm.NewExceptionMsg("TypeError",
			fmt.Sprintf("%s() missing required positional argument: '%s'", chunk.Name, chunk.ParamNames[i]))
	}

	if kwBucket != nil {
		elems := make([]heap.Value, 0, len(kwBucket)*2)
		dict := heap.NewDictObj()
		for k, v := range kwBucket {
			kID := vm.Heap.InternString(k)
			kv := heap.HeapRef(heap.KindStr, kID)
			hh, _ := vm.Heap.Hash(kID)
			_ = dict.Set(hh, kv, v, func(o heap.Value) (bool, error) { return vm.valueEq(kv, o) })
		}
		_ = elems
		slot := vm.slotFor(chunk, chunk.KwargsName)
		if slot >= 0 {
			dictID := vm.Heap.Alloc(heap.KindDict, heap.Object{Dict: dict})
			frame.Locals[slot] = heap.HeapRef(heap.KindDict, dictID)
		}
	}

	for _, h := range chunk.Handlers {
		_ = h
	}

	return frame, nil
}

func (vm *VM) slotFor(chunk *bytecode.Chunk, name string) int {
	for _, v := range chunk.Vars {
		if v.Name == name {
			return v.Slot
		}
	}
	return -1
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func (vm *VM) valueEq(a, b heap.Value) (bool, error) {
	return vm.Eq(vm.Heap, a, b)
}

// PushFrame binds args/kwargs, enforces the recursion-depth limit, and
// pushes the resulting frame onto the VM's call stack.
func (vm *VM) PushFrame(chunk *bytecode.Chunk, args []heap.Value, kwargs map[string]heap.Value) (*bytecode.Frame, *PyError) {
	if err := vm.Tracker.PushFrame(); err != nil {
		return nil, vm.breachException(err)
	}
	frame, perr := vm.BindArguments(chunk, args, kwargs)
	if perr != nil {
		vm.Tracker.PopFrame()
		return nil, perr
	}
	vm.Frames.Push(frame)
	return frame, nil
}

// PopFrame releases a frame's locals/cells and pops the recursion counter.
// This is the single place continuation cleanup for the frame's pending
// dunder bookkeeping happens (spec §4.3).
func (vm *VM) PopFrame() *bytecode.Frame {
	f := vm.Frames.Pop()
	for _, v := range f.Locals {
		vm.decref(v)
	}
	for _, cellID := range f.Cells {
		vm.Heap.Decref(cellID)
	}
	vm.Tracker.PopFrame()
	return f
}

// NewGeneratorOrCoroutine binds args/kwargs against chunk without pushing
// a frame onto the call stack, and wraps the resulting (unstarted) frame
// in a GeneratorObj (spec §9 "Generators... a frame value whose __next__
// resumes the frame"). Calling a generator/coroutine function never runs
// its body; the body only advances one step at a time via StepGenerator,
// driven by FOR_ITER/GET_ITER or the awaitable handshake.
func (vm *VM) NewGeneratorOrCoroutine(chunk *bytecode.Chunk, cells []heap.HeapId, args []heap.Value, kwargs map[string]heap.Value) (heap.Value, *PyError) {
	frame, perr := vm.BindArguments(chunk, args, kwargs)
	if perr != nil {
		return heap.Value{}, perr
	}
	frame.Cells = cells
	gen := &heap.GeneratorObj{Frame: frame, Name: chunk.Name, IsCoroutine: chunk.IsCoroutine}
	kind := heap.KindGenerator
	if chunk.IsCoroutine {
		kind = heap.KindCoroutine
	}
	id := vm.Heap.Alloc(kind, heap.Object{Generator: gen})
	return heap.HeapRef(kind, id), nil
}

func (vm *VM) decref(v heap.Value) {
	if !v.IsInline() {
		vm.Heap.Decref(v.Id)
	}
}

// CallValue calls any callable Value (Function, BoundMethod, or Class
// instantiation) and runs it to completion, used by native dispatch paths
// (hashing, sorting keys, etc.) that need a synchronous result rather
// than suspending the outer frame. It must not be used for calls that may
// themselves suspend on an external call; those go through the ordinary
// CALL opcode path in the interpreter loop.
func (vm *VM) CallValue(callee heap.Value, args []heap.Value, kwargs map[string]heap.Value) (heap.Value, *PyError) {
	switch callee.Kind {
	case heap.KindFunction:
		_, obj, err := vm.Heap.Read(callee.Id)
		if err != nil {
			return heap.Value{}, vm.NewExceptionMsg("RuntimeError", err.Error())
		}
		if nf, ok := obj.Function.Code.(NativeFunc); ok {
			return nf(vm, args, kwargs)
		}
		chunk, ok := obj.Function.Code.(*bytecode.Chunk)
		if !ok {
			return heap.Value{}, vm.NewExceptionMsg("RuntimeError", "function has no code")
		}
		if chunk.IsGenerator || chunk.IsCoroutine {
			return vm.NewGeneratorOrCoroutine(chunk, obj.Function.Cells, args, kwargs)
		}
		// args and kwargs stay owned by the caller; the frame's locals take
		// their own references, which PopFrame releases.
		for _, a := range args {
			if !a.IsInline() {
				vm.Heap.Incref(a.Id)
			}
		}
		for _, v := range kwargs {
			if !v.IsInline() {
				vm.Heap.Incref(v.Id)
			}
		}
		frame, perr := vm.PushFrame(chunk, args, kwargs)
		if perr != nil {
			return heap.Value{}, perr
		}
		frame.Cells = obj.Function.Cells
		for _, cellID := range frame.Cells {
			vm.Heap.Incref(cellID)
		}
		return vm.RunFrame()
	case heap.KindBoundMethod:
		_, obj, err := vm.Heap.Read(callee.Id)
		if err != nil {
			return heap.Value{}, vm.NewExceptionMsg("RuntimeError", err.Error())
		}
		full := append([]heap.Value{obj.BoundMethod.Self}, args...)
		return vm.CallValue(obj.BoundMethod.Function, full, kwargs)
	case heap.KindClass:
		return vm.Instantiate(callee, args, kwargs)
	default:
		return vm.CallDunder(callee, args, kwargs)
	}
}

// CallDunder calls callee.__call__, used when callee is a plain instance
// rather than one of the three built-in callable kinds (spec §4.4.9).
func (vm *VM) CallDunder(callee heap.Value, args []heap.Value, kwargs map[string]heap.Value) (heap.Value, *PyError) {
	if callee.Kind != heap.KindInstance {
		typeName := vm.TypeName(callee)
		return heap.Value{}, vm.NewExceptionMsg("TypeError", fmt.Sprintf("'%s' object is not callable", typeName))
	}
	_, obj, err := vm.Heap.Read(callee.Id)
	if err != nil {
		return heap.Value{}, vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	entry, err := vm.Heap.LookupTypeDunder(obj.Instance.Class, "__call__")
	if err != nil {
		return heap.Value{}, vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	if entry.Absent {
		typeName := vm.TypeName(callee)
		return heap.Value{}, vm.NewExceptionMsg("TypeError", fmt.Sprintf("'%s' object is not callable", typeName))
	}
	full := append([]heap.Value{callee}, args...)
	return vm.CallValue(entry.Value, full, kwargs)
}
