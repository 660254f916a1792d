package vm

import (
	"fmt"
	"io"
	"math/big"

	"github.com/ouros-lang/ouros/heap"
)

// NativeFunc is a builtin implemented in Go rather than compiled bytecode.
// It runs synchronously to completion and never suspends: CallValue and
// the interpreter's CALL opcode both special-case a FunctionObj whose Code
// holds one of these, bypassing the ordinary frame-push/bytecode-dispatch
// path entirely.
type NativeFunc func(vm *VM, args []heap.Value, kwargs map[string]heap.Value) (heap.Value, *PyError)

// InstallBuiltins populates vm.Builtins with the builtin namespace
// LOAD_BUILTIN resolves against: every registered exception class (so
// `raise ValueError(...)` and `except KeyError:` work as plain Name
// lookups) plus a small set of native functions covering the documented
// Python subset (spec §5 Non-goals scopes the language down, but
// `isinstance`/`len`/`print`/etc. are load-bearing for the subset that
// remains, and `isinstance` specifically backs every compiled
// try/except clause's runtime type check).
func InstallBuiltins(vm *VM) {
	for name, classID := range vm.Exceptions {
		vm.Builtins[name] = heap.HeapRef(heap.KindClass, classID)
	}
	for name, fn := range nativeBuiltins {
		vm.Builtins[name] = vm.newNativeFunc(name, fn)
	}
}

func (vm *VM) newNativeFunc(name string, fn NativeFunc) heap.Value {
	id := vm.Heap.Alloc(heap.KindFunction, heap.Object{
		Function: &heap.FunctionObj{Name: name, Code: fn},
	})
	return heap.HeapRef(heap.KindFunction, id)
}

var nativeBuiltins = map[string]NativeFunc{
	"isinstance": biIsinstance,
	"issubclass": biIssubclass,
	"len":        biLen,
	"repr":       biRepr,
	"str":        biStr,
	"print":      biPrint,
	"type":       biType,
	"abs":        biAbs,
	"callable":   biCallable,
	"hash":       biHash,
}

func biIsinstance(vm *VM, args []heap.Value, kwargs map[string]heap.Value) (heap.Value, *PyError) {
	if len(args) != 2 {
		return heap.Value{}, vm.NewExceptionMsg("TypeError", "isinstance() takes exactly 2 arguments")
	}
	classes, perr := classCandidates(vm, args[1])
	if perr != nil {
		return heap.Value{}, perr
	}
	valClass, ok := vm.ClassOf(args[0])
	if !ok {
		return heap.False, nil
	}
	for _, c := range classes {
		if vm.IsSubclass(valClass, c) {
			return heap.True, nil
		}
	}
	return heap.False, nil
}

func biIssubclass(vm *VM, args []heap.Value, kwargs map[string]heap.Value) (heap.Value, *PyError) {
	if len(args) != 2 {
		return heap.Value{}, vm.NewExceptionMsg("TypeError", "issubclass() takes exactly 2 arguments")
	}
	if args[0].Kind != heap.KindClass {
		return heap.Value{}, vm.NewExceptionMsg("TypeError", "issubclass() arg 1 must be a class")
	}
	classes, perr := classCandidates(vm, args[1])
	if perr != nil {
		return heap.Value{}, perr
	}
	for _, c := range classes {
		if vm.IsSubclass(args[0].Id, c) {
			return heap.True, nil
		}
	}
	return heap.False, nil
}

// classCandidates normalizes isinstance/issubclass's second argument,
// which Python allows to be either a single class or a tuple of classes.
func classCandidates(vm *VM, v heap.Value) ([]heap.HeapId, *PyError) {
	if v.Kind == heap.KindClass {
		return []heap.HeapId{v.Id}, nil
	}
	if v.Kind == heap.KindTuple {
		_, obj, err := vm.Heap.Read(v.Id)
		if err != nil {
			return nil, vm.NewExceptionMsg("RuntimeError", err.Error())
		}
		out := make([]heap.HeapId, 0, len(obj.Elems))
		for _, e := range obj.Elems {
			if e.Kind != heap.KindClass {
				return nil, vm.NewExceptionMsg("TypeError", "isinstance() arg 2 must be a type or tuple of types")
			}
			out = append(out, e.Id)
		}
		return out, nil
	}
	return nil, vm.NewExceptionMsg("TypeError", "isinstance() arg 2 must be a type or tuple of types")
}

func biLen(vm *VM, args []heap.Value, kwargs map[string]heap.Value) (heap.Value, *PyError) {
	if len(args) != 1 {
		return heap.Value{}, vm.NewExceptionMsg("TypeError", "len() takes exactly one argument")
	}
	v := args[0]
	var n int
	switch v.Kind {
	case heap.KindStr:
		_, obj, _ := vm.Heap.Read(v.Id)
		n = len([]rune(obj.Str))
	case heap.KindBytes, heap.KindByteArray:
		_, obj, _ := vm.Heap.Read(v.Id)
		n = len(obj.Bytes)
	case heap.KindTuple, heap.KindList, heap.KindSet, heap.KindFrozenSet:
		_, obj, _ := vm.Heap.Read(v.Id)
		n = len(obj.Elems)
	case heap.KindDict:
		_, obj, _ := vm.Heap.Read(v.Id)
		n = obj.Dict.Len()
	default:
		classID, ok := vm.ClassOf(v)
		if !ok {
			return heap.Value{}, vm.NewExceptionMsg("TypeError", fmt.Sprintf("object of type '%s' has no len()", vm.TypeName(v)))
		}
		entry, err := vm.Heap.LookupTypeDunder(classID, "__len__")
		if err != nil {
			return heap.Value{}, vm.NewExceptionMsg("RuntimeError", err.Error())
		}
		if entry.Absent {
			return heap.Value{}, vm.NewExceptionMsg("TypeError", fmt.Sprintf("object of type '%s' has no len()", vm.TypeName(v)))
		}
		result, perr := vm.CallValue(entry.Value, []heap.Value{v}, nil)
		if perr != nil {
			return heap.Value{}, perr
		}
		big, ok := vm.asBigInt(result)
		if !ok {
			return heap.Value{}, vm.NewExceptionMsg("TypeError", "__len__ should return an integer")
		}
		n = int(big.Int64())
	}
	id := vm.Heap.NewInt(big.NewInt(int64(n)))
	return heap.HeapRef(heap.KindInt, id), nil
}

func biRepr(vm *VM, args []heap.Value, kwargs map[string]heap.Value) (heap.Value, *PyError) {
	if len(args) != 1 {
		return heap.Value{}, vm.NewExceptionMsg("TypeError", "repr() takes exactly one argument")
	}
	s, perr := vm.Repr(args[0])
	if perr != nil {
		return heap.Value{}, perr
	}
	id := vm.Heap.NewString(s)
	return heap.HeapRef(heap.KindStr, id), nil
}

func biStr(vm *VM, args []heap.Value, kwargs map[string]heap.Value) (heap.Value, *PyError) {
	if len(args) == 0 {
		id := vm.Heap.NewString("")
		return heap.HeapRef(heap.KindStr, id), nil
	}
	if len(args) != 1 {
		return heap.Value{}, vm.NewExceptionMsg("TypeError", "str() takes at most one argument")
	}
	s, perr := vm.Str(args[0])
	if perr != nil {
		return heap.Value{}, perr
	}
	id := vm.Heap.NewString(s)
	return heap.HeapRef(heap.KindStr, id), nil
}

// biPrint writes to vm.Stdout (set by the session manager per execute
// call, spec §6's "optional print sink"), defaulting to io.Discard so a
// sandbox with no configured sink never blocks or panics on print().
func biPrint(vm *VM, args []heap.Value, kwargs map[string]heap.Value) (heap.Value, *PyError) {
	w := vm.Stdout
	if w == nil {
		w = io.Discard
	}
	for i, a := range args {
		if i > 0 {
			fmt.Fprint(w, " ")
		}
		s, perr := vm.Str(a)
		if perr != nil {
			return heap.Value{}, perr
		}
		fmt.Fprint(w, s)
	}
	fmt.Fprintln(w)
	return heap.None, nil
}

func biType(vm *VM, args []heap.Value, kwargs map[string]heap.Value) (heap.Value, *PyError) {
	if len(args) != 1 {
		return heap.Value{}, vm.NewExceptionMsg("TypeError", "type() takes exactly one argument")
	}
	classID, ok := vm.ClassOf(args[0])
	if !ok {
		return heap.Value{}, vm.NewExceptionMsg("TypeError", "value has no associated class")
	}
	return heap.HeapRef(heap.KindClass, classID), nil
}

func biAbs(vm *VM, args []heap.Value, kwargs map[string]heap.Value) (heap.Value, *PyError) {
	if len(args) != 1 {
		return heap.Value{}, vm.NewExceptionMsg("TypeError", "abs() takes exactly one argument")
	}
	switch args[0].Kind {
	case heap.KindInt:
		_, obj, _ := vm.Heap.Read(args[0].Id)
		id := vm.Heap.NewInt(new(big.Int).Abs(obj.Int))
		return heap.HeapRef(heap.KindInt, id), nil
	case heap.KindFloat:
		_, obj, _ := vm.Heap.Read(args[0].Id)
		f := obj.Float
		if f < 0 {
			f = -f
		}
		id := vm.Heap.Alloc(heap.KindFloat, heap.Object{Float: f})
		return heap.HeapRef(heap.KindFloat, id), nil
	}
	return heap.Value{}, vm.NewExceptionMsg("TypeError", fmt.Sprintf("bad operand type for abs(): '%s'", vm.TypeName(args[0])))
}

func biCallable(vm *VM, args []heap.Value, kwargs map[string]heap.Value) (heap.Value, *PyError) {
	if len(args) != 1 {
		return heap.Value{}, vm.NewExceptionMsg("TypeError", "callable() takes exactly one argument")
	}
	v := args[0]
	if v.Kind == heap.KindFunction || v.Kind == heap.KindBoundMethod || v.Kind == heap.KindClass {
		return heap.True, nil
	}
	if v.Kind == heap.KindInstance {
		classID, ok := vm.ClassOf(v)
		if ok {
			entry, err := vm.Heap.LookupTypeDunder(classID, "__call__")
			if err == nil && !entry.Absent {
				return heap.True, nil
			}
		}
	}
	return heap.False, nil
}

func biHash(vm *VM, args []heap.Value, kwargs map[string]heap.Value) (heap.Value, *PyError) {
	if len(args) != 1 {
		return heap.Value{}, vm.NewExceptionMsg("TypeError", "hash() takes exactly one argument")
	}
	h, perr := vm.hashValue(args[0])
	if perr != nil {
		return heap.Value{}, perr
	}
	id := vm.Heap.NewInt(big.NewInt(h))
	return heap.HeapRef(heap.KindInt, id), nil
}
