package vm

import (
	"fmt"

	"github.com/ouros-lang/ouros/heap"
)

// Subscript implements spec §4.4.7's get side for built-in containers
// natively and for user instances via __getitem__, including the
// __index__ re-execution rule: when key is a user instance and the
// container rejects it with a subscript-type error, __index__ is tried
// on key and the caller (the interpreter's LOAD_SUBSCR handler) rewinds
// the instruction pointer one instruction to re-issue the subscript with
// the coerced integer, so continuation for a __index__ call that itself
// pushes a frame works uniformly with any other dunder call.
func (vm *VM) Subscript(obj, key heap.Value) (heap.Value, *PyError) {
	switch obj.Kind {
	case heap.KindList, heap.KindTuple:
		return vm.subscriptSequence(obj, key)
	case heap.KindStr:
		return vm.subscriptString(obj, key)
	case heap.KindDict:
		return vm.subscriptDict(obj, key)
	}

	classID, ok := vm.ClassOf(obj)
	if !ok {
		return heap.Value{}, vm.NewExceptionMsg("TypeError", fmt.Sprintf("'%s' object is not subscriptable", vm.TypeName(obj)))
	}
	entry, err := vm.Heap.LookupTypeDunder(classID, "__getitem__")
	if err != nil {
		return heap.Value{}, vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	if entry.Absent {
		return heap.Value{}, vm.NewExceptionMsg("TypeError", fmt.Sprintf("'%s' object is not subscriptable", vm.TypeName(obj)))
	}
	result, perr := vm.CallValue(entry.Value, []heap.Value{obj, key}, nil)
	if perr != nil && key.Kind == heap.KindInstance && vm.IsInstanceOfException(perr.Value, "TypeError") {
		if coerced, ok2, perr2 := vm.tryIndex(key); perr2 != nil {
			return heap.Value{}, perr2
		} else if ok2 {
			return vm.CallValue(entry.Value, []heap.Value{obj, coerced}, nil)
		}
	}
	return result, perr
}

// tryIndex calls key.__index__() if present.
func (vm *VM) tryIndex(key heap.Value) (heap.Value, bool, *PyError) {
	classID, ok := vm.ClassOf(key)
	if !ok {
		return heap.Value{}, false, nil
	}
	entry, err := vm.Heap.LookupTypeDunder(classID, "__index__")
	if err != nil {
		return heap.Value{}, false, vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	if entry.Absent {
		return heap.Value{}, false, nil
	}
	result, perr := vm.CallValue(entry.Value, []heap.Value{key}, nil)
	if perr != nil {
		return heap.Value{}, false, perr
	}
	return result, true, nil
}

func (vm *VM) subscriptSequence(obj, key heap.Value) (heap.Value, *PyError) {
	_, cobj, err := vm.Heap.Read(obj.Id)
	if err != nil {
		return heap.Value{}, vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	if key.Kind == heap.KindSlice {
		return vm.sliceSequence(obj.Kind, cobj.Elems, key)
	}
	idx, ok := vm.asBigInt(key)
	if !ok {
		return heap.Value{}, vm.NewExceptionMsg("TypeError", fmt.Sprintf("%s indices must be integers", vm.TypeName(obj)))
	}
	n := len(cobj.Elems)
	i := int(idx.Int64())
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return heap.Value{}, vm.NewExceptionMsg("IndexError", fmt.Sprintf("%s index out of range", vm.TypeName(obj)))
	}
	return cobj.Elems[i], nil
}

func (vm *VM) sliceSequence(kind heap.Kind, elems []heap.Value, sl heap.Value) (heap.Value, *PyError) {
	_, sobj, err := vm.Heap.Read(sl.Id)
	if err != nil {
		return heap.Value{}, vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	start, stop, step := resolveSlice(sobj.Slice, len(elems), vm)
	out := []heap.Value{}
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, elems[i])
		}
	} else if step < 0 {
		for i := start; i > stop; i += step {
			out = append(out, elems[i])
		}
	}
	for _, v := range out {
		vm.Heap.Incref(idOf(v))
	}
	return heap.HeapRef(kind, vm.Heap.Alloc(kind, heap.Object{Elems: out})), nil
}

func resolveSlice(s heap.SliceVal, n int, vm *VM) (start, stop, step int) {
	step = 1
	if s.Step.Kind != heap.KindNone {
		if b, ok := vm.asBigInt(s.Step); ok {
			step = int(b.Int64())
		}
	}
	if step > 0 {
		start, stop = 0, n
	} else {
		start, stop = n-1, -1
	}
	if s.Start.Kind != heap.KindNone {
		if b, ok := vm.asBigInt(s.Start); ok {
			start = clampIndex(int(b.Int64()), n, step > 0)
		}
	}
	if s.Stop.Kind != heap.KindNone {
		if b, ok := vm.asBigInt(s.Stop); ok {
			stop = clampIndex(int(b.Int64()), n, step > 0)
		}
	}
	return
}

func clampIndex(i, n int, forward bool) int {
	if i < 0 {
		i += n
	}
	if forward {
		if i < 0 {
			return 0
		}
		if i > n {
			return n
		}
	} else {
		if i < -1 {
			return -1
		}
		if i >= n {
			return n - 1
		}
	}
	return i
}

func (vm *VM) subscriptString(obj, key heap.Value) (heap.Value, *PyError) {
	_, sobj, err := vm.Heap.Read(obj.Id)
	if err != nil {
		return heap.Value{}, vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	runes := []rune(sobj.Str)
	if key.Kind == heap.KindSlice {
		_, slObj, err := vm.Heap.Read(key.Id)
		if err != nil {
			return heap.Value{}, vm.NewExceptionMsg("RuntimeError", err.Error())
		}
		start, stop, step := resolveSlice(slObj.Slice, len(runes), vm)
		var out []rune
		if step > 0 {
			for i := start; i < stop; i += step {
				out = append(out, runes[i])
			}
		} else if step < 0 {
			for i := start; i > stop; i += step {
				out = append(out, runes[i])
			}
		}
		return heap.HeapRef(heap.KindStr, vm.Heap.InternString(string(out))), nil
	}
	idx, ok := vm.asBigInt(key)
	if !ok {
		return heap.Value{}, vm.NewExceptionMsg("TypeError", "string indices must be integers")
	}
	n := len(runes)
	i := int(idx.Int64())
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return heap.Value{}, vm.NewExceptionMsg("IndexError", "string index out of range")
	}
	return heap.HeapRef(heap.KindStr, vm.Heap.InternString(string(runes[i]))), nil
}

func (vm *VM) subscriptDict(obj, key heap.Value) (heap.Value, *PyError) {
	_, dobj, err := vm.Heap.Read(obj.Id)
	if err != nil {
		return heap.Value{}, vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	h, perr := vm.hashValue(key)
	if perr != nil {
		return heap.Value{}, perr
	}
	v, found, perr := vm.dictGet(dobj.Dict, h, key)
	if perr != nil {
		return heap.Value{}, perr
	}
	if !found {
		return heap.Value{}, vm.NewException("KeyError", key)
	}
	return v, nil
}

func (vm *VM) dictGet(d *heap.DictObj, h int64, key heap.Value) (heap.Value, bool, *PyError) {
	var outErr *PyError
	v, found, err := d.Get(h, func(o heap.Value) (bool, error) {
		eq, perr := vm.valueEq(key, o)
		if perr != nil {
			outErr = vm.NewExceptionMsg("RuntimeError", perr.Error())
		}
		return eq, nil
	})
	if outErr != nil {
		return heap.Value{}, false, outErr
	}
	if err != nil {
		return heap.Value{}, false, vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	return v, found, nil
}

func (vm *VM) hashValue(v heap.Value) (int64, *PyError) {
	if v.IsInline() {
		return inlineHashExported(v), nil
	}
	h, err := vm.Heap.Hash(v.Id)
	if err != nil {
		if te, ok := err.(*heap.TypeError); ok {
			return 0, vm.NewExceptionMsg("TypeError", te.Msg)
		}
		return 0, vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	return h, nil
}

func inlineHashExported(v heap.Value) int64 {
	switch v.Kind {
	case heap.KindBool:
		if v.Bool {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// StoreSubscript implements the set side of §4.4.7.
func (vm *VM) StoreSubscript(obj, key, value heap.Value) *PyError {
	switch obj.Kind {
	case heap.KindList:
		_, cobj, err := vm.Heap.Read(obj.Id)
		if err != nil {
			return vm.NewExceptionMsg("RuntimeError", err.Error())
		}
		idx, ok := vm.asBigInt(key)
		if !ok {
			return vm.NewExceptionMsg("TypeError", "list indices must be integers")
		}
		n := len(cobj.Elems)
		i := int(idx.Int64())
		if i < 0 {
			i += n
		}
		if i < 0 || i >= n {
			return vm.NewExceptionMsg("IndexError", "list assignment index out of range")
		}
		old := cobj.Elems[i]
		cobj.Elems[i] = value
		vm.Heap.Incref(idOf(value))
		vm.decref(old)
		return nil
	case heap.KindDict:
		_, dobj, err := vm.Heap.Read(obj.Id)
		if err != nil {
			return vm.NewExceptionMsg("RuntimeError", err.Error())
		}
		h, perr := vm.hashValue(key)
		if perr != nil {
			return perr
		}
		var outErr *PyError
		err = dobj.Dict.Set(h, key, value, func(o heap.Value) (bool, error) {
			eq, perr := vm.valueEq(key, o)
			if perr != nil {
				outErr = vm.NewExceptionMsg("RuntimeError", perr.Error())
			}
			return eq, nil
		})
		if outErr != nil {
			return outErr
		}
		if err != nil {
			return vm.NewExceptionMsg("RuntimeError", err.Error())
		}
		vm.Heap.Incref(idOf(key))
		vm.Heap.Incref(idOf(value))
		return nil
	}

	classID, ok := vm.ClassOf(obj)
	if !ok {
		return vm.NewExceptionMsg("TypeError", fmt.Sprintf("'%s' object does not support item assignment", vm.TypeName(obj)))
	}
	entry, err := vm.Heap.LookupTypeDunder(classID, "__setitem__")
	if err != nil {
		return vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	if entry.Absent {
		return vm.NewExceptionMsg("TypeError", fmt.Sprintf("'%s' object does not support item assignment", vm.TypeName(obj)))
	}
	_, perr := vm.CallValue(entry.Value, []heap.Value{obj, key, value}, nil)
	return perr
}

// DeleteSubscript implements the delete side of §4.4.7.
func (vm *VM) DeleteSubscript(obj, key heap.Value) *PyError {
	if obj.Kind == heap.KindDict {
		_, dobj, err := vm.Heap.Read(obj.Id)
		if err != nil {
			return vm.NewExceptionMsg("RuntimeError", err.Error())
		}
		h, perr := vm.hashValue(key)
		if perr != nil {
			return perr
		}
		var outErr *PyError
		removed, err := dobj.Dict.Delete(h, func(o heap.Value) (bool, error) {
			eq, perr := vm.valueEq(key, o)
			if perr != nil {
				outErr = vm.NewExceptionMsg("RuntimeError", perr.Error())
			}
			return eq, nil
		})
		if outErr != nil {
			return outErr
		}
		if err != nil {
			return vm.NewExceptionMsg("RuntimeError", err.Error())
		}
		if !removed {
			return vm.NewException("KeyError", key)
		}
		vm.decref(key)
		return nil
	}
	classID, ok := vm.ClassOf(obj)
	if !ok {
		return vm.NewExceptionMsg("TypeError", fmt.Sprintf("'%s' object does not support item deletion", vm.TypeName(obj)))
	}
	entry, err := vm.Heap.LookupTypeDunder(classID, "__delitem__")
	if err != nil {
		return vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	if entry.Absent {
		return vm.NewExceptionMsg("TypeError", fmt.Sprintf("'%s' object does not support item deletion", vm.TypeName(obj)))
	}
	_, perr := vm.CallValue(entry.Value, []heap.Value{obj, key}, nil)
	return perr
}
