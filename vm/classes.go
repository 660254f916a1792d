package vm

import (
	"fmt"

	"github.com/ouros-lang/ouros/heap"
)

// BuildClass implements the BUILD_CLASS opcode (spec §4.4.9): compute the
// MRO from the declared bases via C3 linearization, install the
// namespace, and register the fresh class in the heap.
func (vm *VM) BuildClass(name string, bases []heap.Value, namespace map[string]heap.Value) (heap.Value, *PyError) {
	var baseIDs []heap.HeapId
	for _, b := range bases {
		if b.Kind != heap.KindClass {
			return heap.Value{}, vm.NewExceptionMsg("TypeError", "bases must be classes")
		}
		baseIDs = append(baseIDs, b.Id)
	}

	cls := &heap.ClassObj{
		Name:      name,
		Bases:     baseIDs,
		Namespace: namespace,
	}
	id := vm.Heap.Alloc(heap.KindClass, heap.Object{Class: cls})
	mro, err := c3Linearize(vm.Heap, id, baseIDs)
	if err != nil {
		return heap.Value{}, vm.NewExceptionMsg("TypeError", fmt.Sprintf("Cannot create a consistent method resolution order (MRO) for bases of %s", name))
	}
	cls.MRO = mro

	for _, v := range namespace {
		vm.Heap.Incref(idOf(v))
	}

	return heap.HeapRef(heap.KindClass, id), nil
}

// c3Linearize computes self's method resolution order from its direct
// bases' own (already-linearized) MROs using the C3 merge spec §9
// requires: self, followed by a merge of each base's MRO and the list of
// direct bases, each merge step taking the first head that appears
// nowhere else but as a head. Returns an error if no consistent order
// exists (inconsistent hierarchy), mirroring CPython's TypeError.
func c3Linearize(h *heap.Heap, self heap.HeapId, baseIDs []heap.HeapId) ([]heap.HeapId, error) {
	if len(baseIDs) == 0 {
		return []heap.HeapId{self}, nil
	}

	seqs := make([][]heap.HeapId, 0, len(baseIDs)+1)
	for _, b := range baseIDs {
		if _, obj, err := h.Read(b); err == nil && obj.Class != nil {
			seq := make([]heap.HeapId, len(obj.Class.MRO))
			copy(seq, obj.Class.MRO)
			seqs = append(seqs, seq)
		}
	}
	seqs = append(seqs, append([]heap.HeapId{}, baseIDs...))

	return c3Merge([]heap.HeapId{self}, seqs)
}

// c3Merge implements the standard C3 merge over a list of sequences,
// prefixing the result with head (self, already placed by the caller).
func c3Merge(head []heap.HeapId, seqs [][]heap.HeapId) ([]heap.HeapId, error) {
	result := append([]heap.HeapId{}, head...)
	for {
		seqs = pruneEmpty(seqs)
		if len(seqs) == 0 {
			return result, nil
		}
		var candidate heap.HeapId
		found := false
		for _, seq := range seqs {
			c := seq[0]
			if !appearsInTail(seqs, c) {
				candidate, found = c, true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("inconsistent hierarchy")
		}
		result = append(result, candidate)
		for i, seq := range seqs {
			if len(seq) > 0 && seq[0] == candidate {
				seqs[i] = seq[1:]
			}
		}
	}
}

func pruneEmpty(seqs [][]heap.HeapId) [][]heap.HeapId {
	out := seqs[:0]
	for _, s := range seqs {
		if len(s) > 0 {
			out = append(out, s)
		}
	}
	return out
}

func appearsInTail(seqs [][]heap.HeapId, id heap.HeapId) bool {
	for _, seq := range seqs {
		for _, x := range seq[1:] {
			if x == id {
				return true
			}
		}
	}
	return false
}

// Instantiate implements calling a class value: allocate a fresh instance,
// run __init__ if defined, and return the instance (spec §4.4.9). __new__
// is not modeled separately; every class is fixed-layout and allocation
// always succeeds, matching this runtime's closed type universe. Calling a
// BaseException subclass yields an exception value carrying args instead.
func (vm *VM) Instantiate(classVal heap.Value, args []heap.Value, kwargs map[string]heap.Value) (heap.Value, *PyError) {
	if classVal.Kind != heap.KindClass {
		return heap.Value{}, vm.NewExceptionMsg("TypeError", "not a class")
	}
	_, clsObj, err := vm.Heap.Read(classVal.Id)
	if err != nil || clsObj.Class == nil {
		return heap.Value{}, vm.NewExceptionMsg("RuntimeError", "corrupt class object")
	}
	if base, ok := vm.Exceptions["BaseException"]; ok && vm.IsSubclass(classVal.Id, base) {
		vm.Heap.Incref(classVal.Id)
		for _, a := range args {
			vm.Heap.Incref(idOf(a))
		}
		id := vm.Heap.Alloc(heap.KindException, heap.Object{
			Exception: &heap.ExceptionObj{Class: classVal.Id, Args: append([]heap.Value(nil), args...)},
		})
		return heap.HeapRef(heap.KindException, id), nil
	}

	inst := &heap.InstanceObj{Class: classVal.Id, Attrs: make(map[string]heap.Value)}
	instID := vm.Heap.Alloc(heap.KindInstance, heap.Object{Instance: inst})
	instVal := heap.HeapRef(heap.KindInstance, instID)
	vm.Heap.Incref(classVal.Id)

	entry, err := vm.Heap.LookupTypeDunder(classVal.Id, "__init__")
	if err != nil {
		return heap.Value{}, vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	if !entry.Absent {
		full := append([]heap.Value{instVal}, args...)
		result, perr := vm.CallValue(entry.Value, full, kwargs)
		if perr != nil {
			return heap.Value{}, perr
		}
		if result.Kind != heap.KindNone {
			return heap.Value{}, vm.NewExceptionMsg("TypeError", "__init__() should return None")
		}
	} else if len(args) > 0 || len(kwargs) > 0 {
		return heap.Value{}, vm.NewExceptionMsg("TypeError",
			fmt.Sprintf("%s() takes no arguments", clsObj.Class.Name))
	}

	return instVal, nil
}

// EnterContext / ExitContext implement the with-statement protocol (§4.4.9
// as extended by SPEC_FULL.md): __enter__ on entry, __exit__(exc_type,
// exc_value, traceback) on the way out, with __exit__'s truthy return
// suppressing a propagating exception.
func (vm *VM) EnterContext(cm heap.Value) (heap.Value, *PyError) {
	classID, ok := vm.ClassOf(cm)
	if !ok {
		return heap.Value{}, vm.NewExceptionMsg("TypeError", fmt.Sprintf("'%s' object does not support the context manager protocol", vm.TypeName(cm)))
	}
	entry, err := vm.Heap.LookupTypeDunder(classID, "__enter__")
	if err != nil {
		return heap.Value{}, vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	if entry.Absent {
		return heap.Value{}, vm.NewExceptionMsg("TypeError", fmt.Sprintf("'%s' object does not support the context manager protocol", vm.TypeName(cm)))
	}
	return vm.CallValue(entry.Value, []heap.Value{cm}, nil)
}

func (vm *VM) ExitContext(cm heap.Value, excType, excValue, tb heap.Value) (bool, *PyError) {
	classID, ok := vm.ClassOf(cm)
	if !ok {
		return false, vm.NewExceptionMsg("TypeError", fmt.Sprintf("'%s' object does not support the context manager protocol", vm.TypeName(cm)))
	}
	entry, err := vm.Heap.LookupTypeDunder(classID, "__exit__")
	if err != nil {
		return false, vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	if entry.Absent {
		return false, vm.NewExceptionMsg("TypeError", fmt.Sprintf("'%s' object does not support the context manager protocol", vm.TypeName(cm)))
	}
	result, perr := vm.CallValue(entry.Value, []heap.Value{cm, excType, excValue, tb}, nil)
	if perr != nil {
		return false, perr
	}
	suppress, perr2 := vm.Truthy(result)
	if perr2 != nil {
		return false, perr2
	}
	return suppress, nil
}
