package vm

import "github.com/ouros-lang/ouros/heap"

// TypeName returns the sandbox-visible type name of v, used in every
// TypeError message the dispatch core raises.
func (vm *VM) TypeName(v heap.Value) string {
	if v.Kind == heap.KindInstance {
		_, obj, err := vm.Heap.Read(v.Id)
		if err == nil && obj.Instance != nil {
			if name, err := vm.Heap.ClassName(obj.Instance.Class); err == nil {
				return name
			}
		}
	}
	if v.Kind == heap.KindClass {
		return "type"
	}
	return v.Kind.String()
}

// ClassOf returns the HeapId of v's type, used by dunder lookup.
func (vm *VM) ClassOf(v heap.Value) (heap.HeapId, bool) {
	if v.Kind == heap.KindInstance {
		_, obj, err := vm.Heap.Read(v.Id)
		if err != nil || obj.Instance == nil {
			return heap.NoHeapId, false
		}
		return obj.Instance.Class, true
	}
	if v.Kind == heap.KindException {
		_, obj, err := vm.Heap.Read(v.Id)
		if err != nil || obj.Exception == nil {
			return heap.NoHeapId, false
		}
		return obj.Exception.Class, true
	}
	classID, ok := vm.BuiltinClasses[v.Kind]
	return classID, ok
}

// IsSubclass reports whether sub's MRO contains base.
func (vm *VM) IsSubclass(sub, base heap.HeapId) bool {
	if sub == base {
		return true
	}
	_, obj, err := vm.Heap.Read(sub)
	if err != nil || obj.Class == nil {
		return false
	}
	for _, anc := range obj.Class.MRO {
		if anc == base {
			return true
		}
	}
	return false
}

// IsProperSubclass reports sub != base && IsSubclass(sub, base).
func (vm *VM) IsProperSubclass(sub, base heap.HeapId) bool {
	return sub != base && vm.IsSubclass(sub, base)
}
