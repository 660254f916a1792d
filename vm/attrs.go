package vm

import (
	"fmt"

	"github.com/ouros-lang/ouros/heap"
)

// LoadAttr implements spec §4.4.6: __getattribute__ first, with
// __getattr__ consulted only when __getattribute__ raises AttributeError.
func (vm *VM) LoadAttr(obj heap.Value, name string) (heap.Value, *PyError) {
	result, perr := vm.getattribute(obj, name)
	if perr == nil {
		return result, nil
	}
	if !vm.IsInstanceOfException(perr.Value, "AttributeError") {
		return heap.Value{}, perr
	}
	classID, ok := vm.ClassOf(obj)
	if ok {
		entry, err := vm.Heap.LookupTypeDunder(classID, "__getattr__")
		if err == nil && !entry.Absent {
			return vm.CallValue(entry.Value, []heap.Value{obj, vm.strValue(name)}, nil)
		}
	}
	return heap.Value{}, perr
}

func (vm *VM) strValue(s string) heap.Value {
	return heap.HeapRef(heap.KindStr, vm.Heap.InternString(s))
}

// getattribute implements the default __getattribute__ order: data
// descriptor on type, instance dict, non-data descriptor / class
// attribute on type, else AttributeError. A user __getattribute__
// override, if present on the class, replaces this entirely.
func (vm *VM) getattribute(obj heap.Value, name string) (heap.Value, *PyError) {
	classID, ok := vm.ClassOf(obj)
	if !ok {
		return heap.Value{}, vm.NewExceptionMsg("AttributeError", fmt.Sprintf("'%s' object has no attribute '%s'", vm.TypeName(obj), name))
	}

	if entry, err := vm.Heap.LookupTypeDunder(classID, "__getattribute__"); err == nil && !entry.Absent {
		return vm.CallValue(entry.Value, []heap.Value{obj, vm.strValue(name)}, nil)
	}

	classAttr, classAttrOwner, hasClassAttr := vm.lookupClassAttr(classID, name)
	if hasClassAttr && vm.isDataDescriptor(classAttr) {
		return vm.callDescriptorGet(classAttr, obj, classAttrOwner)
	}

	if obj.Kind == heap.KindInstance {
		_, iobj, err := vm.Heap.Read(obj.Id)
		if err == nil {
			if v, ok := iobj.Instance.Attrs[name]; ok {
				return v, nil
			}
		}
	}

	if hasClassAttr {
		if vm.isNonDataDescriptor(classAttr) {
			return vm.callDescriptorGet(classAttr, obj, classAttrOwner)
		}
		if classAttr.Kind == heap.KindFunction && obj.Kind == heap.KindInstance {
			return vm.bindMethod(classAttr, obj), nil
		}
		return classAttr, nil
	}

	return heap.Value{}, vm.NewExceptionMsg("AttributeError", fmt.Sprintf("'%s' object has no attribute '%s'", vm.TypeName(obj), name))
}

// bindMethod wraps a function found on a class into a bound method tied
// to the instance it was looked up through, matching normal Python
// attribute-access binding (spec §4.4.6/§4.4.9: obj.method(args) must
// reach the method with self already bound, not the raw function).
func (vm *VM) bindMethod(fn, self heap.Value) heap.Value {
	vm.Heap.Incref(fn.Id)
	vm.Heap.Incref(self.Id)
	id := vm.Heap.Alloc(heap.KindBoundMethod, heap.Object{BoundMethod: &heap.BoundMethodObj{Self: self, Function: fn}})
	return heap.HeapRef(heap.KindBoundMethod, id)
}

func (vm *VM) lookupClassAttr(classID heap.HeapId, name string) (heap.Value, heap.HeapId, bool) {
	_, obj, err := vm.Heap.Read(classID)
	if err != nil || obj.Class == nil {
		return heap.Value{}, heap.NoHeapId, false
	}
	for _, ancestor := range obj.Class.MRO {
		_, aObj, err := vm.Heap.Read(ancestor)
		if err != nil || aObj.Class == nil {
			continue
		}
		if v, ok := aObj.Class.Namespace[name]; ok {
			return v, ancestor, true
		}
	}
	return heap.Value{}, heap.NoHeapId, false
}

// isDataDescriptor/isNonDataDescriptor: a data descriptor's type defines
// __set__ or __delete__. Ouros models descriptors as plain instances of
// user classes implementing those dunders, detected structurally.
func (vm *VM) isDataDescriptor(v heap.Value) bool {
	classID, ok := vm.ClassOf(v)
	if !ok {
		return false
	}
	setE, _ := vm.Heap.LookupTypeDunder(classID, "__set__")
	delE, _ := vm.Heap.LookupTypeDunder(classID, "__delete__")
	return !setE.Absent || !delE.Absent
}

func (vm *VM) isNonDataDescriptor(v heap.Value) bool {
	classID, ok := vm.ClassOf(v)
	if !ok {
		return false
	}
	getE, _ := vm.Heap.LookupTypeDunder(classID, "__get__")
	return !getE.Absent && !vm.isDataDescriptor(v)
}

func (vm *VM) callDescriptorGet(descriptor, instance heap.Value, owner heap.HeapId) (heap.Value, *PyError) {
	classID, ok := vm.ClassOf(descriptor)
	if !ok {
		return descriptor, nil
	}
	entry, err := vm.Heap.LookupTypeDunder(classID, "__get__")
	if err != nil || entry.Absent {
		return descriptor, nil
	}
	return vm.CallValue(entry.Value, []heap.Value{descriptor, instance, heap.HeapRef(heap.KindClass, owner)}, nil)
}

// StoreAttr implements spec §4.4.6's store side: __setattr__ if defined,
// else data-descriptor __set__, else instance-dict store.
func (vm *VM) StoreAttr(obj heap.Value, name string, value heap.Value) *PyError {
	classID, ok := vm.ClassOf(obj)
	if ok {
		if entry, err := vm.Heap.LookupTypeDunder(classID, "__setattr__"); err == nil && !entry.Absent {
			_, perr := vm.CallValue(entry.Value, []heap.Value{obj, vm.strValue(name), value}, nil)
			return perr
		}
		if classAttr, _, found := vm.lookupClassAttr(classID, name); found && vm.isDataDescriptor(classAttr) {
			descClass, _ := vm.ClassOf(classAttr)
			entry, _ := vm.Heap.LookupTypeDunder(descClass, "__set__")
			if !entry.Absent {
				_, perr := vm.CallValue(entry.Value, []heap.Value{classAttr, obj, value}, nil)
				return perr
			}
		}
	}
	if obj.Kind != heap.KindInstance {
		return vm.NewExceptionMsg("AttributeError", fmt.Sprintf("'%s' object attributes are read-only", vm.TypeName(obj)))
	}
	_, iobj, err := vm.Heap.Read(obj.Id)
	if err != nil {
		return vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	old, had := iobj.Instance.Attrs[name]
	iobj.Instance.Attrs[name] = value
	vm.Heap.Incref(idOf(value))
	if had {
		vm.decref(old)
	}
	return nil
}

// DeleteAttr implements the delete side symmetrically.
func (vm *VM) DeleteAttr(obj heap.Value, name string) *PyError {
	classID, ok := vm.ClassOf(obj)
	if ok {
		if entry, err := vm.Heap.LookupTypeDunder(classID, "__delattr__"); err == nil && !entry.Absent {
			_, perr := vm.CallValue(entry.Value, []heap.Value{obj, vm.strValue(name)}, nil)
			return perr
		}
	}
	if obj.Kind != heap.KindInstance {
		return vm.NewExceptionMsg("AttributeError", fmt.Sprintf("'%s' object attributes cannot be deleted", vm.TypeName(obj)))
	}
	_, iobj, err := vm.Heap.Read(obj.Id)
	if err != nil {
		return vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	old, had := iobj.Instance.Attrs[name]
	if !had {
		return vm.NewExceptionMsg("AttributeError", fmt.Sprintf("'%s' object has no attribute '%s'", vm.TypeName(obj), name))
	}
	delete(iobj.Instance.Attrs, name)
	vm.decref(old)
	return nil
}
