package vm

import (
	"fmt"

	"github.com/ouros-lang/ouros/heap"
)

type dunderPair struct{ OP, ROP string }

var binaryDunders = map[string]dunderPair{
	"+": {"__add__", "__radd__"}, "-": {"__sub__", "__rsub__"},
	"*": {"__mul__", "__rmul__"}, "/": {"__truediv__", "__rtruediv__"},
	"//": {"__floordiv__", "__rfloordiv__"}, "%": {"__mod__", "__rmod__"},
	"**": {"__pow__", "__rpow__"}, "<<": {"__lshift__", "__rlshift__"},
	">>": {"__rshift__", "__rrshift__"}, "&": {"__and__", "__rand__"},
	"|": {"__or__", "__ror__"}, "^": {"__xor__", "__rxor__"},
}

var inplaceDunders = map[string]string{
	"+": "__iadd__", "-": "__isub__", "*": "__imul__", "/": "__itruediv__",
	"//": "__ifloordiv__", "%": "__imod__", "**": "__ipow__",
	"<<": "__ilshift__", ">>": "__irshift__", "&": "__iand__",
	"|": "__ior__", "^": "__ixor__",
}

var orderingDunders = map[string]dunderPair{
	"<": {"__lt__", "__gt__"}, "<=": {"__le__", "__ge__"},
	">": {"__gt__", "__lt__"}, ">=": {"__ge__", "__le__"},
}

// BinaryOp implements spec §4.4.2 in full: fast path, primary dunder,
// subclass-priority swap, reflected dunder, failure.
//
// Note: when a user dunder call itself needs to suspend at an external
// call, this synchronous implementation cannot yield that suspension back
// through an arithmetic opcode — it runs the callee to completion via
// CallValue, which turns a suspension attempted inside a dunder into a
// RuntimeError (see RunFrame's doc comment). A fuller implementation
// would need a continuation register recording which protocol stage
// (primary/reflected/in-place dunder) was in flight so dispatch could
// resume it after the suspended call returns; that register does not
// exist in this runtime (see DESIGN.md's Known limitations).
func (vm *VM) BinaryOp(op string, l, r heap.Value) (heap.Value, *PyError) {
	if result, ok, perr := vm.fastArith(op, l, r); ok {
		if perr != nil {
			return heap.Value{}, perr
		}
		return result, nil
	}

	pair, known := binaryDunders[op]
	if !known {
		return heap.Value{}, vm.NewExceptionMsg("SystemError", "unknown binary operator "+op)
	}

	lClass, _ := vm.ClassOf(l)
	rClass, _ := vm.ClassOf(r)
	subclassSwap := lClass != rClass && vm.IsProperSubclass(rClass, lClass) && vm.hasOwnDunder(rClass, pair.ROP, lClass)

	tryStage := func(ownerClass heap.HeapId, name string, a, b heap.Value) (heap.Value, bool, *PyError) {
		entry, err := vm.Heap.LookupTypeDunder(ownerClass, name)
		if err != nil {
			return heap.Value{}, false, vm.NewExceptionMsg("RuntimeError", err.Error())
		}
		if entry.Absent {
			return heap.Value{}, false, nil
		}
		result, perr := vm.CallValue(entry.Value, []heap.Value{a, b}, nil)
		if perr != nil {
			return heap.Value{}, false, perr
		}
		if result.Kind == heap.KindNotImplemented {
			return heap.Value{}, false, nil
		}
		return result, true, nil
	}

	if subclassSwap {
		if result, ok, perr := tryStage(rClass, pair.ROP, r, l); perr != nil {
			return heap.Value{}, perr
		} else if ok {
			return result, nil
		}
	}
	if result, ok, perr := tryStage(lClass, pair.OP, l, r); perr != nil {
		return heap.Value{}, perr
	} else if ok {
		return result, nil
	}
	if !subclassSwap {
		if result, ok, perr := tryStage(rClass, pair.ROP, r, l); perr != nil {
			return heap.Value{}, perr
		} else if ok {
			return result, nil
		}
	}

	return heap.Value{}, vm.NewExceptionMsg("TypeError",
		fmt.Sprintf("unsupported operand type(s) for %s: '%s' and '%s'", op, vm.TypeName(l), vm.TypeName(r)))
}

func (vm *VM) hasOwnDunder(classID heap.HeapId, name string, ancestorToExclude heap.HeapId) bool {
	entry, err := vm.Heap.LookupTypeDunder(classID, name)
	if err != nil || entry.Absent {
		return false
	}
	_, obj, err := vm.Heap.Read(classID)
	if err != nil || obj.Class == nil {
		return false
	}
	return entry.DefiningMRO < len(obj.Class.MRO) && obj.Class.MRO[entry.DefiningMRO] != ancestorToExclude
}

// InplaceOp implements spec §4.4.3: try IOP; NotImplemented falls through
// to the full binary protocol; any exception from IOP propagates without
// falling through.
func (vm *VM) InplaceOp(op string, l, r heap.Value) (heap.Value, *PyError) {
	iop, known := inplaceDunders[op]
	if !known {
		return vm.BinaryOp(op, l, r)
	}
	lClass, ok := vm.ClassOf(l)
	if ok {
		entry, err := vm.Heap.LookupTypeDunder(lClass, iop)
		if err != nil {
			return heap.Value{}, vm.NewExceptionMsg("RuntimeError", err.Error())
		}
		if !entry.Absent {
			result, perr := vm.CallValue(entry.Value, []heap.Value{l, r}, nil)
			if perr != nil {
				return heap.Value{}, perr
			}
			if result.Kind != heap.KindNotImplemented {
				return result, nil
			}
		}
	}
	return vm.BinaryOp(op, l, r)
}

// RichCompare implements spec §4.4.4's comparison protocol for ==, !=,
// and the four ordering operators.
func (vm *VM) RichCompare(op string, l, r heap.Value) (heap.Value, *PyError) {
	if b, ok := vm.fastCompareNumeric(op, l, r); ok {
		return heap.FromBool(b), nil
	}

	switch op {
	case "==":
		return vm.eqProtocol(l, r, false)
	case "!=":
		return vm.eqProtocol(l, r, true)
	default:
		pair, known := orderingDunders[op]
		if !known {
			return heap.Value{}, vm.NewExceptionMsg("SystemError", "unknown comparison operator "+op)
		}
		lClass, _ := vm.ClassOf(l)
		rClass, _ := vm.ClassOf(r)
		subclassSwap := lClass != rClass && vm.IsProperSubclass(rClass, lClass) && vm.hasOwnDunder(rClass, pair.ROP, lClass)

		try := func(owner heap.HeapId, name string, a, b heap.Value) (heap.Value, bool, *PyError) {
			entry, err := vm.Heap.LookupTypeDunder(owner, name)
			if err != nil {
				return heap.Value{}, false, vm.NewExceptionMsg("RuntimeError", err.Error())
			}
			if entry.Absent {
				return heap.Value{}, false, nil
			}
			result, perr := vm.CallValue(entry.Value, []heap.Value{a, b}, nil)
			if perr != nil {
				return heap.Value{}, false, perr
			}
			if result.Kind == heap.KindNotImplemented {
				return heap.Value{}, false, nil
			}
			return result, true, nil
		}
		if subclassSwap {
			if result, ok, perr := try(rClass, pair.ROP, r, l); perr != nil {
				return heap.Value{}, perr
			} else if ok {
				return result, nil
			}
		}
		if result, ok, perr := try(lClass, pair.OP, l, r); perr != nil {
			return heap.Value{}, perr
		} else if ok {
			return result, nil
		}
		if !subclassSwap {
			if result, ok, perr := try(rClass, pair.ROP, r, l); perr != nil {
				return heap.Value{}, perr
			} else if ok {
				return result, nil
			}
		}
		return heap.Value{}, vm.NewExceptionMsg("TypeError",
			fmt.Sprintf("'%s' not supported between instances of '%s' and '%s'", op, vm.TypeName(l), vm.TypeName(r)))
	}
}

func (vm *VM) eqProtocol(l, r heap.Value, negate bool) (heap.Value, *PyError) {
	lClass, _ := vm.ClassOf(l)
	rClass, _ := vm.ClassOf(r)
	dunder := "__eq__"
	if negate {
		dunder = "__ne__"
	}

	try := func(owner heap.HeapId, a, b heap.Value) (heap.Value, bool, *PyError) {
		entry, err := vm.Heap.LookupTypeDunder(owner, dunder)
		if err != nil {
			return heap.Value{}, false, vm.NewExceptionMsg("RuntimeError", err.Error())
		}
		if entry.Absent {
			return heap.Value{}, false, nil
		}
		result, perr := vm.CallValue(entry.Value, []heap.Value{a, b}, nil)
		if perr != nil {
			return heap.Value{}, false, perr
		}
		if result.Kind == heap.KindNotImplemented {
			return heap.Value{}, false, nil
		}
		return result, true, nil
	}

	if !negate {
		if result, ok, perr := try(lClass, l, r); perr != nil {
			return heap.Value{}, perr
		} else if ok {
			return result, nil
		}
		if result, ok, perr := try(rClass, r, l); perr != nil {
			return heap.Value{}, perr
		} else if ok {
			return result, nil
		}
		return heap.FromBool(l.Equal(r)), nil
	}

	if result, ok, perr := try(lClass, l, r); perr != nil {
		return heap.Value{}, perr
	} else if ok {
		return result, nil
	}
	// __ne__ absent/NotImplemented: negate the full __eq__ protocol.
	eq, perr := vm.eqProtocol(l, r, false)
	if perr != nil {
		return heap.Value{}, perr
	}
	truthy, perr2 := vm.truthyErr(eq)
	if perr2 != nil {
		return heap.Value{}, perr2
	}
	return heap.FromBool(!truthy), nil
}

// Truthy implements spec §4.4.5 for callers outside the dispatch core
// (e.g. the interpreter's branch opcodes). It is the exported wrapper
// around truthyErr and returns any error that evaluating truthiness raises.
func (vm *VM) Truthy(v heap.Value) (bool, *PyError) {
	return vm.truthyErr(v)
}

func (vm *VM) truthyErr(v heap.Value) (bool, *PyError) {
	switch v.Kind {
	case heap.KindNone:
		return false, nil
	case heap.KindBool:
		return v.Bool, nil
	case heap.KindNotImplemented:
		return true, nil
	case heap.KindInt:
		_, obj, _ := vm.Heap.Read(v.Id)
		return obj.Int.Sign() != 0, nil
	case heap.KindFloat:
		_, obj, _ := vm.Heap.Read(v.Id)
		return obj.Float != 0, nil
	case heap.KindStr:
		_, obj, _ := vm.Heap.Read(v.Id)
		return len(obj.Str) != 0, nil
	case heap.KindBytes, heap.KindByteArray:
		_, obj, _ := vm.Heap.Read(v.Id)
		return len(obj.Bytes) != 0, nil
	case heap.KindTuple, heap.KindList, heap.KindSet, heap.KindFrozenSet:
		_, obj, _ := vm.Heap.Read(v.Id)
		return len(obj.Elems) != 0, nil
	case heap.KindDict:
		_, obj, _ := vm.Heap.Read(v.Id)
		return obj.Dict != nil && obj.Dict.Len() != 0, nil
	}

	classID, ok := vm.ClassOf(v)
	if !ok {
		return true, nil
	}
	entry, err := vm.Heap.LookupTypeDunder(classID, "__bool__")
	if err != nil {
		return false, vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	if !entry.Absent {
		result, perr := vm.CallValue(entry.Value, []heap.Value{v}, nil)
		if perr != nil {
			return false, perr
		}
		if result.Kind != heap.KindBool {
			return false, vm.NewExceptionMsg("TypeError", "__bool__ should return bool")
		}
		return result.Bool, nil
	}

	entry, err = vm.Heap.LookupTypeDunder(classID, "__len__")
	if err != nil {
		return false, vm.NewExceptionMsg("RuntimeError", err.Error())
	}
	if !entry.Absent {
		result, perr := vm.CallValue(entry.Value, []heap.Value{v}, nil)
		if perr != nil {
			return false, perr
		}
		n, ok := vm.asBigInt(result)
		if !ok {
			return false, vm.NewExceptionMsg("TypeError", "__len__ should return an integer")
		}
		return n.Sign() != 0, nil
	}

	return true, nil
}
