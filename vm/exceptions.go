package vm

import (
	"fmt"

	"github.com/ouros-lang/ouros/heap"
)

// exceptionHierarchy lists the standard exception tree's (name, parent)
// pairs. TimeoutError subclasses Exception directly rather than OSError:
// Ouros has no OSError-shaped host I/O surface in the sandbox (per spec
// §1's non-goals, sandbox code has no filesystem/network/subprocess
// access), so the resource tracker is the only source of TimeoutError and
// nothing else in the hierarchy needs an OSError branch. This is the
// documented resolution of spec §9's open question.
var exceptionHierarchy = []struct{ Name, Parent string }{
	{"BaseException", ""},
	{"Exception", "BaseException"},
	{"GeneratorExit", "BaseException"},
	{"KeyboardInterrupt", "BaseException"},
	{"SystemExit", "BaseException"},

	{"ArithmeticError", "Exception"},
	{"ZeroDivisionError", "ArithmeticError"},
	{"OverflowError", "ArithmeticError"},
	{"FloatingPointError", "ArithmeticError"},

	{"AssertionError", "Exception"},
	{"AttributeError", "Exception"},
	{"BufferError", "Exception"},
	{"EOFError", "Exception"},

	{"ImportError", "Exception"},
	{"ModuleNotFoundError", "ImportError"},

	{"LookupError", "Exception"},
	{"IndexError", "LookupError"},
	{"KeyError", "LookupError"},

	{"MemoryError", "Exception"},

	{"NameError", "Exception"},
	{"UnboundLocalError", "NameError"},

	{"OSError", "Exception"},

	{"ReferenceError", "Exception"},

	{"RuntimeError", "Exception"},
	{"NotImplementedError", "RuntimeError"},
	{"RecursionError", "RuntimeError"},

	{"StopIteration", "Exception"},
	{"StopAsyncIteration", "Exception"},

	{"SyntaxError", "Exception"},
	{"IndentationError", "SyntaxError"},

	{"SystemError", "Exception"},

	{"TimeoutError", "Exception"},

	{"TypeError", "Exception"},

	{"ValueError", "Exception"},
	{"UnicodeError", "ValueError"},

	{"Warning", "Exception"},
}

// PyError wraps a heap.Value of KindException as a Go error so that Go
// control flow (return err) can carry a propagating Python exception up
// through the interpreter's call stack.
type PyError struct {
	Value heap.Value
}

func (e *PyError) Error() string {
	return fmt.Sprintf("python exception (heap id %d)", e.Value.Id)
}

// registerExceptionHierarchy installs the standard hierarchy into vm's
// heap as a family of Class objects, returning a name-indexed lookup
// table. Called once at VM construction.
func registerExceptionHierarchy(h *heap.Heap) map[string]heap.HeapId {
	byName := make(map[string]heap.HeapId, len(exceptionHierarchy))
	for _, e := range exceptionHierarchy {
		bases := []heap.HeapId{}
		if e.Parent != "" {
			bases = []heap.HeapId{byName[e.Parent]}
		}
		cls := &heap.ClassObj{
			Name:      e.Name,
			Namespace: make(map[string]heap.Value),
			Bases:     bases,
		}
		id := h.Alloc(heap.KindClass, heap.Object{Class: cls})
		mro, err := c3Linearize(h, id, bases)
		if err != nil {
			// The fixed built-in hierarchy is single-inheritance only, so
			// this can never actually happen; fall back to [self, parent...].
			mro = append([]heap.HeapId{id}, bases...)
		}
		cls.MRO = mro
		byName[e.Name] = id
	}
	return byName
}

// NewException builds a KindException value for className with args as
// its constructor arguments (conventionally just a message string), and
// registers it as a Go error ready to propagate.
func (vm *VM) NewException(className string, args ...heap.Value) *PyError {
	classID, ok := vm.Exceptions[className]
	if !ok {
		classID = vm.Exceptions["RuntimeError"]
	}
	vm.Heap.Incref(classID)
	for _, a := range args {
		vm.Heap.Incref(idOf(a))
	}
	id := vm.Heap.Alloc(heap.KindException, heap.Object{
		Exception: &heap.ExceptionObj{Class: classID, Args: args},
	})
	return &PyError{Value: heap.HeapRef(heap.KindException, id)}
}

// NewExceptionMsg is shorthand for the overwhelmingly common case of a
// single string-message argument.
func (vm *VM) NewExceptionMsg(className, msg string) *PyError {
	strID := vm.Heap.NewString(msg)
	return vm.NewException(className, heap.HeapRef(heap.KindStr, strID))
}

// IsInstanceOfException reports whether exc's class MRO contains className.
func (vm *VM) IsInstanceOfException(exc heap.Value, className string) bool {
	_, obj, err := vm.Heap.Read(exc.Id)
	if err != nil || obj.Exception == nil {
		return false
	}
	target, ok := vm.Exceptions[className]
	if !ok {
		return false
	}
	_, clsObj, err := vm.Heap.Read(obj.Exception.Class)
	if err != nil || clsObj.Class == nil {
		return false
	}
	for _, anc := range clsObj.Class.MRO {
		if anc == target {
			return true
		}
	}
	return false
}

// breachException maps a resource-tracker breach to its Python exception.
func (vm *VM) breachException(err error) *PyError {
	switch e := err.(type) {
	case *MemoryBreach:
		return vm.NewExceptionMsg("MemoryError", e.Reason)
	case *TimeoutBreach:
		return vm.NewExceptionMsg("TimeoutError", "execution exceeded max_duration_secs")
	case *RecursionBreach:
		return vm.NewExceptionMsg("RecursionError", fmt.Sprintf("maximum recursion depth exceeded (%d > %d)", e.Depth, e.Max))
	default:
		return vm.NewExceptionMsg("RuntimeError", err.Error())
	}
}

func idOf(v heap.Value) heap.HeapId {
	if v.IsInline() {
		return heap.NoHeapId
	}
	return v.Id
}
