package vm

import (
	"io"

	"github.com/ouros-lang/ouros/bytecode"
	"github.com/ouros-lang/ouros/heap"
)

// VM is one sandbox instance: a heap, a frame stack, a resource tracker,
// and the suspension bookkeeping needed to pause at external calls and
// resume later, possibly after a dump/load round-trip. It is single-
// threaded and cooperative (spec §5); nothing inside synchronizes access
// across goroutines.
type VM struct {
	Heap    *heap.Heap
	Frames  bytecode.FrameStack
	Tracker *Tracker

	Exceptions map[string]heap.HeapId // name -> builtin exception class

	Globals *heap.ModuleObj
	GlobalsID heap.HeapId

	Builtins map[string]heap.Value // the builtin namespace LOAD_BUILTIN resolves against

	ExternalNames []string // the per-sandbox external-function table, set by the compiler

	nextCallID   uint64
	pendingCalls map[uint64]pendingCall
	futures      futureState

	Suspension Suspension

	BuiltinClasses map[heap.Kind]heap.HeapId

	Trace bool

	// Stdout is the sink print() writes to (spec §6's "optional print
	// sink" run input). Left nil, print() output is discarded.
	Stdout io.Writer
}

type pendingCall struct {
	name string
}

// Suspension discriminates the three states spec §3's SuspensionState
// names. Zero value is Complete with a None result, matching a VM that
// has not yet run anything.
type Suspension struct {
	Kind       SuspensionKind
	Result     heap.Value     // valid when Kind == SuspendComplete
	Call       *ExternalCall  // valid when Kind == SuspendExternalCall
	PendingIDs []uint64       // valid when Kind == SuspendFutureAwait
}

type SuspensionKind uint8

const (
	SuspendComplete SuspensionKind = iota
	SuspendExternalCall
	SuspendFutureAwait
)

// ExternalCall is the object the driver observes when dispatch reaches a
// CALL_EXTERNAL opcode (spec §4.6 step 2, §6).
type ExternalCall struct {
	Name       string
	Args       []heap.Value
	Kwargs     map[string]heap.Value
	CallID     uint64
	IsOSFunction bool
	Resumed    bool // exported so package wire can preserve the at-most-once guard across a dump/load
}

// New builds a VM with a fresh default heap and the standard exception
// hierarchy installed.
func New(limits Limits) *VM {
	h := heap.NewDefault()
	vm := &VM{
		Heap:         h,
		Tracker:      NewTracker(limits),
		pendingCalls: make(map[uint64]pendingCall),
	}
	h.Hooks = vm
	vm.Exceptions = registerExceptionHierarchy(h)

	vm.Globals = &heap.ModuleObj{Name: "__main__", Globals: make(map[string]heap.Value)}
	vm.GlobalsID = h.Alloc(heap.KindModule, heap.Object{Module: vm.Globals})
	vm.Builtins = make(map[string]heap.Value)

	vm.BuiltinClasses = make(map[heap.Kind]heap.HeapId)
	for _, k := range builtinKindOrder {
		cls := &heap.ClassObj{Name: k.String(), Namespace: make(map[string]heap.Value)}
		id := h.Alloc(heap.KindClass, heap.Object{Class: cls})
		cls.MRO = []heap.HeapId{id}
		vm.BuiltinClasses[k] = id
	}
	InstallBuiltins(vm)
	return vm
}

// builtinKindOrder lists every Kind that needs a synthetic Class object
// so isinstance()/type() have something to report for built-ins; the
// dunder protocols themselves reach built-in behavior through the native
// fast paths in dispatch.go, never through this namespace.
var builtinKindOrder = []heap.Kind{
	heap.KindNone, heap.KindBool, heap.KindEllipsis, heap.KindNotImplemented,
	heap.KindInt, heap.KindFloat, heap.KindComplex, heap.KindStr, heap.KindBytes,
	heap.KindByteArray, heap.KindTuple, heap.KindList, heap.KindDict, heap.KindSet,
	heap.KindFrozenSet, heap.KindSlice, heap.KindRange, heap.KindFunction,
	heap.KindBoundMethod, heap.KindModule, heap.KindCell, heap.KindIterator,
	heap.KindGenerator, heap.KindCoroutine, heap.KindExitStack,
}

// Hash implements heap.HashHook: dispatches to a user __hash__ override.
func (vm *VM) Hash(h *heap.Heap, id heap.HeapId) (int64, error) {
	_, obj, err := h.Read(id)
	if err != nil || obj.Instance == nil {
		return 0, err
	}
	entry, err := h.LookupTypeDunder(obj.Instance.Class, "__hash__")
	if err != nil || entry.Absent || entry.Unhashable {
		return 0, err
	}
	result, perr := vm.CallValue(entry.Value, []heap.Value{heap.HeapRef(heap.KindInstance, id)}, nil)
	if perr != nil {
		return 0, perr
	}
	if result.Kind != heap.KindInt {
		return 0, vm.NewExceptionMsg("TypeError", "__hash__ method should return an integer")
	}
	_, rObj, err := h.Read(result.Id)
	if err != nil {
		return 0, err
	}
	return rObj.Int.Int64(), nil
}

// Eq implements heap.HashHook: dispatches the full equality protocol,
// used by DictObj/set membership when a key is a user instance.
func (vm *VM) Eq(h *heap.Heap, a, b heap.Value) (bool, error) {
	result, err := vm.RichCompare("==", a, b)
	if err != nil {
		return false, err
	}
	return vm.Truthy(result)
}

// NextCallID returns a fresh, monotonically increasing call id (spec
// §4.6 step 1).
func (vm *VM) NextCallID() uint64 {
	vm.nextCallID++
	return vm.nextCallID
}
