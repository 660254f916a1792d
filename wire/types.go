// Package wire implements Ouros's C7 Serializer: CBOR encoding of a whole
// VM's resumable state (bytecode + constant pool, heap, frame stack,
// continuation registers, suspension state, pending-call table) to a
// byte sequence with an explicit version tag, and decoding it back to an
// equivalent, fully resumable VM (spec §4.7).
package wire

import (
	"math/big"

	"github.com/ouros-lang/ouros/bytecode"
	"github.com/ouros-lang/ouros/heap"
)

// FormatError reports a Load failure. Decoding is total: any problem
// anywhere in the byte stream — a bad magic, an unsupported version, a
// CBOR structural error, a dangling type assertion while rebuilding a
// Function/Generator payload — surfaces as exactly this, never a
// partially reconstructed VM.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string { return "wire: " + e.Reason }

// Version is bumped whenever Snapshot's shape changes in a way older
// Load calls can't interpret.
const Version = 1

// Snapshot is the full serializable content of one VM and its heap.
type Snapshot struct {
	Version int          `cbor:"0,keyasint"`
	Heap    HeapSnapshot `cbor:"1,keyasint"`
	VM      VMSnapshot   `cbor:"2,keyasint"`
}

// HeapSnapshot mirrors heap.Snapshot, with every Entry's payload
// translated through Payload so Function/Generator/Dict (which hold
// either an opaque `any` or unexported internals at the heap layer) get
// a concrete, CBOR-encodable shape.
type HeapSnapshot struct {
	NumSlots        int                    `cbor:"0,keyasint"`
	Entries         []Entry                `cbor:"1,keyasint"`
	FreeSlots       []heap.HeapId          `cbor:"2,keyasint"`
	InternedStrings map[string]heap.HeapId `cbor:"3,keyasint"`
	InternedInts    map[int64]heap.HeapId  `cbor:"4,keyasint"`
	SmallIntLo      int64                  `cbor:"5,keyasint"`
	SmallIntHi      int64                  `cbor:"6,keyasint"`
	InternThreshold int                    `cbor:"7,keyasint"`
}

// Entry is one occupied heap slot.
type Entry struct {
	ID       heap.HeapId `cbor:"0,keyasint"`
	Kind     heap.Kind   `cbor:"1,keyasint"`
	Refcount int32       `cbor:"2,keyasint"`
	Frozen   bool        `cbor:"3,keyasint"`
	HasHash  bool        `cbor:"4,keyasint"`
	Hash     int64       `cbor:"5,keyasint"`
	Payload  Payload     `cbor:"6,keyasint"`
}

// Payload mirrors heap.Object, except Function, Generator, and Dict get
// wire-specific shapes: Function.Code and Generator.Frame are `any` at
// the heap layer purely to dodge an import cycle (package wire, unlike
// package heap, is free to import bytecode directly), and DictObj's
// ordering/index state is private, reconstructed here from its ordered
// item list instead of its internals.
type Payload struct {
	Int         *big.Int             `cbor:"0,keyasint,omitempty"`
	Float       float64              `cbor:"1,keyasint,omitempty"`
	ComplexRe   float64              `cbor:"2,keyasint,omitempty"`
	ComplexIm   float64              `cbor:"3,keyasint,omitempty"`
	Str         string               `cbor:"4,keyasint,omitempty"`
	Bytes       []byte               `cbor:"5,keyasint,omitempty"`
	Elems       []heap.Value         `cbor:"6,keyasint,omitempty"`
	Dict        *DictState           `cbor:"7,keyasint,omitempty"`
	Slice       *heap.SliceVal       `cbor:"8,keyasint,omitempty"`
	Range       *heap.RangeVal       `cbor:"9,keyasint,omitempty"`
	Function    *FunctionState       `cbor:"10,keyasint,omitempty"`
	BoundMethod *heap.BoundMethodObj `cbor:"11,keyasint,omitempty"`
	Class       *heap.ClassObj       `cbor:"12,keyasint,omitempty"`
	Instance    *heap.InstanceObj    `cbor:"13,keyasint,omitempty"`
	Module      *heap.ModuleObj      `cbor:"14,keyasint,omitempty"`
	Cell        *heap.Value          `cbor:"15,keyasint,omitempty"`
	Iterator    *heap.IteratorObj    `cbor:"16,keyasint,omitempty"`
	Generator   *GeneratorState      `cbor:"17,keyasint,omitempty"`
	ExitStack   *heap.ExitStackObj   `cbor:"18,keyasint,omitempty"`
	Exception   *heap.ExceptionObj   `cbor:"19,keyasint,omitempty"`
}

// DictState is a dict's ordered key/value pairs, the only part of
// DictObj that is actually meaningful to round-trip — the hash index is
// rebuilt on load exactly as ordinary Set calls would build it.
type DictState struct {
	Keys []heap.Value `cbor:"0,keyasint"`
	Vals []heap.Value `cbor:"1,keyasint"`
}

// FunctionState mirrors heap.FunctionObj with Code resolved to a concrete
// *bytecode.Chunk.
type FunctionState struct {
	Name       string                `cbor:"0,keyasint"`
	Chunk      *bytecode.Chunk       `cbor:"1,keyasint"`
	Defaults   []heap.Value          `cbor:"2,keyasint"`
	KwDefaults map[string]heap.Value `cbor:"3,keyasint"`
	Cells      []heap.HeapId         `cbor:"4,keyasint"`
	ModuleName string                `cbor:"5,keyasint"`
}

// GeneratorState mirrors heap.GeneratorObj with Frame resolved to a
// concrete *FrameState.
type GeneratorState struct {
	Frame       *FrameState `cbor:"0,keyasint"`
	Name        string      `cbor:"1,keyasint"`
	Started     bool        `cbor:"2,keyasint"`
	Finished    bool        `cbor:"3,keyasint"`
	IsCoroutine bool        `cbor:"4,keyasint"`
}

// FrameState mirrors bytecode.Frame in full, including the continuation
// registers spec §4.7 names explicitly (handler-table offsets live on
// the Chunk itself and therefore on every frame running it).
type FrameState struct {
	Chunk          *bytecode.Chunk     `cbor:"0,keyasint"`
	IP             int                 `cbor:"1,keyasint"`
	Stack          []heap.Value        `cbor:"2,keyasint"`
	Locals         []heap.Value        `cbor:"3,keyasint"`
	Cells          []heap.HeapId       `cbor:"4,keyasint"`
	Globals        heap.HeapId         `cbor:"5,keyasint"`
	Func           heap.Value          `cbor:"6,keyasint"`
	TryStack       []bytecode.TryFrame `cbor:"7,keyasint"`
	ForIterTarget  int                 `cbor:"8,keyasint"`
	IndexRewindPC  int                 `cbor:"9,keyasint"`
	GeneratorYield bool                `cbor:"10,keyasint"`
}

// VMSnapshot mirrors vm.State.
type VMSnapshot struct {
	Frames               []*FrameState              `cbor:"0,keyasint"`
	SuspensionKind       uint8                       `cbor:"1,keyasint"`
	SuspensionResult     heap.Value                  `cbor:"2,keyasint"`
	SuspensionCall       *ExternalCallState          `cbor:"3,keyasint,omitempty"`
	SuspensionPendingIDs []uint64                    `cbor:"4,keyasint,omitempty"`
	NextCallID           uint64                      `cbor:"5,keyasint"`
	PendingCalls         map[uint64]string           `cbor:"6,keyasint"`
	FutureResults        map[uint64]FutureOutcomeState `cbor:"7,keyasint"`
	ExternalNames        []string                    `cbor:"8,keyasint"`
	Exceptions           map[string]heap.HeapId      `cbor:"9,keyasint"`
	BuiltinClasses       map[heap.Kind]heap.HeapId   `cbor:"10,keyasint"`
	GlobalsID            heap.HeapId                 `cbor:"11,keyasint"`
	Trace                bool                        `cbor:"12,keyasint"`
}

// ExternalCallState mirrors vm.ExternalCall.
type ExternalCallState struct {
	Name         string                `cbor:"0,keyasint"`
	Args         []heap.Value          `cbor:"1,keyasint"`
	Kwargs       map[string]heap.Value `cbor:"2,keyasint"`
	CallID       uint64                `cbor:"3,keyasint"`
	IsOSFunction bool                  `cbor:"4,keyasint"`
	Resumed      bool                  `cbor:"5,keyasint"`
}

// FutureOutcomeState mirrors vm.FutureOutcome. The exception, when
// present, is just another heap.Value of KindException — it rides along
// in the heap snapshot like any other live object, so only a flag and
// the Value are needed here.
type FutureOutcomeState struct {
	HasExc bool       `cbor:"0,keyasint"`
	Exc    heap.Value `cbor:"1,keyasint,omitempty"`
	Value  heap.Value `cbor:"2,keyasint,omitempty"`
}
