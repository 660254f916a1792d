// Package heap implements Ouros's managed object store: a slot-allocated,
// manually reference-counted heap plus the tagged Value union every
// bytecode instruction operates on.
package heap

import "fmt"

// HeapId names a live heap entry. It is opaque, sparse, and never reused
// while a reference to it is live; it may be reused once the last
// reference is dropped. Zero is never a valid allocated id.
type HeapId uint32

// NoHeapId is the zero value, used as a sentinel for "no object" in
// contexts where a Value itself isn't appropriate (e.g. an unset cell).
const NoHeapId HeapId = 0

// Kind discriminates the Value union. Every concrete Python type named in
// the data model has exactly one Kind; adding a new built-in type means
// adding a new Kind and its classification predicates, never touching the
// dispatch core.
type Kind uint8

const (
	KindNone Kind = iota
	KindBool
	KindEllipsis
	KindNotImplemented
	KindInt
	KindFloat
	KindComplex
	KindStr
	KindBytes
	KindByteArray
	KindTuple
	KindList
	KindDict
	KindSet
	KindFrozenSet
	KindSlice
	KindRange
	KindFunction
	KindBoundMethod
	KindClass
	KindInstance
	KindModule
	KindCell
	KindIterator
	KindGenerator
	KindCoroutine
	KindExitStack
	KindException
)

var kindNames = [...]string{
	KindNone: "NoneType", KindBool: "bool", KindEllipsis: "ellipsis",
	KindNotImplemented: "NotImplementedType", KindInt: "int", KindFloat: "float",
	KindComplex: "complex", KindStr: "str", KindBytes: "bytes",
	KindByteArray: "bytearray", KindTuple: "tuple", KindList: "list",
	KindDict: "dict", KindSet: "set", KindFrozenSet: "frozenset",
	KindSlice: "slice", KindRange: "range", KindFunction: "function",
	KindBoundMethod: "method", KindClass: "type", KindInstance: "instance",
	KindModule: "module", KindCell: "cell", KindIterator: "iterator",
	KindGenerator: "generator", KindCoroutine: "coroutine",
	KindExitStack: "contextlib.ExitStack", KindException: "BaseException",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Value is what every bytecode instruction pushes, pops, and stores. Only
// None, the two Bool singletons, Ellipsis, and NotImplemented are
// trivially inlined with no heap presence at all — every other variant,
// including Int of any magnitude, carries a HeapId. Interning (see
// intern.go) gives small ints and short strings identity-stable HeapIds
// without making them Value-inline; "trivially inlined" in the data model
// describes the VM's fast-path arithmetic optimization (bypassing
// dispatch), not a Value-level heap bypass.
type Value struct {
	Kind Kind
	Bool bool
	Id   HeapId
}

var (
	None           = Value{Kind: KindNone}
	True           = Value{Kind: KindBool, Bool: true}
	False          = Value{Kind: KindBool, Bool: false}
	Ellipsis       = Value{Kind: KindEllipsis}
	NotImplemented = Value{Kind: KindNotImplemented}
)

// FromBool returns True or False without allocating.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// IsInline reports whether v carries no heap identity.
func (v Value) IsInline() bool {
	switch v.Kind {
	case KindNone, KindBool, KindEllipsis, KindNotImplemented:
		return true
	default:
		return false
	}
}

// HeapRef builds a Value referencing a heap-resident object of kind k.
func HeapRef(k Kind, id HeapId) Value {
	return Value{Kind: k, Id: id}
}

func (v Value) IsNone() bool  { return v.Kind == KindNone }
func (v Value) IsBool() bool  { return v.Kind == KindBool }
func (v Value) IsNumber() bool {
	return v.Kind == KindInt || v.Kind == KindFloat || v.Kind == KindComplex || v.Kind == KindBool
}
func (v Value) IsCallable() bool {
	switch v.Kind {
	case KindFunction, KindBoundMethod, KindClass:
		return true
	default:
		return false
	}
}
func (v Value) IsIterable() bool {
	switch v.Kind {
	case KindTuple, KindList, KindDict, KindSet, KindFrozenSet, KindStr,
		KindBytes, KindByteArray, KindRange, KindIterator, KindGenerator:
		return true
	default:
		return false
	}
}

// Equal compares two Values for identity, *not* value equality (the `is`
// operator, C4.4.4). Value equality (`==`) goes through the comparison
// protocol in package vm.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	if v.IsInline() {
		return v.Bool == o.Bool
	}
	return v.Id == o.Id
}
