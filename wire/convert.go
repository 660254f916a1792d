package wire

import (
	"fmt"

	"github.com/ouros-lang/ouros/bytecode"
	"github.com/ouros-lang/ouros/heap"
)

// entryToWire translates one heap.EntrySnapshot into its wire Entry,
// resolving the `any`-typed Function.Code / Generator.Frame fields to
// concrete bytecode types along the way. Dict payloads are captured as
// an ordered item list; rebuilding the actual DictObj happens later,
// once a hashing/equality hook is available (see restoreDicts).
func entryToWire(es heap.EntrySnapshot) (Entry, error) {
	p, err := objectToPayload(es.Kind, es.Obj)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		ID:       es.ID,
		Kind:     es.Kind,
		Refcount: es.Refcount,
		Frozen:   es.Frozen,
		HasHash:  es.HasHash,
		Hash:     es.Hash,
		Payload:  p,
	}, nil
}

func objectToPayload(kind heap.Kind, obj heap.Object) (Payload, error) {
	switch kind {
	case heap.KindInt:
		return Payload{Int: obj.Int}, nil
	case heap.KindFloat:
		return Payload{Float: obj.Float}, nil
	case heap.KindComplex:
		return Payload{ComplexRe: real(obj.Complex), ComplexIm: imag(obj.Complex)}, nil
	case heap.KindStr:
		return Payload{Str: obj.Str}, nil
	case heap.KindBytes, heap.KindByteArray:
		return Payload{Bytes: obj.Bytes}, nil
	case heap.KindTuple, heap.KindList, heap.KindSet, heap.KindFrozenSet:
		return Payload{Elems: obj.Elems}, nil
	case heap.KindDict:
		if obj.Dict == nil {
			return Payload{}, nil
		}
		ks, vs := obj.Dict.Items()
		return Payload{Dict: &DictState{Keys: ks, Vals: vs}}, nil
	case heap.KindSlice:
		s := obj.Slice
		return Payload{Slice: &s}, nil
	case heap.KindRange:
		r := obj.Range
		return Payload{Range: &r}, nil
	case heap.KindFunction:
		f := obj.Function
		if f == nil {
			return Payload{}, nil
		}
		chunk, ok := f.Code.(*bytecode.Chunk)
		if !ok {
			return Payload{}, &FormatError{Reason: "function object carries no compiled chunk"}
		}
		return Payload{Function: &FunctionState{
			Name: f.Name, Chunk: chunk, Defaults: f.Defaults,
			KwDefaults: f.KwDefaults, Cells: f.Cells, ModuleName: f.ModuleName,
		}}, nil
	case heap.KindBoundMethod:
		return Payload{BoundMethod: obj.BoundMethod}, nil
	case heap.KindClass:
		return Payload{Class: obj.Class}, nil
	case heap.KindInstance:
		return Payload{Instance: obj.Instance}, nil
	case heap.KindModule:
		return Payload{Module: obj.Module}, nil
	case heap.KindCell:
		return Payload{Cell: obj.Cell}, nil
	case heap.KindIterator:
		return Payload{Iterator: obj.Iterator}, nil
	case heap.KindGenerator, heap.KindCoroutine:
		g := obj.Generator
		if g == nil {
			return Payload{}, nil
		}
		frame, ok := g.Frame.(*bytecode.Frame)
		if !ok {
			return Payload{}, &FormatError{Reason: "generator object carries no parked frame"}
		}
		return Payload{Generator: &GeneratorState{
			Frame: frameToState(frame), Name: g.Name, Started: g.Started,
			Finished: g.Finished, IsCoroutine: g.IsCoroutine,
		}}, nil
	case heap.KindExitStack:
		return Payload{ExitStack: obj.ExitStack}, nil
	case heap.KindException:
		return Payload{Exception: obj.Exception}, nil
	default:
		// None/Bool/Ellipsis/NotImplemented never reach the heap; every
		// other built-in kind with no payload worth naming round-trips as
		// the empty Payload.
		return Payload{}, nil
	}
}

// wireToEntry is entryToWire's inverse for everything except dicts: Dict
// payloads come back as an empty, valid DictObj skeleton, paired with the
// deferred item list restoreDicts needs once hashing is available.
func wireToEntry(e Entry) (heap.EntrySnapshot, *DictState, error) {
	obj, deferredDict, err := payloadToObject(e.Kind, e.Payload)
	if err != nil {
		return heap.EntrySnapshot{}, nil, err
	}
	es := heap.EntrySnapshot{
		ID: e.ID, Kind: e.Kind, Obj: obj, Refcount: e.Refcount,
		Frozen: e.Frozen, HasHash: e.HasHash, Hash: e.Hash,
	}
	return es, deferredDict, nil
}

func payloadToObject(kind heap.Kind, p Payload) (heap.Object, *DictState, error) {
	switch kind {
	case heap.KindInt:
		return heap.Object{Int: p.Int}, nil, nil
	case heap.KindFloat:
		return heap.Object{Float: p.Float}, nil, nil
	case heap.KindComplex:
		return heap.Object{Complex: complex(p.ComplexRe, p.ComplexIm)}, nil, nil
	case heap.KindStr:
		return heap.Object{Str: p.Str}, nil, nil
	case heap.KindBytes, heap.KindByteArray:
		return heap.Object{Bytes: p.Bytes}, nil, nil
	case heap.KindTuple, heap.KindList, heap.KindSet, heap.KindFrozenSet:
		return heap.Object{Elems: p.Elems}, nil, nil
	case heap.KindDict:
		return heap.Object{Dict: heap.NewDictObj()}, p.Dict, nil
	case heap.KindSlice:
		if p.Slice == nil {
			return heap.Object{}, nil, nil
		}
		return heap.Object{Slice: *p.Slice}, nil, nil
	case heap.KindRange:
		if p.Range == nil {
			return heap.Object{}, nil, nil
		}
		return heap.Object{Range: *p.Range}, nil, nil
	case heap.KindFunction:
		if p.Function == nil {
			return heap.Object{}, nil, nil
		}
		f := p.Function
		return heap.Object{Function: &heap.FunctionObj{
			Name: f.Name, Code: f.Chunk, Defaults: f.Defaults,
			KwDefaults: f.KwDefaults, Cells: f.Cells, ModuleName: f.ModuleName,
		}}, nil, nil
	case heap.KindBoundMethod:
		return heap.Object{BoundMethod: p.BoundMethod}, nil, nil
	case heap.KindClass:
		return heap.Object{Class: p.Class}, nil, nil
	case heap.KindInstance:
		return heap.Object{Instance: p.Instance}, nil, nil
	case heap.KindModule:
		return heap.Object{Module: p.Module}, nil, nil
	case heap.KindCell:
		return heap.Object{Cell: p.Cell}, nil, nil
	case heap.KindIterator:
		return heap.Object{Iterator: p.Iterator}, nil, nil
	case heap.KindGenerator, heap.KindCoroutine:
		if p.Generator == nil {
			return heap.Object{}, nil, nil
		}
		g := p.Generator
		return heap.Object{Generator: &heap.GeneratorObj{
			Frame: stateToFrame(g.Frame), Name: g.Name, Started: g.Started,
			Finished: g.Finished, IsCoroutine: g.IsCoroutine,
		}}, nil, nil
	case heap.KindExitStack:
		return heap.Object{ExitStack: p.ExitStack}, nil, nil
	case heap.KindException:
		return heap.Object{Exception: p.Exception}, nil, nil
	default:
		return heap.Object{}, nil, nil
	}
}

func frameToState(f *bytecode.Frame) *FrameState {
	if f == nil {
		return nil
	}
	return &FrameState{
		Chunk: f.Chunk, IP: f.IP, Stack: f.Stack, Locals: f.Locals, Cells: f.Cells,
		Globals: f.Globals, Func: f.Func, TryStack: f.TryStack,
		ForIterTarget: f.ForIterTarget, IndexRewindPC: f.IndexRewindPC, GeneratorYield: f.GeneratorYield,
	}
}

func stateToFrame(fs *FrameState) *bytecode.Frame {
	if fs == nil {
		return nil
	}
	return &bytecode.Frame{
		Chunk: fs.Chunk, IP: fs.IP, Stack: fs.Stack, Locals: fs.Locals, Cells: fs.Cells,
		Globals: fs.Globals, Func: fs.Func, TryStack: fs.TryStack,
		ForIterTarget: fs.ForIterTarget, IndexRewindPC: fs.IndexRewindPC, GeneratorYield: fs.GeneratorYield,
	}
}

func framesToState(fs []*bytecode.Frame) []*FrameState {
	out := make([]*FrameState, len(fs))
	for i, f := range fs {
		out[i] = frameToState(f)
	}
	return out
}

func statesToFrames(fs []*FrameState) []*bytecode.Frame {
	out := make([]*bytecode.Frame, len(fs))
	for i, f := range fs {
		out[i] = stateToFrame(f)
	}
	return out
}

func validateVersion(v int) error {
	if v != Version {
		return &FormatError{Reason: fmt.Sprintf("unsupported snapshot version %d (expected %d)", v, Version)}
	}
	return nil
}
