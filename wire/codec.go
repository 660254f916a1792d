package wire

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/ouros-lang/ouros/heap"
	"github.com/ouros-lang/ouros/vm"
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

var magic = [4]byte{'O', 'W', 'I', 'R'}
var zstdMagic = [4]byte{0x28, 0xb5, 0x2f, 0xfd} // zstd frame magic, used to tell a compressed dump from a raw one on Load

// Dump serializes vmv's entire resumable state to bytes prefixed with a
// 4-byte magic (spec §4.7). compress toggles optional zstd compression of
// the encoded payload (SPEC_FULL.md §3.7): additive only, the logical
// content being round-tripped is identical either way.
func Dump(vmv *vm.VM, compress bool) ([]byte, error) {
	snap, err := snapshotFromVM(vmv)
	if err != nil {
		return nil, err
	}
	body, err := encMode.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal snapshot: %w", err)
	}
	if compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("wire: zstd writer: %w", err)
		}
		body = enc.EncodeAll(body, make([]byte, 0, len(body)))
		enc.Close()
	}
	out := make([]byte, 0, len(magic)+len(body))
	out = append(out, magic[:]...)
	out = append(out, body...)
	return out, nil
}

// Load decodes bytes produced by Dump back into a fully resumable VM.
// Decoding is total: any failure at any stage is reported as a
// *FormatError, never a partially reconstructed VM.
func Load(data []byte, limits vm.Limits, builtins map[string]heap.Value) (*vm.VM, error) {
	if len(data) < len(magic) || !bytes.Equal(data[:len(magic)], magic[:]) {
		return nil, &FormatError{Reason: "missing or invalid magic header"}
	}
	body := data[len(magic):]

	if len(body) >= len(zstdMagic) && bytes.Equal(body[:len(zstdMagic)], zstdMagic[:]) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, &FormatError{Reason: fmt.Sprintf("zstd reader: %v", err)}
		}
		decompressed, err := dec.DecodeAll(body, nil)
		dec.Close()
		if err != nil {
			return nil, &FormatError{Reason: fmt.Sprintf("zstd decode: %v", err)}
		}
		body = decompressed
	}

	var snap Snapshot
	if err := cbor.Unmarshal(body, &snap); err != nil {
		return nil, &FormatError{Reason: fmt.Sprintf("cbor decode: %v", err)}
	}
	if err := validateVersion(snap.Version); err != nil {
		return nil, err
	}
	return vmFromSnapshot(snap, limits, builtins)
}

func snapshotFromVM(vmv *vm.VM) (Snapshot, error) {
	hs, err := heapSnapshotToWire(vmv.Heap.Snapshot())
	if err != nil {
		return Snapshot{}, err
	}
	vs, err := vmStateToWire(vmv.Snapshot())
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Version: Version, Heap: hs, VM: vs}, nil
}

func heapSnapshotToWire(s heap.Snapshot) (HeapSnapshot, error) {
	entries := make([]Entry, len(s.Entries))
	for i, es := range s.Entries {
		e, err := entryToWire(es)
		if err != nil {
			return HeapSnapshot{}, err
		}
		entries[i] = e
	}
	return HeapSnapshot{
		NumSlots:        s.NumSlots,
		Entries:         entries,
		FreeSlots:       s.FreeSlots,
		InternedStrings: s.InternedStrings,
		InternedInts:    s.InternedInts,
		SmallIntLo:      s.SmallIntLo,
		SmallIntHi:      s.SmallIntHi,
		InternThreshold: s.InternThreshold,
	}, nil
}

func vmStateToWire(s vm.State) (VMSnapshot, error) {
	pc := make(map[uint64]string, len(s.PendingCalls))
	for id, n := range s.PendingCalls {
		pc[id] = n
	}
	fr := make(map[uint64]FutureOutcomeState, len(s.FutureResults))
	for id, o := range s.FutureResults {
		fos := FutureOutcomeState{Value: o.Value}
		if o.Exc != nil {
			fos.HasExc = true
			fos.Exc = o.Exc.Value
		}
		fr[id] = fos
	}
	vs := VMSnapshot{
		Frames:               framesToState(s.Frames),
		SuspensionKind:       uint8(s.Suspension.Kind),
		SuspensionResult:     s.Suspension.Result,
		SuspensionPendingIDs: s.Suspension.PendingIDs,
		NextCallID:           s.NextCallID,
		PendingCalls:         pc,
		FutureResults:        fr,
		ExternalNames:        s.ExternalNames,
		Exceptions:           s.Exceptions,
		BuiltinClasses:       s.BuiltinClasses,
		GlobalsID:            s.GlobalsID,
		Trace:                s.Trace,
	}
	if s.Suspension.Call != nil {
		c := s.Suspension.Call
		vs.SuspensionCall = &ExternalCallState{
			Name: c.Name, Args: c.Args, Kwargs: c.Kwargs, CallID: c.CallID,
			IsOSFunction: c.IsOSFunction, Resumed: c.Resumed,
		}
	}
	return vs, nil
}

func vmFromSnapshot(snap Snapshot, limits vm.Limits, builtins map[string]heap.Value) (*vm.VM, error) {
	hSnap, deferred, err := heapSnapshotFromWire(snap.Heap)
	if err != nil {
		return nil, err
	}
	h := heap.Restore(hSnap)

	state, err := vmStateFromWire(snap.VM)
	if err != nil {
		return nil, err
	}
	if builtins == nil {
		builtins = make(map[string]heap.Value)
	}
	vmv := vm.Restore(h, limits, builtins, state)

	if err := restoreDicts(vmv, deferred); err != nil {
		return nil, &FormatError{Reason: fmt.Sprintf("rebuilding dict: %v", err)}
	}
	return vmv, nil
}

func heapSnapshotFromWire(hs HeapSnapshot) (heap.Snapshot, map[heap.HeapId]*DictState, error) {
	entries := make([]heap.EntrySnapshot, len(hs.Entries))
	deferred := make(map[heap.HeapId]*DictState)
	for i, e := range hs.Entries {
		es, dd, err := wireToEntry(e)
		if err != nil {
			return heap.Snapshot{}, nil, err
		}
		entries[i] = es
		if dd != nil {
			deferred[e.ID] = dd
		}
	}
	return heap.Snapshot{
		Entries:         entries,
		NumSlots:        hs.NumSlots,
		FreeSlots:       hs.FreeSlots,
		InternedStrings: hs.InternedStrings,
		InternedInts:    hs.InternedInts,
		SmallIntLo:      hs.SmallIntLo,
		SmallIntHi:      hs.SmallIntHi,
		InternThreshold: hs.InternThreshold,
	}, deferred, nil
}

func vmStateFromWire(vs VMSnapshot) (vm.State, error) {
	pc := make(map[uint64]string, len(vs.PendingCalls))
	for id, n := range vs.PendingCalls {
		pc[id] = n
	}
	fr := make(map[uint64]vm.FutureOutcome, len(vs.FutureResults))
	for id, fos := range vs.FutureResults {
		o := vm.FutureOutcome{Value: fos.Value}
		if fos.HasExc {
			o.Exc = &vm.PyError{Value: fos.Exc}
		}
		fr[id] = o
	}
	s := vm.State{
		Frames: statesToFrames(vs.Frames),
		Suspension: vm.Suspension{
			Kind:       vm.SuspensionKind(vs.SuspensionKind),
			Result:     vs.SuspensionResult,
			PendingIDs: vs.SuspensionPendingIDs,
		},
		NextCallID:     vs.NextCallID,
		PendingCalls:   pc,
		FutureResults:  fr,
		ExternalNames:  vs.ExternalNames,
		Exceptions:     vs.Exceptions,
		BuiltinClasses: vs.BuiltinClasses,
		GlobalsID:      vs.GlobalsID,
		Trace:          vs.Trace,
	}
	if vs.SuspensionCall != nil {
		c := vs.SuspensionCall
		s.Suspension.Call = &vm.ExternalCall{
			Name: c.Name, Args: c.Args, Kwargs: c.Kwargs, CallID: c.CallID,
			IsOSFunction: c.IsOSFunction, Resumed: c.Resumed,
		}
	}
	return s, nil
}

// restoreDicts replays each dict's captured item list into the live
// heap now that vmv (the heap's freshly installed HashHook) exists to
// compute hashes/equality against, completing the two-phase dict restore
// that wireToEntry's placeholder DictObj started.
func restoreDicts(vmv *vm.VM, deferred map[heap.HeapId]*DictState) error {
	for id, ds := range deferred {
		if ds == nil {
			continue
		}
		hashFn := func(v heap.Value) (int64, error) {
			hv, perr := vmv.HashValue(v)
			if perr != nil {
				return 0, perr
			}
			return hv, nil
		}
		eqFn := func(a, b heap.Value) (bool, error) {
			ok, perr := vmv.ValueEq(a, b)
			if perr != nil {
				return false, perr
			}
			return ok, nil
		}
		dict, err := heap.NewDictFromItems(ds.Keys, ds.Vals, hashFn, eqFn)
		if err != nil {
			return err
		}
		if err := vmv.Heap.Write(id, heap.Object{Dict: dict}); err != nil {
			return err
		}
	}
	return nil
}
