package heap

// EntrySnapshot is one occupied heap slot's serializable content, as
// captured by Heap.Snapshot. Obj's Function.Code and Generator.Frame
// fields remain whatever `any` value the live heap held (normally a
// *bytecode.Chunk or *bytecode.Frame); this package never interprets
// them, leaving that translation to package wire, which alone imports
// both heap and bytecode.
type EntrySnapshot struct {
	ID       HeapId
	Kind     Kind
	Obj      Object
	Refcount int32
	Frozen   bool
	HasHash  bool
	Hash     int64
}

// Snapshot is a whole heap's serializable content: every occupied slot
// plus the bookkeeping (free list, interning tables) a faithful restore
// needs, per spec §4.7's round-trip invariants — refcounts, interning
// identities, and cached hashes all survive a dump/load cycle unchanged.
type Snapshot struct {
	Entries         []EntrySnapshot
	NumSlots        int // len(h.slots) at capture time, including the reserved index 0
	FreeSlots       []HeapId
	InternedStrings map[string]HeapId
	InternedInts    map[int64]HeapId
	SmallIntLo      int64
	SmallIntHi      int64
	InternThreshold int
}

// Snapshot captures h's entire state. HeapIds in the result are exactly
// h's current slot indices; Restore rebuilds a heap with those same
// indices, so every Value elsewhere in a serialized VM (frame locals,
// operand stacks, cells) keeps referring to the right object without any
// id-rewriting pass.
func (h *Heap) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	var entries []EntrySnapshot
	for i, e := range h.slots {
		if i == 0 || !e.occupied {
			continue
		}
		es := EntrySnapshot{ID: HeapId(i), Kind: e.kind, Obj: e.obj, Refcount: e.refcount, Frozen: e.frozen}
		if e.hash != nil {
			es.HasHash = true
			es.Hash = *e.hash
		}
		entries = append(entries, es)
	}

	internedStrings := make(map[string]HeapId, len(h.internedStrings))
	for k, v := range h.internedStrings {
		internedStrings[k] = v
	}
	internedInts := make(map[int64]HeapId, len(h.internedInts))
	for k, v := range h.internedInts {
		internedInts[k] = v
	}

	return Snapshot{
		Entries:         entries,
		NumSlots:        len(h.slots),
		FreeSlots:       append([]HeapId(nil), h.free...),
		InternedStrings: internedStrings,
		InternedInts:    internedInts,
		SmallIntLo:      h.smallIntLo,
		SmallIntHi:      h.smallIntHi,
		InternThreshold: h.internThreshold,
	}
}

// Restore rebuilds a Heap exactly from s, preserving every entry's
// original HeapId, refcount, frozen flag, and cached hash. Object
// payloads carrying package-vm-owned `any` values (FunctionObj.Code,
// GeneratorObj.Frame) are copied through unchanged; the caller (package
// wire) must have already rewritten them to concrete *bytecode.Chunk /
// *bytecode.Frame pointers before calling Restore, since this package
// cannot name those types itself without an import cycle.
func Restore(s Snapshot) *Heap {
	h := &Heap{
		slots:           make([]entry, s.NumSlots),
		internedStrings: make(map[string]HeapId, len(s.InternedStrings)),
		internedInts:    make(map[int64]HeapId, len(s.InternedInts)),
		smallIntLo:      s.SmallIntLo,
		smallIntHi:      s.SmallIntHi,
		internThreshold: s.InternThreshold,
	}
	for _, es := range s.Entries {
		e := entry{kind: es.Kind, obj: es.Obj, refcount: es.Refcount, frozen: es.Frozen, occupied: true}
		if es.HasHash {
			hv := es.Hash
			e.hash = &hv
		}
		h.slots[es.ID] = e
	}
	h.free = append([]HeapId(nil), s.FreeSlots...)
	for k, v := range s.InternedStrings {
		h.internedStrings[k] = v
	}
	for k, v := range s.InternedInts {
		h.internedInts[k] = v
	}
	return h
}

// NewDictFromItems rebuilds a DictObj from key/value pairs captured via
// DictObj.Items, recomputing the hash index through hashFn/eqFn exactly
// as ordinary Set calls would. Items already preserves insertion order,
// which is all spec §4.7 requires survive serialization; the hash index
// itself is a derived structure, not serialized at all.
func NewDictFromItems(keys, vals []Value, hashFn func(Value) (int64, error), eqFn func(Value, Value) (bool, error)) (*DictObj, error) {
	d := NewDictObj()
	for i, k := range keys {
		hv, err := hashFn(k)
		if err != nil {
			return nil, err
		}
		kk := k
		eq := func(o Value) (bool, error) { return eqFn(kk, o) }
		if err := d.Set(hv, kk, vals[i], eq); err != nil {
			return nil, err
		}
	}
	return d, nil
}
