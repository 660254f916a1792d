package heap

import (
	"fmt"
	"sync"
)

// HashHook lets a higher layer (package vm) supply user __hash__/__eq__
// dispatch for Instance values, so this package never has to import the
// dispatch core. Heap falls back to its own rules for every built-in
// Kind and only calls out for KindInstance.
type HashHook interface {
	Hash(h *Heap, id HeapId) (int64, error)
	Eq(h *Heap, a, b Value) (bool, error)
}

type entry struct {
	kind     Kind
	obj      Object
	refcount int32
	frozen   bool
	hash     *int64
	occupied bool
}

// Heap is a slot-allocated, manually reference-counted object store. It is
// never shared across sessions or threads (spec §5); callers are
// responsible for their own external synchronization if they choose to
// share one anyway.
type Heap struct {
	mu    sync.Mutex
	slots []entry
	free  []HeapId // recycled slot indices, LIFO

	internedStrings map[string]HeapId
	internedInts    map[int64]HeapId
	smallIntLo      int64
	smallIntHi      int64
	internThreshold int

	Hooks HashHook
}

// New returns an empty heap using the given small-int interning range and
// string interning length threshold (see intern.go for the picked
// defaults).
func New(smallIntLo, smallIntHi int64, stringInternThreshold int) *Heap {
	h := &Heap{
		slots:           make([]entry, 1, 64), // index 0 reserved, never allocated
		internedStrings: make(map[string]HeapId),
		internedInts:    make(map[int64]HeapId),
		smallIntLo:      smallIntLo,
		smallIntHi:      smallIntHi,
		internThreshold: stringInternThreshold,
	}
	return h
}

// Stats is the shape spec §4.8's snapshot_heap needs.
type Stats struct {
	LiveObjects     int
	FreeSlots       int
	TotalSlots      int
	InternedStrings int
}

func (h *Heap) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	live := 0
	for i, e := range h.slots {
		if i == 0 {
			continue
		}
		if e.occupied {
			live++
		}
	}
	return Stats{
		LiveObjects:     live,
		FreeSlots:       len(h.free),
		TotalSlots:      len(h.slots) - 1,
		InternedStrings: len(h.internedStrings),
	}
}

// Alloc creates a new heap entry with refcount 1 and returns its id.
func (h *Heap) Alloc(kind Kind, obj Object) HeapId {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocLocked(kind, obj, false)
}

func (h *Heap) allocLocked(kind Kind, obj Object, frozen bool) HeapId {
	e := entry{kind: kind, obj: obj, refcount: 1, frozen: frozen, occupied: true}
	if n := len(h.free); n > 0 {
		id := h.free[n-1]
		h.free = h.free[:n-1]
		h.slots[id] = e
		return id
	}
	h.slots = append(h.slots, e)
	return HeapId(len(h.slots) - 1)
}

// Incref increments id's refcount. Calling it on a freed id is a bug in
// the caller and panics rather than corrupting the freelist silently.
func (h *Heap) Incref(id HeapId) {
	if id == NoHeapId {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	e := &h.slots[id]
	if !e.occupied {
		panic(fmt.Sprintf("heap: incref of freed slot %d", id))
	}
	e.refcount++
}

// Decref decrements id's refcount, recursively freeing referents and
// recycling the slot once it reaches zero. Frozen entries are never
// released regardless of refcount reaching zero — they stay pinned so
// that the interning tables remain valid indefinitely.
func (h *Heap) Decref(id HeapId) {
	if id == NoHeapId {
		return
	}
	h.mu.Lock()
	h.decrefLocked(id)
	h.mu.Unlock()
}

func (h *Heap) decrefLocked(id HeapId) {
	e := &h.slots[id]
	if !e.occupied {
		panic(fmt.Sprintf("heap: decref of freed slot %d", id))
	}
	e.refcount--
	if e.refcount > 0 {
		return
	}
	if e.frozen {
		// Pinned: never released, refcount floor enforced at 0 so a further
		// spurious decref is still caught as a double-free instead of
		// silently going negative.
		e.refcount = 0
		return
	}
	referents := h.referentsLocked(e)
	obj := e.obj
	*e = entry{}
	h.free = append(h.free, id)
	_ = obj
	for _, r := range referents {
		h.decrefLocked(r)
	}
}

func (h *Heap) referentsLocked(e *entry) []HeapId {
	var out []HeapId
	add := func(v Value) {
		if !v.IsInline() {
			out = append(out, v.Id)
		}
	}
	switch e.kind {
	case KindTuple, KindList, KindSet, KindFrozenSet:
		for _, v := range e.obj.Elems {
			add(v)
		}
	case KindDict:
		if e.obj.Dict != nil {
			ks, vs := e.obj.Dict.Items()
			for _, v := range ks {
				add(v)
			}
			for _, v := range vs {
				add(v)
			}
		}
	case KindSlice:
		add(e.obj.Slice.Start)
		add(e.obj.Slice.Stop)
		add(e.obj.Slice.Step)
	case KindFunction:
		if f := e.obj.Function; f != nil {
			for _, v := range f.Defaults {
				add(v)
			}
			for _, v := range f.KwDefaults {
				add(v)
			}
			for _, c := range f.Cells {
				out = append(out, c)
			}
		}
	case KindBoundMethod:
		if m := e.obj.BoundMethod; m != nil {
			add(m.Self)
			add(m.Function)
		}
	case KindClass:
		if c := e.obj.Class; c != nil {
			for _, id := range c.MRO[1:] {
				out = append(out, id)
			}
			for _, id := range c.Bases {
				out = append(out, id)
			}
			for _, v := range c.Namespace {
				add(v)
			}
			if c.Metaclass != NoHeapId {
				out = append(out, c.Metaclass)
			}
		}
	case KindInstance:
		if inst := e.obj.Instance; inst != nil {
			out = append(out, inst.Class)
			for _, v := range inst.Attrs {
				add(v)
			}
			for _, v := range inst.Slots {
				add(v)
			}
		}
	case KindModule:
		if m := e.obj.Module; m != nil {
			for _, v := range m.Globals {
				add(v)
			}
		}
	case KindCell:
		if e.obj.Cell != nil {
			add(*e.obj.Cell)
		}
	case KindIterator:
		if it := e.obj.Iterator; it != nil && it.Source != NoHeapId {
			out = append(out, it.Source)
		}
	case KindExitStack:
		if es := e.obj.ExitStack; es != nil {
			for _, v := range es.Callbacks {
				add(v)
			}
		}
	case KindException:
		if ex := e.obj.Exception; ex != nil {
			out = append(out, ex.Class)
			for _, v := range ex.Args {
				add(v)
			}
			if ex.Cause != NoHeapId {
				out = append(out, ex.Cause)
			}
			if ex.Context != NoHeapId {
				out = append(out, ex.Context)
			}
		}
	}
	return out
}

// Read returns the kind and payload of id, without affecting the
// refcount. The returned *Object aliases heap-internal storage; callers
// must go through Write to mutate it so frozen checks are enforced.
func (h *Heap) Read(id HeapId) (Kind, *Object, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if int(id) >= len(h.slots) || !h.slots[id].occupied {
		return 0, nil, fmt.Errorf("heap: read of invalid slot %d", id)
	}
	return h.slots[id].kind, &h.slots[id].obj, nil
}

// Write replaces id's payload. It is forbidden on frozen entries.
func (h *Heap) Write(id HeapId, obj Object) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if int(id) >= len(h.slots) || !h.slots[id].occupied {
		return fmt.Errorf("heap: write to invalid slot %d", id)
	}
	e := &h.slots[id]
	if e.frozen {
		return fmt.Errorf("heap: write to frozen slot %d", id)
	}
	e.obj = obj
	e.hash = nil // mutation invalidates any cached hash (mutable => never cached anyway)
	return nil
}

// Refcount reports id's current refcount, for tests and the inspect
// service; not part of the driver-facing surface.
func (h *Heap) Refcount(id HeapId) int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if int(id) >= len(h.slots) || !h.slots[id].occupied {
		return 0
	}
	return h.slots[id].refcount
}

func (h *Heap) IsFrozen(id HeapId) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if int(id) >= len(h.slots) || !h.slots[id].occupied {
		return false
	}
	return h.slots[id].frozen
}
