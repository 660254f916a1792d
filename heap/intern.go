package heap

import "math/big"

// DefaultSmallIntLo/Hi pick CPython's actual cached small-int range. The
// spec only requires *a* fixed range be interned; reusing this one keeps
// behavior recognizable to anyone who has poked at CPython internals.
const (
	DefaultSmallIntLo = -5
	DefaultSmallIntHi = 256
)

// DefaultStringInternThreshold: strings no longer than this many bytes are
// candidates for interning, alongside exact-match dedup. This is looser
// than CPython's identifier-only interning but keeps Ouros's rule simple
// and the observable identity behavior consistent regardless of whether a
// string came from source or from str concatenation.
const DefaultStringInternThreshold = 16

// NewDefault builds a Heap using the picked interning defaults.
func NewDefault() *Heap {
	return New(DefaultSmallIntLo, DefaultSmallIntHi, DefaultStringInternThreshold)
}

// InternString deduplicates text against the string table. Only strings
// at or under the configured threshold are candidates; longer strings
// always get a fresh, unfrozen slot. Returns the (possibly shared) id.
func (h *Heap) InternString(text string) HeapId {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(text) <= h.internThreshold {
		if id, ok := h.internedStrings[text]; ok {
			return id
		}
		id := h.allocLocked(KindStr, Object{Str: text}, true)
		h.internedStrings[text] = id
		return id
	}
	return h.allocLocked(KindStr, Object{Str: text}, false)
}

// NewString allocates a fresh, non-interned string entry regardless of
// length; used when identity must not be shared (e.g. a freshly built
// f-string result that happens to collide in content with an interned
// literal but must remain independently mutable-adjacent bookkeeping-wise,
// even though str itself is immutable in Python — this just avoids
// surprising callers who allocate and then immediately mutate metadata
// such as the cached hash on what they believe is a private entry).
func (h *Heap) NewString(text string) HeapId {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocLocked(KindStr, Object{Str: text}, false)
}

// InternSmallInt returns the canonical, frozen HeapId for i if it falls
// within the configured small-int range, allocating it lazily on first
// use; values outside the range always get a fresh slot via NewInt.
func (h *Heap) InternSmallInt(i int64) (HeapId, bool) {
	if i < h.smallIntLo || i > h.smallIntHi {
		return NoHeapId, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if id, ok := h.internedInts[i]; ok {
		return id, true
	}
	id := h.allocLocked(KindInt, Object{Int: big.NewInt(i)}, true)
	h.internedInts[i] = id
	return id, true
}

// NewInt allocates an Int value, transparently using the interned slot
// when big.Int fits the small-int range and can be represented as an
// int64.
func (h *Heap) NewInt(v *big.Int) HeapId {
	if v.IsInt64() {
		if id, ok := h.InternSmallInt(v.Int64()); ok {
			return id
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocLocked(KindInt, Object{Int: new(big.Int).Set(v)}, false)
}

// EmptyFrozenTuple returns the single shared, frozen empty-tuple id,
// allocating it on first use. The empty tuple is one of the handful of
// objects the data model calls out as always frozen.
func (h *Heap) EmptyFrozenTuple() HeapId {
	h.mu.Lock()
	defer h.mu.Unlock()
	const key = "\x00__empty_tuple__"
	if id, ok := h.internedStrings[key]; ok {
		return id
	}
	id := h.allocLocked(KindTuple, Object{Elems: nil}, true)
	h.internedStrings[key] = id
	return id
}
