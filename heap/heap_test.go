package heap

import (
	"math/big"
	"testing"
)

func strEq(target Value) func(Value) (bool, error) {
	return func(v Value) (bool, error) { return v.Kind == target.Kind && v.Id == target.Id, nil }
}

func TestAllocRefcountDecrefFrees(t *testing.T) {
	h := NewDefault()
	id := h.Alloc(KindList, Object{Elems: nil})
	if rc := h.Refcount(id); rc != 1 {
		t.Fatalf("refcount = %d, want 1", rc)
	}
	h.Incref(id)
	if rc := h.Refcount(id); rc != 2 {
		t.Fatalf("refcount after incref = %d, want 2", rc)
	}
	h.Decref(id)
	if rc := h.Refcount(id); rc != 1 {
		t.Fatalf("refcount after one decref = %d, want 1", rc)
	}
	h.Decref(id)
	if rc := h.Refcount(id); rc != 0 {
		t.Fatalf("refcount after final decref = %d, want 0 (freed)", rc)
	}
	if _, _, err := h.Read(id); err == nil {
		t.Errorf("Read of freed slot should error")
	}
}

func TestDecrefRecursivelyFreesReferents(t *testing.T) {
	h := NewDefault()
	inner := h.Alloc(KindList, Object{Elems: nil})
	outer := h.Alloc(KindList, Object{Elems: []Value{HeapRef(KindList, inner)}})

	h.Decref(outer)

	if _, _, err := h.Read(inner); err == nil {
		t.Errorf("inner list should have been freed when its only referent (outer) was freed")
	}
}

func TestFreedSlotIsRecycled(t *testing.T) {
	h := NewDefault()
	id1 := h.Alloc(KindList, Object{})
	h.Decref(id1)
	id2 := h.Alloc(KindList, Object{})
	if id2 != id1 {
		t.Errorf("expected freed slot %d to be recycled, got new slot %d", id1, id2)
	}
}

func TestIncrefOfFreedSlotPanics(t *testing.T) {
	h := NewDefault()
	id := h.Alloc(KindList, Object{})
	h.Decref(id)
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic on incref of freed slot")
		}
	}()
	h.Incref(id)
}

func TestWriteToFrozenSlotFails(t *testing.T) {
	h := NewDefault()
	id := h.EmptyFrozenTuple()
	if err := h.Write(id, Object{Elems: []Value{None}}); err == nil {
		t.Errorf("expected write to frozen slot to fail")
	}
}

func TestStats(t *testing.T) {
	h := NewDefault()
	a := h.Alloc(KindList, Object{})
	h.Alloc(KindList, Object{})
	h.Decref(a)

	stats := h.Stats()
	if stats.LiveObjects != 1 {
		t.Errorf("LiveObjects = %d, want 1", stats.LiveObjects)
	}
	if stats.FreeSlots != 1 {
		t.Errorf("FreeSlots = %d, want 1", stats.FreeSlots)
	}
}

func TestSmallIntInterning(t *testing.T) {
	h := NewDefault()
	a := h.NewInt(big.NewInt(5))
	b := h.NewInt(big.NewInt(5))
	if a != b {
		t.Errorf("small ints 5 and 5 should share an interned slot: %d != %d", a, b)
	}
	if !h.IsFrozen(a) {
		t.Errorf("interned small int should be frozen")
	}
}

func TestLargeIntNotInterned(t *testing.T) {
	h := NewDefault()
	a := h.NewInt(big.NewInt(100000))
	b := h.NewInt(big.NewInt(100000))
	if a == b {
		t.Errorf("large ints outside the small-int range should not share a slot")
	}
}

func TestStringInterningUnderThreshold(t *testing.T) {
	h := NewDefault()
	a := h.InternString("short")
	b := h.InternString("short")
	if a != b {
		t.Errorf("short strings at or under the threshold should be interned")
	}
	if !h.IsFrozen(a) {
		t.Errorf("interned string should be frozen")
	}
}

func TestStringOverThresholdNotInterned(t *testing.T) {
	h := NewDefault()
	long := "this string is deliberately longer than the interning threshold"
	a := h.InternString(long)
	b := h.InternString(long)
	if a == b {
		t.Errorf("strings over the threshold should not be interned")
	}
}

func TestNewStringAlwaysFresh(t *testing.T) {
	h := NewDefault()
	a := h.NewString("short")
	b := h.NewString("short")
	if a == b {
		t.Errorf("NewString should never share identity even for short text")
	}
}

func TestEmptyFrozenTupleShared(t *testing.T) {
	h := NewDefault()
	a := h.EmptyFrozenTuple()
	b := h.EmptyFrozenTuple()
	if a != b {
		t.Errorf("EmptyFrozenTuple should return the same id on every call")
	}
}

func TestHashCachedAndStableForEqualInts(t *testing.T) {
	h := NewDefault()
	id1 := h.NewInt(big.NewInt(99999))
	id2 := h.NewInt(big.NewInt(99999))

	h1, err := h.Hash(id1)
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	h2, err := h.Hash(id2)
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if h1 != h2 {
		t.Errorf("equal-valued ints must hash equal: %d != %d", h1, h2)
	}

	// repeat call must return the cached value unchanged
	h1again, err := h.Hash(id1)
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if h1again != h1 {
		t.Errorf("cached hash changed between calls: %d != %d", h1again, h1)
	}
}

func TestDictObjSetGetDelete(t *testing.T) {
	h := NewDefault()
	d := NewDictObj()

	key := HeapRef(KindStr, h.InternString("k"))
	val := HeapRef(KindInt, h.NewInt(big.NewInt(42)))

	hash, err := h.Hash(key.Id)
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}

	if err := d.Set(hash, key, val, strEq(key)); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if d.Len() != 1 {
		t.Errorf("Len = %d, want 1", d.Len())
	}

	got, ok, err := d.Get(hash, strEq(key))
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if got.Id != val.Id {
		t.Errorf("Get returned wrong value")
	}

	deleted, err := d.Delete(hash, strEq(key))
	if err != nil || !deleted {
		t.Fatalf("Delete failed: deleted=%v err=%v", deleted, err)
	}
	if d.Len() != 0 {
		t.Errorf("Len after delete = %d, want 0", d.Len())
	}
	if _, ok, _ := d.Get(hash, strEq(key)); ok {
		t.Errorf("Get after delete should report not-found")
	}
}

func TestDictObjPreservesInsertionOrder(t *testing.T) {
	h := NewDefault()
	d := NewDictObj()

	names := []string{"z", "a", "m"}
	for _, n := range names {
		kid := h.InternString(n)
		key := HeapRef(KindStr, kid)
		hash, err := h.Hash(kid)
		if err != nil {
			t.Fatalf("hash error: %v", err)
		}
		if err := d.Set(hash, key, None, strEq(key)); err != nil {
			t.Fatalf("Set error: %v", err)
		}
	}

	keys, _ := d.Items()
	if len(keys) != len(names) {
		t.Fatalf("Items returned %d keys, want %d", len(keys), len(names))
	}
	for i, n := range names {
		kid := h.InternString(n)
		if keys[i].Id != kid {
			t.Errorf("Items()[%d] = slot %d, want slot for %q (%d)", i, keys[i].Id, n, kid)
		}
	}
}

func TestKindStringers(t *testing.T) {
	cases := map[Kind]string{
		KindNone: "NoneType",
		KindInt:  "int",
		KindStr:  "str",
		KindList: "list",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

func TestValueIsInlineAndEqual(t *testing.T) {
	if !None.IsInline() || !True.IsInline() || !False.IsInline() {
		t.Errorf("None/True/False must be inline values")
	}
	h := NewDefault()
	id := h.Alloc(KindList, Object{})
	v := HeapRef(KindList, id)
	if v.IsInline() {
		t.Errorf("heap-allocated value must not be inline")
	}
	if !True.Equal(FromBool(true)) {
		t.Errorf("True should equal FromBool(true)")
	}
	if True.Equal(False) {
		t.Errorf("True should not equal False")
	}
}
