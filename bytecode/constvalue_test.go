package bytecode

import (
	"math/big"
	"testing"

	"github.com/ouros-lang/ouros/heap"
)

func TestConstToValuePrimitives(t *testing.T) {
	h := heap.NewDefault()

	if v := (Const{Kind: ConstNone}).ToValue(h); !v.IsNone() {
		t.Errorf("ConstNone.ToValue() = %v, want None", v)
	}
	if v := (Const{Kind: ConstBool, Bool: true}).ToValue(h); v.Kind != heap.KindBool || !v.Bool {
		t.Errorf("ConstBool(true).ToValue() = %v, want True", v)
	}
	if v := (Const{Kind: ConstInt, Int: big.NewInt(7)}).ToValue(h); v.Kind != heap.KindInt {
		t.Errorf("ConstInt.ToValue() kind = %v, want KindInt", v.Kind)
	}
	if v := (Const{Kind: ConstStr, Str: "hi"}).ToValue(h); v.Kind != heap.KindStr {
		t.Errorf("ConstStr.ToValue() kind = %v, want KindStr", v.Kind)
	}
}

func TestConstToValueTupleRecurses(t *testing.T) {
	h := heap.NewDefault()
	c := Const{Kind: ConstTuple, Tuple: []Const{
		{Kind: ConstInt, Int: big.NewInt(1)},
		{Kind: ConstInt, Int: big.NewInt(2)},
	}}

	v := c.ToValue(h)
	if v.Kind != heap.KindTuple {
		t.Fatalf("kind = %v, want KindTuple", v.Kind)
	}
	_, obj, err := h.Read(v.Id)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if len(obj.Elems) != 2 {
		t.Errorf("tuple elems = %d, want 2", len(obj.Elems))
	}
}

func TestConstToValueInternsStrings(t *testing.T) {
	h := heap.NewDefault()
	a := (Const{Kind: ConstStr, Str: "short"}).ToValue(h)
	b := (Const{Kind: ConstStr, Str: "short"}).ToValue(h)
	if a.Id != b.Id {
		t.Errorf("short string constants should share an interned slot")
	}
}
