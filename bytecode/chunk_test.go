package bytecode

import (
	"math/big"
	"testing"
)

func TestAddConstantNoDedup(t *testing.T) {
	c := NewChunk("<module>")
	i1 := c.AddConstant(Const{Kind: ConstInt, Int: big.NewInt(1000)})
	i2 := c.AddConstant(Const{Kind: ConstInt, Int: big.NewInt(1000)})
	if i1 == i2 {
		t.Errorf("AddConstant should not dedup equal-valued constants: got same index %d twice", i1)
	}
	if len(c.Constants) != 2 {
		t.Errorf("Constants len = %d, want 2", len(c.Constants))
	}
}

func TestAddExternalNameDedups(t *testing.T) {
	c := NewChunk("<module>")
	i1 := c.AddExternalName("host_log")
	i2 := c.AddExternalName("host_log")
	if i1 != i2 {
		t.Errorf("AddExternalName should dedup: got %d and %d", i1, i2)
	}
	i3 := c.AddExternalName("other")
	if i3 == i1 {
		t.Errorf("distinct external names must get distinct indices")
	}
	if len(c.ExternalNames) != 2 {
		t.Errorf("ExternalNames len = %d, want 2", len(c.ExternalNames))
	}
}

func TestEmitAndInstructionLayout(t *testing.T) {
	c := NewChunk("<module>")
	c.Emit(OpNop)
	c.EmitU8(OpLoadCell, 3)
	c.EmitU16(OpConst, 257)
	c.EmitU16x2(OpCall, 2, 1)

	want := []byte{
		byte(OpNop),
		byte(OpLoadCell), 3,
		byte(OpConst), 1, 1, // 257 = 0x0101
		byte(OpCall), 0, 2, 0, 1,
	}
	if len(c.Code) != len(want) {
		t.Fatalf("Code len = %d, want %d (code=%v)", len(c.Code), len(want), c.Code)
	}
	for i := range want {
		if c.Code[i] != want[i] {
			t.Errorf("Code[%d] = %d, want %d", i, c.Code[i], want[i])
		}
	}
}

func TestJumpPatchForward(t *testing.T) {
	c := NewChunk("<module>")
	opPos := c.EmitJump(OpJump)
	c.Emit(OpNop)
	c.Emit(OpNop)
	target := len(c.Code)
	c.PatchJump(opPos)

	offset := int16(uint16(c.Code[opPos])<<8 | uint16(c.Code[opPos+1]))
	gotTarget := opPos + 2 + int(offset)
	if gotTarget != target {
		t.Errorf("patched jump lands at %d, want %d", gotTarget, target)
	}
}

func TestJumpPatchBackward(t *testing.T) {
	c := NewChunk("<module>")
	loopStart := len(c.Code)
	c.Emit(OpNop)
	opPos := c.EmitJump(OpJump)
	c.PatchJumpTo(opPos, loopStart)

	offset := int16(uint16(c.Code[opPos])<<8 | uint16(c.Code[opPos+1]))
	gotTarget := opPos + 2 + int(offset)
	if gotTarget != loopStart {
		t.Errorf("patched backward jump lands at %d, want %d", gotTarget, loopStart)
	}
}

func TestSourceLocationLookupFindsTightestMatch(t *testing.T) {
	c := NewChunk("<module>")
	c.AddSourceLocation(0, 1, 0, 1, 5)
	c.AddSourceLocation(10, 2, 0, 2, 5)
	c.AddSourceLocation(20, 3, 0, 3, 5)

	loc, ok := c.GetSourceLocation(15)
	if !ok {
		t.Fatalf("expected a source location to be found")
	}
	if loc.Line != 2 {
		t.Errorf("Line = %d, want 2 (the tightest location at or before offset 15)", loc.Line)
	}
}

func TestSourceLocationLookupMissesBeforeFirst(t *testing.T) {
	c := NewChunk("<module>")
	c.AddSourceLocation(10, 2, 0, 2, 5)
	if _, ok := c.GetSourceLocation(5); ok {
		t.Errorf("expected no source location before the first recorded offset")
	}
}

func TestHandlerForPicksInnermost(t *testing.T) {
	c := NewChunk("<module>")
	c.AddHandler(TryHandler{Start: 0, End: 100, HandlerPC: 50})
	c.AddHandler(TryHandler{Start: 10, End: 20, HandlerPC: 15})

	h, ok := c.HandlerFor(12)
	if !ok {
		t.Fatalf("expected a handler covering pc=12")
	}
	if h.HandlerPC != 15 {
		t.Errorf("HandlerPC = %d, want 15 (the narrower, later-added handler)", h.HandlerPC)
	}

	h2, ok := c.HandlerFor(50)
	if !ok {
		t.Fatalf("expected a handler covering pc=50")
	}
	if h2.HandlerPC != 50 {
		t.Errorf("HandlerPC = %d, want 50 (only the outer handler covers pc=50)", h2.HandlerPC)
	}

	if _, ok := c.HandlerFor(200); ok {
		t.Errorf("expected no handler to cover pc=200")
	}
}

func TestConstStringer(t *testing.T) {
	cases := []struct {
		c    Const
		want string
	}{
		{Const{Kind: ConstNone}, "None"},
		{Const{Kind: ConstBool, Bool: true}, "true"},
		{Const{Kind: ConstInt, Int: big.NewInt(42)}, "42"},
		{Const{Kind: ConstStr, Str: "hi"}, `"hi"`},
	}
	for _, tc := range cases {
		if got := tc.c.String(); got != tc.want {
			t.Errorf("Const.String() = %q, want %q", got, tc.want)
		}
	}
}
