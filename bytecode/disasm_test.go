package bytecode

import (
	"math/big"
	"strings"
	"testing"
)

func TestDisassembleRendersConstAndName(t *testing.T) {
	c := NewChunk("<module>")
	idx := c.AddConstant(Const{Kind: ConstInt, Int: big.NewInt(42)})
	c.EmitU16(OpConst, uint16(idx))
	c.Emit(OpReturnValue)

	out := Disassemble(c)
	if !strings.Contains(out, "== <module> ==") {
		t.Errorf("disassembly missing chunk header: %q", out)
	}
	if !strings.Contains(out, "CONST") || !strings.Contains(out, "42") {
		t.Errorf("disassembly missing CONST/42: %q", out)
	}
	if !strings.Contains(out, "RETURN_VALUE") {
		t.Errorf("disassembly missing RETURN_VALUE: %q", out)
	}
}

func TestDisassembleRecursesIntoNestedCode(t *testing.T) {
	inner := NewChunk("inner")
	inner.Emit(OpReturnNone)

	outer := NewChunk("<module>")
	outer.AddConstant(Const{Kind: ConstCode, Code: inner})
	outer.Emit(OpReturnNone)

	out := Disassemble(outer)
	if !strings.Contains(out, "== <module> ==") || !strings.Contains(out, "== inner ==") {
		t.Errorf("disassembly should render both the outer and nested chunk headers: %q", out)
	}
}

func TestDisassembleJumpShowsTarget(t *testing.T) {
	c := NewChunk("<module>")
	opPos := c.EmitJump(OpJump)
	c.Emit(OpReturnNone)
	c.PatchJump(opPos)

	out := Disassemble(c)
	if !strings.Contains(out, "JUMP") || !strings.Contains(out, "->") {
		t.Errorf("disassembly should show the jump's resolved target: %q", out)
	}
}

func TestDisassembleCallExternalShowsResolvedName(t *testing.T) {
	c := NewChunk("<module>")
	idx := c.AddExternalName("host_log")
	c.EmitU16x3(OpCallExternal, uint16(idx), 1, 0)
	c.Emit(OpReturnNone)

	out := Disassemble(c)
	if !strings.Contains(out, "host_log") {
		t.Errorf("disassembly should resolve the external-name index to its name: %q", out)
	}
}

func TestDisassembleLocalShowsVarComment(t *testing.T) {
	c := NewChunk("<module>")
	c.Vars = append(c.Vars, VarInfo{Name: "x", Kind: VarLocal, Slot: 0})
	c.NumLocals = 1
	c.EmitU16(OpLoadLocal, 0)
	c.Emit(OpReturnValue)

	out := Disassemble(c)
	if !strings.Contains(out, "; x") {
		t.Errorf("disassembly should annotate the local slot with its name: %q", out)
	}
}
