package bytecode

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Disassemble renders chunk and every nested code constant as human-readable
// text, used by cmd/ouros's --disasm flag and by test failure messages.
func Disassemble(c *Chunk) string {
	var b strings.Builder
	disassembleInto(&b, c, "")
	return b.String()
}

func disassembleInto(b *strings.Builder, c *Chunk, indent string) {
	fmt.Fprintf(b, "%s== %s ==\n", indent, c.Name)
	offset := 0
	for offset < len(c.Code) {
		n := disassembleInstruction(b, c, offset, indent)
		offset += n
	}
	for _, k := range c.Constants {
		if k.Kind == ConstCode {
			fmt.Fprintln(b)
			disassembleInto(b, k.Code, indent+"  ")
		}
	}
}

func disassembleInstruction(b *strings.Builder, c *Chunk, offset int, indent string) int {
	op := Opcode(c.Code[offset])
	info := GetOpcodeInfo(op)

	if loc, ok := c.GetSourceLocation(offset); ok {
		fmt.Fprintf(b, "%s%04d  L%-4d %-22s", indent, offset, loc.Line, info.Name)
	} else {
		fmt.Fprintf(b, "%s%04d        %-22s", indent, offset, info.Name)
	}

	n := 1 + info.OperandLen
	switch op {
	case OpConst, OpLoadGlobal, OpStoreGlobal, OpLoadBuiltin, OpLoadAttr, OpStoreAttr, OpDeleteAttr:
		idx := binary.BigEndian.Uint16(c.Code[offset+1 : offset+3])
		if op == OpConst && int(idx) < len(c.Constants) {
			fmt.Fprintf(b, "%d  ; %s", idx, c.Constants[idx])
		} else {
			fmt.Fprintf(b, "%d", idx)
		}
	case OpLoadLocal, OpStoreLocal, OpDeleteLocal:
		idx := binary.BigEndian.Uint16(c.Code[offset+1 : offset+3])
		fmt.Fprintf(b, "%d%s", idx, varComment(c, int(idx)))
	case OpLoadCell, OpStoreCell, OpLoadCellRef:
		fmt.Fprintf(b, "%d", c.Code[offset+1])
	case OpJump, OpJumpIfTrue, OpJumpIfFalse, OpJumpIfTruePop, OpJumpIfFalsePop,
		OpPopJumpIfTrue, OpPopJumpIfFalse, OpForIter:
		rel := int16(binary.BigEndian.Uint16(c.Code[offset+1 : offset+3]))
		fmt.Fprintf(b, "%+d  -> %04d", rel, offset+3+int(rel))
	case OpCall:
		argc := binary.BigEndian.Uint16(c.Code[offset+1 : offset+3])
		kwargc := binary.BigEndian.Uint16(c.Code[offset+3 : offset+5])
		fmt.Fprintf(b, "argc=%d kwargc=%d", argc, kwargc)
	case OpCallExternal:
		idx := binary.BigEndian.Uint16(c.Code[offset+1 : offset+3])
		argc := binary.BigEndian.Uint16(c.Code[offset+3 : offset+5])
		kwargc := binary.BigEndian.Uint16(c.Code[offset+5 : offset+7])
		name := "?"
		if int(idx) < len(c.ExternalNames) {
			name = c.ExternalNames[idx]
		}
		fmt.Fprintf(b, "%s argc=%d kwargc=%d", name, argc, kwargc)
	case OpMakeFunction:
		idx := binary.BigEndian.Uint16(c.Code[offset+1 : offset+3])
		fmt.Fprintf(b, "const=%d cells=%d", idx, c.Code[offset+3])
	case OpBuildTuple, OpBuildList, OpBuildDict, OpBuildSet:
		fmt.Fprintf(b, "%d", binary.BigEndian.Uint16(c.Code[offset+1:offset+3]))
	case OpSetupTry:
		handlerPC := binary.BigEndian.Uint16(c.Code[offset+1 : offset+3])
		depth := binary.BigEndian.Uint16(c.Code[offset+3 : offset+5])
		fmt.Fprintf(b, "-> %04d depth=%d", handlerPC, depth)
	case OpRaise:
		fmt.Fprintf(b, "mode=%d", c.Code[offset+1])
	}
	fmt.Fprintln(b)

	if n < 1 {
		n = 1
	}
	return n
}

func varComment(c *Chunk, slot int) string {
	for _, v := range c.Vars {
		if v.Slot == slot && v.Kind == VarLocal {
			return "  ; " + v.Name
		}
	}
	return ""
}
