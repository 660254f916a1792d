package bytecode

import (
	"fmt"
	"math/big"
)

// BytecodeMagic tags the start of a serialized Chunk (see package wire).
var BytecodeMagic = []byte{'O', 'U', 'R', 'O'}

// ChunkVersion is bumped whenever the instruction set or Chunk layout
// changes in a way that breaks previously-compiled bytecode.
const ChunkVersion = 1

// ConstKind discriminates the compile-time constant pool. Constants never
// carry a HeapId: they are materialized into heap values each time a CONST
// instruction referencing them executes, so that a chunk can be loaded
// without an accompanying heap.
type ConstKind uint8

const (
	ConstNone ConstKind = iota
	ConstBool
	ConstInt
	ConstFloat
	ConstComplexR // complex constant, real+imag both stored as Float children
	ConstStr
	ConstBytes
	ConstTuple
	ConstCode // nested function/class body: Code holds a *Chunk
)

// Const is one entry of a Chunk's constant pool.
type Const struct {
	Kind    ConstKind
	Bool    bool
	Int     *big.Int
	Float   float64
	Str     string
	Bytes   []byte
	Tuple   []Const
	Code    *Chunk
}

func (c Const) String() string {
	switch c.Kind {
	case ConstNone:
		return "None"
	case ConstBool:
		return fmt.Sprintf("%v", c.Bool)
	case ConstInt:
		return c.Int.String()
	case ConstFloat:
		return fmt.Sprintf("%g", c.Float)
	case ConstStr:
		return fmt.Sprintf("%q", c.Str)
	case ConstBytes:
		return fmt.Sprintf("b%q", c.Bytes)
	case ConstTuple:
		return fmt.Sprintf("tuple(%d)", len(c.Tuple))
	case ConstCode:
		return fmt.Sprintf("<code %s>", c.Code.Name)
	default:
		return "<const?>"
	}
}

// VarKind classifies where a name resolves, used by the compiler to pick
// the right LOAD_*/STORE_* opcode and by the disassembler to annotate
// operands with names instead of bare indices.
type VarKind uint8

const (
	VarLocal VarKind = iota
	VarCell
	VarFree // captured from an enclosing scope, resolved via LOAD_CELL too
	VarGlobal
)

// VarInfo names one local/cell slot, purely for diagnostics and
// disassembly; the VM itself addresses slots by index.
type VarInfo struct {
	Name string
	Kind VarKind
	Slot int
}

// TryHandler is one entry of a Chunk's exception-handler table: the
// instruction-pointer range [Start, End) is protected by a handler that
// begins at HandlerPC once the operand stack has been unwound to
// StackDepth. IsFinally marks a finally clause, which always runs and may
// re-raise via END_FINALLY.
type TryHandler struct {
	Start, End int
	HandlerPC  int
	StackDepth int
	IsFinally  bool
}

// SourceLocation maps a bytecode offset back to source text, consumed by
// the runtime error's traceback rendering (spec §7 RuntimeError frames).
type SourceLocation struct {
	Offset             int
	Line, Column       int
	EndLine, EndColumn int
}

// Chunk is the unit of compiled code: one function body, one module body,
// or one class body. It is the "opaque bytecode + constant pool" the
// dispatch core consumes; nothing outside package compiler constructs one
// directly outside of tests.
type Chunk struct {
	Version    int
	Name       string // function name, "<module>", or "<lambda>"
	ScriptName string // driver-supplied name, carried into traceback frames

	Code      []byte
	Constants []Const

	ParamNames    []string
	DefaultValues []Const // trailing defaults, aligned to the tail of ParamNames
	VarargsName   string  // "" if the function takes no *args
	KwargsName    string  // "" if the function takes no **kwargs

	NumLocals int
	Vars      []VarInfo // diagnostic names for local/cell slots

	FreeVars     []string // names captured from an enclosing function
	CellVarSlots []int    // local slots that are also exposed as cells to nested closures

	ExternalNames []string // table referenced by CALL_EXTERNAL operands, C6
	Handlers      []TryHandler
	SourceMap     []SourceLocation

	IsGenerator bool
	IsCoroutine bool
}

// NewChunk returns an empty Chunk ready for emission.
func NewChunk(name string) *Chunk {
	return &Chunk{Version: ChunkVersion, Name: name}
}

// AddConstant appends c to the pool and returns its index. Unlike the
// teacher's string-pool dedup, constants here are not deduplicated by
// structural equality: two occurrences of the same literal may carry
// distinct identity once materialized onto the heap (matching Python,
// where `1000 is 1000` is not guaranteed true), so collapsing them would
// silently change observable identity semantics.
func (c *Chunk) AddConstant(k Const) int {
	c.Constants = append(c.Constants, k)
	return len(c.Constants) - 1
}

// AddExternalName interns name into the external-call table, returning its
// index, deduplicating because the table is purely a lookup key, never an
// identity-bearing value.
func (c *Chunk) AddExternalName(name string) int {
	for i, n := range c.ExternalNames {
		if n == name {
			return i
		}
	}
	c.ExternalNames = append(c.ExternalNames, name)
	return len(c.ExternalNames) - 1
}

// Emit appends a single opcode with no operand.
func (c *Chunk) Emit(op Opcode) int {
	pos := len(c.Code)
	c.Code = append(c.Code, byte(op))
	return pos
}

// EmitU8 appends op followed by one operand byte.
func (c *Chunk) EmitU8(op Opcode, operand byte) int {
	pos := len(c.Code)
	c.Code = append(c.Code, byte(op), operand)
	return pos
}

// EmitU16 appends op followed by a big-endian u16 operand.
func (c *Chunk) EmitU16(op Opcode, operand uint16) int {
	pos := len(c.Code)
	c.Code = append(c.Code, byte(op), byte(operand>>8), byte(operand))
	return pos
}

// EmitU16x2 appends op followed by two big-endian u16 operands, used by
// CALL (argc, kwargc) and similar two-field instructions.
func (c *Chunk) EmitU16x2(op Opcode, a, b uint16) int {
	pos := len(c.Code)
	c.Code = append(c.Code, byte(op), byte(a>>8), byte(a), byte(b>>8), byte(b))
	return pos
}

// EmitU16x3 appends op followed by three big-endian u16 operands, used by
// CALL_EXTERNAL (name_index, argc, kwargc).
func (c *Chunk) EmitU16x3(op Opcode, a, b, d uint16) int {
	pos := len(c.Code)
	c.Code = append(c.Code, byte(op), byte(a>>8), byte(a), byte(b>>8), byte(b), byte(d>>8), byte(d))
	return pos
}

// EmitJump appends a jump opcode with a placeholder offset and returns the
// position of the offset's first byte, to be patched once the target is
// known.
func (c *Chunk) EmitJump(op Opcode) int {
	c.Code = append(c.Code, byte(op), 0, 0)
	return len(c.Code) - 2
}

// PatchJump writes the jump offset at operandPos so that it lands on the
// current end of the code (a forward jump).
func (c *Chunk) PatchJump(operandPos int) {
	c.PatchJumpTo(operandPos, len(c.Code))
}

// PatchJumpTo writes the jump offset at operandPos so that it lands on an
// arbitrary target instruction position, used for backward jumps (loops).
func (c *Chunk) PatchJumpTo(operandPos, target int) {
	offset := int16(target - (operandPos + 2))
	c.Code[operandPos] = byte(uint16(offset) >> 8)
	c.Code[operandPos+1] = byte(uint16(offset))
}

// AddSourceLocation records that the instruction at offset begins at the
// given source position. Chunks compiled without source tracking simply
// never call this, and GetSourceLocation returns the zero value.
func (c *Chunk) AddSourceLocation(offset, line, col, endLine, endCol int) {
	c.SourceMap = append(c.SourceMap, SourceLocation{offset, line, col, endLine, endCol})
}

// GetSourceLocation finds the tightest SourceLocation at or before offset.
func (c *Chunk) GetSourceLocation(offset int) (SourceLocation, bool) {
	var best SourceLocation
	found := false
	for _, loc := range c.SourceMap {
		if loc.Offset <= offset && (!found || loc.Offset > best.Offset) {
			best = loc
			found = true
		}
	}
	return best, found
}

// AddHandler installs a try-handler table entry.
func (c *Chunk) AddHandler(h TryHandler) {
	c.Handlers = append(c.Handlers, h)
}

// HandlerFor returns the innermost (last-added, narrowest) handler covering
// pc, if any. Handlers are consulted in reverse so that nested try blocks
// shadow their enclosing ones.
func (c *Chunk) HandlerFor(pc int) (TryHandler, bool) {
	for i := len(c.Handlers) - 1; i >= 0; i-- {
		h := c.Handlers[i]
		if pc >= h.Start && pc < h.End {
			return h, true
		}
	}
	return TryHandler{}, false
}
