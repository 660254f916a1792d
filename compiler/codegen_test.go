package compiler

import (
	"strings"
	"testing"

	"github.com/ouros-lang/ouros/bytecode"
	"github.com/ouros-lang/ouros/vm"
)

func compileExprOrFatal(t *testing.T, src string) *bytecode.Chunk {
	t.Helper()
	chunk, err := Compile(src, CompileOptions{ScriptName: "test"})
	if err != nil {
		t.Fatalf("compile %q: %v", src, err)
	}
	return chunk
}

func runChunk(t *testing.T, chunk *bytecode.Chunk) string {
	t.Helper()
	machine := vm.New(vm.DefaultLimits())
	result, perr := machine.Run(chunk, nil, nil)
	if perr != nil {
		t.Fatalf("run error: %v", perr)
	}
	repr, perr := machine.Repr(result)
	if perr != nil {
		t.Fatalf("repr error: %v", perr)
	}
	return repr
}

func TestCompileInteger(t *testing.T) {
	if got := runChunk(t, compileExprOrFatal(t, "42")); got != "42" {
		t.Errorf("result = %s, want 42", got)
	}
}

func TestCompileNegativeInteger(t *testing.T) {
	if got := runChunk(t, compileExprOrFatal(t, "-5")); got != "-5" {
		t.Errorf("result = %s, want -5", got)
	}
}

func TestCompileFloat(t *testing.T) {
	if got := runChunk(t, compileExprOrFatal(t, "3.14")); got != "3.14" {
		t.Errorf("result = %s, want 3.14", got)
	}
}

func TestCompileNone(t *testing.T) {
	if got := runChunk(t, compileExprOrFatal(t, "None")); got != "None" {
		t.Errorf("result = %s, want None", got)
	}
}

func TestCompileTrue(t *testing.T) {
	if got := runChunk(t, compileExprOrFatal(t, "True")); got != "True" {
		t.Errorf("result = %s, want True", got)
	}
}

func TestCompileFalse(t *testing.T) {
	if got := runChunk(t, compileExprOrFatal(t, "False")); got != "False" {
		t.Errorf("result = %s, want False", got)
	}
}

func TestCompileBinaryAdd(t *testing.T) {
	if got := runChunk(t, compileExprOrFatal(t, "1 + 2")); got != "3" {
		t.Errorf("result = %s, want 3", got)
	}
}

func TestCompileBinarySubtract(t *testing.T) {
	if got := runChunk(t, compileExprOrFatal(t, "10 - 3")); got != "7" {
		t.Errorf("result = %s, want 7", got)
	}
}

func TestCompileBinaryMultiply(t *testing.T) {
	if got := runChunk(t, compileExprOrFatal(t, "6 * 7")); got != "42" {
		t.Errorf("result = %s, want 42", got)
	}
}

func TestCompileBinaryCompare(t *testing.T) {
	if got := runChunk(t, compileExprOrFatal(t, "5 < 10")); got != "True" {
		t.Errorf("5 < 10 = %s, want True", got)
	}
}

func TestCompileOperatorPrecedence(t *testing.T) {
	// 1 + 2 * 3: * binds tighter, so this is 1 + (2 * 3) = 7
	if got := runChunk(t, compileExprOrFatal(t, "1 + 2 * 3")); got != "7" {
		t.Errorf("result = %s, want 7", got)
	}
}

func TestCompileParenExpr(t *testing.T) {
	if got := runChunk(t, compileExprOrFatal(t, "(1 + 2) * 3")); got != "9" {
		t.Errorf("result = %s, want 9", got)
	}
}

func TestCompileAssignmentAndReturn(t *testing.T) {
	src := "x = 42\nx\n"
	if got := runChunk(t, compileExprOrFatal(t, src)); got != "42" {
		t.Errorf("result = %s, want 42", got)
	}
}

func TestCompileFunctionDefAndCall(t *testing.T) {
	src := "def square(n):\n    return n * n\nsquare(5)\n"
	if got := runChunk(t, compileExprOrFatal(t, src)); got != "25" {
		t.Errorf("result = %s, want 25", got)
	}
}

func TestCompileFunctionWithMultipleArgs(t *testing.T) {
	src := "def add(a, b):\n    return a + b\nadd(3, 4)\n"
	if got := runChunk(t, compileExprOrFatal(t, src)); got != "7" {
		t.Errorf("result = %s, want 7", got)
	}
}

func TestCompileListLiteral(t *testing.T) {
	if got := runChunk(t, compileExprOrFatal(t, "[1, 2, 3]")); got != "[1, 2, 3]" {
		t.Errorf("result = %s, want [1, 2, 3]", got)
	}
}

func TestCompileDictLiteral(t *testing.T) {
	if got := runChunk(t, compileExprOrFatal(t, `{"a": 1}`)); got != "{'a': 1}" {
		t.Errorf("result = %s, want {'a': 1}", got)
	}
}

func TestCompileIfElseTrueBranch(t *testing.T) {
	src := "if True:\n    x = 1\nelse:\n    x = 2\nx\n"
	if got := runChunk(t, compileExprOrFatal(t, src)); got != "1" {
		t.Errorf("result = %s, want 1", got)
	}
}

func TestCompileIfElseFalseBranch(t *testing.T) {
	src := "if False:\n    x = 1\nelse:\n    x = 2\nx\n"
	if got := runChunk(t, compileExprOrFatal(t, src)); got != "2" {
		t.Errorf("result = %s, want 2", got)
	}
}

// TestCompileExternalCall exercises the CALL_EXTERNAL opcode path: a name
// listed in CompileOptions.ExternalNames resolves to CALL_EXTERNAL rather
// than an ordinary name lookup, and the chunk records it in ExternalNames.
func TestCompileExternalCall(t *testing.T) {
	chunk, err := Compile("host_log(1, 2)", CompileOptions{
		ScriptName:    "test",
		ExternalNames: []string{"host_log"},
	})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}

	found := false
	for _, n := range chunk.ExternalNames {
		if n == "host_log" {
			found = true
		}
	}
	if !found {
		t.Errorf("ExternalNames = %v, want to contain host_log", chunk.ExternalNames)
	}

	disasm := bytecode.Disassemble(chunk)
	if !strings.Contains(disasm, "CALL_EXTERNAL") {
		t.Errorf("disassembly = %q, want a CALL_EXTERNAL instruction", disasm)
	}
}

func TestCompileDisassembleDoesNotPanic(t *testing.T) {
	chunk := compileExprOrFatal(t, "def f(x):\n    return x + 1\nf(41)\n")
	out := bytecode.Disassemble(chunk)
	if !strings.Contains(out, "CALL") {
		t.Errorf("disassembly = %q, want it to mention a CALL instruction", out)
	}
}
