package vm_test

import (
	"testing"

	"github.com/ouros-lang/ouros/bytecode"
	"github.com/ouros-lang/ouros/compiler"
	"github.com/ouros-lang/ouros/vm"
)

func newVM() *vm.VM {
	return vm.New(vm.DefaultLimits())
}

func compileOrFatal(t *testing.T, code string) *bytecode.Chunk {
	t.Helper()
	chunk, err := compiler.Compile(code, compiler.CompileOptions{ScriptName: "test"})
	if err != nil {
		t.Fatalf("compile %q: %v", code, err)
	}
	return chunk
}

func runExpr(t *testing.T, code string) string {
	t.Helper()
	chunk := compileOrFatal(t, code)
	machine := newVM()
	result, perr := machine.Run(chunk, nil, nil)
	if perr != nil {
		t.Fatalf("run %q: %v", code, perr)
	}
	repr, perr := machine.Repr(result)
	if perr != nil {
		t.Fatalf("repr %q: %v", code, perr)
	}
	return repr
}

func TestBuiltinLen(t *testing.T) {
	cases := map[string]string{
		`len("hello")`:        "5",
		`len([1, 2, 3])`:      "3",
		`len((1, 2))`:         "2",
		`len({"a": 1, "b": 2})`: "2",
		`len(b"xy")`:          "2",
	}
	for code, want := range cases {
		if got := runExpr(t, code); got != want {
			t.Errorf("%s = %s, want %s", code, got, want)
		}
	}
}

func TestBuiltinIsinstance(t *testing.T) {
	cases := map[string]string{
		"isinstance(1, int)":          "True",
		`isinstance("x", int)`:        "False",
		"isinstance(1, (str, int))":   "True",
		"isinstance(1.5, float)":      "True",
	}
	for code, want := range cases {
		if got := runExpr(t, code); got != want {
			t.Errorf("%s = %s, want %s", code, got, want)
		}
	}
}

func TestBuiltinIssubclass(t *testing.T) {
	if got := runExpr(t, "issubclass(ValueError, Exception)"); got != "True" {
		t.Errorf("issubclass(ValueError, Exception) = %s, want True", got)
	}
}

func TestBuiltinAbs(t *testing.T) {
	cases := map[string]string{
		"abs(-5)":   "5",
		"abs(5)":    "5",
		"abs(-2.5)": "2.5",
	}
	for code, want := range cases {
		if got := runExpr(t, code); got != want {
			t.Errorf("%s = %s, want %s", code, got, want)
		}
	}
}

func TestBuiltinCallable(t *testing.T) {
	cases := map[string]string{
		"callable(len)":      "True",
		"callable(1)":        "False",
		"callable(int)":      "True",
	}
	for code, want := range cases {
		if got := runExpr(t, code); got != want {
			t.Errorf("%s = %s, want %s", code, got, want)
		}
	}
}

func TestBuiltinTypeAndRepr(t *testing.T) {
	if got := runExpr(t, "type(1)"); got != "<class 'int'>" {
		t.Errorf("type(1) = %s, want <class 'int'>", got)
	}
	if got := runExpr(t, `repr("x")`); got != `"'x'"` {
		t.Errorf(`repr("x") = %s, want "'x'"`, got)
	}
}

func TestBuiltinHashStable(t *testing.T) {
	chunk, err := compiler.Compile("hash(1) == hash(1)", compiler.CompileOptions{ScriptName: "test"})
	if err != nil {
		t.Fatal(err)
	}
	machine := vm.New(vm.DefaultLimits())
	result, perr := machine.Run(chunk, nil, nil)
	if perr != nil {
		t.Fatal(perr)
	}
	repr, _ := machine.Repr(result)
	if repr != "True" {
		t.Errorf("hash(1) == hash(1) = %s, want True", repr)
	}
}
