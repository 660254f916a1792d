package compiler_test

import (
	"testing"

	"github.com/ouros-lang/ouros/compiler"
	"github.com/ouros-lang/ouros/vm"
)

// Integration tests: compile and execute real Ouros programs end to end
// through the VM, rather than exercising the parser/codegen in isolation.

func run(t *testing.T, src string) string {
	t.Helper()
	chunk, err := compiler.Compile(src, compiler.CompileOptions{ScriptName: "integration"})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
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

func TestIntegrationFactorial(t *testing.T) {
	src := "def factorial(n):\n" +
		"    if n == 0: return 1\n" +
		"    return n * factorial(n - 1)\n" +
		"factorial(5)\n"
	if got := run(t, src); got != "120" {
		t.Errorf("factorial(5) = %s, want 120", got)
	}
}

func TestIntegrationFibonacci(t *testing.T) {
	src := "def fib(n):\n" +
		"    if n < 2: return n\n" +
		"    return fib(n - 1) + fib(n - 2)\n" +
		"fib(10)\n"
	if got := run(t, src); got != "55" {
		t.Errorf("fib(10) = %s, want 55", got)
	}
}

func TestIntegrationClassesAndMethods(t *testing.T) {
	src := "class Point:\n" +
		"    def __init__(self, x, y):\n" +
		"        self.x = x\n" +
		"        self.y = y\n" +
		"    def sum(self):\n" +
		"        return self.x + self.y\n" +
		"p = Point(3, 4)\n" +
		"p.sum()\n"
	if got := run(t, src); got != "7" {
		t.Errorf("Point(3, 4).sum() = %s, want 7", got)
	}
}

func TestIntegrationClosures(t *testing.T) {
	src := "def make_adder(n):\n" +
		"    def adder(x):\n" +
		"        return x + n\n" +
		"    return adder\n" +
		"add5 = make_adder(5)\n" +
		"add5(10)\n"
	if got := run(t, src); got != "15" {
		t.Errorf("add5(10) = %s, want 15", got)
	}
}

func TestIntegrationTryExceptRecovers(t *testing.T) {
	src := "def safe_div(a, b):\n" +
		"    try:\n" +
		"        return a / b\n" +
		"    except ZeroDivisionError:\n" +
		"        return -1\n" +
		"safe_div(10, 0)\n"
	if got := run(t, src); got != "-1" {
		t.Errorf("safe_div(10, 0) = %s, want -1", got)
	}
}

func TestIntegrationForLoopOverList(t *testing.T) {
	src := "total = 0\n" +
		"for i in [1, 2, 3, 4]:\n" +
		"    total = total + i\n" +
		"total\n"
	if got := run(t, src); got != "10" {
		t.Errorf("sum([1,2,3,4]) = %s, want 10", got)
	}
}
